// Package someip defines the SOME/IP identifiers and message header used by
// the routing and service discovery core.
//
// # Identifiers
//
// A service instance is addressed by (ServiceID, InstanceID). Events and
// eventgroups extend that pair with an EventID or EventgroupID. All key
// types are comparable and totally ordered so they can key both Go maps and
// sorted views.
//
// InstanceAny (0xFFFF) is the wildcard used in FindService lookups. It is
// never a valid instance in a stored route.
//
// # Header
//
// Only the fields the router needs are interpreted: message ID (service and
// method/event), client ID, session ID, message type and return code. The
// payload is carried as opaque bytes; method argument serialization belongs
// to the bindings.
package someip
