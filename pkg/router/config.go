package router

import "github.com/flankersky/vector-ap-bsw-sub007/pkg/someip"

// Transport is the transport an event is configured to use.
type Transport uint8

const (
	// TransportUDP delivers the event over UDP.
	TransportUDP Transport = iota
	// TransportTCP delivers the event over TCP.
	TransportTCP
)

// String returns "udp" or "tcp".
func (t Transport) String() string {
	switch t {
	case TransportUDP:
		return "udp"
	case TransportTCP:
		return "tcp"
	default:
		return "unknown"
	}
}

// EventInfo is the configuration of one event of a service.
type EventInfo struct {
	ID        someip.EventID
	Field     bool
	Transport Transport
}

// EventConfig answers the configuration questions the router has about
// events. Implementations must be read-only once handed to the router.
type EventConfig interface {
	// Event returns the configuration of an event of a service.
	Event(service someip.ServiceID, event someip.EventID) (EventInfo, bool)

	// EventToEventgroups returns the eventgroups that contain the event.
	EventToEventgroups(service someip.ServiceID, event someip.EventID) []someip.EventgroupID

	// EventgroupEvents returns the events of an eventgroup.
	EventgroupEvents(service someip.ServiceID, eventgroup someip.EventgroupID) []EventInfo
}
