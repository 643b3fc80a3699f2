// Package router implements the packet router of the daemon and its field
// value cache.
//
// The router keeps four routing tables:
//
//   - request routes: (service, instance) to the single provider sink
//   - response routes: one record per forwarded request, keyed by
//     (service, instance, client, session), consumed by the first matching
//     response or error
//   - event routes: (service, instance, event) to the subscriber sinks
//   - eventgroup routes: (service, instance, eventgroup) to the subscriber
//     sinks
//
// plus one Cache of the last field notification per service instance, so a
// late subscriber receives the current value of every field at once.
//
// Sinks are registered in a Registry and referenced by SinkID. Tables store
// IDs only; a disconnecting sink is purged with CleanUpAllRoutingTableEntries
// before it is removed from the registry.
//
// The router is not safe for concurrent use. All calls are made from the
// daemon's logic thread.
package router
