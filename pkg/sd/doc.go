// Package sd is the client side of SOME/IP Service Discovery.
//
// A Client owns one findservice.Machine per required service instance and
// one eventgroup.Machine per subscribed eventgroup. It dispatches inbound
// SD entries and local requests to the machines and executes the effects
// they return: entries are handed to a Transmitter, timers are armed on a
// timer.Facility, eventgroup routes and cached field values go through the
// router, and status changes are published to registered Observers.
//
// A Client is not safe for concurrent use. The daemon drives it from the
// reactor loop, which is also where the timer facility posts expiries.
package sd
