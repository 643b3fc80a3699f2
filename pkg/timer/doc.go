// Package timer implements the Timer Facility used by the service discovery
// state machines.
//
// # Timer Lifecycle
//
// StartOneShot arms a timer and returns a Handle. When the delay elapses the
// expiry callback is handed to the Poster (normally the reactor loop), so
// callbacks always run on the logic thread. Stop cancels a timer; a callback
// that was already handed to the poster but has not run yet is discarded when
// its handle has been stopped in the meantime.
//
// # One Timer Per Purpose
//
// A Slot holds at most one outstanding timer. Starting a slot stops whatever
// it held before, so a state machine never has two timers of the same kind
// pending.
//
// # Clock
//
// The clock is injected (github.com/benbjohnson/clock) so tests can drive
// expiry with a mock clock.
package timer
