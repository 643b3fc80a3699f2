// Package reactor provides the single logic thread of the daemon.
//
// All state machine transitions, routing table mutations and cache updates
// run to completion on the goroutine executing Loop.Run. Other goroutines
// (timer expiry, socket readers, the interactive console) never touch that
// state directly; they hand closures to the loop with Post or Do.
//
// A task that panics takes the loop down with it. Contract violations in the
// core are reported that way on purpose and are not recovered here.
package reactor
