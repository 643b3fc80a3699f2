// Package eventgroup implements the client side eventgroup subscription
// state machine of SOME/IP Service Discovery.
//
// One Machine exists per locally requested (service, instance, eventgroup).
// It subscribes while the instance is offered, renews the subscription on
// every repeated offer and falls back to a fresh subscription when the
// subscription lifetime lapses.
//
// Like findservice, handlers return Effects instead of acting. The machine
// owns two timers, distinguished by TimerKind: the acknowledgment wait and
// the subscription lifetime.
package eventgroup
