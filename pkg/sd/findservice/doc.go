// Package findservice implements the client side FindService state
// machine of SOME/IP Service Discovery.
//
// One Machine exists per required (service, instance). It searches for the
// instance with a randomized initial delay followed by a bounded number of
// FindService repetitions with binary exponential backoff, and tracks the
// offered/not offered lifecycle of the instance against the offer TTL.
//
// Handlers never perform side effects. Each returns the list of Effects the
// caller must execute in order: transmit a FindService entry, start or
// stop the machine's single timer, or publish an availability change.
//
//	DownPhase ──request/network up──▶ InitialWaitPhase ──timeout──▶ RepetitionPhase
//	    ▲                                   │                            │
//	    │                                   └────offer / no repetitions──┴──▶ MainPhase
//	    └─────────────── network down / release ─────────────────────────────────┘
package findservice
