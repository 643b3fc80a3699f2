package eventgroup

import (
	"fmt"
	"time"
)

// Effect is an action the caller executes on behalf of the machine.
type Effect interface {
	fmt.Stringer
	effect()
}

// TimerKind selects one of the machine's two timers.
type TimerKind uint8

const (
	// AckTimer bounds the wait for a SubscribeEventgroupAck.
	AckTimer TimerKind = iota
	// TTLTimer tracks the lifetime of the acknowledged subscription.
	TTLTimer
)

func (k TimerKind) String() string {
	if k == AckTimer {
		return "ack"
	}
	return "ttl"
}

// SendSubscribe transmits a SubscribeEventgroup entry.
type SendSubscribe struct {
	RequestInitial bool
}

// SendStopSubscribe transmits a StopSubscribeEventgroup entry.
type SendStopSubscribe struct{}

// StartTimer (re)arms the timer of the given kind.
type StartTimer struct {
	Kind  TimerKind
	Delay time.Duration
}

// StopTimer cancels the timer of the given kind.
type StopTimer struct {
	Kind TimerKind
}

// Notify reports a change of the externally visible status.
type Notify struct {
	Status Status
}

// StateChanged reports a state transition.
type StateChanged struct {
	From, To State
}

func (SendSubscribe) effect()     {}
func (SendStopSubscribe) effect() {}
func (StartTimer) effect()        {}
func (StopTimer) effect()         {}
func (Notify) effect()            {}
func (StateChanged) effect()      {}

func (e SendSubscribe) String() string {
	return fmt.Sprintf("SendSubscribe(initial=%t)", e.RequestInitial)
}
func (SendStopSubscribe) String() string { return "SendStopSubscribe" }
func (e StartTimer) String() string      { return fmt.Sprintf("StartTimer(%s, %s)", e.Kind, e.Delay) }
func (e StopTimer) String() string       { return fmt.Sprintf("StopTimer(%s)", e.Kind) }
func (e Notify) String() string          { return fmt.Sprintf("Notify(%s)", e.Status) }
func (e StateChanged) String() string    { return fmt.Sprintf("StateChanged(%s -> %s)", e.From, e.To) }
