package findservice

import (
	"fmt"
	"time"
)

// Effect is an action the caller executes on behalf of the machine.
type Effect interface {
	fmt.Stringer
	effect()
}

// SendFindService transmits a FindService entry for the instance.
type SendFindService struct{}

// StartTimer (re)arms the machine's timer. A previously running timer is
// stopped first.
type StartTimer struct {
	Delay time.Duration
}

// StopTimer cancels the machine's timer.
type StopTimer struct{}

// AvailabilityChanged reports an offered/not offered change.
type AvailabilityChanged struct {
	Available bool
}

// StateChanged reports a phase transition.
type StateChanged struct {
	From, To State
}

func (SendFindService) effect()     {}
func (StartTimer) effect()          {}
func (StopTimer) effect()           {}
func (AvailabilityChanged) effect() {}
func (StateChanged) effect()        {}

func (SendFindService) String() string { return "SendFindService" }
func (e StartTimer) String() string    { return fmt.Sprintf("StartTimer(%s)", e.Delay) }
func (StopTimer) String() string       { return "StopTimer" }
func (e AvailabilityChanged) String() string {
	return fmt.Sprintf("AvailabilityChanged(%t)", e.Available)
}
func (e StateChanged) String() string { return fmt.Sprintf("StateChanged(%s -> %s)", e.From, e.To) }
