package timer

import "time"

// Slot holds at most one outstanding timer of a given purpose.
type Slot struct {
	facility Facility
	handle   Handle
	delay    time.Duration
}

// NewSlot creates an empty slot on the given facility.
func NewSlot(f Facility) *Slot {
	return &Slot{facility: f}
}

// Start stops the previous timer of this slot, if any, and arms a new one.
func (s *Slot) Start(delay time.Duration, fn func()) error {
	s.Stop()
	h, err := s.facility.StartOneShot(delay, fn)
	if err != nil {
		return err
	}
	s.handle = h
	s.delay = delay
	return nil
}

// Stop cancels the slot's timer. Stopping an empty slot is a no-op.
func (s *Slot) Stop() {
	if s.handle == 0 {
		return
	}
	s.facility.Stop(s.handle)
	s.handle = 0
	s.delay = 0
}

// Active reports whether the slot's timer is armed.
func (s *Slot) Active() bool {
	return s.handle != 0 && s.facility.Active(s.handle)
}

// Delay returns the delay of the most recently started timer, or zero when
// the slot is empty.
func (s *Slot) Delay() time.Duration {
	if !s.Active() {
		return 0
	}
	return s.delay
}
