package timer

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Timer errors.
var (
	ErrInvalidDelay = errors.New("invalid timer delay")
)

// Handle identifies an armed timer. The zero Handle is never issued.
type Handle uint64

// Poster hands a callback to the thread that should execute it.
// It returns false if the callback was not accepted.
type Poster func(fn func()) bool

// Inline runs callbacks directly on the goroutine that fired the timer.
func Inline(fn func()) bool {
	fn()
	return true
}

// Facility is the interface the state machine orchestration depends on.
type Facility interface {
	StartOneShot(delay time.Duration, fn func()) (Handle, error)
	Stop(h Handle) bool
	Active(h Handle) bool
}

// entry is an armed timer.
type entry struct {
	startTime time.Time
	delay     time.Duration
	fn        func()
	timer     *clock.Timer
}

// Manager manages one-shot timers.
type Manager struct {
	mu sync.Mutex

	clock clock.Clock
	post  Poster

	next   Handle
	timers map[Handle]*entry
}

var _ Facility = (*Manager)(nil)

// NewManager creates a timer manager. A nil clock uses the wall clock and a
// nil poster runs callbacks inline.
func NewManager(c clock.Clock, post Poster) *Manager {
	if c == nil {
		c = clock.New()
	}
	if post == nil {
		post = Inline
	}
	return &Manager{
		clock:  c,
		post:   post,
		timers: make(map[Handle]*entry),
	}
}

// StartOneShot arms a timer that calls fn once after delay.
func (m *Manager) StartOneShot(delay time.Duration, fn func()) (Handle, error) {
	if delay <= 0 {
		return 0, ErrInvalidDelay
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.next++
	h := m.next
	e := &entry{
		startTime: m.clock.Now(),
		delay:     delay,
		fn:        fn,
	}
	e.timer = m.clock.AfterFunc(delay, func() {
		m.post(func() { m.fire(h) })
	})
	m.timers[h] = e
	return h, nil
}

// Stop cancels a timer. It returns false if the timer already fired or was
// stopped before.
func (m *Manager) Stop(h Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, exists := m.timers[h]
	if !exists {
		return false
	}
	e.timer.Stop()
	delete(m.timers, h)
	return true
}

// Active reports whether the timer is armed and has not fired yet.
func (m *Manager) Active(h Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.timers[h]
	return exists
}

// Remaining returns the time until the timer fires.
func (m *Manager) Remaining(h Handle) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, exists := m.timers[h]
	if !exists {
		return 0, false
	}
	remaining := e.delay - m.clock.Since(e.startTime)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// Count returns the number of armed timers.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// StopAll cancels every armed timer (e.g., on shutdown).
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for h, e := range m.timers {
		e.timer.Stop()
		delete(m.timers, h)
	}
}

// fire runs on the poster's thread.
func (m *Manager) fire(h Handle) {
	m.mu.Lock()
	e, exists := m.timers[h]
	if !exists {
		// Stopped after expiry was posted.
		m.mu.Unlock()
		return
	}
	delete(m.timers, h)
	m.mu.Unlock()

	// Call callback outside lock
	e.fn()
}
