package findservice

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/flankersky/vector-ap-bsw-sub007/pkg/someip"
)

// Config holds the resolved FindService timing parameters.
type Config struct {
	InitialDelayMin      time.Duration
	InitialDelayMax      time.Duration
	RepetitionsBaseDelay time.Duration
	RepetitionsMax       int

	// RandomDelay draws the initial delay from [lo, hi]. Nil draws
	// uniformly with math/rand/v2.
	RandomDelay func(lo, hi time.Duration) time.Duration
}

// Validation errors.
var (
	ErrInitialDelayRange = errors.New("initial delay min exceeds max")
	ErrNegativeDelay     = errors.New("negative delay")
	ErrBaseDelay         = errors.New("repetitions base delay must be positive when repetitions are enabled")
	ErrRepetitions       = errors.New("negative repetitions max")
)

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.InitialDelayMin < 0 || c.InitialDelayMax < 0 || c.RepetitionsBaseDelay < 0:
		return ErrNegativeDelay
	case c.InitialDelayMin > c.InitialDelayMax:
		return ErrInitialDelayRange
	case c.RepetitionsMax < 0:
		return ErrRepetitions
	case c.RepetitionsMax > 0 && c.RepetitionsBaseDelay == 0:
		return ErrBaseDelay
	}
	return nil
}

func uniformDelay(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo+1)
}

// Machine is the FindService state machine of one service instance.
// It is not safe for concurrent use.
type Machine struct {
	cfg Config

	state       State
	available   bool
	networkUp   bool
	requested   bool
	repetitions int
	backoff     time.Duration

	effects []Effect
}

// New creates a machine in DownPhase. It panics on an invalid config.
func New(cfg Config) *Machine {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("findservice: %v", err))
	}
	if cfg.RandomDelay == nil {
		cfg.RandomDelay = uniformDelay
	}
	return &Machine{cfg: cfg, state: DownPhase}
}

// State returns the current phase.
func (m *Machine) State() State { return m.state }

// IsAvailable reports whether the instance is currently offered.
func (m *Machine) IsAvailable() bool { return m.available }

// IsNetworkUp reports the last network state.
func (m *Machine) IsNetworkUp() bool { return m.networkUp }

// IsRequested reports whether a local application requires the instance.
func (m *Machine) IsRequested() bool { return m.requested }

// Repetitions returns the number of FindService repetitions sent in the
// current RepetitionPhase.
func (m *Machine) Repetitions() int { return m.repetitions }

// OnNetworkUp handles the network becoming available.
func (m *Machine) OnNetworkUp() []Effect {
	m.networkUp = true
	if m.state == DownPhase && m.requested {
		m.changeState(InitialWaitPhase)
	}
	return m.flush()
}

// OnNetworkDown handles loss of the network.
func (m *Machine) OnNetworkDown() []Effect {
	m.networkUp = false
	switch m.state {
	case DownPhase:
		m.emit(StopTimer{})
		m.setAvailable(false)
	case InitialWaitPhase, RepetitionPhase:
		m.emit(StopTimer{})
		m.changeState(DownPhase)
	case MainPhase:
		m.emit(StopTimer{})
		m.setAvailable(false)
		m.changeState(DownPhase)
	}
	return m.flush()
}

// OnServiceRequested handles a local request. Requesting twice without a
// release in between panics.
func (m *Machine) OnServiceRequested() []Effect {
	if m.requested {
		panic("findservice: service already requested")
	}
	m.requested = true
	if m.state == DownPhase {
		if m.available {
			// Offer seen while not requested; the TTL timer keeps running.
			m.changeState(MainPhase)
		} else if m.networkUp {
			m.changeState(InitialWaitPhase)
		}
	}
	return m.flush()
}

// OnServiceReleased handles a local release. Releasing a service that is
// not requested panics.
func (m *Machine) OnServiceReleased() []Effect {
	if !m.requested {
		panic("findservice: service not requested")
	}
	m.requested = false
	switch m.state {
	case InitialWaitPhase, RepetitionPhase:
		m.emit(StopTimer{})
		m.changeState(DownPhase)
	case MainPhase:
		m.emit(StopTimer{})
		m.setAvailable(false)
		m.changeState(DownPhase)
	}
	return m.flush()
}

// OnOfferService handles a matching OfferService entry with the given TTL.
func (m *Machine) OnOfferService(ttl time.Duration) []Effect {
	switch m.state {
	case DownPhase:
		m.startTTL(ttl)
		m.setAvailable(true)
	case InitialWaitPhase, RepetitionPhase:
		m.startTTL(ttl)
		m.setAvailable(true)
		m.changeState(MainPhase)
	case MainPhase:
		m.startTTL(ttl)
		m.setAvailable(true)
	}
	return m.flush()
}

// OnStopOfferService handles a matching StopOfferService entry.
func (m *Machine) OnStopOfferService() []Effect {
	switch m.state {
	case DownPhase, MainPhase:
		m.emit(StopTimer{})
		m.setAvailable(false)
	}
	return m.flush()
}

// OnTimeout handles expiry of the machine's timer.
func (m *Machine) OnTimeout() []Effect {
	switch m.state {
	case DownPhase:
		m.setAvailable(false)
	case InitialWaitPhase:
		m.sendAndProceed()
	case RepetitionPhase:
		m.emit(SendFindService{})
		m.repetitions++
		if m.repetitions < m.cfg.RepetitionsMax {
			m.backoff *= 2
			m.startTimer(m.backoff)
		} else {
			// Search exhausted, keep listening for offers.
			m.changeState(MainPhase)
		}
	case MainPhase:
		if m.available {
			m.setAvailable(false)
			m.changeState(InitialWaitPhase)
		}
	}
	return m.flush()
}

func (m *Machine) sendAndProceed() {
	m.emit(SendFindService{})
	if m.cfg.RepetitionsMax > 0 {
		m.changeState(RepetitionPhase)
	} else {
		m.changeState(MainPhase)
	}
}

// changeState panics on a transition the current state does not allow.
func (m *Machine) changeState(to State) {
	if !IsValidChange(m.state, to) {
		panic(fmt.Sprintf("findservice: illegal state change %s -> %s", m.state, to))
	}
	from := m.state
	m.state = to
	m.emit(StateChanged{From: from, To: to})

	switch to {
	case DownPhase:
		if !m.networkUp {
			m.setAvailable(false)
		}
	case InitialWaitPhase:
		delay := m.cfg.RandomDelay(m.cfg.InitialDelayMin, m.cfg.InitialDelayMax)
		if delay > 0 {
			m.startTimer(delay)
		} else {
			m.sendAndProceed()
		}
	case RepetitionPhase:
		m.repetitions = 0
		m.backoff = m.cfg.RepetitionsBaseDelay
		m.startTimer(m.backoff)
	}
}

// startTimer panics on a non-positive delay.
func (m *Machine) startTimer(delay time.Duration) {
	if delay <= 0 {
		panic(fmt.Sprintf("findservice: illegal timer delay %s", delay))
	}
	m.emit(StartTimer{Delay: delay})
}

func (m *Machine) startTTL(ttl time.Duration) {
	if ttl == someip.TTLInfinite {
		m.emit(StopTimer{})
		return
	}
	m.startTimer(ttl)
}

func (m *Machine) setAvailable(available bool) {
	if m.available == available {
		return
	}
	m.available = available
	m.emit(AvailabilityChanged{Available: available})
}

func (m *Machine) emit(e Effect) {
	m.effects = append(m.effects, e)
}

func (m *Machine) flush() []Effect {
	out := m.effects
	m.effects = nil
	return out
}
