package eventgroup

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/flankersky/vector-ap-bsw-sub007/pkg/someip"
)

// Config holds the resolved subscription timing parameters.
type Config struct {
	// AckTimeout bounds the wait for a SubscribeEventgroupAck.
	AckTimeout time.Duration
	// SubscriptionTTL is used when an ack carries no TTL.
	SubscriptionTTL time.Duration
}

// Validation errors.
var (
	ErrAckTimeout      = errors.New("subscribe ack timeout must be positive")
	ErrSubscriptionTTL = errors.New("subscription ttl must be positive")
)

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.AckTimeout <= 0 {
		return ErrAckTimeout
	}
	if c.SubscriptionTTL <= 0 {
		return ErrSubscriptionTTL
	}
	return nil
}

// Ack carries the parameters of a SubscribeEventgroupAck.
type Ack struct {
	// TTL of the acknowledged subscription. Zero selects the configured
	// subscription TTL, someip.TTLInfinite keeps it forever.
	TTL time.Duration
	// Multicast is the endpoint the provider sends events to, if any.
	Multicast netip.AddrPort
}

// Machine is the subscription state machine of one eventgroup.
// It is not safe for concurrent use.
type Machine struct {
	cfg Config

	state     State
	requested bool
	available bool
	multicast bool

	ttl       time.Duration
	mcastAddr netip.AddrPort

	effects []Effect
}

// New creates a machine in NotSubscribed. It panics on an invalid config.
func New(cfg Config) *Machine {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("eventgroup: %v", err))
	}
	return &Machine{cfg: cfg, state: NotSubscribed}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Status returns the externally visible status.
func (m *Machine) Status() Status { return m.state.Status() }

// IsRequested reports whether a local subscriber exists.
func (m *Machine) IsRequested() bool { return m.requested }

// IsAvailable reports whether the instance is offered.
func (m *Machine) IsAvailable() bool { return m.available }

// IsMulticastOffer reports whether the last offer arrived by multicast.
func (m *Machine) IsMulticastOffer() bool { return m.multicast }

// Multicast returns the event endpoint from the last ack.
func (m *Machine) Multicast() netip.AddrPort { return m.mcastAddr }

// OnRequested handles the first local subscriber. Requesting twice without
// a release in between panics.
func (m *Machine) OnRequested() []Effect {
	if m.requested {
		panic("eventgroup: eventgroup already requested")
	}
	m.requested = true
	if m.state == NotSubscribed && m.available {
		m.changeState(SubscriptionPending)
	}
	return m.flush()
}

// OnReleased handles the last local subscriber leaving. Releasing an
// eventgroup that is not requested panics.
func (m *Machine) OnReleased() []Effect {
	if !m.requested {
		panic("eventgroup: eventgroup not requested")
	}
	m.requested = false
	if m.state != NotSubscribed {
		m.emit(SendStopSubscribe{})
		m.changeState(NotSubscribed)
	}
	return m.flush()
}

// OnOfferService handles an offer of the instance.
func (m *Machine) OnOfferService(multicast bool) []Effect {
	m.available = true
	m.multicast = multicast
	switch m.state {
	case NotSubscribed:
		if m.requested {
			m.changeState(SubscriptionPending)
		}
	case Subscribed:
		m.changeState(SubscriptionRenewal)
	}
	return m.flush()
}

// OnStopOfferService handles the provider withdrawing the instance. No
// StopSubscribe is sent since the provider already dropped the subscriber.
func (m *Machine) OnStopOfferService() []Effect {
	m.available = false
	if m.state != NotSubscribed {
		m.changeState(NotSubscribed)
	}
	return m.flush()
}

// OnSubscribeEventgroupAck handles a positive acknowledgment. Acks in
// NotSubscribed or Subscribed are late or duplicate and ignored.
func (m *Machine) OnSubscribeEventgroupAck(ack Ack) []Effect {
	switch m.state {
	case SubscriptionPending, SubscriptionRenewal:
		m.ttl = ack.TTL
		if m.ttl == 0 {
			m.ttl = m.cfg.SubscriptionTTL
		}
		m.mcastAddr = ack.Multicast
		m.changeState(Subscribed)
	}
	return m.flush()
}

// OnSubscribeEventgroupNack handles a negative acknowledgment.
func (m *Machine) OnSubscribeEventgroupNack() []Effect {
	if m.state != NotSubscribed {
		m.changeState(NotSubscribed)
	}
	return m.flush()
}

// OnTimeout handles expiry of the ack timer.
func (m *Machine) OnTimeout() []Effect {
	switch m.state {
	case SubscriptionPending:
		m.changeState(NotSubscribed)
	case SubscriptionRenewal:
		m.emit(SendSubscribe{RequestInitial: true})
		m.startTimer(AckTimer, m.cfg.AckTimeout)
	}
	return m.flush()
}

// OnTTLTimeout handles expiry of the subscription lifetime.
func (m *Machine) OnTTLTimeout() []Effect {
	switch m.state {
	case Subscribed, SubscriptionRenewal:
		m.changeState(SubscriptionPending)
	}
	return m.flush()
}

// OnShutdown unsubscribes and forgets the request and the offer.
func (m *Machine) OnShutdown() []Effect {
	if m.state != NotSubscribed {
		m.emit(SendStopSubscribe{})
		m.changeState(NotSubscribed)
	}
	m.requested = false
	m.available = false
	return m.flush()
}

// changeState panics on a transition the current state does not allow.
func (m *Machine) changeState(to State) {
	if !IsValidChange(m.state, to) {
		panic(fmt.Sprintf("eventgroup: illegal state change %s -> %s", m.state, to))
	}
	from := m.state
	m.state = to
	m.emit(StateChanged{From: from, To: to})

	// Leaving subscribed for a fresh attempt is reported as a gap first.
	if from.Status() == StatusSubscribed && to == SubscriptionPending {
		m.emit(Notify{Status: StatusNotSubscribed})
	}
	if from.Status() != to.Status() {
		m.emit(Notify{Status: to.Status()})
	}

	switch to {
	case NotSubscribed:
		m.emit(StopTimer{Kind: AckTimer})
		m.emit(StopTimer{Kind: TTLTimer})
		m.mcastAddr = netip.AddrPort{}
	case SubscriptionPending:
		if from.Status() == StatusSubscribed {
			m.emit(StopTimer{Kind: TTLTimer})
		}
		m.emit(SendSubscribe{RequestInitial: true})
		m.startTimer(AckTimer, m.cfg.AckTimeout)
	case Subscribed:
		m.emit(StopTimer{Kind: AckTimer})
		if m.ttl == someip.TTLInfinite {
			m.emit(StopTimer{Kind: TTLTimer})
		} else {
			m.startTimer(TTLTimer, m.ttl)
		}
	case SubscriptionRenewal:
		m.emit(SendSubscribe{RequestInitial: false})
		m.startTimer(AckTimer, m.cfg.AckTimeout)
	}
}

// startTimer panics on a non-positive delay.
func (m *Machine) startTimer(kind TimerKind, delay time.Duration) {
	if delay <= 0 {
		panic(fmt.Sprintf("eventgroup: illegal %s timer delay %s", kind, delay))
	}
	m.emit(StartTimer{Kind: kind, Delay: delay})
}

func (m *Machine) emit(e Effect) {
	m.effects = append(m.effects, e)
}

func (m *Machine) flush() []Effect {
	out := m.effects
	m.effects = nil
	return out
}
