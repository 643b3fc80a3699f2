package log

import (
	"time"

	"github.com/flankersky/vector-ap-bsw-sub007/pkg/someip"
)

// Event is a protocol trace event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID is the label of the sink involved (UUID), if any.
	ConnectionID string `cbor:"2,keyasint,omitempty"`

	// Direction indicates message flow relative to the daemon.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// RemoteAddr is the peer an SD entry was sent to or received from.
	RemoteAddr string `cbor:"6,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Message     *MessageEvent     `cbor:"10,keyasint,omitempty"` // Router
	Entry       *EntryEvent       `cbor:"11,keyasint,omitempty"` // SD
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // SD, Application
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"` // any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which daemon layer captured the event.
type Layer uint8

const (
	// LayerRouter is the packet router.
	LayerRouter Layer = 0
	// LayerSD is the service discovery client.
	LayerSD Layer = 1
	// LayerApplication is the local application connection layer.
	LayerApplication Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerRouter:
		return "ROUTER"
	case LayerSD:
		return "SD"
	case LayerApplication:
		return "APPLICATION"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a SOME/IP message handled by the router.
	CategoryMessage Category = 0
	// CategoryEntry indicates a service discovery entry.
	CategoryEntry Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryEntry:
		return "ENTRY"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MessageEvent captures a SOME/IP message and what the router did with it.
type MessageEvent struct {
	Service  someip.ServiceID   `cbor:"1,keyasint"`
	Method   someip.MethodID    `cbor:"2,keyasint"`
	Instance someip.InstanceID  `cbor:"3,keyasint"`
	Client   someip.ClientID    `cbor:"4,keyasint,omitempty"`
	Session  someip.SessionID   `cbor:"5,keyasint,omitempty"`
	Type     someip.MessageType `cbor:"6,keyasint"`

	// ReturnCode is set for responses and errors.
	ReturnCode someip.ReturnCode `cbor:"7,keyasint,omitempty"`

	// PayloadSize is the payload length in bytes.
	PayloadSize int `cbor:"8,keyasint,omitempty"`

	// Outcome is the routing decision.
	Outcome Outcome `cbor:"9,keyasint"`

	// Receivers is the number of sinks the packet was forwarded to.
	Receivers int `cbor:"10,keyasint,omitempty"`

	// Reason explains a drop.
	Reason string `cbor:"11,keyasint,omitempty"`
}

// Outcome is a routing decision.
type Outcome uint8

const (
	// OutcomeForwarded means at least one sink received the packet.
	OutcomeForwarded Outcome = 0
	// OutcomeDropped means no sink received the packet.
	OutcomeDropped Outcome = 1
	// OutcomeCached means the packet was stored in the field cache only.
	OutcomeCached Outcome = 2
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeForwarded:
		return "FORWARDED"
	case OutcomeDropped:
		return "DROPPED"
	case OutcomeCached:
		return "CACHED"
	default:
		return "UNKNOWN"
	}
}

// EntryEvent captures a service discovery entry.
type EntryEvent struct {
	// Type is the entry type name (e.g. "FIND_SERVICE").
	Type string `cbor:"1,keyasint"`

	Service    someip.ServiceID    `cbor:"2,keyasint"`
	Instance   someip.InstanceID   `cbor:"3,keyasint"`
	Eventgroup someip.EventgroupID `cbor:"4,keyasint,omitempty"`

	// TTL carried by offers, subscriptions and acks.
	TTL time.Duration `cbor:"5,keyasint,omitempty"`

	// RequestInitial is the initial-events flag of a subscription.
	RequestInitial bool `cbor:"6,keyasint,omitempty"`
}

// StateChangeEvent captures state machine transitions and sink lifecycle.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// Key identifies the entity instance (e.g. "1234:0001:0005").
	Key string `cbor:"2,keyasint,omitempty"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"3,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"4,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"5,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityFindService indicates a FindService state machine transition.
	StateEntityFindService StateEntity = 0
	// StateEntityEventgroup indicates an eventgroup subscription transition.
	StateEntityEventgroup StateEntity = 1
	// StateEntitySink indicates a sink being registered or removed.
	StateEntitySink StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityFindService:
		return "FIND_SERVICE"
	case StateEntityEventgroup:
		return "EVENTGROUP"
	case StateEntitySink:
		return "SINK"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}

// NewMessageEvent builds a MessageEvent from a packet header.
func NewMessageEvent(instance someip.InstanceID, h someip.Header, payloadSize int) *MessageEvent {
	m := &MessageEvent{
		Service:     h.Service,
		Method:      h.Method,
		Instance:    instance,
		Client:      h.Client,
		Session:     h.Session,
		Type:        h.MessageType,
		PayloadSize: payloadSize,
	}
	if h.MessageType == someip.MessageTypeResponse || h.MessageType == someip.MessageTypeError {
		m.ReturnCode = h.ReturnCode
	}
	return m
}
