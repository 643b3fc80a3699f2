package application

import (
	"slices"
	"sync/atomic"

	"github.com/flankersky/vector-ap-bsw-sub007/pkg/router"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/sd/eventgroup"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/someip"
)

// Message is a packet queued for an application.
type Message struct {
	Instance someip.InstanceID
	Packet   *someip.Packet
}

// NoticeKind distinguishes SD notices.
type NoticeKind uint8

const (
	// NoticeAvailability reports an offered/not offered change.
	NoticeAvailability NoticeKind = iota
	// NoticeSubscription reports an eventgroup subscription change.
	NoticeSubscription
)

// Notice is an SD status update for an application.
type Notice struct {
	Kind       NoticeKind
	Service    someip.ServiceInstanceKey
	Eventgroup someip.EventgroupKey
	Available  bool
	Status     eventgroup.Status
}

// Connection is one local application.
type Connection struct {
	id      router.SinkID
	label   string
	packets chan Message
	notices chan Notice
	closed  bool
	metrics *Metrics

	dropped atomic.Uint64

	offered    []someip.ServiceInstanceKey
	requested  []someip.ServiceInstanceKey
	subscribed []someip.EventgroupKey
	clientIDs  []someip.ClientID
}

var _ router.Sink = (*Connection)(nil)

func newConnection(queueSize int, metrics *Metrics) *Connection {
	return &Connection{
		packets: make(chan Message, queueSize),
		notices: make(chan Notice, queueSize),
		metrics: metrics,
	}
}

// ID returns the connection's sink handle.
func (c *Connection) ID() router.SinkID { return c.id }

// Label returns the connection's trace label.
func (c *Connection) Label() string { return c.label }

// Packets delivers routed packets. It is closed on disconnect.
func (c *Connection) Packets() <-chan Message { return c.packets }

// Notices delivers SD status updates for the instances and eventgroups
// the connection requested. It is closed on disconnect.
func (c *Connection) Notices() <-chan Notice { return c.notices }

// Dropped returns the number of packets and notices lost to a full or
// closed queue.
func (c *Connection) Dropped() uint64 { return c.dropped.Load() }

// Forward queues a packet. A full queue or closed connection drops it.
func (c *Connection) Forward(instance someip.InstanceID, pkt *someip.Packet) {
	if c.closed {
		c.drop(reasonClosed)
		return
	}
	select {
	case c.packets <- Message{Instance: instance, Packet: pkt}:
	default:
		c.drop(reasonQueueFull)
	}
}

func (c *Connection) notify(n Notice) {
	if c.closed {
		return
	}
	select {
	case c.notices <- n:
	default:
		c.drop(reasonQueueFull)
	}
}

func (c *Connection) drop(reason string) {
	c.dropped.Add(1)
	c.metrics.drop(reason)
}

func (c *Connection) close() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.packets)
	close(c.notices)
}

// Offered returns the instances the connection provides.
func (c *Connection) Offered() []someip.ServiceInstanceKey { return slices.Clone(c.offered) }

// Requested returns the instances the connection requires.
func (c *Connection) Requested() []someip.ServiceInstanceKey { return slices.Clone(c.requested) }

// Subscribed returns the eventgroups the connection subscribed to.
func (c *Connection) Subscribed() []someip.EventgroupKey { return slices.Clone(c.subscribed) }

// ClientIDs returns the client IDs allocated to the connection.
func (c *Connection) ClientIDs() []someip.ClientID { return slices.Clone(c.clientIDs) }
