package application

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/flankersky/vector-ap-bsw-sub007/pkg/log"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/router"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/sd"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/sd/eventgroup"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/someip"
)

// Manager errors.
var (
	ErrUnknownConnection = errors.New("unknown connection")
	ErrUnknownService    = errors.New("service not configured")
	ErrUnknownEventgroup = errors.New("eventgroup not configured")
	ErrAlreadyOffered    = errors.New("service instance already offered")
	ErrNotOffered        = errors.New("service instance not offered by connection")
	ErrNotRequested      = errors.New("service instance not requested by connection")
	ErrNotSubscribed     = errors.New("eventgroup not subscribed by connection")
	ErrNoClientID        = errors.New("no client id available")
	ErrUnknownClientID   = errors.New("client id not allocated to connection")
)

// DefaultQueueSize is the outbound queue length of a connection when
// Config.QueueSize is zero.
const DefaultQueueSize = 256

// Catalog answers which services and eventgroups are configured.
type Catalog interface {
	HasService(service someip.ServiceID) bool
	HasEventgroup(service someip.ServiceID, eventgroup someip.EventgroupID) bool
}

// Config configures a Manager. Router and SD are required.
type Config struct {
	Router *router.Router
	SD     *sd.Client

	// Catalog validates offers and subscriptions. Nil accepts anything.
	Catalog Catalog

	// QueueSize bounds each connection's packet and notice queues.
	QueueSize int

	Logger         *slog.Logger
	ProtocolLogger log.Logger
	Metrics        *Metrics
}

// Manager owns the local application connections.
//
// Manager is not safe for concurrent use; it runs on the reactor loop.
type Manager struct {
	router  *router.Router
	sd      *sd.Client
	catalog Catalog
	queue   int
	logger  *slog.Logger
	trace   log.Logger
	metrics *Metrics
	now     func() time.Time

	conns      map[router.SinkID]*Connection
	offers     map[someip.ServiceInstanceKey]router.SinkID
	clientIDs  map[someip.ClientID]router.SinkID
	nextClient someip.ClientID
}

// NewManager creates a manager. It panics if Router or SD is nil.
func NewManager(cfg Config) *Manager {
	if cfg.Router == nil || cfg.SD == nil {
		panic("application: router and sd client are required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		router:     cfg.Router,
		sd:         cfg.SD,
		catalog:    cfg.Catalog,
		queue:      cfg.QueueSize,
		logger:     logger,
		trace:      log.OrNoop(cfg.ProtocolLogger),
		metrics:    cfg.Metrics,
		now:        time.Now,
		conns:      make(map[router.SinkID]*Connection),
		offers:     make(map[someip.ServiceInstanceKey]router.SinkID),
		clientIDs:  make(map[someip.ClientID]router.SinkID),
		nextClient: 1,
	}
}

// Connect registers a new application connection.
func (m *Manager) Connect() *Connection {
	c := newConnection(m.queue, m.metrics)
	sinks := m.router.Sinks()
	c.id = sinks.Add(c)
	c.label = sinks.Label(c.id)
	m.conns[c.id] = c

	obs := m.sd.Observers()
	obs.OnAvailability(c.id, func(key someip.ServiceInstanceKey, available bool) {
		if slices.Contains(c.requested, key) {
			c.notify(Notice{Kind: NoticeAvailability, Service: key, Available: available})
		}
	})
	obs.OnSubscription(c.id, func(key someip.EventgroupKey, status eventgroup.Status) {
		if slices.Contains(c.subscribed, key) {
			c.notify(Notice{Kind: NoticeSubscription, Service: key.ServiceInstanceKey, Eventgroup: key, Status: status})
		}
	})

	m.metrics.connected(1)
	m.logger.Info("application connected", "conn", c.id, "label", c.label)
	m.traceSink(c, "", "connected")
	return c
}

// Disconnect removes a connection and undoes everything it registered:
// offers, subscriptions, requested services, routes, observers and
// client IDs. Its queues are closed.
func (m *Manager) Disconnect(id router.SinkID) error {
	c, ok := m.conns[id]
	if !ok {
		return ErrUnknownConnection
	}

	for _, key := range c.offered {
		m.router.DeleteRequestRoute(key.Service, key.Instance)
		delete(m.offers, key)
	}
	for _, key := range c.subscribed {
		m.sd.Unsubscribe(key, id)
	}
	for _, key := range c.requested {
		m.sd.ReleaseService(key)
	}
	for _, client := range c.clientIDs {
		delete(m.clientIDs, client)
	}
	c.offered, c.subscribed, c.requested, c.clientIDs = nil, nil, nil, nil

	m.router.CleanUpAllRoutingTableEntries(id)
	m.sd.Observers().Remove(id)
	m.router.Sinks().Remove(id)
	delete(m.conns, id)
	c.close()

	m.metrics.connected(-1)
	m.logger.Info("application disconnected", "conn", id, "label", c.label, "dropped", c.Dropped())
	m.traceSink(c, "connected", "disconnected")
	return nil
}

// Connection returns a registered connection.
func (m *Manager) Connection(id router.SinkID) (*Connection, bool) {
	c, ok := m.conns[id]
	return c, ok
}

// Connections returns every connection handle in ascending order.
func (m *Manager) Connections() []router.SinkID {
	return slices.SortedFunc(maps.Keys(m.conns), router.SinkID.Compare)
}

// RequestService records that the connection requires key and starts the
// search if nobody else does. A connection may request the same instance
// more than once; each request needs a matching release.
func (m *Manager) RequestService(id router.SinkID, key someip.ServiceInstanceKey) error {
	c, err := m.lookup(id)
	if err != nil {
		return err
	}
	if err := m.sd.RequestService(key); err != nil {
		return m.failed(c, "request service", key.String(), err)
	}
	c.requested = append(c.requested, key)
	m.logger.Debug("service requested", "conn", id, "service", key)
	return nil
}

// ReleaseService drops one request of key by the connection.
func (m *Manager) ReleaseService(id router.SinkID, key someip.ServiceInstanceKey) error {
	c, err := m.lookup(id)
	if err != nil {
		return err
	}
	idx := slices.Index(c.requested, key)
	if idx < 0 {
		return m.failed(c, "release service", key.String(), ErrNotRequested)
	}
	c.requested = slices.Delete(c.requested, idx, idx+1)
	m.sd.ReleaseService(key)
	m.logger.Debug("service released", "conn", id, "service", key)
	return nil
}

// Subscribe subscribes the connection to an eventgroup. Events of the
// group are routed to the connection once the subscription is acknowledged.
func (m *Manager) Subscribe(id router.SinkID, key someip.EventgroupKey) error {
	c, err := m.lookup(id)
	if err != nil {
		return err
	}
	if m.catalog != nil && !m.catalog.HasEventgroup(key.Service, key.Eventgroup) {
		return m.failed(c, "subscribe", key.String(), ErrUnknownEventgroup)
	}
	// Recorded first so status notices raised by the subscribe reach c.
	c.subscribed = append(c.subscribed, key)
	if err := m.sd.Subscribe(key, id); err != nil {
		c.subscribed = c.subscribed[:len(c.subscribed)-1]
		return m.failed(c, "subscribe", key.String(), err)
	}
	m.logger.Debug("eventgroup subscribed", "conn", id, "eventgroup", key)
	return nil
}

// Unsubscribe drops one subscription of the connection.
func (m *Manager) Unsubscribe(id router.SinkID, key someip.EventgroupKey) error {
	c, err := m.lookup(id)
	if err != nil {
		return err
	}
	idx := slices.Index(c.subscribed, key)
	if idx < 0 {
		return m.failed(c, "unsubscribe", key.String(), ErrNotSubscribed)
	}
	c.subscribed = slices.Delete(c.subscribed, idx, idx+1)
	m.sd.Unsubscribe(key, id)
	m.logger.Debug("eventgroup unsubscribed", "conn", id, "eventgroup", key)
	return nil
}

// OfferService makes the connection the provider of key: requests for the
// instance are routed to it. An instance has at most one local provider.
func (m *Manager) OfferService(id router.SinkID, key someip.ServiceInstanceKey) error {
	c, err := m.lookup(id)
	if err != nil {
		return err
	}
	if key.IsWildcard() {
		return m.failed(c, "offer service", key.String(), sd.ErrWildcardInstance)
	}
	if m.catalog != nil && !m.catalog.HasService(key.Service) {
		return m.failed(c, "offer service", key.String(), ErrUnknownService)
	}
	if owner, ok := m.offers[key]; ok {
		m.logger.Warn("service already offered, skipped", "conn", id, "service", key, "owner", owner)
		return m.failed(c, "offer service", key.String(), ErrAlreadyOffered)
	}
	m.offers[key] = id
	c.offered = append(c.offered, key)
	m.router.AddRequestRoute(key.Service, key.Instance, id)
	m.logger.Info("service offered", "conn", id, "service", key)
	return nil
}

// StopOfferService withdraws an offer of the connection.
func (m *Manager) StopOfferService(id router.SinkID, key someip.ServiceInstanceKey) error {
	c, err := m.lookup(id)
	if err != nil {
		return err
	}
	idx := slices.Index(c.offered, key)
	if idx < 0 {
		return m.failed(c, "stop offer service", key.String(), ErrNotOffered)
	}
	c.offered = slices.Delete(c.offered, idx, idx+1)
	delete(m.offers, key)
	m.router.DeleteRequestRoute(key.Service, key.Instance)
	m.logger.Info("service offer stopped", "conn", id, "service", key)
	return nil
}

// Provider returns the connection offering key.
func (m *Manager) Provider(key someip.ServiceInstanceKey) (router.SinkID, bool) {
	id, ok := m.offers[key]
	return id, ok
}

// Send hands a packet from the connection to the router.
func (m *Manager) Send(id router.SinkID, instance someip.InstanceID, pkt *someip.Packet) error {
	if _, err := m.lookup(id); err != nil {
		return err
	}
	m.router.Forward(instance, id, pkt)
	return nil
}

// AllocateClientID assigns an unused client ID to the connection. IDs are
// handed out round robin from 1 to 0xFFFE.
func (m *Manager) AllocateClientID(id router.SinkID) (someip.ClientID, error) {
	c, err := m.lookup(id)
	if err != nil {
		return 0, err
	}
	for range 0xFFFE {
		client := m.nextClient
		m.nextClient++
		if m.nextClient == 0xFFFF {
			m.nextClient = 1
		}
		if _, used := m.clientIDs[client]; used {
			continue
		}
		m.clientIDs[client] = id
		c.clientIDs = append(c.clientIDs, client)
		return client, nil
	}
	return 0, m.failed(c, "allocate client id", "", ErrNoClientID)
}

// ReleaseClientID returns a client ID of the connection to the pool.
func (m *Manager) ReleaseClientID(id router.SinkID, client someip.ClientID) error {
	c, err := m.lookup(id)
	if err != nil {
		return err
	}
	idx := slices.Index(c.clientIDs, client)
	if idx < 0 {
		return m.failed(c, "release client id", fmt.Sprintf("%04x", uint16(client)), ErrUnknownClientID)
	}
	c.clientIDs = slices.Delete(c.clientIDs, idx, idx+1)
	delete(m.clientIDs, client)
	return nil
}

// Shutdown disconnects every connection.
func (m *Manager) Shutdown() {
	for _, id := range m.Connections() {
		_ = m.Disconnect(id)
	}
}

func (m *Manager) lookup(id router.SinkID) (*Connection, error) {
	c, ok := m.conns[id]
	if !ok {
		return nil, ErrUnknownConnection
	}
	return c, nil
}

// failed logs err for the connection and returns it wrapped with the
// operation name.
func (m *Manager) failed(c *Connection, op, key string, err error) error {
	context := op
	if key != "" {
		context += " " + key
	}
	m.logger.Warn(op+" failed", "conn", c.id, "key", key, "error", err)
	m.trace.Log(log.Event{
		Timestamp:    m.now(),
		ConnectionID: c.label,
		Layer:        log.LayerApplication,
		Category:     log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerApplication,
			Message: err.Error(),
			Context: context,
		},
	})
	return fmt.Errorf("%s: %w", context, err)
}

func (m *Manager) traceSink(c *Connection, from, to string) {
	m.trace.Log(log.Event{
		Timestamp:    m.now(),
		ConnectionID: c.label,
		Layer:        log.LayerApplication,
		Category:     log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySink,
			Key:      c.id.String(),
			OldState: from,
			NewState: to,
		},
	})
}
