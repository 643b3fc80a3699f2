package router

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/flankersky/vector-ap-bsw-sub007/pkg/log"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/someip"
)

// Config configures a Router.
type Config struct {
	// Events resolves event configuration. Required.
	Events EventConfig

	// Logger for routing decisions. Nil disables logging.
	Logger *slog.Logger

	// ProtocolLogger receives one trace event per routed packet.
	// Nil disables tracing.
	ProtocolLogger log.Logger

	// Metrics records packet counters. Nil disables metrics.
	Metrics *Metrics
}

// ResponseRoute records where the response to a forwarded request goes.
type ResponseRoute struct {
	Service  someip.ServiceID
	Instance someip.InstanceID
	Client   someip.ClientID
	Session  someip.SessionID
	Origin   SinkID
}

func (r ResponseRoute) matches(service someip.ServiceID, instance someip.InstanceID, h someip.Header) bool {
	return r.Service == service && r.Instance == instance && r.Client == h.Client && r.Session == h.Session
}

// Router forwards SOME/IP packets between sinks.
type Router struct {
	sinks   *Registry
	events  EventConfig
	logger  *slog.Logger
	trace   log.Logger
	metrics *Metrics
	now     func() time.Time

	requests    map[someip.ServiceInstanceKey]SinkID
	responses   []ResponseRoute
	eventRoutes map[someip.EventKey][]SinkID
	groupRoutes map[someip.EventgroupKey][]SinkID
	fieldCache  map[someip.ServiceInstanceKey]*Cache[someip.EventID]
}

// New creates a router resolving sink handles through sinks.
func New(sinks *Registry, cfg Config) *Router {
	if sinks == nil {
		panic("router: nil registry")
	}
	if cfg.Events == nil {
		panic("router: nil event configuration")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Router{
		sinks:       sinks,
		events:      cfg.Events,
		logger:      logger,
		trace:       log.OrNoop(cfg.ProtocolLogger),
		metrics:     cfg.Metrics,
		now:         time.Now,
		requests:    make(map[someip.ServiceInstanceKey]SinkID),
		eventRoutes: make(map[someip.EventKey][]SinkID),
		groupRoutes: make(map[someip.EventgroupKey][]SinkID),
		fieldCache:  make(map[someip.ServiceInstanceKey]*Cache[someip.EventID]),
	}
}

// Sinks returns the registry the router resolves handles with.
func (r *Router) Sinks() *Registry {
	return r.sinks
}

func mustConcrete(instance someip.InstanceID) {
	if instance == someip.InstanceAny {
		panic("router: wildcard instance in a stored route")
	}
}

// AddRequestRoute makes to the provider of (service, instance), replacing
// any previous provider.
func (r *Router) AddRequestRoute(service someip.ServiceID, instance someip.InstanceID, to SinkID) {
	mustConcrete(instance)
	key := someip.ServiceInstanceKey{Service: service, Instance: instance}
	if prev, ok := r.requests[key]; ok && prev != to {
		r.logger.Debug("replace request route", "key", key, "old", prev, "new", to)
	} else {
		r.logger.Debug("add request route", "key", key, "sink", to)
	}
	r.requests[key] = to
}

// DeleteRequestRoute removes the provider of (service, instance) and marks
// its cached field values stale.
func (r *Router) DeleteRequestRoute(service someip.ServiceID, instance someip.InstanceID) {
	key := someip.ServiceInstanceKey{Service: service, Instance: instance}
	r.logger.Debug("delete request route", "key", key)
	delete(r.requests, key)
	r.MarkFieldCacheStale(service, instance)
}

// AddEventRoute adds to the subscribers of an event. Adding a sink twice
// has no effect.
func (r *Router) AddEventRoute(service someip.ServiceID, instance someip.InstanceID, event someip.EventID, to SinkID) {
	mustConcrete(instance)
	key := someip.NewEventKey(service, instance, event)
	r.logger.Debug("add event route", "key", key, "sink", to)
	r.eventRoutes[key] = addSink(r.eventRoutes[key], to)
}

// DeleteEventRoute removes to from the subscribers of an event.
func (r *Router) DeleteEventRoute(service someip.ServiceID, instance someip.InstanceID, event someip.EventID, to SinkID) {
	key := someip.NewEventKey(service, instance, event)
	r.logger.Debug("delete event route", "key", key, "sink", to)
	if sinks := removeSink(r.eventRoutes[key], to); len(sinks) > 0 {
		r.eventRoutes[key] = sinks
	} else {
		delete(r.eventRoutes, key)
	}
}

// AddEventgroupRoute adds to the subscribers of an eventgroup. Adding a
// sink twice has no effect.
func (r *Router) AddEventgroupRoute(service someip.ServiceID, instance someip.InstanceID, eventgroup someip.EventgroupID, to SinkID) {
	mustConcrete(instance)
	key := someip.NewEventgroupKey(service, instance, eventgroup)
	r.logger.Debug("add eventgroup route", "key", key, "sink", to)
	r.groupRoutes[key] = addSink(r.groupRoutes[key], to)
}

// DeleteEventgroupRoute removes to from the subscribers of an eventgroup.
func (r *Router) DeleteEventgroupRoute(service someip.ServiceID, instance someip.InstanceID, eventgroup someip.EventgroupID, to SinkID) {
	key := someip.NewEventgroupKey(service, instance, eventgroup)
	r.logger.Debug("delete eventgroup route", "key", key, "sink", to)
	if sinks := removeSink(r.groupRoutes[key], to); len(sinks) > 0 {
		r.groupRoutes[key] = sinks
	} else {
		delete(r.groupRoutes, key)
	}
}

func addSink(sinks []SinkID, to SinkID) []SinkID {
	if slices.Contains(sinks, to) {
		return sinks
	}
	return append(sinks, to)
}

func removeSink(sinks []SinkID, to SinkID) []SinkID {
	return slices.DeleteFunc(sinks, func(id SinkID) bool { return id == to })
}

// Forward routes a packet received from sink from for the given instance.
func (r *Router) Forward(instance someip.InstanceID, from SinkID, pkt *someip.Packet) {
	h := pkt.Header
	if h.ProtocolVersion != someip.ProtocolVersion {
		r.dropped(instance, from, pkt, ReasonProtocolVersion)
		return
	}

	switch h.MessageType {
	case someip.MessageTypeRequest:
		r.forwardRequest(instance, from, pkt, true)
	case someip.MessageTypeRequestNoReturn:
		r.forwardRequest(instance, from, pkt, false)
	case someip.MessageTypeResponse, someip.MessageTypeError:
		r.forwardResponse(instance, from, pkt)
	case someip.MessageTypeNotification:
		r.forwardEvent(instance, from, pkt)
	default:
		r.logger.Warn("unknown message type", "type", h.MessageType, "service", h.Service)
		r.dropped(instance, from, pkt, ReasonMessageType)
	}
}

func (r *Router) forwardRequest(instance someip.InstanceID, from SinkID, pkt *someip.Packet, expectResponse bool) {
	h := pkt.Header
	to, ok := r.requests[pkt.ServiceInstance(instance)]
	if !ok {
		r.logger.Debug("no route for request",
			"service", h.Service, "instance", instance, "method", h.Method,
			"client", h.Client, "session", h.Session)
		r.dropped(instance, from, pkt, ReasonNoRoute)
		return
	}

	if expectResponse {
		r.responses = append(r.responses, ResponseRoute{
			Service:  h.Service,
			Instance: instance,
			Client:   h.Client,
			Session:  h.Session,
			Origin:   from,
		})
	}
	r.deliver(instance, from, pkt, []SinkID{to})
}

func (r *Router) forwardResponse(instance someip.InstanceID, from SinkID, pkt *someip.Packet) {
	h := pkt.Header
	idx := slices.IndexFunc(r.responses, func(rr ResponseRoute) bool {
		return rr.matches(h.Service, instance, h)
	})
	if idx < 0 {
		r.logger.Debug("response could not be routed",
			"service", h.Service, "instance", instance, "method", h.Method,
			"client", h.Client, "session", h.Session)
		r.dropped(instance, from, pkt, ReasonNoResponseRoute)
		return
	}

	origin := r.responses[idx].Origin
	r.responses = slices.Delete(r.responses, idx, idx+1)
	r.deliver(instance, from, pkt, []SinkID{origin})
}

func (r *Router) forwardEvent(instance someip.InstanceID, from SinkID, pkt *someip.Packet) {
	h := pkt.Header
	service := h.Service
	event := h.Method

	targets := slices.Clone(r.eventRoutes[someip.NewEventKey(service, instance, event)])
	for _, eg := range r.events.EventToEventgroups(service, event) {
		for _, id := range r.groupRoutes[someip.NewEventgroupKey(service, instance, eg)] {
			targets = addSink(targets, id)
		}
	}

	info, known := r.events.Event(service, event)
	if !known {
		r.logger.Warn("notification for unknown event", "service", service, "instance", instance, "event", event)
	}
	cached := false
	if known && info.Field {
		key := someip.ServiceInstanceKey{Service: service, Instance: instance}
		c, ok := r.fieldCache[key]
		if !ok {
			c = NewCache[someip.EventID]()
			r.fieldCache[key] = c
		}
		c.InsertOrAssign(event, pkt)
		r.metrics.fieldUpdate()
		cached = true
	}

	if len(targets) == 0 {
		if cached {
			r.traced(instance, from, pkt, log.OutcomeCached, 0, ReasonNoSubscriber)
			return
		}
		r.dropped(instance, from, pkt, ReasonNoSubscriber)
		return
	}
	r.deliver(instance, from, pkt, targets)
}

// deliver forwards pkt to every resolvable target and records the outcome.
func (r *Router) deliver(instance someip.InstanceID, from SinkID, pkt *someip.Packet, targets []SinkID) {
	n := 0
	for _, id := range targets {
		s, ok := r.sinks.Get(id)
		if !ok {
			continue
		}
		s.Forward(instance, pkt)
		n++
	}
	if n == 0 {
		r.dropped(instance, from, pkt, ReasonSinkGone)
		return
	}
	r.metrics.forward(pkt.Header.MessageType, n)
	r.traced(instance, from, pkt, log.OutcomeForwarded, n, "")
}

func (r *Router) dropped(instance someip.InstanceID, from SinkID, pkt *someip.Packet, reason string) {
	r.metrics.drop(pkt.Header.MessageType, reason)
	r.traced(instance, from, pkt, log.OutcomeDropped, 0, reason)
}

func (r *Router) traced(instance someip.InstanceID, from SinkID, pkt *someip.Packet, outcome log.Outcome, receivers int, reason string) {
	m := log.NewMessageEvent(instance, pkt.Header, len(pkt.Payload))
	m.Outcome = outcome
	m.Receivers = receivers
	m.Reason = reason
	r.trace.Log(log.Event{
		Timestamp:    r.now(),
		ConnectionID: r.sinks.Label(from),
		Direction:    log.DirectionIn,
		Layer:        log.LayerRouter,
		Category:     log.CategoryMessage,
		Message:      m,
	})
}

// SendInitialEvent forwards the cached value of a field to sink, if the
// value is present and not stale. Plain events are never cached.
func (r *Router) SendInitialEvent(service someip.ServiceID, instance someip.InstanceID, event someip.EventID, sink SinkID) {
	info, ok := r.events.Event(service, event)
	if !ok || !info.Field {
		return
	}
	c, ok := r.fieldCache[someip.ServiceInstanceKey{Service: service, Instance: instance}]
	if !ok {
		return
	}
	pkt, ok := c.GetValue(event)
	if !ok {
		return
	}
	r.sendInitial(instance, pkt, sink)
}

// SendInitialEvents forwards the cached value of every field of an
// eventgroup, over tcpSink or udpSink depending on the field's configured
// transport. Either sink may be NoSink.
func (r *Router) SendInitialEvents(service someip.ServiceID, instance someip.InstanceID, eventgroup someip.EventgroupID, tcpSink, udpSink SinkID) {
	c, ok := r.fieldCache[someip.ServiceInstanceKey{Service: service, Instance: instance}]
	if !ok {
		return
	}
	for _, ev := range r.events.EventgroupEvents(service, eventgroup) {
		if !ev.Field {
			continue
		}
		pkt, ok := c.GetValue(ev.ID)
		if !ok {
			continue
		}
		switch ev.Transport {
		case TransportTCP:
			r.sendInitial(instance, pkt, tcpSink)
		case TransportUDP:
			r.sendInitial(instance, pkt, udpSink)
		}
	}
}

func (r *Router) sendInitial(instance someip.InstanceID, pkt *someip.Packet, to SinkID) {
	s, ok := r.sinks.Get(to)
	if !ok {
		return
	}
	s.Forward(instance, pkt)
	r.metrics.initialEvent()
}

// MarkFieldCacheStale marks every cached field of a service instance stale.
func (r *Router) MarkFieldCacheStale(service someip.ServiceID, instance someip.InstanceID) {
	if c, ok := r.fieldCache[someip.ServiceInstanceKey{Service: service, Instance: instance}]; ok {
		c.MarkAllStale()
	}
}

// FieldCache returns the field cache of a service instance, or nil if no
// field notification was seen for it.
func (r *Router) FieldCache(service someip.ServiceID, instance someip.InstanceID) *Cache[someip.EventID] {
	return r.fieldCache[someip.ServiceInstanceKey{Service: service, Instance: instance}]
}

// CleanUpRequestRoutingTableEntries removes every request route to sink
// and marks the field cache of those instances stale.
func (r *Router) CleanUpRequestRoutingTableEntries(sink SinkID) {
	for key, id := range r.requests {
		if id == sink {
			delete(r.requests, key)
			r.MarkFieldCacheStale(key.Service, key.Instance)
		}
	}
}

// CleanUpResponseRoutingTableEntries drops pending responses for sink.
func (r *Router) CleanUpResponseRoutingTableEntries(sink SinkID) {
	r.responses = slices.DeleteFunc(r.responses, func(rr ResponseRoute) bool {
		return rr.Origin == sink
	})
}

// CleanUpEventRoutingTableEntries removes sink from every event route.
func (r *Router) CleanUpEventRoutingTableEntries(sink SinkID) {
	for key, sinks := range r.eventRoutes {
		if sinks = removeSink(sinks, sink); len(sinks) == 0 {
			delete(r.eventRoutes, key)
		} else {
			r.eventRoutes[key] = sinks
		}
	}
}

// CleanUpEventgroupRoutingTableEntries removes sink from every eventgroup
// route.
func (r *Router) CleanUpEventgroupRoutingTableEntries(sink SinkID) {
	for key, sinks := range r.groupRoutes {
		if sinks = removeSink(sinks, sink); len(sinks) == 0 {
			delete(r.groupRoutes, key)
		} else {
			r.groupRoutes[key] = sinks
		}
	}
}

// CleanUpAllRoutingTableEntries purges sink from all four tables. It must
// be called for every sink before the sink is removed from the registry.
func (r *Router) CleanUpAllRoutingTableEntries(sink SinkID) {
	r.logger.Debug("clean up routing tables", "sink", sink, "label", r.sinks.Label(sink))
	r.CleanUpRequestRoutingTableEntries(sink)
	r.CleanUpResponseRoutingTableEntries(sink)
	r.CleanUpEventRoutingTableEntries(sink)
	r.CleanUpEventgroupRoutingTableEntries(sink)
}

// String summarizes table sizes.
func (r *Router) String() string {
	return fmt.Sprintf("router{requests=%d responses=%d events=%d eventgroups=%d caches=%d}",
		len(r.requests), len(r.responses), len(r.eventRoutes), len(r.groupRoutes), len(r.fieldCache))
}
