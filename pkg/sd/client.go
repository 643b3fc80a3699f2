package sd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/netip"
	"slices"
	"time"

	"github.com/flankersky/vector-ap-bsw-sub007/pkg/log"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/router"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/sd/eventgroup"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/sd/findservice"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/someip"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/timer"
)

// Client errors.
var (
	ErrWildcardInstance = errors.New("wildcard instance cannot be required")
)

// DefaultFindTTL is the TTL of transmitted FindService entries when
// Config.FindTTL is zero.
const DefaultFindTTL = 3 * time.Second

// Config configures a Client. Router, Transmitter and Timers are required.
type Config struct {
	FindService findservice.Config
	Eventgroup  eventgroup.Config

	// FindTTL is carried by FindService entries.
	FindTTL time.Duration

	Router      *router.Router
	Transmitter Transmitter
	Timers      timer.Facility

	// Logger for SD decisions. Nil disables logging.
	Logger *slog.Logger

	// ProtocolLogger receives entry and state change trace events.
	ProtocolLogger log.Logger

	// Metrics records entry and state counters. Nil disables metrics.
	Metrics *Metrics
}

// service is the client state of one required service instance.
type service struct {
	key        someip.ServiceInstanceKey
	find       *findservice.Machine
	timer      *timer.Slot
	requesters int
	provider   netip.AddrPort
	groups     map[someip.EventgroupID]*group
}

// group is the client state of one subscribed eventgroup.
type group struct {
	key  someip.EventgroupKey
	sub  *eventgroup.Machine
	ack  *timer.Slot
	ttl  *timer.Slot
	subs []router.SinkID // one element per Subscribe call

	// status is the last status published for the group.
	status eventgroup.Status
}

// Client is the SD client orchestrator.
type Client struct {
	cfg       Config
	router    *router.Router
	tx        Transmitter
	timers    timer.Facility
	logger    *slog.Logger
	trace     log.Logger
	metrics   *Metrics
	observers *Observers
	now       func() time.Time

	networkUp bool
	services  map[someip.ServiceInstanceKey]*service
}

// NewClient creates a client. It panics if a required collaborator is
// missing or a machine config is invalid.
func NewClient(cfg Config) *Client {
	if cfg.Router == nil || cfg.Transmitter == nil || cfg.Timers == nil {
		panic("sd: router, transmitter and timers are required")
	}
	if err := cfg.FindService.Validate(); err != nil {
		panic(fmt.Sprintf("sd: find service config: %v", err))
	}
	if err := cfg.Eventgroup.Validate(); err != nil {
		panic(fmt.Sprintf("sd: eventgroup config: %v", err))
	}
	if cfg.FindTTL == 0 {
		cfg.FindTTL = DefaultFindTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		cfg:       cfg,
		router:    cfg.Router,
		tx:        cfg.Transmitter,
		timers:    cfg.Timers,
		logger:    logger,
		trace:     log.OrNoop(cfg.ProtocolLogger),
		metrics:   cfg.Metrics,
		observers: NewObservers(),
		now:       time.Now,
		services:  make(map[someip.ServiceInstanceKey]*service),
	}
}

// Observers returns the status callback registry.
func (c *Client) Observers() *Observers {
	return c.observers
}

// RequestService registers one more local requester of key. The first
// requester starts the search.
func (c *Client) RequestService(key someip.ServiceInstanceKey) error {
	if key.IsWildcard() {
		return ErrWildcardInstance
	}
	s := c.service(key)
	s.requesters++
	if s.requesters == 1 {
		c.runFind(s, s.find.OnServiceRequested())
	}
	return nil
}

// ReleaseService drops one requester of key. Releasing a service that is
// not requested panics.
func (c *Client) ReleaseService(key someip.ServiceInstanceKey) {
	s, ok := c.services[key]
	if !ok || s.requesters == 0 {
		panic(fmt.Sprintf("sd: release of unrequested service %s", key))
	}
	s.requesters--
	if s.requesters == 0 {
		c.runFind(s, s.find.OnServiceReleased())
	}
	c.maybeDrop(s)
}

// Subscribe adds sink as a subscriber of an eventgroup. The first
// subscriber requests the subscription; a sink joining an established
// subscription gets its route and the cached field values immediately.
func (c *Client) Subscribe(key someip.EventgroupKey, sink router.SinkID) error {
	if key.IsWildcard() {
		return ErrWildcardInstance
	}
	s := c.service(key.ServiceInstanceKey)
	g, ok := s.groups[key.Eventgroup]
	if !ok {
		g = &group{
			key: key,
			sub: eventgroup.New(c.cfg.Eventgroup),
			ack: timer.NewSlot(c.timers),
			ttl: timer.NewSlot(c.timers),
		}
		s.groups[key.Eventgroup] = g
		if s.find.IsAvailable() {
			c.runGroup(s, g, g.sub.OnOfferService(false))
		}
	}

	first := !slices.Contains(g.subs, sink)
	g.subs = append(g.subs, sink)
	if len(g.subs) == 1 {
		c.runGroup(s, g, g.sub.OnRequested())
	} else if first && g.status == eventgroup.StatusSubscribed {
		c.attach(g, sink)
	}
	return nil
}

// Unsubscribe removes one subscription of sink. Unsubscribing more often
// than subscribed panics.
func (c *Client) Unsubscribe(key someip.EventgroupKey, sink router.SinkID) {
	s, ok := c.services[key.ServiceInstanceKey]
	var g *group
	if ok {
		g = s.groups[key.Eventgroup]
	}
	idx := -1
	if g != nil {
		idx = slices.Index(g.subs, sink)
	}
	if idx < 0 {
		panic(fmt.Sprintf("sd: sink %s is not subscribed to %s", sink, key))
	}

	g.subs = slices.Delete(g.subs, idx, idx+1)
	if !slices.Contains(g.subs, sink) {
		c.router.DeleteEventgroupRoute(key.Service, key.Instance, key.Eventgroup, sink)
	}
	if len(g.subs) == 0 {
		c.runGroup(s, g, g.sub.OnReleased())
		g.ack.Stop()
		g.ttl.Stop()
		delete(s.groups, key.Eventgroup)
	}
	c.maybeDrop(s)
}

// OnNetworkUp starts the search of every requested service.
func (c *Client) OnNetworkUp() {
	c.networkUp = true
	for _, s := range c.sorted() {
		c.runFind(s, s.find.OnNetworkUp())
	}
}

// OnNetworkDown stops every search and drops all availability.
func (c *Client) OnNetworkDown() {
	c.networkUp = false
	for _, s := range c.sorted() {
		c.runFind(s, s.find.OnNetworkDown())
	}
}

// HandleEntry dispatches an inbound SD entry. Entries for instances the
// client does not track and server side entries are ignored.
func (c *Client) HandleEntry(e Entry) {
	c.traceEntry(log.DirectionIn, e)
	c.metrics.entryReceived(e.Type)

	s, ok := c.services[e.ServiceInstance()]
	if !ok {
		c.logger.Debug("entry for untracked service", "entry", e)
		return
	}

	switch e.Type {
	case EntryOfferService:
		if e.TTL == 0 {
			c.stopOffer(s)
			return
		}
		s.provider = e.Peer
		c.runFind(s, s.find.OnOfferService(e.TTL))
		for _, g := range sortedGroups(s) {
			c.runGroup(s, g, g.sub.OnOfferService(e.Multicast))
		}
	case EntryStopOfferService:
		c.stopOffer(s)
	case EntrySubscribeEventgroupAck:
		if g, ok := s.groups[e.Eventgroup]; ok {
			c.runGroup(s, g, g.sub.OnSubscribeEventgroupAck(eventgroup.Ack{TTL: e.TTL, Multicast: e.Endpoint}))
		}
	case EntrySubscribeEventgroupNack:
		if g, ok := s.groups[e.Eventgroup]; ok {
			c.runGroup(s, g, g.sub.OnSubscribeEventgroupNack())
		}
	default:
		c.logger.Debug("ignoring server side entry", "entry", e)
	}
}

func (c *Client) stopOffer(s *service) {
	c.runFind(s, s.find.OnStopOfferService())
	for _, g := range sortedGroups(s) {
		c.runGroup(s, g, g.sub.OnStopOfferService())
	}
}

// IsAvailable reports whether a tracked instance is offered.
func (c *Client) IsAvailable(key someip.ServiceInstanceKey) bool {
	s, ok := c.services[key]
	return ok && s.find.IsAvailable()
}

// FindServiceState returns the FindService phase of a tracked instance.
func (c *Client) FindServiceState(key someip.ServiceInstanceKey) (findservice.State, bool) {
	s, ok := c.services[key]
	if !ok {
		return findservice.DownPhase, false
	}
	return s.find.State(), true
}

// SubscriptionState returns the status of an eventgroup subscription.
// Untracked eventgroups are not subscribed.
func (c *Client) SubscriptionState(key someip.EventgroupKey) eventgroup.Status {
	s, ok := c.services[key.ServiceInstanceKey]
	if !ok {
		return eventgroup.StatusNotSubscribed
	}
	g, ok := s.groups[key.Eventgroup]
	if !ok {
		return eventgroup.StatusNotSubscribed
	}
	return g.sub.Status()
}

// Services returns the tracked service instances in ascending order.
func (c *Client) Services() []someip.ServiceInstanceKey {
	return slices.SortedFunc(maps.Keys(c.services), someip.ServiceInstanceKey.Compare)
}

// Eventgroups returns the eventgroups with at least one local subscriber
// in ascending order.
func (c *Client) Eventgroups() []someip.EventgroupKey {
	var out []someip.EventgroupKey
	for _, s := range c.sorted() {
		for _, g := range sortedGroups(s) {
			out = append(out, g.key)
		}
	}
	return out
}

// Subscribers returns the sinks subscribed to an eventgroup, one element
// per subscription.
func (c *Client) Subscribers(key someip.EventgroupKey) []router.SinkID {
	if s, ok := c.services[key.ServiceInstanceKey]; ok {
		if g, ok := s.groups[key.Eventgroup]; ok {
			return slices.Clone(g.subs)
		}
	}
	return nil
}

// Shutdown unsubscribes every eventgroup, releases every service and
// stops all timers. The client is empty afterwards.
func (c *Client) Shutdown() {
	for _, s := range c.sorted() {
		for _, g := range sortedGroups(s) {
			c.runGroup(s, g, g.sub.OnShutdown())
			g.ack.Stop()
			g.ttl.Stop()
		}
		clear(s.groups)
		if s.requesters > 0 {
			s.requesters = 0
			c.runFind(s, s.find.OnServiceReleased())
		}
		c.maybeDrop(s)
	}
}

func (c *Client) service(key someip.ServiceInstanceKey) *service {
	if s, ok := c.services[key]; ok {
		return s
	}
	s := &service{
		key:    key,
		find:   findservice.New(c.cfg.FindService),
		timer:  timer.NewSlot(c.timers),
		groups: make(map[someip.EventgroupID]*group),
	}
	c.services[key] = s
	if c.networkUp {
		c.runFind(s, s.find.OnNetworkUp())
	}
	return s
}

// maybeDrop forgets s once nothing requires it anymore.
func (c *Client) maybeDrop(s *service) {
	if s.requesters > 0 || len(s.groups) > 0 {
		return
	}
	s.timer.Stop()
	if s.find.IsAvailable() {
		c.metrics.availabilityChanged(false)
		c.observers.notifyAvailability(s.key, false)
	}
	delete(c.services, s.key)
}

func (c *Client) sorted() []*service {
	keys := c.Services()
	out := make([]*service, len(keys))
	for i, k := range keys {
		out[i] = c.services[k]
	}
	return out
}

func sortedGroups(s *service) []*group {
	ids := slices.Sorted(maps.Keys(s.groups))
	out := make([]*group, len(ids))
	for i, id := range ids {
		out[i] = s.groups[id]
	}
	return out
}

// live reports whether s is still tracked; timer callbacks of dropped
// state are ignored.
func (c *Client) live(s *service) bool {
	return c.services[s.key] == s
}

func (c *Client) runFind(s *service, effects []findservice.Effect) {
	for _, e := range effects {
		switch e := e.(type) {
		case findservice.SendFindService:
			c.transmit(Entry{
				Type:     EntryFindService,
				Service:  s.key.Service,
				Instance: s.key.Instance,
				TTL:      c.cfg.FindTTL,
			})
		case findservice.StartTimer:
			c.startSlot(s.timer, e.Delay, func() {
				if c.live(s) {
					c.runFind(s, s.find.OnTimeout())
				}
			})
		case findservice.StopTimer:
			s.timer.Stop()
		case findservice.AvailabilityChanged:
			c.availabilityChanged(s, e.Available)
		case findservice.StateChanged:
			c.stateChanged(log.StateEntityFindService, serviceLabel(s.key), e.From.String(), e.To.String())
			c.metrics.transition("find_service", e.To.String())
		}
	}
}

func (c *Client) availabilityChanged(s *service, available bool) {
	c.logger.Debug("service availability", "service", s.key, "available", available)
	c.metrics.availabilityChanged(available)
	if !available {
		c.router.MarkFieldCacheStale(s.key.Service, s.key.Instance)
		for _, g := range sortedGroups(s) {
			c.runGroup(s, g, g.sub.OnStopOfferService())
		}
	}
	c.observers.notifyAvailability(s.key, available)
}

func (c *Client) runGroup(s *service, g *group, effects []eventgroup.Effect) {
	for _, e := range effects {
		switch e := e.(type) {
		case eventgroup.SendSubscribe:
			c.transmit(Entry{
				Type:           EntrySubscribeEventgroup,
				Service:        g.key.Service,
				Instance:       g.key.Instance,
				Eventgroup:     g.key.Eventgroup,
				TTL:            c.cfg.Eventgroup.SubscriptionTTL,
				RequestInitial: e.RequestInitial,
				Peer:           s.provider,
			})
		case eventgroup.SendStopSubscribe:
			c.transmit(Entry{
				Type:       EntryStopSubscribeEventgroup,
				Service:    g.key.Service,
				Instance:   g.key.Instance,
				Eventgroup: g.key.Eventgroup,
				Peer:       s.provider,
			})
		case eventgroup.StartTimer:
			slot, fire := g.ack, g.sub.OnTimeout
			if e.Kind == eventgroup.TTLTimer {
				slot, fire = g.ttl, g.sub.OnTTLTimeout
			}
			c.startSlot(slot, e.Delay, func() {
				if c.live(s) && s.groups[g.key.Eventgroup] == g {
					c.runGroup(s, g, fire())
				}
			})
		case eventgroup.StopTimer:
			if e.Kind == eventgroup.TTLTimer {
				g.ttl.Stop()
			} else {
				g.ack.Stop()
			}
		case eventgroup.Notify:
			c.statusChanged(g, e.Status)
		case eventgroup.StateChanged:
			c.stateChanged(log.StateEntityEventgroup, eventgroupLabel(g.key), e.From.String(), e.To.String())
			c.metrics.transition("eventgroup", e.To.String())
		}
	}
}

// statusChanged moves the group's subscribers in or out of the router.
func (c *Client) statusChanged(g *group, status eventgroup.Status) {
	prev := g.status
	g.status = status
	c.logger.Debug("subscription status", "eventgroup", g.key, "status", status)

	switch {
	case status == eventgroup.StatusSubscribed:
		for _, sink := range distinct(g.subs) {
			c.attach(g, sink)
		}
		c.metrics.subscriptionChanged(true)
	case prev == eventgroup.StatusSubscribed:
		for _, sink := range distinct(g.subs) {
			c.router.DeleteEventgroupRoute(g.key.Service, g.key.Instance, g.key.Eventgroup, sink)
		}
		c.metrics.subscriptionChanged(false)
	}
	c.observers.notifySubscription(g.key, status)
}

// attach routes the eventgroup to sink and sends it the cached fields.
// A local connection carries both transports.
func (c *Client) attach(g *group, sink router.SinkID) {
	k := g.key
	c.router.AddEventgroupRoute(k.Service, k.Instance, k.Eventgroup, sink)
	c.router.SendInitialEvents(k.Service, k.Instance, k.Eventgroup, sink, sink)
}

func distinct(ids []router.SinkID) []router.SinkID {
	var out []router.SinkID
	for _, id := range ids {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func (c *Client) startSlot(slot *timer.Slot, delay time.Duration, fn func()) {
	if err := slot.Start(delay, fn); err != nil {
		c.logger.Error("start timer", "delay", delay, "error", err)
		c.trace.Log(log.Event{
			Timestamp: c.now(),
			Layer:     log.LayerSD,
			Category:  log.CategoryError,
			Error: &log.ErrorEventData{
				Layer:   log.LayerSD,
				Message: err.Error(),
				Context: "start timer",
			},
		})
	}
}

func (c *Client) transmit(e Entry) {
	c.logger.Debug("transmit entry", "entry", e, "peer", e.Peer)
	c.traceEntry(log.DirectionOut, e)
	c.metrics.entrySent(e.Type)
	c.tx.Transmit(e)
}

func (c *Client) traceEntry(dir log.Direction, e Entry) {
	ev := log.Event{
		Timestamp: c.now(),
		Direction: dir,
		Layer:     log.LayerSD,
		Category:  log.CategoryEntry,
		Entry: &log.EntryEvent{
			Type:           e.Type.String(),
			Service:        e.Service,
			Instance:       e.Instance,
			Eventgroup:     e.Eventgroup,
			TTL:            e.TTL,
			RequestInitial: e.RequestInitial,
		},
	}
	if e.Peer.IsValid() {
		ev.RemoteAddr = e.Peer.String()
	}
	c.trace.Log(ev)
}

func (c *Client) stateChanged(entity log.StateEntity, key, from, to string) {
	c.logger.Debug("state change", "entity", entity, "key", key, "from", from, "to", to)
	c.trace.Log(log.Event{
		Timestamp: c.now(),
		Layer:     log.LayerSD,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   entity,
			Key:      key,
			OldState: from,
			NewState: to,
		},
	})
}

func serviceLabel(k someip.ServiceInstanceKey) string {
	return fmt.Sprintf("%04x:%04x", uint16(k.Service), uint16(k.Instance))
}

func eventgroupLabel(k someip.EventgroupKey) string {
	return fmt.Sprintf("%04x:%04x:%04x", uint16(k.Service), uint16(k.Instance), uint16(k.Eventgroup))
}
