package sd_test

import (
	"net/netip"
	"slices"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/flankersky/vector-ap-bsw-sub007/pkg/log"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/router"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/sd"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/sd/eventgroup"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/sd/findservice"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/sd/mocks"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/someip"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/timer"
)

const (
	svc     someip.ServiceID    = 0x1234
	inst    someip.InstanceID   = 1
	eg      someip.EventgroupID = 5
	evField someip.EventID      = 0x8001

	initialDelay = 50 * time.Millisecond
	baseDelay    = 200 * time.Millisecond
	ackTimeout   = 2 * time.Second
	subTTL       = 5 * time.Second
	offerTTL     = 3 * time.Second
)

var (
	svcKey   = someip.ServiceInstanceKey{Service: svc, Instance: inst}
	egKey    = someip.NewEventgroupKey(svc, inst, eg)
	provider = netip.MustParseAddrPort("192.0.2.10:30490")
)

// oneGroup is an EventConfig with a single field in a single eventgroup.
type oneGroup struct{}

var fieldInfo = router.EventInfo{ID: evField, Field: true, Transport: router.TransportUDP}

func (oneGroup) Event(service someip.ServiceID, event someip.EventID) (router.EventInfo, bool) {
	if service == svc && event == evField {
		return fieldInfo, true
	}
	return router.EventInfo{}, false
}

func (oneGroup) EventToEventgroups(service someip.ServiceID, event someip.EventID) []someip.EventgroupID {
	if service == svc && event == evField {
		return []someip.EventgroupID{eg}
	}
	return nil
}

func (oneGroup) EventgroupEvents(service someip.ServiceID, group someip.EventgroupID) []router.EventInfo {
	if service == svc && group == eg {
		return []router.EventInfo{fieldInfo}
	}
	return nil
}

// fakeTimers is a timer.Facility fired by hand.
type fakeTimers struct {
	next  timer.Handle
	armed map[timer.Handle]fakeTimer
}

type fakeTimer struct {
	delay time.Duration
	fn    func()
}

func newFakeTimers() *fakeTimers {
	return &fakeTimers{armed: make(map[timer.Handle]fakeTimer)}
}

func (ft *fakeTimers) StartOneShot(delay time.Duration, fn func()) (timer.Handle, error) {
	if delay <= 0 {
		return 0, timer.ErrInvalidDelay
	}
	ft.next++
	ft.armed[ft.next] = fakeTimer{delay: delay, fn: fn}
	return ft.next, nil
}

func (ft *fakeTimers) Stop(h timer.Handle) bool {
	_, ok := ft.armed[h]
	delete(ft.armed, h)
	return ok
}

func (ft *fakeTimers) Active(h timer.Handle) bool {
	_, ok := ft.armed[h]
	return ok
}

func (ft *fakeTimers) delays() []time.Duration {
	var out []time.Duration
	for _, e := range ft.armed {
		out = append(out, e.delay)
	}
	slices.Sort(out)
	return out
}

// fire expires the single armed timer with the given delay.
func (ft *fakeTimers) fire(t *testing.T, delay time.Duration) {
	t.Helper()
	var match []timer.Handle
	for h, e := range ft.armed {
		if e.delay == delay {
			match = append(match, h)
		}
	}
	require.Len(t, match, 1, "armed timers with delay %s", delay)
	e := ft.armed[match[0]]
	delete(ft.armed, match[0])
	e.fn()
}

type recordingSink struct {
	got []*someip.Packet
}

func (s *recordingSink) Forward(_ someip.InstanceID, pkt *someip.Packet) {
	s.got = append(s.got, pkt)
}

type fixture struct {
	client *sd.Client
	router *router.Router
	sinks  *router.Registry
	timers *fakeTimers
	reg    *prometheus.Registry
	sent   []sd.Entry
	trace  []log.Event
}

func newFixture(t *testing.T, repetitions int) *fixture {
	t.Helper()
	f := &fixture{
		sinks:  router.NewRegistry(),
		timers: newFakeTimers(),
		reg:    prometheus.NewRegistry(),
	}
	f.router = router.New(f.sinks, router.Config{Events: oneGroup{}})

	tx := mocks.NewMockTransmitter(t)
	tx.EXPECT().Transmit(mock.Anything).Run(func(e sd.Entry) {
		f.sent = append(f.sent, e)
	}).Maybe()

	f.client = sd.NewClient(sd.Config{
		FindService: findservice.Config{
			InitialDelayMin:      initialDelay,
			InitialDelayMax:      initialDelay,
			RepetitionsBaseDelay: baseDelay,
			RepetitionsMax:       repetitions,
		},
		Eventgroup: eventgroup.Config{
			AckTimeout:      ackTimeout,
			SubscriptionTTL: subTTL,
		},
		Router:         f.router,
		Transmitter:    tx,
		Timers:         f.timers,
		ProtocolLogger: log.LoggerFunc(func(e log.Event) { f.trace = append(f.trace, e) }),
		Metrics:        sd.NewMetrics(f.reg),
	})
	return f
}

func (f *fixture) sink() (*recordingSink, router.SinkID) {
	s := &recordingSink{}
	return s, f.sinks.Add(s)
}

func (f *fixture) takeSent() []sd.Entry {
	out := f.sent
	f.sent = nil
	return out
}

func (f *fixture) eventgroupRoutes() []router.SinkID {
	for _, v := range f.router.Snapshot().Eventgroups {
		if v.Key == egKey {
			return v.Sinks
		}
	}
	return nil
}

func offer(ttl time.Duration) sd.Entry {
	return sd.Entry{Type: sd.EntryOfferService, Service: svc, Instance: inst, TTL: ttl, Multicast: true, Peer: provider}
}

func entry(typ sd.EntryType) sd.Entry {
	return sd.Entry{Type: typ, Service: svc, Instance: inst, Eventgroup: eg, Peer: provider}
}

func fieldNotification(payload byte) *someip.Packet {
	return someip.NewPacket(someip.Header{
		Service:     svc,
		Method:      evField,
		MessageType: someip.MessageTypeNotification,
	}, []byte{payload})
}

func subscribeEntry(initial bool) sd.Entry {
	return sd.Entry{
		Type:           sd.EntrySubscribeEventgroup,
		Service:        svc,
		Instance:       inst,
		Eventgroup:     eg,
		TTL:            subTTL,
		RequestInitial: initial,
		Peer:           provider,
	}
}

func stopSubscribeEntry() sd.Entry {
	return sd.Entry{Type: sd.EntryStopSubscribeEventgroup, Service: svc, Instance: inst, Eventgroup: eg, Peer: provider}
}

// subscribed returns a fixture with one sink subscribed to egKey and the
// field cached before the subscription was acknowledged.
func subscribed(t *testing.T) (*fixture, *recordingSink, router.SinkID) {
	t.Helper()
	f := newFixture(t, 0)
	sink, id := f.sink()
	_, providerID := f.sink()

	f.client.OnNetworkUp()
	require.NoError(t, f.client.RequestService(svcKey))
	require.NoError(t, f.client.Subscribe(egKey, id))
	f.timers.fire(t, initialDelay)

	f.router.Forward(inst, providerID, fieldNotification(1))
	f.client.HandleEntry(offer(offerTTL))
	f.client.HandleEntry(entry(sd.EntrySubscribeEventgroupAck))
	require.Equal(t, eventgroup.StatusSubscribed, f.client.SubscriptionState(egKey))
	f.takeSent()
	return f, sink, id
}

func TestRequestServiceSearchesWithBackoff(t *testing.T) {
	f := newFixture(t, 2)
	f.client.OnNetworkUp()
	require.NoError(t, f.client.RequestService(svcKey))

	state, ok := f.client.FindServiceState(svcKey)
	require.True(t, ok)
	assert.Equal(t, findservice.InitialWaitPhase, state)
	assert.Equal(t, []time.Duration{initialDelay}, f.timers.delays())

	f.timers.fire(t, initialDelay)
	assert.Equal(t, []time.Duration{baseDelay}, f.timers.delays())
	f.timers.fire(t, baseDelay)
	assert.Equal(t, []time.Duration{2 * baseDelay}, f.timers.delays())
	f.timers.fire(t, 2*baseDelay)

	state, _ = f.client.FindServiceState(svcKey)
	assert.Equal(t, findservice.MainPhase, state)
	assert.Empty(t, f.timers.delays())

	find := sd.Entry{Type: sd.EntryFindService, Service: svc, Instance: inst, TTL: sd.DefaultFindTTL}
	assert.Equal(t, []sd.Entry{find, find, find}, f.takeSent())
}

func TestRequestBeforeNetworkUp(t *testing.T) {
	f := newFixture(t, 0)
	require.NoError(t, f.client.RequestService(svcKey))
	assert.Empty(t, f.timers.delays())

	f.client.OnNetworkUp()
	assert.Equal(t, []time.Duration{initialDelay}, f.timers.delays())
}

func TestOfferAvailabilityLifecycle(t *testing.T) {
	f := newFixture(t, 0)
	_, id := f.sink()
	var got []bool
	f.client.Observers().OnAvailability(id, func(key someip.ServiceInstanceKey, available bool) {
		assert.Equal(t, svcKey, key)
		got = append(got, available)
	})

	f.client.OnNetworkUp()
	require.NoError(t, f.client.RequestService(svcKey))
	f.timers.fire(t, initialDelay)

	f.client.HandleEntry(offer(offerTTL))
	assert.True(t, f.client.IsAvailable(svcKey))
	assert.Equal(t, []bool{true}, got)
	assert.Equal(t, []time.Duration{offerTTL}, f.timers.delays())

	// Offer TTL lapses: search again.
	f.timers.fire(t, offerTTL)
	assert.False(t, f.client.IsAvailable(svcKey))
	assert.Equal(t, []bool{true, false}, got)
	state, _ := f.client.FindServiceState(svcKey)
	assert.Equal(t, findservice.InitialWaitPhase, state)
	assert.Equal(t, []time.Duration{initialDelay}, f.timers.delays())
}

func TestSubscribeDeliversCachedField(t *testing.T) {
	f := newFixture(t, 0)
	sink, id := f.sink()
	_, providerID := f.sink()
	var statuses []eventgroup.Status
	f.client.Observers().OnSubscription(id, func(key someip.EventgroupKey, status eventgroup.Status) {
		assert.Equal(t, egKey, key)
		statuses = append(statuses, status)
	})

	f.client.OnNetworkUp()
	require.NoError(t, f.client.RequestService(svcKey))
	require.NoError(t, f.client.Subscribe(egKey, id))
	assert.Equal(t, eventgroup.StatusNotSubscribed, f.client.SubscriptionState(egKey))
	f.timers.fire(t, initialDelay)
	f.takeSent()

	f.router.Forward(inst, providerID, fieldNotification(1))
	assert.Empty(t, sink.got, "not routed before the subscription")

	f.client.HandleEntry(offer(offerTTL))
	assert.Equal(t, eventgroup.StatusPending, f.client.SubscriptionState(egKey))
	assert.Equal(t, []sd.Entry{subscribeEntry(true)}, f.takeSent())
	assert.Equal(t, []time.Duration{ackTimeout, offerTTL}, f.timers.delays())

	f.client.HandleEntry(entry(sd.EntrySubscribeEventgroupAck))
	assert.Equal(t, eventgroup.StatusSubscribed, f.client.SubscriptionState(egKey))
	assert.Equal(t, []time.Duration{offerTTL, subTTL}, f.timers.delays())
	assert.Equal(t, []router.SinkID{id}, f.eventgroupRoutes())
	require.Len(t, sink.got, 1, "cached field sent on subscription")
	assert.Equal(t, []byte{1}, sink.got[0].Payload)

	f.router.Forward(inst, providerID, fieldNotification(2))
	require.Len(t, sink.got, 2)
	assert.Equal(t, []byte{2}, sink.got[1].Payload)

	assert.Equal(t, []eventgroup.Status{eventgroup.StatusPending, eventgroup.StatusSubscribed}, statuses)
	assert.Empty(t, f.takeSent())
}

func TestLateSubscriberJoinsImmediately(t *testing.T) {
	f, _, first := subscribed(t)
	late, id := f.sink()

	require.NoError(t, f.client.Subscribe(egKey, id))
	assert.Empty(t, f.takeSent(), "no new subscription on the wire")
	assert.ElementsMatch(t, []router.SinkID{first, id}, f.eventgroupRoutes())
	assert.Len(t, late.got, 1)

	// A second subscription of the same sink does not resend the field.
	require.NoError(t, f.client.Subscribe(egKey, id))
	assert.Len(t, late.got, 1)
	assert.Len(t, f.client.Subscribers(egKey), 3)
	assert.Equal(t, []someip.EventgroupKey{egKey}, f.client.Eventgroups())

	f.client.Unsubscribe(egKey, id)
	assert.Contains(t, f.eventgroupRoutes(), id, "sink still subscribed once")
	f.client.Unsubscribe(egKey, id)
	assert.Equal(t, []router.SinkID{first}, f.eventgroupRoutes())
	assert.Empty(t, f.takeSent())
}

func TestStopOfferUnsubscribesWithoutStopSubscribe(t *testing.T) {
	f, _, _ := subscribed(t)

	f.client.HandleEntry(sd.Entry{Type: sd.EntryStopOfferService, Service: svc, Instance: inst, Peer: provider})
	assert.False(t, f.client.IsAvailable(svcKey))
	assert.Equal(t, eventgroup.StatusNotSubscribed, f.client.SubscriptionState(egKey))
	assert.Empty(t, f.eventgroupRoutes())
	assert.Empty(t, f.takeSent())
	assert.True(t, f.router.FieldCache(svc, inst).IsStale(evField))

	// Late ack is ignored.
	assert.NotPanics(t, func() { f.client.HandleEntry(entry(sd.EntrySubscribeEventgroupAck)) })
	assert.Equal(t, eventgroup.StatusNotSubscribed, f.client.SubscriptionState(egKey))
	assert.Empty(t, f.takeSent())
}

func TestOfferWithZeroTTLStopsOffer(t *testing.T) {
	f, _, _ := subscribed(t)
	f.client.HandleEntry(offer(0))
	assert.False(t, f.client.IsAvailable(svcKey))
	assert.Equal(t, eventgroup.StatusNotSubscribed, f.client.SubscriptionState(egKey))
}

func TestUnsubscribeLastSendsStopSubscribe(t *testing.T) {
	f, _, id := subscribed(t)

	f.client.Unsubscribe(egKey, id)
	assert.Equal(t, []sd.Entry{stopSubscribeEntry()}, f.takeSent())
	assert.Empty(t, f.eventgroupRoutes())
	assert.Nil(t, f.client.Subscribers(egKey))
	assert.Equal(t, eventgroup.StatusNotSubscribed, f.client.SubscriptionState(egKey))
	assert.Equal(t, []time.Duration{offerTTL}, f.timers.delays(), "only the offer TTL remains")
	assert.Equal(t, []someip.ServiceInstanceKey{svcKey}, f.client.Services(), "service still requested")

	assert.Panics(t, func() { f.client.Unsubscribe(egKey, id) })
}

func TestReofferRenewsSubscription(t *testing.T) {
	f, _, _ := subscribed(t)

	f.client.HandleEntry(offer(offerTTL))
	assert.Equal(t, []sd.Entry{subscribeEntry(false)}, f.takeSent())
	assert.Equal(t, eventgroup.StatusSubscribed, f.client.SubscriptionState(egKey))

	// Ack wait lapses: retry asking for initial values.
	f.timers.fire(t, ackTimeout)
	assert.Equal(t, []sd.Entry{subscribeEntry(true)}, f.takeSent())
	f.timers.fire(t, ackTimeout)
	assert.Equal(t, []sd.Entry{subscribeEntry(true)}, f.takeSent())
	assert.Equal(t, eventgroup.StatusSubscribed, f.client.SubscriptionState(egKey))

	f.client.HandleEntry(entry(sd.EntrySubscribeEventgroupAck))
	assert.Equal(t, []time.Duration{offerTTL, subTTL}, f.timers.delays())
	assert.Empty(t, f.takeSent())
}

func TestSubscriptionTTLExpiryResubscribes(t *testing.T) {
	f, _, id := subscribed(t)
	var statuses []eventgroup.Status
	f.client.Observers().OnSubscription(id, func(_ someip.EventgroupKey, status eventgroup.Status) {
		statuses = append(statuses, status)
	})

	f.timers.fire(t, subTTL)
	assert.Equal(t, eventgroup.StatusPending, f.client.SubscriptionState(egKey))
	assert.Equal(t, []sd.Entry{subscribeEntry(true)}, f.takeSent())
	assert.Empty(t, f.eventgroupRoutes())
	assert.Equal(t, []eventgroup.Status{eventgroup.StatusNotSubscribed, eventgroup.StatusPending}, statuses)
}

func TestOfferTTLExpiryDropsSubscription(t *testing.T) {
	f, _, _ := subscribed(t)

	f.timers.fire(t, offerTTL)
	assert.False(t, f.client.IsAvailable(svcKey))
	assert.Equal(t, eventgroup.StatusNotSubscribed, f.client.SubscriptionState(egKey))
	assert.Empty(t, f.eventgroupRoutes())
	assert.True(t, f.router.FieldCache(svc, inst).IsStale(evField))
	assert.Empty(t, f.takeSent())
}

func TestNackDropsSubscription(t *testing.T) {
	f, _, _ := subscribed(t)
	f.client.HandleEntry(entry(sd.EntrySubscribeEventgroupNack))
	assert.Equal(t, eventgroup.StatusNotSubscribed, f.client.SubscriptionState(egKey))
	assert.Empty(t, f.eventgroupRoutes())
}

func TestNetworkDown(t *testing.T) {
	f, _, _ := subscribed(t)

	f.client.OnNetworkDown()
	assert.False(t, f.client.IsAvailable(svcKey))
	assert.Equal(t, eventgroup.StatusNotSubscribed, f.client.SubscriptionState(egKey))
	state, _ := f.client.FindServiceState(svcKey)
	assert.Equal(t, findservice.DownPhase, state)
	assert.Empty(t, f.timers.delays())
}

func TestShutdown(t *testing.T) {
	f, _, _ := subscribed(t)

	f.client.Shutdown()
	assert.Equal(t, []sd.Entry{stopSubscribeEntry()}, f.takeSent())
	assert.Empty(t, f.client.Services())
	assert.Empty(t, f.timers.delays())
	assert.Empty(t, f.eventgroupRoutes())
}

func TestReleaseServiceForgetsInstance(t *testing.T) {
	f := newFixture(t, 0)
	f.client.OnNetworkUp()
	require.NoError(t, f.client.RequestService(svcKey))
	require.NoError(t, f.client.RequestService(svcKey))

	f.client.ReleaseService(svcKey)
	assert.Equal(t, []time.Duration{initialDelay}, f.timers.delays(), "still requested once")

	f.client.ReleaseService(svcKey)
	assert.Empty(t, f.client.Services())
	assert.Empty(t, f.timers.delays())
	_, ok := f.client.FindServiceState(svcKey)
	assert.False(t, ok)
}

func TestUntrackedAndServerEntriesIgnored(t *testing.T) {
	f := newFixture(t, 0)
	other := offer(offerTTL)
	other.Service = 0x9999

	f.client.HandleEntry(other)
	assert.Empty(t, f.client.Services())

	require.NoError(t, f.client.RequestService(svcKey))
	f.client.HandleEntry(entry(sd.EntrySubscribeEventgroup))
	f.client.HandleEntry(entry(sd.EntrySubscribeEventgroupAck))
	assert.Empty(t, f.takeSent())
}

func TestContractViolations(t *testing.T) {
	f := newFixture(t, 0)
	_, id := f.sink()

	wildcard := someip.ServiceInstanceKey{Service: svc, Instance: someip.InstanceAny}
	assert.ErrorIs(t, f.client.RequestService(wildcard), sd.ErrWildcardInstance)
	assert.ErrorIs(t, f.client.Subscribe(someip.NewEventgroupKey(svc, someip.InstanceAny, eg), id), sd.ErrWildcardInstance)

	assert.Panics(t, func() { f.client.ReleaseService(svcKey) })
	assert.Panics(t, func() { f.client.Unsubscribe(egKey, id) })
	assert.Panics(t, func() { sd.NewClient(sd.Config{}) })
}

func TestTraceAndMetrics(t *testing.T) {
	f, _, _ := subscribed(t)

	var findStates, entries []string
	for _, e := range f.trace {
		switch e.Category {
		case log.CategoryState:
			if e.StateChange.Entity == log.StateEntityFindService {
				assert.Equal(t, "1234:0001", e.StateChange.Key)
				findStates = append(findStates, e.StateChange.NewState)
			}
		case log.CategoryEntry:
			entries = append(entries, e.Direction.String()+" "+e.Entry.Type)
		}
	}
	assert.Equal(t, []string{"InitialWaitPhase", "MainPhase"}, findStates)
	assert.Equal(t, []string{
		"OUT FIND_SERVICE",
		"IN OFFER_SERVICE",
		"OUT SUBSCRIBE_EVENTGROUP",
		"IN SUBSCRIBE_EVENTGROUP_ACK",
	}, entries)

	families, err := f.reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if m.GetGauge() != nil {
				values[mf.GetName()] += m.GetGauge().GetValue()
			} else {
				values[mf.GetName()] += m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, float64(2), values["someipd_sd_entries_sent_total"])
	assert.Equal(t, float64(2), values["someipd_sd_entries_received_total"])
	assert.Equal(t, float64(1), values["someipd_sd_services_available"])
	assert.Equal(t, float64(1), values["someipd_sd_eventgroups_subscribed"])
}
