package sd

import (
	"maps"
	"slices"

	"github.com/flankersky/vector-ap-bsw-sub007/pkg/router"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/sd/eventgroup"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/someip"
)

// AvailabilityFunc is called when a service instance becomes available or
// unavailable.
type AvailabilityFunc func(key someip.ServiceInstanceKey, available bool)

// SubscriptionFunc is called when the status of an eventgroup
// subscription changes.
type SubscriptionFunc func(key someip.EventgroupKey, status eventgroup.Status)

// Observers holds the status callbacks of local connections, keyed by the
// connection's sink handle. Callbacks run synchronously in ascending
// handle order.
type Observers struct {
	availability map[router.SinkID]AvailabilityFunc
	subscription map[router.SinkID]SubscriptionFunc
}

// NewObservers creates an empty registry.
func NewObservers() *Observers {
	return &Observers{
		availability: make(map[router.SinkID]AvailabilityFunc),
		subscription: make(map[router.SinkID]SubscriptionFunc),
	}
}

// OnAvailability registers fn for id, replacing a previous callback.
func (o *Observers) OnAvailability(id router.SinkID, fn AvailabilityFunc) {
	o.availability[id] = fn
}

// OnSubscription registers fn for id, replacing a previous callback.
func (o *Observers) OnSubscription(id router.SinkID, fn SubscriptionFunc) {
	o.subscription[id] = fn
}

// Remove drops every callback of id.
func (o *Observers) Remove(id router.SinkID) {
	delete(o.availability, id)
	delete(o.subscription, id)
}

// Len returns the number of connections with at least one callback.
func (o *Observers) Len() int {
	ids := make(map[router.SinkID]struct{}, len(o.availability))
	for id := range o.availability {
		ids[id] = struct{}{}
	}
	for id := range o.subscription {
		ids[id] = struct{}{}
	}
	return len(ids)
}

func (o *Observers) notifyAvailability(key someip.ServiceInstanceKey, available bool) {
	for _, id := range slices.SortedFunc(maps.Keys(o.availability), router.SinkID.Compare) {
		o.availability[id](key, available)
	}
}

func (o *Observers) notifySubscription(key someip.EventgroupKey, status eventgroup.Status) {
	for _, id := range slices.SortedFunc(maps.Keys(o.subscription), router.SinkID.Compare) {
		o.subscription[id](key, status)
	}
}
