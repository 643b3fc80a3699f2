package router

import (
	"slices"

	"github.com/flankersky/vector-ap-bsw-sub007/pkg/someip"
)

// RequestRouteView is one request route in a Snapshot.
type RequestRouteView struct {
	Key  someip.ServiceInstanceKey
	Sink SinkID
}

// EventRouteView is one event route in a Snapshot.
type EventRouteView struct {
	Key   someip.EventKey
	Sinks []SinkID
}

// EventgroupRouteView is one eventgroup route in a Snapshot.
type EventgroupRouteView struct {
	Key   someip.EventgroupKey
	Sinks []SinkID
}

// FieldView is one field cache entry in a Snapshot.
type FieldView struct {
	Key   someip.EventKey
	Size  int
	Stale bool
}

// Snapshot is a copy of the routing state, sorted by key.
type Snapshot struct {
	Requests    []RequestRouteView
	Responses   []ResponseRoute
	Events      []EventRouteView
	Eventgroups []EventgroupRouteView
	Fields      []FieldView
}

// Snapshot copies the routing tables and field cache.
// Response routes keep their arrival order.
func (r *Router) Snapshot() Snapshot {
	var s Snapshot

	for key, id := range r.requests {
		s.Requests = append(s.Requests, RequestRouteView{Key: key, Sink: id})
	}
	slices.SortFunc(s.Requests, func(a, b RequestRouteView) int { return a.Key.Compare(b.Key) })

	s.Responses = slices.Clone(r.responses)

	for key, sinks := range r.eventRoutes {
		s.Events = append(s.Events, EventRouteView{Key: key, Sinks: slices.Clone(sinks)})
	}
	slices.SortFunc(s.Events, func(a, b EventRouteView) int { return a.Key.Compare(b.Key) })

	for key, sinks := range r.groupRoutes {
		s.Eventgroups = append(s.Eventgroups, EventgroupRouteView{Key: key, Sinks: slices.Clone(sinks)})
	}
	slices.SortFunc(s.Eventgroups, func(a, b EventgroupRouteView) int { return a.Key.Compare(b.Key) })

	for key, c := range r.fieldCache {
		for _, ev := range c.Keys() {
			e := c.entries[ev]
			s.Fields = append(s.Fields, FieldView{
				Key:   someip.EventKey{ServiceInstanceKey: key, Event: ev},
				Size:  e.packet.Size(),
				Stale: e.stale,
			})
		}
	}
	slices.SortFunc(s.Fields, func(a, b FieldView) int { return a.Key.Compare(b.Key) })

	return s
}

// References reports whether any table in the snapshot names sink.
func (s Snapshot) References(sink SinkID) bool {
	for _, v := range s.Requests {
		if v.Sink == sink {
			return true
		}
	}
	for _, v := range s.Responses {
		if v.Origin == sink {
			return true
		}
	}
	for _, v := range s.Events {
		if slices.Contains(v.Sinks, sink) {
			return true
		}
	}
	for _, v := range s.Eventgroups {
		if slices.Contains(v.Sinks, sink) {
			return true
		}
	}
	return false
}
