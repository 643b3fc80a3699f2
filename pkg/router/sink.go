package router

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/flankersky/vector-ap-bsw-sub007/pkg/someip"
)

// Sink is a destination the router forwards packets to: a local
// application connection, a network peer wrapper, and so on.
//
// Forward must not block and must not call back into the router. A sink
// that cannot accept the packet drops it silently.
type Sink interface {
	Forward(instance someip.InstanceID, pkt *someip.Packet)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(instance someip.InstanceID, pkt *someip.Packet)

// Forward calls f(instance, pkt).
func (f SinkFunc) Forward(instance someip.InstanceID, pkt *someip.Packet) {
	f(instance, pkt)
}

// SinkID is a handle into a Registry. The zero value is NoSink.
//
// A handle carries the generation of its slot, so a handle kept after its
// sink was removed never resolves to a sink registered later in the same
// slot.
type SinkID struct {
	index uint32
	gen   uint32
}

// NoSink is the zero SinkID; it never resolves.
var NoSink SinkID

// IsValid reports whether id was issued by a registry.
func (id SinkID) IsValid() bool {
	return id.gen != 0
}

// String returns "index.generation".
func (id SinkID) String() string {
	if !id.IsValid() {
		return "none"
	}
	return fmt.Sprintf("%d.%d", id.index, id.gen)
}

// Compare orders handles by slot index then generation.
func (id SinkID) Compare(other SinkID) int {
	switch {
	case id.index < other.index:
		return -1
	case id.index > other.index:
		return 1
	case id.gen < other.gen:
		return -1
	case id.gen > other.gen:
		return 1
	default:
		return 0
	}
}

type slot struct {
	sink  Sink
	label string
	gen   uint32
	used  bool
}

// Registry is an arena of sinks addressed by SinkID.
// Freed slots are reused with a bumped generation.
//
// Registry is not safe for concurrent use.
type Registry struct {
	slots []slot
	free  []uint32
	count int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers a sink and returns its handle. Each sink gets a random
// UUID label used to identify it in trace output.
func (r *Registry) Add(s Sink) SinkID {
	if s == nil {
		panic("router: nil sink")
	}

	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		idx = uint32(len(r.slots))
		r.slots = append(r.slots, slot{})
	}

	sl := &r.slots[idx]
	sl.gen++
	sl.sink = s
	sl.label = uuid.NewString()
	sl.used = true
	r.count++

	return SinkID{index: idx, gen: sl.gen}
}

// Remove releases the slot of id. It returns false if id does not resolve.
func (r *Registry) Remove(id SinkID) bool {
	sl := r.lookup(id)
	if sl == nil {
		return false
	}
	sl.sink = nil
	sl.label = ""
	sl.used = false
	r.free = append(r.free, id.index)
	r.count--
	return true
}

// Get resolves a handle.
func (r *Registry) Get(id SinkID) (Sink, bool) {
	sl := r.lookup(id)
	if sl == nil {
		return nil, false
	}
	return sl.sink, true
}

// Label returns the UUID label of a sink, or "" if id does not resolve.
func (r *Registry) Label(id SinkID) string {
	sl := r.lookup(id)
	if sl == nil {
		return ""
	}
	return sl.label
}

// Len returns the number of registered sinks.
func (r *Registry) Len() int {
	return r.count
}

func (r *Registry) lookup(id SinkID) *slot {
	if !id.IsValid() || int(id.index) >= len(r.slots) {
		return nil
	}
	sl := &r.slots[id.index]
	if !sl.used || sl.gen != id.gen {
		return nil
	}
	return sl
}
