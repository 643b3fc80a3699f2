package sd

import (
	"net/netip"
	"sync"
)

// DefaultMaxEntries is the number of entries MemoryTrigger packs into one
// datagram when NewMemoryTrigger is given zero.
const DefaultMaxEntries = 16

// Datagram is a batch of entries for one destination.
type Datagram struct {
	Dest    netip.AddrPort
	Entries []Entry
}

// Trigger batches outbound entries into datagrams. The socket that sends
// the drained datagrams is outside this package.
type Trigger interface {
	// Enqueue adds an entry for dest. The zero dest is the SD multicast
	// group.
	Enqueue(dest netip.AddrPort, entry Entry)

	// Drain returns the pending datagrams and clears the queue.
	Drain() []Datagram
}

// MemoryTrigger is an in-memory Trigger. Datagrams are returned in order
// of the first entry enqueued for each destination, entries keep their
// enqueue order. It is safe for concurrent use.
type MemoryTrigger struct {
	mu         sync.Mutex
	maxEntries int
	order      []netip.AddrPort
	pending    map[netip.AddrPort][]Entry
}

var _ Trigger = (*MemoryTrigger)(nil)

// NewMemoryTrigger creates a trigger that splits batches after maxEntries.
func NewMemoryTrigger(maxEntries int) *MemoryTrigger {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryTrigger{
		maxEntries: maxEntries,
		pending:    make(map[netip.AddrPort][]Entry),
	}
}

// Enqueue implements Trigger.
func (t *MemoryTrigger) Enqueue(dest netip.AddrPort, entry Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.pending[dest]; !ok {
		t.order = append(t.order, dest)
	}
	t.pending[dest] = append(t.pending[dest], entry)
}

// Drain implements Trigger.
func (t *MemoryTrigger) Drain() []Datagram {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Datagram
	for _, dest := range t.order {
		entries := t.pending[dest]
		for len(entries) > 0 {
			n := min(len(entries), t.maxEntries)
			out = append(out, Datagram{Dest: dest, Entries: entries[:n:n]})
			entries = entries[n:]
		}
	}
	t.order = nil
	t.pending = make(map[netip.AddrPort][]Entry)
	return out
}

// Pending returns the number of queued entries.
func (t *MemoryTrigger) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, entries := range t.pending {
		n += len(entries)
	}
	return n
}

// TriggerTransmitter transmits entries by enqueueing them on a Trigger,
// addressed to the entry's Peer.
type TriggerTransmitter struct {
	Trigger Trigger
}

// Transmit implements Transmitter.
func (t TriggerTransmitter) Transmit(entry Entry) {
	t.Trigger.Enqueue(entry.Peer, entry)
}

var _ Transmitter = TriggerTransmitter{}
