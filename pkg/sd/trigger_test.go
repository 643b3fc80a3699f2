package sd

import (
	"net/netip"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTriggerBatchesPerDestination(t *testing.T) {
	trig := NewMemoryTrigger(2)
	a := netip.MustParseAddrPort("192.0.2.1:30490")
	b := netip.MustParseAddrPort("192.0.2.2:30490")

	trig.Enqueue(a, Entry{Type: EntrySubscribeEventgroup, Eventgroup: 1})
	trig.Enqueue(netip.AddrPort{}, Entry{Type: EntryFindService})
	trig.Enqueue(a, Entry{Type: EntrySubscribeEventgroup, Eventgroup: 2})
	trig.Enqueue(a, Entry{Type: EntrySubscribeEventgroup, Eventgroup: 3})
	trig.Enqueue(b, Entry{Type: EntryStopSubscribeEventgroup})
	assert.Equal(t, 5, trig.Pending())

	got := trig.Drain()
	require.Len(t, got, 4)
	assert.Equal(t, a, got[0].Dest)
	assert.Len(t, got[0].Entries, 2)
	assert.Equal(t, a, got[1].Dest)
	assert.Len(t, got[1].Entries, 1)
	assert.Equal(t, netip.AddrPort{}, got[2].Dest, "multicast batch follows the first unicast")
	assert.Equal(t, b, got[3].Dest)

	var groups []uint16
	for _, d := range got[:2] {
		for _, e := range d.Entries {
			groups = append(groups, uint16(e.Eventgroup))
		}
	}
	assert.Equal(t, []uint16{1, 2, 3}, groups)

	assert.Zero(t, trig.Pending())
	assert.Empty(t, trig.Drain())
}

func TestMemoryTriggerDefaultBatchSize(t *testing.T) {
	trig := NewMemoryTrigger(0)
	for range DefaultMaxEntries + 1 {
		trig.Enqueue(netip.AddrPort{}, Entry{Type: EntryFindService})
	}
	got := trig.Drain()
	require.Len(t, got, 2)
	assert.Len(t, got[0].Entries, DefaultMaxEntries)
}

func TestMemoryTriggerConcurrentEnqueue(t *testing.T) {
	trig := NewMemoryTrigger(4)
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				trig.Enqueue(netip.AddrPort{}, Entry{Type: EntryFindService})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 400, trig.Pending())
	assert.Len(t, trig.Drain(), 100)
}

func TestTriggerTransmitterAddressesPeer(t *testing.T) {
	trig := NewMemoryTrigger(0)
	peer := netip.MustParseAddrPort("192.0.2.7:30490")
	tx := TriggerTransmitter{Trigger: trig}

	tx.Transmit(Entry{Type: EntrySubscribeEventgroup, Peer: peer})
	got := trig.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, peer, got[0].Dest)
}

func TestEntryString(t *testing.T) {
	assert.Equal(t, "FIND_SERVICE (0x1234, 0x0001)",
		Entry{Type: EntryFindService, Service: 0x1234, Instance: 1}.String())
	assert.Equal(t, "SUBSCRIBE_EVENTGROUP_ACK (0x1234, 0x0001, 0x0005)",
		Entry{Type: EntrySubscribeEventgroupAck, Service: 0x1234, Instance: 1, Eventgroup: 5}.String())
	assert.Equal(t, "UNKNOWN", EntryType(99).String())
}
