package sd

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/flankersky/vector-ap-bsw-sub007/pkg/someip"
)

// EntryType is the type of an SD entry.
type EntryType uint8

const (
	EntryFindService EntryType = iota
	EntryOfferService
	EntryStopOfferService
	EntrySubscribeEventgroup
	EntryStopSubscribeEventgroup
	EntrySubscribeEventgroupAck
	EntrySubscribeEventgroupNack
)

// String returns the entry type name used in trace events and metrics.
func (t EntryType) String() string {
	switch t {
	case EntryFindService:
		return "FIND_SERVICE"
	case EntryOfferService:
		return "OFFER_SERVICE"
	case EntryStopOfferService:
		return "STOP_OFFER_SERVICE"
	case EntrySubscribeEventgroup:
		return "SUBSCRIBE_EVENTGROUP"
	case EntryStopSubscribeEventgroup:
		return "STOP_SUBSCRIBE_EVENTGROUP"
	case EntrySubscribeEventgroupAck:
		return "SUBSCRIBE_EVENTGROUP_ACK"
	case EntrySubscribeEventgroupNack:
		return "SUBSCRIBE_EVENTGROUP_NACK"
	default:
		return "UNKNOWN"
	}
}

// Entry is a decoded SD entry together with the options the client uses.
type Entry struct {
	Type       EntryType
	Service    someip.ServiceID
	Instance   someip.InstanceID
	Eventgroup someip.EventgroupID

	// TTL is already resolved; someip.TTLInfinite for 0xFFFFFF.
	TTL time.Duration

	// RequestInitial asks the provider to send initial field values.
	RequestInitial bool

	// Multicast is set on offers received over the SD multicast group.
	Multicast bool

	// Endpoint is the multicast event endpoint of an ack.
	Endpoint netip.AddrPort

	// Peer is the source of an inbound entry or the destination of an
	// outbound one. The zero value is the SD multicast group.
	Peer netip.AddrPort
}

// ServiceInstance returns the entry's service instance.
func (e Entry) ServiceInstance() someip.ServiceInstanceKey {
	return someip.ServiceInstanceKey{Service: e.Service, Instance: e.Instance}
}

// EventgroupKey returns the entry's eventgroup key.
func (e Entry) EventgroupKey() someip.EventgroupKey {
	return someip.NewEventgroupKey(e.Service, e.Instance, e.Eventgroup)
}

func (e Entry) String() string {
	switch e.Type {
	case EntrySubscribeEventgroup, EntryStopSubscribeEventgroup,
		EntrySubscribeEventgroupAck, EntrySubscribeEventgroupNack:
		return fmt.Sprintf("%s %s", e.Type, e.EventgroupKey())
	default:
		return fmt.Sprintf("%s %s", e.Type, e.ServiceInstance())
	}
}

// Transmitter sends SD entries. Transmission is fire-and-forget; network
// failures are not reported back.
type Transmitter interface {
	Transmit(entry Entry)
}

// TransmitterFunc adapts a function to the Transmitter interface.
type TransmitterFunc func(Entry)

// Transmit calls f(entry).
func (f TransmitterFunc) Transmit(entry Entry) { f(entry) }
