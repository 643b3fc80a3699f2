package someip

import (
	"cmp"
	"fmt"
)

// ServiceID identifies a service interface.
type ServiceID uint16

// InstanceID identifies one instance of a service.
type InstanceID uint16

// MethodID identifies a method or, with the high bit set, an event.
type MethodID uint16

// EventID identifies an event or field notifier.
type EventID = MethodID

// EventgroupID identifies a named group of events.
type EventgroupID uint16

// ClientID identifies the requesting client in a request/response pair.
type ClientID uint16

// SessionID distinguishes requests of one client.
type SessionID uint16

// InstanceAny is the wildcard instance used in lookups.
const InstanceAny InstanceID = 0xFFFF

// ServiceInstanceKey identifies one offered or required service instance.
type ServiceInstanceKey struct {
	Service  ServiceID
	Instance InstanceID
}

// String returns the key as "(service, instance)" in hex.
func (k ServiceInstanceKey) String() string {
	return fmt.Sprintf("(0x%04x, 0x%04x)", uint16(k.Service), uint16(k.Instance))
}

// IsWildcard reports whether the instance is InstanceAny.
func (k ServiceInstanceKey) IsWildcard() bool {
	return k.Instance == InstanceAny
}

// Matches reports whether k matches other, treating InstanceAny in k as a wildcard.
func (k ServiceInstanceKey) Matches(other ServiceInstanceKey) bool {
	if k.Service != other.Service {
		return false
	}
	return k.Instance == InstanceAny || k.Instance == other.Instance
}

// Compare orders keys lexicographically on (service, instance).
func (k ServiceInstanceKey) Compare(other ServiceInstanceKey) int {
	if c := cmp.Compare(k.Service, other.Service); c != 0 {
		return c
	}
	return cmp.Compare(k.Instance, other.Instance)
}

// Less reports whether k sorts before other.
func (k ServiceInstanceKey) Less(other ServiceInstanceKey) bool {
	return k.Compare(other) < 0
}

// EventKey identifies an event of a service instance.
type EventKey struct {
	ServiceInstanceKey
	Event EventID
}

// String returns the key as "(service, instance, event)" in hex.
func (k EventKey) String() string {
	return fmt.Sprintf("(0x%04x, 0x%04x, 0x%04x)", uint16(k.Service), uint16(k.Instance), uint16(k.Event))
}

// Compare orders keys lexicographically on (service, instance, event).
func (k EventKey) Compare(other EventKey) int {
	if c := k.ServiceInstanceKey.Compare(other.ServiceInstanceKey); c != 0 {
		return c
	}
	return cmp.Compare(k.Event, other.Event)
}

// Less reports whether k sorts before other.
func (k EventKey) Less(other EventKey) bool {
	return k.Compare(other) < 0
}

// EventgroupKey identifies an eventgroup of a service instance.
type EventgroupKey struct {
	ServiceInstanceKey
	Eventgroup EventgroupID
}

// String returns the key as "(service, instance, eventgroup)" in hex.
func (k EventgroupKey) String() string {
	return fmt.Sprintf("(0x%04x, 0x%04x, 0x%04x)", uint16(k.Service), uint16(k.Instance), uint16(k.Eventgroup))
}

// Compare orders keys lexicographically on (service, instance, eventgroup).
func (k EventgroupKey) Compare(other EventgroupKey) int {
	if c := k.ServiceInstanceKey.Compare(other.ServiceInstanceKey); c != 0 {
		return c
	}
	return cmp.Compare(k.Eventgroup, other.Eventgroup)
}

// Less reports whether k sorts before other.
func (k EventgroupKey) Less(other EventgroupKey) bool {
	return k.Compare(other) < 0
}

// NewEventKey builds an EventKey.
func NewEventKey(service ServiceID, instance InstanceID, event EventID) EventKey {
	return EventKey{ServiceInstanceKey{service, instance}, event}
}

// NewEventgroupKey builds an EventgroupKey.
func NewEventgroupKey(service ServiceID, instance InstanceID, eventgroup EventgroupID) EventgroupKey {
	return EventgroupKey{ServiceInstanceKey{service, instance}, eventgroup}
}
