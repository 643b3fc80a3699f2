package config

import (
	"slices"
	"strings"

	"github.com/flankersky/vector-ap-bsw-sub007/pkg/router"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/someip"
)

func parseTransport(s string) (router.Transport, bool) {
	switch strings.ToLower(s) {
	case "", "udp":
		return router.TransportUDP, true
	case "tcp":
		return router.TransportTCP, true
	default:
		return 0, false
	}
}

type serviceIndex struct {
	major    uint8
	events   map[someip.EventID]router.EventInfo
	groups   map[someip.EventgroupID][]router.EventInfo
	eventEGs map[someip.EventID][]someip.EventgroupID
	groupIDs []someip.EventgroupID
}

// Catalog indexes the configured services. It implements
// router.EventConfig. Returned slices must not be modified.
type Catalog struct {
	services map[someip.ServiceID]*serviceIndex
}

var _ router.EventConfig = (*Catalog)(nil)

// NewCatalog indexes services. Services are expected to be validated;
// events with an unknown transport are indexed as UDP.
func NewCatalog(services []Service) *Catalog {
	c := &Catalog{services: make(map[someip.ServiceID]*serviceIndex, len(services))}
	for _, s := range services {
		idx := &serviceIndex{
			major:    s.MajorVersion,
			events:   make(map[someip.EventID]router.EventInfo, len(s.Events)),
			groups:   make(map[someip.EventgroupID][]router.EventInfo, len(s.Eventgroups)),
			eventEGs: make(map[someip.EventID][]someip.EventgroupID),
		}
		for _, ev := range s.Events {
			tr, _ := parseTransport(ev.Transport)
			idx.events[someip.EventID(ev.ID)] = router.EventInfo{
				ID:        someip.EventID(ev.ID),
				Field:     ev.Field,
				Transport: tr,
			}
		}
		for _, g := range s.Eventgroups {
			id := someip.EventgroupID(g.ID)
			idx.groupIDs = append(idx.groupIDs, id)
			for _, evID := range g.Events {
				ev := someip.EventID(evID)
				if info, ok := idx.events[ev]; ok {
					idx.groups[id] = append(idx.groups[id], info)
				}
				idx.eventEGs[ev] = append(idx.eventEGs[ev], id)
			}
		}
		slices.Sort(idx.groupIDs)
		c.services[someip.ServiceID(s.ID)] = idx
	}
	return c
}

// Event implements router.EventConfig.
func (c *Catalog) Event(service someip.ServiceID, event someip.EventID) (router.EventInfo, bool) {
	idx, ok := c.services[service]
	if !ok {
		return router.EventInfo{}, false
	}
	info, ok := idx.events[event]
	return info, ok
}

// EventToEventgroups implements router.EventConfig.
func (c *Catalog) EventToEventgroups(service someip.ServiceID, event someip.EventID) []someip.EventgroupID {
	if idx, ok := c.services[service]; ok {
		return idx.eventEGs[event]
	}
	return nil
}

// EventgroupEvents implements router.EventConfig.
func (c *Catalog) EventgroupEvents(service someip.ServiceID, eventgroup someip.EventgroupID) []router.EventInfo {
	if idx, ok := c.services[service]; ok {
		return idx.groups[eventgroup]
	}
	return nil
}

// Eventgroups returns the eventgroup IDs of a service in ascending order.
func (c *Catalog) Eventgroups(service someip.ServiceID) []someip.EventgroupID {
	if idx, ok := c.services[service]; ok {
		return idx.groupIDs
	}
	return nil
}

// HasEventgroup reports whether the service declares the eventgroup.
func (c *Catalog) HasEventgroup(service someip.ServiceID, eventgroup someip.EventgroupID) bool {
	return slices.Contains(c.Eventgroups(service), eventgroup)
}

// HasService reports whether the service is configured.
func (c *Catalog) HasService(service someip.ServiceID) bool {
	_, ok := c.services[service]
	return ok
}

// MajorVersion returns the configured major version of a service.
func (c *Catalog) MajorVersion(service someip.ServiceID) (uint8, bool) {
	idx, ok := c.services[service]
	if !ok {
		return 0, false
	}
	return idx.major, true
}

// Services returns the configured service IDs in ascending order.
func (c *Catalog) Services() []someip.ServiceID {
	out := make([]someip.ServiceID, 0, len(c.services))
	for id := range c.services {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
