package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flankersky/vector-ap-bsw-sub007/pkg/sd/eventgroup"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/sd/findservice"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/someip"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid config")

// Config is the daemon configuration.
type Config struct {
	ServiceDiscovery SDConfig          `yaml:"service_discovery"`
	Services         []Service         `yaml:"services"`
	RequiredServices []RequiredService `yaml:"required_services"`
	Applications     Applications      `yaml:"applications"`
	Metrics          Metrics           `yaml:"metrics"`
}

// SDConfig holds the service discovery timing.
type SDConfig struct {
	InitialDelayMin      Duration `yaml:"initial_delay_min"`
	InitialDelayMax      Duration `yaml:"initial_delay_max"`
	RepetitionsBaseDelay Duration `yaml:"repetitions_base_delay"`
	RepetitionsMax       int      `yaml:"repetitions_max"`
	SubscribeAckTimeout  Duration `yaml:"subscribe_ack_timeout"`
	SubscriptionTTL      Duration `yaml:"subscription_ttl"`
	FindTTL              Duration `yaml:"find_ttl"`
}

// FindService returns the FindService machine configuration.
func (c SDConfig) FindService() findservice.Config {
	return findservice.Config{
		InitialDelayMin:      c.InitialDelayMin.D(),
		InitialDelayMax:      c.InitialDelayMax.D(),
		RepetitionsBaseDelay: c.RepetitionsBaseDelay.D(),
		RepetitionsMax:       c.RepetitionsMax,
	}
}

// Eventgroup returns the eventgroup machine configuration.
func (c SDConfig) Eventgroup() eventgroup.Config {
	return eventgroup.Config{
		AckTimeout:      c.SubscribeAckTimeout.D(),
		SubscriptionTTL: c.SubscriptionTTL.D(),
	}
}

// Service describes the events of one service interface.
type Service struct {
	ID           uint16       `yaml:"id"`
	MajorVersion uint8        `yaml:"major_version"`
	Events       []Event      `yaml:"events"`
	Eventgroups  []Eventgroup `yaml:"eventgroups"`
}

// Event is one event or field of a service.
type Event struct {
	ID        uint16 `yaml:"id"`
	Field     bool   `yaml:"field"`
	Transport string `yaml:"transport"`
}

// Eventgroup lists the events of one eventgroup.
type Eventgroup struct {
	ID     uint16   `yaml:"id"`
	Events []uint16 `yaml:"events"`
}

// RequiredService is an instance the daemon requests at startup.
type RequiredService struct {
	Service  uint16 `yaml:"service"`
	Instance uint16 `yaml:"instance"`
}

// Key returns the service instance key.
func (r RequiredService) Key() someip.ServiceInstanceKey {
	return someip.ServiceInstanceKey{Service: someip.ServiceID(r.Service), Instance: someip.InstanceID(r.Instance)}
}

// Applications configures local application connections.
type Applications struct {
	// QueueSize bounds each connection's outbound packet queue.
	QueueSize int `yaml:"queue_size"`
}

// Metrics configures the prometheus endpoint.
type Metrics struct {
	// Listen is the HTTP listen address; empty disables the endpoint.
	Listen string `yaml:"listen"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ServiceDiscovery: SDConfig{
			InitialDelayMin:      Duration(10 * time.Millisecond),
			InitialDelayMax:      Duration(100 * time.Millisecond),
			RepetitionsBaseDelay: Duration(200 * time.Millisecond),
			RepetitionsMax:       3,
			SubscribeAckTimeout:  Duration(2 * time.Second),
			SubscriptionTTL:      Duration(5 * time.Second),
			FindTTL:              Duration(3 * time.Second),
		},
		Applications: Applications{QueueSize: 256},
	}
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Required returns the keys of the required services.
func (c *Config) Required() []someip.ServiceInstanceKey {
	out := make([]someip.ServiceInstanceKey, len(c.RequiredServices))
	for i, r := range c.RequiredServices {
		out[i] = r.Key()
	}
	return out
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...)))
	}

	sd := c.ServiceDiscovery
	if sd.InitialDelayMin < 0 || sd.InitialDelayMin > sd.InitialDelayMax {
		bad("initial_delay_min %s must be within [0, initial_delay_max]", sd.InitialDelayMin.D())
	}
	if sd.InitialDelayMax <= 0 {
		bad("initial_delay_max must be positive")
	}
	if sd.RepetitionsMax < 0 {
		bad("repetitions_max must not be negative")
	}
	if sd.RepetitionsMax > 0 && sd.RepetitionsBaseDelay <= 0 {
		bad("repetitions_base_delay must be positive when repetitions_max > 0")
	}
	if sd.SubscribeAckTimeout <= 0 {
		bad("subscribe_ack_timeout must be positive")
	}
	if sd.SubscriptionTTL <= 0 {
		bad("subscription_ttl must be positive")
	}
	if sd.FindTTL < 0 {
		bad("find_ttl must not be negative")
	}
	if c.Applications.QueueSize <= 0 {
		bad("applications.queue_size must be positive")
	}

	var serviceIDs []uint16
	for _, s := range c.Services {
		if slices.Contains(serviceIDs, s.ID) {
			bad("duplicate service 0x%04x", s.ID)
		}
		serviceIDs = append(serviceIDs, s.ID)

		var eventIDs []uint16
		for _, ev := range s.Events {
			if slices.Contains(eventIDs, ev.ID) {
				bad("service 0x%04x: duplicate event 0x%04x", s.ID, ev.ID)
			}
			eventIDs = append(eventIDs, ev.ID)
			if _, ok := parseTransport(ev.Transport); !ok {
				bad("service 0x%04x: event 0x%04x: transport %q must be tcp or udp", s.ID, ev.ID, ev.Transport)
			}
		}

		var groupIDs []uint16
		for _, g := range s.Eventgroups {
			if slices.Contains(groupIDs, g.ID) {
				bad("service 0x%04x: duplicate eventgroup 0x%04x", s.ID, g.ID)
			}
			groupIDs = append(groupIDs, g.ID)
			for _, ev := range g.Events {
				if !slices.Contains(eventIDs, ev) {
					bad("service 0x%04x: eventgroup 0x%04x: undeclared event 0x%04x", s.ID, g.ID, ev)
				}
			}
		}
	}

	for _, r := range c.RequiredServices {
		if someip.InstanceID(r.Instance) == someip.InstanceAny {
			bad("required service 0x%04x: instance must not be 0xffff", r.Service)
		}
	}
	return errors.Join(errs...)
}
