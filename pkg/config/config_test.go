package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/flankersky/vector-ap-bsw-sub007/pkg/router"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/someip"
)

func TestLoadTestdata(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "someipd.yaml"))
	require.NoError(t, err)

	sd := cfg.ServiceDiscovery
	assert.Equal(t, 20*time.Millisecond, sd.InitialDelayMin.D())
	assert.Equal(t, 80*time.Millisecond, sd.InitialDelayMax.D())
	assert.Equal(t, 2, sd.RepetitionsMax)
	assert.Equal(t, 3*time.Second, sd.FindTTL.D(), "default kept")

	fs := sd.FindService()
	assert.Equal(t, 100*time.Millisecond, fs.RepetitionsBaseDelay)
	assert.NoError(t, fs.Validate())
	eg := sd.Eventgroup()
	assert.Equal(t, time.Second, eg.AckTimeout)
	assert.Equal(t, 10*time.Second, eg.SubscriptionTTL)

	require.Len(t, cfg.Services, 2)
	assert.Equal(t, uint16(0x1234), cfg.Services[0].ID)
	assert.Equal(t, []someip.ServiceInstanceKey{{Service: 0x1234, Instance: 1}}, cfg.Required())
	assert.Equal(t, 64, cfg.Applications.QueueSize)
	assert.Equal(t, "127.0.0.1:9464", cfg.Metrics.Listen)
}

func TestParseEmptyUsesDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseRejectsBadDuration(t *testing.T) {
	_, err := Parse([]byte("service_discovery:\n  initial_delay_max: soon\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"min above max", func(c *Config) { c.ServiceDiscovery.InitialDelayMin = Duration(time.Second) }, "initial_delay_min"},
		{"zero max", func(c *Config) {
			c.ServiceDiscovery.InitialDelayMin = 0
			c.ServiceDiscovery.InitialDelayMax = 0
		}, "initial_delay_max must be positive"},
		{"base delay", func(c *Config) { c.ServiceDiscovery.RepetitionsBaseDelay = 0 }, "repetitions_base_delay"},
		{"negative repetitions", func(c *Config) { c.ServiceDiscovery.RepetitionsMax = -1 }, "repetitions_max"},
		{"ack timeout", func(c *Config) { c.ServiceDiscovery.SubscribeAckTimeout = 0 }, "subscribe_ack_timeout"},
		{"subscription ttl", func(c *Config) { c.ServiceDiscovery.SubscriptionTTL = 0 }, "subscription_ttl"},
		{"queue size", func(c *Config) { c.Applications.QueueSize = 0 }, "queue_size"},
		{"duplicate service", func(c *Config) {
			c.Services = []Service{{ID: 1}, {ID: 1}}
		}, "duplicate service 0x0001"},
		{"duplicate event", func(c *Config) {
			c.Services = []Service{{ID: 1, Events: []Event{{ID: 0x8001}, {ID: 0x8001}}}}
		}, "duplicate event 0x8001"},
		{"bad transport", func(c *Config) {
			c.Services = []Service{{ID: 1, Events: []Event{{ID: 0x8001, Transport: "sctp"}}}}
		}, `transport "sctp"`},
		{"undeclared event", func(c *Config) {
			c.Services = []Service{{ID: 1, Eventgroups: []Eventgroup{{ID: 1, Events: []uint16{0x8005}}}}}
		}, "undeclared event 0x8005"},
		{"duplicate eventgroup", func(c *Config) {
			c.Services = []Service{{ID: 1, Eventgroups: []Eventgroup{{ID: 1}, {ID: 1}}}}
		}, "duplicate eventgroup"},
		{"wildcard instance", func(c *Config) {
			c.RequiredServices = []RequiredService{{Service: 1, Instance: 0xFFFF}}
		}, "instance must not be 0xffff"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateJoinsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.ServiceDiscovery.SubscribeAckTimeout = 0
	cfg.Applications.QueueSize = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subscribe_ack_timeout")
	assert.Contains(t, err.Error(), "queue_size")
}

func TestDurationRoundTrip(t *testing.T) {
	out, err := yaml.Marshal(Config{ServiceDiscovery: SDConfig{FindTTL: Duration(1500 * time.Millisecond)}})
	require.NoError(t, err)
	assert.Contains(t, string(out), "find_ttl: 1.5s")
}

func TestCatalog(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "someipd.yaml"))
	require.NoError(t, err)
	c := NewCatalog(cfg.Services)

	info, ok := c.Event(0x1234, 0x8003)
	require.True(t, ok)
	assert.Equal(t, router.EventInfo{ID: 0x8003, Field: true, Transport: router.TransportTCP}, info)

	_, ok = c.Event(0x1234, 0x8009)
	assert.False(t, ok)
	_, ok = c.Event(0x9999, 0x8001)
	assert.False(t, ok)

	assert.Equal(t, []someip.EventgroupID{1, 2}, c.EventToEventgroups(0x1234, 0x8001))
	assert.Equal(t, []someip.EventgroupID{2}, c.EventToEventgroups(0x1234, 0x8003))
	assert.Nil(t, c.EventToEventgroups(0x9999, 0x8001))

	events := c.EventgroupEvents(0x1234, 1)
	require.Len(t, events, 2)
	assert.Equal(t, someip.EventID(0x8001), events[0].ID)
	assert.False(t, events[1].Field)

	assert.Equal(t, []someip.EventgroupID{1, 2}, c.Eventgroups(0x1234))
	assert.True(t, c.HasEventgroup(0x1234, 2))
	assert.False(t, c.HasEventgroup(0x1234, 3))
	assert.True(t, c.HasService(0x2000))
	assert.Empty(t, c.Eventgroups(0x2000))

	major, ok := c.MajorVersion(0x2000)
	require.True(t, ok)
	assert.Equal(t, uint8(2), major)
	assert.Equal(t, []someip.ServiceID{0x1234, 0x2000}, c.Services())
}
