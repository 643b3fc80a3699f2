package router

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flankersky/vector-ap-bsw-sub007/pkg/someip"
)

func nopSink() Sink {
	return SinkFunc(func(someip.InstanceID, *someip.Packet) {})
}

func TestRegistryAddGetRemove(t *testing.T) {
	r := NewRegistry()
	s := nopSink()

	id := r.Add(s)
	assert.True(t, id.IsValid())
	assert.Equal(t, 1, r.Len())

	got, ok := r.Get(id)
	require.True(t, ok)
	assert.NotNil(t, got)

	_, err := uuid.Parse(r.Label(id))
	assert.NoError(t, err, "label should be a UUID")

	assert.True(t, r.Remove(id))
	assert.False(t, r.Remove(id))
	assert.Equal(t, 0, r.Len())

	_, ok = r.Get(id)
	assert.False(t, ok)
	assert.Empty(t, r.Label(id))
}

func TestRegistryReusedSlotRejectsOldHandle(t *testing.T) {
	r := NewRegistry()

	old := r.Add(nopSink())
	require.True(t, r.Remove(old))

	fresh := r.Add(nopSink())
	assert.NotEqual(t, old, fresh)
	assert.Equal(t, old.index, fresh.index, "slot is reused")

	_, ok := r.Get(old)
	assert.False(t, ok, "stale handle must not resolve")
	_, ok = r.Get(fresh)
	assert.True(t, ok)
}

func TestRegistryNoSink(t *testing.T) {
	r := NewRegistry()
	r.Add(nopSink())

	assert.False(t, NoSink.IsValid())
	_, ok := r.Get(NoSink)
	assert.False(t, ok)
	assert.Equal(t, "none", NoSink.String())
}

func TestRegistryLabelsAreUnique(t *testing.T) {
	r := NewRegistry()
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		label := r.Label(r.Add(nopSink()))
		assert.False(t, seen[label])
		seen[label] = true
	}
}

func TestRegistryAddNilPanics(t *testing.T) {
	assert.Panics(t, func() { NewRegistry().Add(nil) })
}

func TestSinkIDCompare(t *testing.T) {
	a := SinkID{index: 0, gen: 1}
	b := SinkID{index: 0, gen: 2}
	c := SinkID{index: 1, gen: 1}

	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, -1, b.Compare(c))
	assert.Equal(t, 1, c.Compare(a))
	assert.Equal(t, 0, a.Compare(a))
}
