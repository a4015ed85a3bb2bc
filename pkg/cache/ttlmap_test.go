package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLMap_SetGet(t *testing.T) {
	m := newTTLMap()
	m.set("k1", "v1", time.Minute)

	v, ok := m.get("k1")
	assert.True(t, ok)
	assert.Equal(t, "v1", v)

	_, ok = m.get("missing")
	assert.False(t, ok)
}

func TestTTLMap_Expires(t *testing.T) {
	m := newTTLMap()
	m.set("k1", "v1", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, ok := m.get("k1")
	assert.False(t, ok)
}

func TestTTLMap_Delete(t *testing.T) {
	m := newTTLMap()
	m.set("k1", "v1", time.Minute)
	m.delete("k1")

	_, ok := m.get("k1")
	assert.False(t, ok)
}

func TestTTLMap_Sweep(t *testing.T) {
	m := newTTLMap()
	m.set("expired", "v", time.Millisecond)
	m.set("fresh", "v", time.Hour)
	time.Sleep(5 * time.Millisecond)

	m.sweep()
	assert.Equal(t, 1, m.size())
}

func TestTTLMap_Size(t *testing.T) {
	m := newTTLMap()
	assert.Equal(t, 0, m.size())
	m.set("a", 1, time.Minute)
	m.set("b", 2, time.Minute)
	assert.Equal(t, 2, m.size())
}
