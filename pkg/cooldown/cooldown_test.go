package cooldown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSeenKey(t *testing.T) {
	assert.Equal(t, "0xabc:3", SeenKey("0xabc", 3))
	assert.NotEqual(t, SeenKey("0xabc", 3), SeenKey("0xabc", 4))
}

func TestManager_MarkIfUnseen(t *testing.T) {
	m := NewManager(nil, 30*time.Second, 5*time.Second)

	key := SeenKey("0xdead", 1)
	assert.True(t, m.MarkIfUnseen(key))
	assert.False(t, m.MarkIfUnseen(key))
}

func TestManager_Refresh(t *testing.T) {
	m := NewManager(nil, 30*time.Second, 5*time.Second)
	assert.Equal(t, int64(30*time.Second), m.cooldownSecs.Load())
	assert.Equal(t, int64(5*time.Second), m.jitterSecs.Load())

	m.Refresh(60*time.Second, 10*time.Second)
	assert.Equal(t, int64(60*time.Second), m.cooldownSecs.Load())
	assert.Equal(t, int64(10*time.Second), m.jitterSecs.Load())
}

func TestManager_SweepDedup(t *testing.T) {
	m := NewManager(nil, 30*time.Second, 5*time.Second)
	key := SeenKey("0xdead", 1)
	m.seen.markIfUnseen(key, time.Millisecond)

	time.Sleep(5 * time.Millisecond)
	m.SweepDedup()

	shard := m.seen.shardFor(key)
	shard.mu.Lock()
	_, stillThere := shard.data[key]
	shard.mu.Unlock()
	assert.False(t, stillThere)
}
