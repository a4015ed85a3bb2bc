package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamespace_SetGet(t *testing.T) {
	ns, err := NewNamespace(KindReceipt, 16)
	require.NoError(t, err)

	ns.Set("k1", "v1", time.Minute)
	v, ok := ns.Get("k1")
	assert.True(t, ok)
	assert.Equal(t, "v1", v)

	_, ok = ns.Get("missing")
	assert.False(t, ok)
}

func TestNamespace_Delete(t *testing.T) {
	ns, err := NewNamespace(KindReceipt, 16)
	require.NoError(t, err)

	ns.Set("k1", "v1", time.Minute)
	ns.Delete("k1")

	_, ok := ns.Get("k1")
	assert.False(t, ok)
}

func TestNamespace_WarmPromotesToHot(t *testing.T) {
	ns, err := NewNamespace(KindReceipt, 16)
	require.NoError(t, err)

	ns.warm.set("k1", "v1", time.Minute)
	_, inHot := ns.hot.Get("k1")
	assert.False(t, inHot)

	v, ok := ns.Get("k1")
	assert.True(t, ok)
	assert.Equal(t, "v1", v)

	_, inHot = ns.hot.Get("k1")
	assert.True(t, inHot)
}

func TestNamespace_GetOrLoad_CachesResult(t *testing.T) {
	ns, err := NewNamespace(KindWBNBPrice, 16)
	require.NoError(t, err)

	var calls int32
	load := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return 612.5, nil
	}

	v, err := ns.GetOrLoad(context.Background(), "bnb", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, 612.5, v)

	v, err = ns.GetOrLoad(context.Background(), "bnb", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, 612.5, v)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestNamespace_GetOrLoad_SingleFlightsConcurrentMisses(t *testing.T) {
	ns, err := NewNamespace(KindWBNBPrice, 16)
	require.NoError(t, err)

	var calls int32
	release := make(chan struct{})
	load := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "resolved", nil
	}

	var wg sync.WaitGroup
	results := make([]any, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := ns.GetOrLoad(context.Background(), "shared", time.Minute, load)
			require.NoError(t, err)
			results[i] = v
		}(i)
	}

	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, r := range results {
		assert.Equal(t, "resolved", r)
	}
}

func TestNamespace_GetOrLoad_ErrorNotCached(t *testing.T) {
	ns, err := NewNamespace(KindWBNBPrice, 16)
	require.NoError(t, err)

	var calls int32
	load := func(ctx context.Context) (any, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return nil, errors.New("boom")
		}
		return "ok", nil
	}

	_, err = ns.GetOrLoad(context.Background(), "k", time.Minute, load)
	assert.Error(t, err)

	v, err := ns.GetOrLoad(context.Background(), "k", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestNamespace_SizeAndSweep(t *testing.T) {
	ns, err := NewNamespace(KindReceipt, 16)
	require.NoError(t, err)

	ns.warm.set("expired", "v", time.Millisecond)
	ns.warm.set("fresh", "v", time.Hour)
	time.Sleep(5 * time.Millisecond)

	ns.Sweep()
	assert.Equal(t, 1, ns.Size())
}
