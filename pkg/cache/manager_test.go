package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager_DefaultsHotSize(t *testing.T) {
	mgr, err := NewManager(nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, mgr.Receipt)
	assert.NotNil(t, mgr.PairMeta)
	assert.NotNil(t, mgr.WBNBPrice)
	assert.NotNil(t, mgr.NoDataPair)
}

func TestNewManager_CustomHotSize(t *testing.T) {
	mgr, err := NewManager(nil, map[Kind]int{KindReceipt: 4})
	require.NoError(t, err)
	assert.NotNil(t, mgr.Receipt)
}

func TestManager_SweepAll(t *testing.T) {
	mgr, err := NewManager(nil, nil)
	require.NoError(t, err)

	mgr.PairMeta.Set("k1", "v1", time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	mgr.SweepAll()

	assert.Equal(t, 0, mgr.PairMeta.Size())
}

func TestManager_Persistent(t *testing.T) {
	mgr, err := NewManager(nil, nil)
	require.NoError(t, err)
	assert.Nil(t, mgr.Persistent())
}

type fakeGaugeVec struct {
	sizes map[string]float64
}

func (f *fakeGaugeVec) SetCacheSize(kind string, n float64) {
	if f.sizes == nil {
		f.sizes = make(map[string]float64)
	}
	f.sizes[kind] = n
}

func TestManager_SweepAll_ReportsCacheSize(t *testing.T) {
	mgr, err := NewManager(nil, nil)
	require.NoError(t, err)

	fg := &fakeGaugeVec{}
	mgr.SetMetrics(fg)

	mgr.PairMeta.Set("k1", "v1", time.Minute)
	mgr.SweepAll()

	assert.Equal(t, 1.0, fg.sizes[string(KindPairMeta)])
	assert.Equal(t, 0.0, fg.sizes[string(KindReceipt)])
}
