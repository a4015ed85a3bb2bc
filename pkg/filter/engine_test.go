package filter

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"swapwatch/pkg/cooldown"
	swtypes "swapwatch/pkg/types"
)

func TestRuleFires(t *testing.T) {
	stat := &swtypes.PriceStat{PriceChangePct: 25, VolumeUSD: 50000, Top10Pct: 40}

	assert.True(t, ruleFires(swtypes.Rule{Kind: swtypes.RulePriceRise, Threshold: 20}, stat))
	assert.False(t, ruleFires(swtypes.Rule{Kind: swtypes.RulePriceRise, Threshold: 30}, stat))

	fallStat := &swtypes.PriceStat{PriceChangePct: -25}
	assert.True(t, ruleFires(swtypes.Rule{Kind: swtypes.RulePriceFall, Threshold: 20}, fallStat))
	assert.False(t, ruleFires(swtypes.Rule{Kind: swtypes.RulePriceFall, Threshold: 30}, fallStat))

	assert.True(t, ruleFires(swtypes.Rule{Kind: swtypes.RuleVolume, Threshold: 40000}, stat))
	assert.False(t, ruleFires(swtypes.Rule{Kind: swtypes.RuleVolume, Threshold: 60000}, stat))

	assert.True(t, ruleFires(swtypes.Rule{Kind: swtypes.RuleTop10, Threshold: 50}, stat))
	assert.False(t, ruleFires(swtypes.Rule{Kind: swtypes.RuleTop10, Threshold: 30}, stat))

	assert.False(t, ruleFires(swtypes.Rule{Kind: swtypes.RuleKind("bogus")}, stat))
}

func newTestEngine(cfg swtypes.MonitorConfig) *Engine {
	dedup := cooldown.NewManager(nil, 30*time.Second, 0)
	return New(cfg, nil, nil, dedup)
}

func TestEngine_Layer1_AdmitsAboveThreshold(t *testing.T) {
	e := newTestEngine(swtypes.MonitorConfig{MinUSDExternal: 1000, MinUSDInternal: 500})

	evt := swtypes.SwapEvent{
		TxHash:   common.HexToHash("0x1"),
		LogIndex: 0,
		Origin:   swtypes.OriginExternal,
	}
	result := e.Layer1(evt, 1500)
	assert.True(t, result.Admitted)
	assert.False(t, result.ViaCumulative)
}

func TestEngine_Layer1_UsesInternalThreshold(t *testing.T) {
	e := newTestEngine(swtypes.MonitorConfig{MinUSDExternal: 1000, MinUSDInternal: 100})

	evt := swtypes.SwapEvent{
		TxHash:   common.HexToHash("0x2"),
		LogIndex: 0,
		Origin:   swtypes.OriginInternal,
	}
	result := e.Layer1(evt, 150)
	assert.True(t, result.Admitted)
}

func TestEngine_Layer1_DedupBlocksSecondEvaluation(t *testing.T) {
	e := newTestEngine(swtypes.MonitorConfig{MinUSDExternal: 1000})
	evt := swtypes.SwapEvent{TxHash: common.HexToHash("0x3"), LogIndex: 0, Origin: swtypes.OriginExternal}

	first := e.Layer1(evt, 2000)
	assert.True(t, first.Admitted)

	second := e.Layer1(evt, 2000)
	assert.False(t, second.Admitted)
}

func TestEngine_Layer1_CumulativeAdmission(t *testing.T) {
	e := newTestEngine(swtypes.MonitorConfig{
		MinUSDExternal:   1000,
		CumulativeMinUSD: 100,
		CumulativeWindow: time.Minute,
	})

	pair := common.HexToAddress("0xaaaa")
	evt1 := swtypes.SwapEvent{TxHash: common.HexToHash("0x10"), LogIndex: 0, Origin: swtypes.OriginExternal, Pair: pair}
	evt2 := swtypes.SwapEvent{TxHash: common.HexToHash("0x11"), LogIndex: 0, Origin: swtypes.OriginExternal, Pair: pair}

	r1 := e.Layer1(evt1, 60)
	assert.False(t, r1.Admitted)

	r2 := e.Layer1(evt2, 60)
	assert.True(t, r2.Admitted)
	assert.True(t, r2.ViaCumulative)
}

func TestEngine_Layer1_BelowThresholdNotCumulative(t *testing.T) {
	e := newTestEngine(swtypes.MonitorConfig{
		MinUSDExternal:   1000,
		CumulativeMinUSD: 1000,
		CumulativeWindow: time.Minute,
	})

	evt := swtypes.SwapEvent{TxHash: common.HexToHash("0x20"), LogIndex: 0, Origin: swtypes.OriginExternal}
	result := e.Layer1(evt, 10)
	assert.False(t, result.Admitted)
}

type fakeMetrics struct {
	checks    []string
	passes    []string
	fallbacks []string
}

func (f *fakeMetrics) ObserveSecondLayerCheck(origin string) { f.checks = append(f.checks, origin) }
func (f *fakeMetrics) ObserveSecondLayerPass(origin string)  { f.passes = append(f.passes, origin) }
func (f *fakeMetrics) ObserveFallback(transition string)     { f.fallbacks = append(f.fallbacks, transition) }

func TestEngine_SetMetrics_SatisfiesInterface(t *testing.T) {
	e := newTestEngine(swtypes.MonitorConfig{MinUSDExternal: 1000})
	fm := &fakeMetrics{}
	e.SetMetrics(fm)
	assert.Same(t, fm, e.metrics)
}

func TestEngine_Refresh(t *testing.T) {
	e := newTestEngine(swtypes.MonitorConfig{MinUSDExternal: 1000})
	before := e.cfg.Load()
	assert.Equal(t, 1000.0, before.MinUSDExternal)

	e.Refresh(swtypes.MonitorConfig{MinUSDExternal: 5000})
	after := e.cfg.Load()
	assert.Equal(t, 5000.0, after.MinUSDExternal)
}
