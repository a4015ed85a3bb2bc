package filter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-retryablehttp"

	swtypes "swapwatch/pkg/types"
)

// StatFetcher fetches a PriceStat for a token over a window from the
// external statistics API, completeness included so the caller can decide
// whether to widen the window.
type StatFetcher struct {
	http    *retryablehttp.Client
	urlTmpl string // e.g. https://api.example/stats/%s?window=%s
}

// NewStatFetcher builds a fetcher against the given URL template (token,
// window substituted in order).
func NewStatFetcher(urlTmpl string) *StatFetcher {
	hc := retryablehttp.NewClient()
	hc.RetryMax = 3
	hc.RetryWaitMin = 100 * time.Millisecond
	hc.RetryWaitMax = 2 * time.Second
	hc.Logger = nil
	return &StatFetcher{http: hc, urlTmpl: urlTmpl}
}

type statResponse struct {
	PriceChangePct float64 `json:"price_change_pct"`
	VolumeUSD      float64 `json:"volume_usd"`
	TxCount        int     `json:"tx_count"`
	Top10Pct       float64 `json:"top10_pct"`
	Complete       bool    `json:"complete"`
	Empty          bool    `json:"empty"`
}

// Fetch retrieves the statistics snapshot for token over window.
func (f *StatFetcher) Fetch(ctx context.Context, token common.Address, window swtypes.Window) (*swtypes.PriceStat, error) {
	url := fmt.Sprintf(f.urlTmpl, token.Hex(), window)
	req, err := retryablehttp.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("filter: build stat request: %w", err)
	}
	req = req.WithContext(ctx)

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("filter: stat request for %s/%s: %w", token.Hex(), window, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("filter: stat response status %d", resp.StatusCode)
	}

	var body statResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("filter: decode stat response: %w", err)
	}

	completeness := swtypes.CompletenessComplete
	switch {
	case body.Empty:
		completeness = swtypes.CompletenessEmpty
	case !body.Complete:
		completeness = swtypes.CompletenessPartial
	}

	return &swtypes.PriceStat{
		Token:          token,
		Window:         window,
		PriceChangePct: body.PriceChangePct,
		VolumeUSD:      body.VolumeUSD,
		TxCount:        body.TxCount,
		Top10Pct:       body.Top10Pct,
		UpdatedAt:      time.Now(),
		Completeness:   completeness,
	}, nil
}
