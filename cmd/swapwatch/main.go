package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	swapwatch "swapwatch"
	"swapwatch/configs"
	"swapwatch/internal/db"
	"swapwatch/internal/util"
	"swapwatch/pkg/cache"
	"swapwatch/pkg/cooldown"
	"swapwatch/pkg/decoder"
	"swapwatch/pkg/dispatch"
	"swapwatch/pkg/filter"
	"swapwatch/pkg/metadata"
	"swapwatch/pkg/observability"
	"swapwatch/pkg/rpcclient"
	"swapwatch/pkg/subscriber"
	swtypes "swapwatch/pkg/types"
)

func main() {
	app := &cli.App{
		Name:  "swapwatch",
		Usage: "BSC swap-event alerting engine",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "configs/config.yml", EnvVars: []string{"SWAPWATCH_CONFIG"}},
			&cli.StringFlag{Name: "secrets", Value: "env/.env", EnvVars: []string{"SWAPWATCH_SECRETS"}},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Error("swapwatch: fatal", "err", err)
		os.Exit(exitCodeFor(err))
	}
}

// startupError marks a failure to reach a required dependency at boot
// (Redis, MySQL, RPC endpoint); this exit code signals an operator that
// the process should not be restarted without fixing the dependency.
type startupError struct{ err error }

func (e *startupError) Error() string { return e.err.Error() }
func (e *startupError) Unwrap() error { return e.err }

func exitCodeFor(err error) int {
	if _, ok := err.(*startupError); ok {
		return 2
	}
	return 1
}

func run(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := configs.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := configs.LoadSecrets(c.String("secrets")); err != nil {
		log.Warn("main: no secrets file loaded", "err", err)
	}

	metrics := observability.NewRegistry()

	persistent, err := cache.NewPersistentStore(ctx, cfg.RedisAddr, os.Getenv("REDIS_PASSWORD"), 0)
	if err != nil {
		return &startupError{fmt.Errorf("connect redis: %w", err)}
	}
	defer persistent.Close()

	cacheMgr, err := cache.NewManager(persistent, nil)
	if err != nil {
		return &startupError{fmt.Errorf("build cache manager: %w", err)}
	}
	cacheMgr.Receipt.SetMetrics(metrics.CacheHitCounter("receipt"), noopCounter{})
	cacheMgr.PairMeta.SetMetrics(metrics.CacheHitCounter("pairmeta"), noopCounter{})
	cacheMgr.WBNBPrice.SetMetrics(metrics.CacheHitCounter("wbnbprice"), noopCounter{})
	cacheMgr.NoDataPair.SetMetrics(metrics.CacheHitCounter("no_data_pair"), noopCounter{})
	cacheMgr.SetMetrics(metrics)

	ledger, err := db.NewAlertRepository(cfg.MySQLDSN)
	if err != nil {
		return &startupError{fmt.Errorf("connect mysql: %w", err)}
	}
	defer ledger.Close()

	rpc, err := rpcclient.New(ctx, rpcclient.Config{
		Endpoint: cfg.RPC,
		Observer: metrics,
	})
	if err != nil {
		return &startupError{fmt.Errorf("connect rpc: %w", err)}
	}
	defer rpc.Close()

	dec, err := decoder.New()
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}

	quotes := defaultQuoteSet()
	resolver := metadata.New(cacheMgr, rpc, quotes, cfg.LaunchpadAPITmpl)

	bootstrapMonitor, err := cfg.ToMonitorConfig()
	if err != nil {
		return fmt.Errorf("build bootstrap monitor config: %w", err)
	}
	monitorCfg, err := configs.RefreshMonitorConfig(ctx, persistent, bootstrapMonitor)
	if err != nil {
		return fmt.Errorf("refresh monitor config: %w", err)
	}

	statFetcher := filter.NewStatFetcher(cfg.StatAPIURLTmpl)
	cdMgr := cooldown.NewManager(persistent,
		time.Duration(monitorCfg.CooldownSeconds)*time.Second,
		time.Duration(monitorCfg.JitterSeconds)*time.Second)
	filterEngine := filter.New(monitorCfg, statFetcher, cacheMgr, cdMgr)
	filterEngine.SetMetrics(metrics)

	notifier := dispatch.NewHTTPNotifier(cfg.NotifierURL)
	workers := cfg.Workers
	if workers <= 0 {
		workers = 20
	}
	pool := dispatch.NewPool(workers, notifier, cdMgr, persistent, ledger)
	pool.SetMetrics(metrics)

	groups := make([]subscriber.TopicGroup, 0, len(cfg.TopicGroups))
	for _, g := range cfg.TopicGroups {
		groups = append(groups, subscriber.TopicGroup{Name: g.Name, Addresses: g.Addresses, Topics: g.Topics})
	}

	engine := swapwatch.New(swapwatch.Deps{
		Decoder:           dec,
		RPC:               rpc,
		CacheMgr:          cacheMgr,
		Resolver:          resolver,
		FilterEngine:      filterEngine,
		CooldownMgr:       cdMgr,
		Pool:              pool,
		Metrics:           metrics,
		Ledger:            ledger,
		SpotPriceURL:      cfg.SpotPriceURL,
		BscScanLinkTmpl:   "https://bscscan.com/tx/%s",
		DexScreenLinkTmpl: "https://dexscreener.com/bsc/%s",
		StableQuotes:      stablecoinSet(),
	})

	sub := subscriber.New(cfg.WSEndpoint, groups, engine.HandleFrame, func(delta int) {
		metrics.WSConnections.Add(float64(delta))
	})
	engine.AttachSubscriber(sub)

	go handleRefreshSignal(ctx, persistent, bootstrapMonitor, filterEngine, cdMgr)
	go sweepLoop(ctx, cacheMgr, cdMgr)
	go healthSummaryLoop(ctx, ledger)
	go retryLoop(ctx, pool)

	go func() {
		if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
			log.Error("main: metrics server exited", "err", err)
		}
	}()

	engine.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	waitForPool(shutdownCtx, pool)

	return nil
}

func waitForPool(ctx context.Context, pool *dispatch.Pool) {
	done := make(chan struct{})
	go func() {
		pool.StopWait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn("main: shutdown wait exceeded 30s, exiting anyway")
	}
}

// retryLoop drives Pool.RetryDue off dispatch.RetryInterval() so payloads
// parked in the retry queue actually get redelivered instead of sitting in
// Redis until their TTL expires.
func retryLoop(ctx context.Context, pool *dispatch.Pool) {
	ticker := time.NewTicker(dispatch.RetryInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pool.RetryDue(ctx)
		}
	}
}

func sweepLoop(ctx context.Context, cacheMgr *cache.Manager, cdMgr *cooldown.Manager) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cacheMgr.SweepAll()
			cdMgr.SweepDedup()
		}
	}
}

// handleRefreshSignal reloads the monitor config from the KV store on
// SIGHUP and pushes the new snapshot into the filter engine and cooldown
// manager, without requiring a process restart. bootstrap is the
// config-file snapshot used if the KV store has nothing saved yet.
func handleRefreshSignal(ctx context.Context, persistent *cache.PersistentStore, bootstrap swtypes.MonitorConfig, filterEngine *filter.Engine, cdMgr *cooldown.Manager) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)
	defer signal.Stop(sigCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigCh:
			newCfg, err := configs.RefreshMonitorConfig(ctx, persistent, bootstrap)
			if err != nil {
				log.Error("main: SIGHUP refresh failed, keeping current thresholds", "err", err)
				continue
			}
			filterEngine.Refresh(newCfg)
			cdMgr.Refresh(
				time.Duration(newCfg.CooldownSeconds)*time.Second,
				time.Duration(newCfg.JitterSeconds)*time.Second,
			)
			log.Info("main: monitor config reloaded on SIGHUP")
		}
	}
}

// healthSummaryLoop logs a periodic count of delivered alerts, a cheap
// liveness signal that the pipeline is actually producing output.
func healthSummaryLoop(ctx context.Context, ledger *db.AlertRepository) {
	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			since := time.Now().Add(-15 * time.Minute)
			alerts, err := ledger.AlertsSince(ctx, since)
			if err != nil {
				log.Warn("main: health summary query failed", "err", err)
				continue
			}
			var total float64
			for _, a := range alerts {
				total += a.USDValue
			}
			log.Info("main: health summary", "alerts_15m", len(alerts), "usd_total", util.RoundUSD(total))
		}
	}
}

func defaultQuoteSet() metadata.QuoteSet {
	return metadata.QuoteSet{
		common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"): true, // WBNB
		common.HexToAddress("0x55d398326f99059fF775485246999027B3197955"): true, // USDT
		common.HexToAddress("0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d"): true, // USDC
	}
}

func stablecoinSet() map[common.Address]bool {
	return map[common.Address]bool{
		common.HexToAddress("0x55d398326f99059fF775485246999027B3197955"): true, // USDT
		common.HexToAddress("0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d"): true, // USDC
	}
}

type noopCounter struct{}

func (noopCounter) Inc() {}
