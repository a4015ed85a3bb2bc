package configs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"swapwatch/pkg/cache"
	swtypes "swapwatch/pkg/types"
)

// Config is the entire bootstrap configuration loaded from config.yml: RPC
// endpoints, topic groups, external API URLs, and the initial monitor
// thresholds. Thresholds are a bootstrap default only — the live source of
// truth is the persistent KV store, refreshed into a frozen MonitorConfig
// snapshot on SIGHUP.
type Config struct {
	RPC              string               `yaml:"rpc"`
	WSEndpoint       string               `yaml:"ws_endpoint"`
	MySQLDSN         string               `yaml:"mysql_dsn"`
	RedisAddr        string               `yaml:"redis_addr"`
	NotifierURL      string               `yaml:"notifier_url"`
	StatAPIURLTmpl   string               `yaml:"stat_api_url_template"`
	LaunchpadAPITmpl string               `yaml:"launchpad_api_url_template"`
	SpotPriceURL     string               `yaml:"spot_price_url"`
	MetricsAddr      string               `yaml:"metrics_addr"`
	Workers          int                  `yaml:"workers"`
	TopicGroups      []TopicGroupYAMLData `yaml:"topic_groups"`
	Monitor          MonitorYAMLData      `yaml:"monitor"`
}

// TopicGroupYAMLData is one eth_subscribe("logs", ...) filter.
type TopicGroupYAMLData struct {
	Name      string     `yaml:"name"`
	Addresses []string   `yaml:"addresses"`
	Topics    [][]string `yaml:"topics"`
}

// MonitorYAMLData is the bootstrap-default shape of swtypes.MonitorConfig.
type MonitorYAMLData struct {
	MinUSDInternal    float64        `yaml:"min_usd_internal"`
	MinUSDExternal    float64        `yaml:"min_usd_external"`
	CumulativeMinUSD  float64        `yaml:"cumulative_min_usd"`
	CumulativeWindow  int            `yaml:"cumulative_window_sec"`
	CooldownSeconds   int            `yaml:"cooldown_seconds"`
	JitterSeconds     int            `yaml:"jitter_seconds"`
	Layer2Trigger     string         `yaml:"layer2_trigger"`
	Layer2Rules       []RuleYAMLData `yaml:"layer2_rules"`
	WBNBFallbackPrice float64        `yaml:"wbnb_fallback_price"`
	WBNBFallbackAllow bool           `yaml:"wbnb_fallback_allow"`
}

// RuleYAMLData is one Layer-2 rule template entry.
type RuleYAMLData struct {
	Kind      string  `yaml:"kind"`
	Window    string  `yaml:"window"`
	Threshold float64 `yaml:"threshold"`
}

// LoadConfig reads and parses config.yml: os.ReadFile + yaml.Unmarshal,
// with %w-wrapped errors.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("configs: read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("configs: parse config yaml: %w", err)
	}
	return &config, nil
}

// LoadSecrets loads RPC keys and the notifier auth token from a .env file.
func LoadSecrets(path string) error {
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("configs: load secrets from %s: %w", path, err)
	}
	return nil
}

// ToMonitorConfig converts the YAML bootstrap defaults into a frozen
// MonitorConfig snapshot.
func (c *Config) ToMonitorConfig() (swtypes.MonitorConfig, error) {
	rules := make([]swtypes.Rule, 0, len(c.Monitor.Layer2Rules))
	for _, r := range c.Monitor.Layer2Rules {
		rules = append(rules, swtypes.Rule{
			Kind:      swtypes.RuleKind(r.Kind),
			Window:    swtypes.Window(r.Window),
			Threshold: r.Threshold,
		})
	}

	trigger := swtypes.TriggerAny
	if c.Monitor.Layer2Trigger == string(swtypes.TriggerAll) {
		trigger = swtypes.TriggerAll
	}

	return swtypes.MonitorConfig{
		MinUSDInternal:    c.Monitor.MinUSDInternal,
		MinUSDExternal:    c.Monitor.MinUSDExternal,
		CumulativeMinUSD:  c.Monitor.CumulativeMinUSD,
		CumulativeWindow:  time.Duration(c.Monitor.CumulativeWindow) * time.Second,
		CooldownSeconds:   c.Monitor.CooldownSeconds,
		JitterSeconds:     c.Monitor.JitterSeconds,
		DedupTTL:          10 * time.Minute,
		Layer2Rules:       rules,
		Layer2Trigger:     trigger,
		FallbackEnabled:   true,
		WBNBFallbackPrice: c.Monitor.WBNBFallbackPrice,
		WBNBFallbackAllow: c.Monitor.WBNBFallbackAllow,
	}, nil
}

// RefreshMonitorConfig loads the live thresholds snapshot from the
// persistent KV store, falling back to the bootstrap YAML default if Redis
// has never been written to (first boot). Called at startup and again on
// every SIGHUP.
func RefreshMonitorConfig(ctx context.Context, store *cache.PersistentStore, bootstrap swtypes.MonitorConfig) (swtypes.MonitorConfig, error) {
	raw, ok, err := store.LoadThresholds(ctx)
	if err != nil {
		return swtypes.MonitorConfig{}, fmt.Errorf("configs: load thresholds: %w", err)
	}
	if !ok {
		if err := PersistMonitorConfig(ctx, store, bootstrap); err != nil {
			return swtypes.MonitorConfig{}, fmt.Errorf("configs: seed thresholds: %w", err)
		}
		return bootstrap, nil
	}

	var cfg swtypes.MonitorConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return swtypes.MonitorConfig{}, fmt.Errorf("configs: unmarshal thresholds: %w", err)
	}
	return cfg, nil
}

// PersistMonitorConfig writes a MonitorConfig snapshot back to the KV
// store, used to seed it on first boot or persist an operator-edited
// snapshot.
func PersistMonitorConfig(ctx context.Context, store *cache.PersistentStore, cfg swtypes.MonitorConfig) error {
	b, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("configs: marshal monitor config: %w", err)
	}
	return store.SaveThresholds(ctx, string(b))
}
