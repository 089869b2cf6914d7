// Package config loads the Brain's and the Gate's YAML configuration.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Universe is the fixed set of index ETFs this engine trades.
var Universe = []string{"SPY", "QQQ", "IWM", "DIA"}

// SessionWindow is the Brain's streaming session window, expressed in
// America/New_York wall-clock time.
type SessionWindow struct {
	StartET string `yaml:"start_et"` // "09:25"
	EndET   string `yaml:"end_et"`   // "16:05"
}

// PollersConfig controls the three periodic pollers (4.C).
type PollersConfig struct {
	VIXIntervalSeconds    int `yaml:"vix_interval_seconds"`
	VIXStaleAfterSeconds  int `yaml:"vix_stale_after_seconds"`
	IVIntervalSeconds     int `yaml:"iv_interval_seconds"`
	IVHistoryLength       int `yaml:"iv_history_length"`
	StopCheckGranularitySeconds int `yaml:"stop_check_granularity_seconds"`
}

// StreamConfig controls the Stream Ingestor's reconnect behavior (4.D).
type StreamConfig struct {
	BaseURL              string `yaml:"base_url"`
	SessionPath          string `yaml:"session_path"`
	StreamPath           string `yaml:"stream_path"`
	InitialBackoffMs     int    `yaml:"initial_backoff_ms"`
	MaxBackoffMs         int    `yaml:"max_backoff_ms"`
	APIKeyEnv            string `yaml:"api_key_env"`
}

// GateClientConfig controls how the Brain talks to the Gatekeeper (4.G).
type GateClientConfig struct {
	BaseURL             string `yaml:"base_url"`
	SharedSecretEnv     string `yaml:"shared_secret_env"`
	ProposalTimeoutMs   int    `yaml:"proposal_timeout_ms"`
	HeartbeatIntervalMs int    `yaml:"heartbeat_interval_ms"`
}

// PositionManagerConfig controls the 5s position management loop (4.F).
type PositionManagerConfig struct {
	TickIntervalMs        int     `yaml:"tick_interval_ms"`
	QuoteTimeoutMs        int     `yaml:"quote_timeout_ms"`
	ChaseDriftCents       float64 `yaml:"chase_drift_cents"`
	ChaseAggressionCents  float64 `yaml:"chase_aggression_cents"`
	ChaseTimeoutSeconds   int     `yaml:"chase_timeout_seconds"`
	ChaseCooldownSeconds  int     `yaml:"chase_cooldown_seconds"`
	ReconcileIntervalMin  int     `yaml:"reconcile_interval_minutes"`
	ForceCloseET          string  `yaml:"force_close_et"`
	PositionsFilePath     string  `yaml:"positions_file_path"`
}

// StrategyThrottleConfig controls the per-symbol throttle/replay guards (4.E).
type StrategyThrottleConfig struct {
	ProposalThrottleSeconds int `yaml:"proposal_throttle_seconds"`
	ReplayGuardSeconds      int `yaml:"replay_guard_seconds"`
}

// BrainConfig is the Brain process's full configuration root.
type BrainConfig struct {
	Symbols          []string               `yaml:"symbols"`
	Session          SessionWindow          `yaml:"session"`
	Pollers          PollersConfig          `yaml:"pollers"`
	Stream           StreamConfig           `yaml:"stream"`
	GateClient       GateClientConfig       `yaml:"gate_client"`
	PositionManager  PositionManagerConfig  `yaml:"position_manager"`
	Throttle         StrategyThrottleConfig `yaml:"throttle"`
	EnabledStrategies []string              `yaml:"enabled_strategies"`
	QuotesAdapter    string                 `yaml:"quotes_adapter"` // "mock" | "live"; broker.NewClient treats any other value as "mock"
}

// LoadBrainConfig reads and defaults a BrainConfig from path.
func LoadBrainConfig(path string) (BrainConfig, error) {
	var c BrainConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}
	c.applyDefaults()
	return c, nil
}

func (c *BrainConfig) applyDefaults() {
	if len(c.Symbols) == 0 {
		c.Symbols = append([]string{}, Universe...)
	}
	if c.Session.StartET == "" {
		c.Session.StartET = "09:25"
	}
	if c.Session.EndET == "" {
		c.Session.EndET = "16:05"
	}
	if c.Pollers.VIXIntervalSeconds == 0 {
		c.Pollers.VIXIntervalSeconds = 60
	}
	if c.Pollers.VIXStaleAfterSeconds == 0 {
		c.Pollers.VIXStaleAfterSeconds = 180
	}
	if c.Pollers.IVIntervalSeconds == 0 {
		c.Pollers.IVIntervalSeconds = 15 * 60
	}
	if c.Pollers.IVHistoryLength == 0 {
		c.Pollers.IVHistoryLength = 252
	}
	if c.Pollers.StopCheckGranularitySeconds == 0 {
		c.Pollers.StopCheckGranularitySeconds = 10
	}
	if c.Stream.InitialBackoffMs == 0 {
		c.Stream.InitialBackoffMs = 1000
	}
	if c.Stream.MaxBackoffMs == 0 {
		c.Stream.MaxBackoffMs = 30000
	}
	if c.Stream.SessionPath == "" {
		c.Stream.SessionPath = "/v1/markets/sessions"
	}
	if c.Stream.StreamPath == "" {
		c.Stream.StreamPath = "/v1/markets/stream"
	}
	if c.GateClient.ProposalTimeoutMs == 0 {
		c.GateClient.ProposalTimeoutMs = 2000
	}
	if c.GateClient.HeartbeatIntervalMs == 0 {
		c.GateClient.HeartbeatIntervalMs = 60000
	}
	if c.PositionManager.TickIntervalMs == 0 {
		c.PositionManager.TickIntervalMs = 5000
	}
	if c.PositionManager.QuoteTimeoutMs == 0 {
		c.PositionManager.QuoteTimeoutMs = 5000
	}
	if c.PositionManager.ChaseDriftCents == 0 {
		c.PositionManager.ChaseDriftCents = 10
	}
	if c.PositionManager.ChaseAggressionCents == 0 {
		c.PositionManager.ChaseAggressionCents = 5
	}
	if c.PositionManager.ChaseTimeoutSeconds == 0 {
		c.PositionManager.ChaseTimeoutSeconds = 120
	}
	if c.PositionManager.ChaseCooldownSeconds == 0 {
		c.PositionManager.ChaseCooldownSeconds = 5
	}
	if c.PositionManager.ReconcileIntervalMin == 0 {
		c.PositionManager.ReconcileIntervalMin = 10
	}
	if c.PositionManager.ForceCloseET == "" {
		c.PositionManager.ForceCloseET = "15:55"
	}
	if c.PositionManager.PositionsFilePath == "" {
		c.PositionManager.PositionsFilePath = "data/positions.json"
	}
	if c.Throttle.ProposalThrottleSeconds == 0 {
		c.Throttle.ProposalThrottleSeconds = 60
	}
	if c.Throttle.ReplayGuardSeconds == 0 {
		c.Throttle.ReplayGuardSeconds = 300
	}
	if len(c.EnabledStrategies) == 0 {
		c.EnabledStrategies = []string{"ORB", "RANGE_FARMER", "SCALPER_0DTE", "TREND_ENGINE", "IRON_BUTTERFLY", "RATIO_HEDGE", "WEEKEND_WARRIOR"}
	}
	if c.QuotesAdapter == "" {
		c.QuotesAdapter = "mock"
	}
}

// ETLocation is the shared America/New_York zone lookup used by both
// processes for session windows and forced end-of-day closes. Looked
// up on every call, falling back to UTC if the zone database is
// unavailable; DST transitions are handled by the tzdata database rather
// than a fixed offset (spec §9 Open Question).
func ETLocation() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.UTC
	}
	return loc
}
