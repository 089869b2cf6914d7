package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Constitution is the Gate's immutable risk-rule and universe
// configuration (spec §3, §6). It is loaded once at startup and never
// mutated at runtime; admin endpoints that appear to "change" policy
// (calendar update) replace a specific field wholesale under the
// actor's lock rather than editing this struct in place.
type Constitution struct {
	AllowedSymbols            []string           `yaml:"allowed_symbols"`
	AllowedStrategies         []string           `yaml:"allowed_strategies"`
	MaxOpenPositions          int                `yaml:"max_open_positions"`
	MaxConcentrationPerSymbol int                `yaml:"max_concentration_per_symbol"`
	MaxDailyLossPercent       float64            `yaml:"max_daily_loss_percent"`
	MinDTE                    int                `yaml:"min_dte"`
	MaxDTE                    int                `yaml:"max_dte"`
	CorrelationGroups         map[string]string  `yaml:"correlation_groups"` // symbol -> group name
	MaxCorrelatedPositions    int                `yaml:"max_correlated_positions"`
	MaxTotalPositions         int                `yaml:"max_total_positions"`
	StaleProposalMs           int64              `yaml:"stale_proposal_ms"`
	ForceEodCloseET           string             `yaml:"force_eod_close_et"` // "HH:MM" or empty
	MaxVIXForOpen             float64            `yaml:"max_vix_for_open"`

	SharedSecretEnv string `yaml:"shared_secret_env"`
	ListenAddr      string `yaml:"listen_addr"`
	LedgerPath      string `yaml:"ledger_path"`
	LedgerDSN       string `yaml:"ledger_dsn"` // when set, use the Postgres-backed ledger.Store
	StateDir        string `yaml:"state_dir"`
	BrokerBaseURL      string `yaml:"broker_base_url"`
	BrokerAPIKeyEnv    string `yaml:"broker_api_key_env"`
	BrokerAccountID    string `yaml:"broker_account_id"`
	BrokerRPM          int    `yaml:"broker_requests_per_minute"`
	ReconcileTimeoutMs int    `yaml:"reconcile_timeout_ms"`
}

// GroupOf returns the correlation group for symbol, or "" if it has none.
func (c Constitution) GroupOf(symbol string) string {
	return c.CorrelationGroups[symbol]
}

// LoadConstitution reads and defaults a Constitution from path.
func LoadConstitution(path string) (Constitution, error) {
	var c Constitution
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

func (c *Constitution) applyDefaults() {
	if len(c.AllowedSymbols) == 0 {
		c.AllowedSymbols = append([]string{}, Universe...)
	}
	if len(c.AllowedStrategies) == 0 {
		c.AllowedStrategies = []string{"CREDIT_SPREAD", "IRON_CONDOR", "IRON_BUTTERFLY", "RATIO_SPREAD", "CALENDAR_SPREAD"}
	}
	if c.MaxOpenPositions == 0 {
		c.MaxOpenPositions = 8
	}
	if c.MaxConcentrationPerSymbol == 0 {
		c.MaxConcentrationPerSymbol = 2
	}
	if c.MaxDailyLossPercent == 0 {
		c.MaxDailyLossPercent = 0.02
	}
	if c.MinDTE == 0 {
		c.MinDTE = 0
	}
	if c.MaxDTE == 0 {
		c.MaxDTE = 45
	}
	if c.MaxCorrelatedPositions == 0 {
		c.MaxCorrelatedPositions = 2
	}
	if c.MaxTotalPositions == 0 {
		c.MaxTotalPositions = 12
	}
	if c.StaleProposalMs == 0 {
		c.StaleProposalMs = 5000
	}
	if c.MaxVIXForOpen == 0 {
		c.MaxVIXForOpen = 28
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":8090"
	}
	if c.LedgerPath == "" {
		c.LedgerPath = "data/ledger"
	}
	if c.StateDir == "" {
		c.StateDir = "data/gate-state"
	}
	if c.ReconcileTimeoutMs == 0 {
		c.ReconcileTimeoutMs = 5000
	}
	if c.SharedSecretEnv == "" {
		c.SharedSecretEnv = "GATE_SHARED_SECRET"
	}
	if c.BrokerAPIKeyEnv == "" {
		c.BrokerAPIKeyEnv = "BROKER_API_KEY"
	}
}
