package broker

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/optionsdesk/trading-engine/internal/observ"
)

// Config selects and parameterises a Client implementation. Grounded
// on internal/adapters/factory.go's QuotesConfig/CreateAdapter pattern.
type Config struct {
	Adapter           string // "mock" | "live"
	BaseURL           string
	APIKeyEnv         string
	TimeoutSeconds    int
	RequestsPerMinute int
	MockEquityUSD     float64
}

// NewClient builds a Client per Config, falling back to MockClient on
// missing credentials (mirrors the teacher's fail-safe-to-mock idiom).
func NewClient(cfg Config) Client {
	adapter := strings.ToLower(strings.TrimSpace(cfg.Adapter))
	if env := os.Getenv("BROKER_ADAPTER"); env != "" {
		adapter = strings.ToLower(strings.TrimSpace(env))
	}

	equity := decimal.NewFromFloat(cfg.MockEquityUSD)
	if equity.IsZero() {
		equity = decimal.NewFromInt(100000)
	}

	if adapter != "live" {
		observ.Log("broker_adapter_created", map[string]any{"type": "mock"})
		return NewMockClient(equity)
	}

	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		observ.Log("broker_adapter_fallback", map[string]any{"requested": "live", "fallback_to": "mock", "reason": "missing api key"})
		return NewMockClient(equity)
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	observ.Log("broker_adapter_created", map[string]any{"type": "live", "base_url": cfg.BaseURL, "requests_per_minute": cfg.RequestsPerMinute})
	return NewLiveClient(cfg.BaseURL, apiKey, timeout, cfg.RequestsPerMinute)
}

// HealthMonitor wraps a primary Client with a fallback, switching over
// after consecutive failures (grounded on
// internal/adapters/factory.go's HealthMonitor).
type HealthMonitor struct {
	primary, fallback    Client
	maxConsecutiveErrors int

	consecutiveErrors int
	usingFallback     bool
}

// NewHealthMonitor wraps primary with fallback, switching after
// maxConsecutiveErrors failures.
func NewHealthMonitor(primary, fallback Client, maxConsecutiveErrors int) *HealthMonitor {
	if maxConsecutiveErrors <= 0 {
		maxConsecutiveErrors = 3
	}
	return &HealthMonitor{primary: primary, fallback: fallback, maxConsecutiveErrors: maxConsecutiveErrors}
}

func (h *HealthMonitor) active() Client {
	if h.usingFallback {
		return h.fallback
	}
	return h.primary
}

func (h *HealthMonitor) recordResult(err error) {
	if err == nil {
		h.consecutiveErrors = 0
		return
	}
	h.consecutiveErrors++
	if h.consecutiveErrors >= h.maxConsecutiveErrors && !h.usingFallback {
		h.usingFallback = true
		observ.Warn("broker_health_monitor_failover", map[string]any{"consecutive_errors": h.consecutiveErrors})
	}
}

func (h *HealthMonitor) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	q, err := h.active().GetQuote(ctx, symbol)
	h.recordResult(err)
	return q, err
}

func (h *HealthMonitor) GetQuotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	q, err := h.active().GetQuotes(ctx, symbols)
	h.recordResult(err)
	return q, err
}

func (h *HealthMonitor) GetExpirations(ctx context.Context, underlying string) ([]Expiration, error) {
	return h.active().GetExpirations(ctx, underlying)
}

func (h *HealthMonitor) GetOptionChain(ctx context.Context, underlying string, expiration time.Time) ([]ChainLeg, error) {
	return h.active().GetOptionChain(ctx, underlying, expiration)
}

func (h *HealthMonitor) GetPositions(ctx context.Context) ([]BrokerPosition, error) {
	p, err := h.active().GetPositions(ctx)
	h.recordResult(err)
	return p, err
}

func (h *HealthMonitor) GetBalances(ctx context.Context) (Balances, error) {
	b, err := h.active().GetBalances(ctx)
	h.recordResult(err)
	return b, err
}

func (h *HealthMonitor) SubmitMultiLegOrder(ctx context.Context, order MultiLegOrder) (string, error) {
	return h.primary.SubmitMultiLegOrder(ctx, order)
}

func (h *HealthMonitor) CancelOrder(ctx context.Context, orderID string) error {
	return h.primary.CancelOrder(ctx, orderID)
}

func (h *HealthMonitor) HealthCheck(ctx context.Context) error { return h.active().HealthCheck(ctx) }

func (h *HealthMonitor) Close() error {
	if err := h.primary.Close(); err != nil {
		return err
	}
	return h.fallback.Close()
}
