package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/optionsdesk/trading-engine/internal/broker"
	"github.com/optionsdesk/trading-engine/internal/candles"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	store := candles.NewStore([]string{"SPY"})
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	store.OnTrade("SPY", decimal.NewFromInt(410), 100, now)
	store.SetWarmedUp()
	for i := 0; i < 9; i++ {
		store.SeedIV("SPY", decimal.NewFromFloat(0.40+float64(i)*0.01), 252)
	}
	store.SeedIV("SPY", decimal.NewFromFloat(0.10), 252) // lowest reading -> low IV rank

	return &Engine{
		Store:    store,
		Broker:   broker.NewMockClient(decimal.NewFromInt(50000)),
		Throttle: NewThrottle(60*time.Second, 300*time.Second),
		Enabled: map[string]bool{
			"ORB": true, "RANGE_FARMER": true, "SCALPER_0DTE": true,
			"TREND_ENGINE": true, "IRON_BUTTERFLY": true,
			"RATIO_HEDGE": true, "WEEKEND_WARRIOR": true,
		},
		OpeningRanges: map[string]OpeningRange{},
		VIX: func() candles.Optional[decimal.Decimal] {
			return candles.Optional[decimal.Decimal]{Value: decimal.NewFromInt(20), Present: true}
		},
		ADXSPYProvider: func() candles.Optional[decimal.Decimal] {
			return candles.Optional[decimal.Decimal]{Value: decimal.NewFromInt(10), Present: true}
		},
		Restricted: func(time.Time) bool { return false },
		Equity:     func() decimal.Decimal { return decimal.NewFromInt(50000) },
	}
}

func TestEvaluateProducesRatioHedgeProposal(t *testing.T) {
	e := newTestEngine(t)
	// 14:30 UTC is 10:30 ET, LowVolChop regime. ORB's window is open but
	// no opening range is set, so only the half-hour RatioHedge check
	// is in play; every other windowed gate is outside its window.
	now := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)

	p, err := e.Evaluate(context.Background(), "SPY", now)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Equal(t, "RATIO_SPREAD", p.Strategy)
	require.Equal(t, "SPY", p.Symbol)
	require.True(t, p.Quantity > 0)
	require.Len(t, p.Legs, 2)
	require.Equal(t, p.Legs[0].Quantity, p.Legs[1].Quantity*2)
}

func TestEvaluateReturnsNilBeforeWarmup(t *testing.T) {
	store := candles.NewStore([]string{"SPY"})
	e := &Engine{
		Store:         store,
		Broker:        broker.NewMockClient(decimal.NewFromInt(50000)),
		Throttle:      NewThrottle(time.Minute, 5*time.Minute),
		Enabled:       map[string]bool{},
		OpeningRanges: map[string]OpeningRange{},
		VIX:           func() candles.Optional[decimal.Decimal] { return candles.Optional[decimal.Decimal]{} },
		ADXSPYProvider: func() candles.Optional[decimal.Decimal] {
			return candles.Optional[decimal.Decimal]{}
		},
		Restricted: func(time.Time) bool { return false },
		Equity:     func() decimal.Decimal { return decimal.Zero },
	}
	p, err := e.Evaluate(context.Background(), "SPY", time.Now().UTC())
	require.NoError(t, err)
	require.Nil(t, p)
}

func TestThrottleBlocksSecondImmediateProposal(t *testing.T) {
	e := newTestEngine(t)
	now := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)

	p1, err := e.Evaluate(context.Background(), "SPY", now)
	require.NoError(t, err)
	require.NotNil(t, p1)

	p2, err := e.Evaluate(context.Background(), "SPY", now.Add(time.Second))
	require.NoError(t, err)
	require.Nil(t, p2)
}
