package positions

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/optionsdesk/trading-engine/internal/broker"
	"github.com/optionsdesk/trading-engine/internal/candles"
	"github.com/optionsdesk/trading-engine/internal/gateclient"
	"github.com/optionsdesk/trading-engine/internal/proposal"
)

// noIndicators reports every series as absent, matching the Position
// Manager's behavior when it has no live Indicator Store wired (tests
// only exercise the pnl_pct-threshold exit rules, which don't need it).
type noIndicators struct{}

func (noIndicators) Price(string) candles.Optional[decimal.Decimal]    { return candles.Optional[decimal.Decimal]{} }
func (noIndicators) SMA(string, int) candles.Optional[decimal.Decimal] { return candles.Optional[decimal.Decimal]{} }
func (noIndicators) RSI(string, int) candles.Optional[decimal.Decimal] { return candles.Optional[decimal.Decimal]{} }
func (noIndicators) ADX(string, int) candles.Optional[decimal.Decimal] { return candles.Optional[decimal.Decimal]{} }

type fakeSender struct {
	calls   []proposal.Proposal
	nextID  int
	approve bool
}

func (f *fakeSender) SendProposal(ctx context.Context, p proposal.Proposal) (gateclient.Result, error) {
	f.calls = append(f.calls, p)
	f.nextID++
	if !f.approve {
		return gateclient.Result{Status: "REJECTED"}, nil
	}
	return gateclient.Result{Status: "APPROVED", OrderID: "order-test"}, nil
}

type fixedQuoter struct {
	mid decimal.Decimal
	pos []broker.BrokerPosition
}

func (f *fixedQuoter) GetQuote(ctx context.Context, symbol string) (broker.Quote, error) {
	return broker.Quote{Symbol: symbol, Bid: f.mid, Ask: f.mid}, nil
}

func (f *fixedQuoter) GetPositions(ctx context.Context) ([]broker.BrokerPosition, error) {
	return f.pos, nil
}

func testProposal() proposal.Proposal {
	return proposal.Proposal{
		Symbol:   "SPY",
		Strategy: "CREDIT_SPREAD",
		Quantity: 2,
		Price:    decimal.NewFromFloat(1.00),
		Legs: []proposal.Leg{
			{OptionSymbol: "SPY240116P00410000", Strike: decimal.NewFromInt(410), Type: proposal.Put, Quantity: 2, Side: proposal.Sell},
			{OptionSymbol: "SPY240116P00405000", Strike: decimal.NewFromInt(405), Type: proposal.Put, Quantity: 2, Side: proposal.Buy},
		},
		Context: map[string]any{"strategy_name": "TREND_ENGINE", "bias": "bullish"},
	}
}

func TestTakeProfitTriggersClose(t *testing.T) {
	dir := t.TempDir()
	sender := &fakeSender{approve: true}
	quoter := &fixedQuoter{mid: decimal.NewFromFloat(0.30), // both legs quoted at the same mid -> cost_to_close nets to 0, full credit captured
		// broker truth shows both legs filled, so the first Tick's reconcile keeps the position
		pos: []broker.BrokerPosition{
			{OptionSymbol: "SPY240116P00410000", Quantity: -2},
			{OptionSymbol: "SPY240116P00405000", Quantity: 2},
		}}
	m, err := NewManager(quoter, noIndicators{}, sender, filepath.Join(dir, "positions.json"), ChaseParams{
		DriftCents: decimal.NewFromInt(10), AggressionCents: decimal.NewFromInt(5), TimeoutSeconds: 120, CooldownSeconds: 5,
	}, "15:55", time.UTC)
	require.NoError(t, err)

	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	p := testProposal()
	m.Open("trade-1", p, "order-1", now)

	snap := m.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, Opening, snap[0].State)

	// Manually promote to OPEN the way Reconcile would once broker
	// truth shows the legs filled.
	m.mu.Lock()
	m.positions["trade-1"].State = Open
	m.mu.Unlock()

	m.Tick(context.Background(), now.Add(time.Minute), time.Hour)

	require.Len(t, sender.calls, 1)
	require.Equal(t, proposal.Close, sender.calls[0].Side)

	snap = m.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, Closing, snap[0].State)
	require.Equal(t, "CREDIT_TAKE_PROFIT", snap[0].CloseReason)
}

func TestReconcileRemovesGhostPosition(t *testing.T) {
	dir := t.TempDir()
	sender := &fakeSender{approve: true}
	quoter := &fixedQuoter{mid: decimal.NewFromFloat(1.00), pos: nil} // broker shows nothing
	m, err := NewManager(quoter, noIndicators{}, sender, filepath.Join(dir, "positions.json"), ChaseParams{
		DriftCents: decimal.NewFromInt(10), AggressionCents: decimal.NewFromInt(5), TimeoutSeconds: 120, CooldownSeconds: 5,
	}, "15:55", time.UTC)
	require.NoError(t, err)

	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	p := testProposal()
	m.Open("trade-1", p, "order-1", now)
	m.mu.Lock()
	m.positions["trade-1"].State = Open
	m.mu.Unlock()

	m.Reconcile(context.Background(), now)

	require.Empty(t, m.Snapshot())
}

func TestReconcilePromotesOpeningToOpen(t *testing.T) {
	dir := t.TempDir()
	sender := &fakeSender{approve: true}
	p := testProposal()
	quoter := &fixedQuoter{
		mid: decimal.NewFromFloat(1.00),
		pos: []broker.BrokerPosition{
			{OptionSymbol: p.Legs[0].OptionSymbol, Quantity: -2},
			{OptionSymbol: p.Legs[1].OptionSymbol, Quantity: 2},
		},
	}
	m, err := NewManager(quoter, noIndicators{}, sender, filepath.Join(dir, "positions.json"), ChaseParams{
		DriftCents: decimal.NewFromInt(10), AggressionCents: decimal.NewFromInt(5), TimeoutSeconds: 120, CooldownSeconds: 5,
	}, "15:55", time.UTC)
	require.NoError(t, err)

	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	m.Open("trade-1", p, "order-1", now)
	m.Reconcile(context.Background(), now)

	snap := m.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, Open, snap[0].State)
}
