package gate

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/optionsdesk/trading-engine/internal/broker"
	"github.com/optionsdesk/trading-engine/internal/config"
	"github.com/optionsdesk/trading-engine/internal/gateclient"
	"github.com/optionsdesk/trading-engine/internal/ledger"
	"github.com/optionsdesk/trading-engine/internal/notify"
	"github.com/optionsdesk/trading-engine/internal/proposal"
)

var testSecret = []byte("test-secret")

func testConstitution() config.Constitution {
	return config.Constitution{
		AllowedSymbols:            []string{"SPY", "QQQ"},
		AllowedStrategies:         []string{"CREDIT_SPREAD", "RATIO_SPREAD"},
		MaxOpenPositions:          8,
		MaxConcentrationPerSymbol: 2,
		MaxDailyLossPercent:       0.02,
		MinDTE:                    0,
		MaxDTE:                    45,
		MaxCorrelatedPositions:    2,
		MaxTotalPositions:         12,
		StaleProposalMs:           5000,
		MaxVIXForOpen:             28,
	}
}

func newTestGate(t *testing.T) (*Gate, ledger.Store) {
	t.Helper()
	store, err := ledger.NewFileStore(t.TempDir())
	require.NoError(t, err)
	mock := broker.NewMockClient(decimal.NewFromInt(50000))
	g, err := New(testConstitution(), testSecret, mock, store, notify.LoggingSink{}, nil)
	require.NoError(t, err)
	return g, store
}

func signedProposal(t *testing.T, p proposal.Proposal) proposal.Proposal {
	t.Helper()
	canonical, err := gateclient.CanonicalJSON(p.ForSigning())
	require.NoError(t, err)
	p.Signature = gateclient.Sign(canonical, testSecret)
	return p
}

func testLegs() []proposal.Leg {
	exp := time.Now().UTC().AddDate(0, 0, 30).Format("2006-01-02")
	return []proposal.Leg{
		{OptionSymbol: "SPY260101P00400000", Expiration: exp, Strike: decimal.NewFromInt(400), Type: proposal.Put, Quantity: 1, Side: proposal.Sell},
		{OptionSymbol: "SPY260101P00395000", Expiration: exp, Strike: decimal.NewFromInt(395), Type: proposal.Put, Quantity: 1, Side: proposal.Buy},
	}
}

func testProposal() proposal.Proposal {
	return proposal.Proposal{
		ID: "p-1", TimestampMs: time.Now().UTC().UnixMilli(), Symbol: "SPY", Strategy: "CREDIT_SPREAD",
		Side: proposal.Open, Quantity: 1, Price: decimal.NewFromFloat(1.25), Legs: testLegs(),
		Context: map[string]any{"vix": 18.0, "flow_state": "RISK_ON"},
	}
}

func TestHandleProposalApprovesValidOpen(t *testing.T) {
	g, _ := newTestGate(t)
	p := signedProposal(t, testProposal())

	out := g.HandleProposal(context.Background(), p)
	require.Equal(t, "APPROVED", out.Status)
	require.NotEmpty(t, out.OrderID)
}

func TestHandleProposalRejectsBadSignature(t *testing.T) {
	g, _ := newTestGate(t)
	p := testProposal()
	p.Signature = "deadbeef"

	out := g.HandleProposal(context.Background(), p)
	require.Equal(t, "REJECTED", out.Status)
	require.Contains(t, out.Reason, "signature")
}

func TestHandleProposalRejectsStaleProposal(t *testing.T) {
	g, _ := newTestGate(t)
	p := testProposal()
	p.TimestampMs = time.Now().UTC().Add(-time.Hour).UnixMilli()
	p = signedProposal(t, p)

	out := g.HandleProposal(context.Background(), p)
	require.Equal(t, "REJECTED", out.Status)
	require.Contains(t, out.Reason, "stale")
}

func TestHandleProposalRejectsUnknownSymbol(t *testing.T) {
	g, _ := newTestGate(t)
	p := testProposal()
	p.Symbol = "TSLA"
	p = signedProposal(t, p)

	out := g.HandleProposal(context.Background(), p)
	require.Equal(t, "REJECTED", out.Status)
	require.Contains(t, out.Reason, "symbol")
}

func TestHandleProposalRejectsDuplicateID(t *testing.T) {
	g, _ := newTestGate(t)
	p := signedProposal(t, testProposal())

	first := g.HandleProposal(context.Background(), p)
	require.Equal(t, "APPROVED", first.Status)

	second := g.HandleProposal(context.Background(), p)
	require.Equal(t, "REJECTED", second.Status)
	require.Contains(t, second.Reason, "duplicate")
}

func TestHandleProposalRejectsWhenSystemLocked(t *testing.T) {
	g, _ := newTestGate(t)
	require.NoError(t, g.Lock(context.Background(), "manual_test_lock"))

	p := signedProposal(t, testProposal())
	out := g.HandleProposal(context.Background(), p)
	require.Equal(t, "REJECTED", out.Status)
	require.Contains(t, out.Reason, "system_locked")
}

func TestHandleProposalAllowsCloseWhileLocked(t *testing.T) {
	g, _ := newTestGate(t)
	require.NoError(t, g.Lock(context.Background(), "manual_test_lock"))

	p := testProposal()
	p.ID = "p-close-1"
	p.Side = proposal.Close
	p = signedProposal(t, p)

	out := g.HandleProposal(context.Background(), p)
	require.Equal(t, "APPROVED", out.Status)
}

func TestHandleProposalRejectsTooHighVIX(t *testing.T) {
	g, _ := newTestGate(t)
	p := testProposal()
	p.Context = map[string]any{"vix": 40.0}
	p = signedProposal(t, p)

	out := g.HandleProposal(context.Background(), p)
	require.Equal(t, "REJECTED", out.Status)
	require.Contains(t, out.Reason, "vix")
}

func TestCorrelationGuardTripsOnMatchingBiasSameGroup(t *testing.T) {
	cfg := testConstitution()
	cfg.CorrelationGroups = map[string]string{"SPY": "US_INDICES", "QQQ": "US_INDICES"}
	cfg.MaxCorrelatedPositions = 2
	store, err := ledger.NewFileStore(t.TempDir())
	require.NoError(t, err)
	mock := broker.NewMockClient(decimal.NewFromInt(50000))
	g, err := New(cfg, testSecret, mock, store, notify.LoggingSink{}, nil)
	require.NoError(t, err)

	bullishSPY := func(id string) proposal.Proposal {
		p := testProposal()
		p.ID = id
		p.Context = map[string]any{"vix": 18.0, "flow_state": "RISK_ON", "bias": "bullish"}
		return signedProposal(t, p)
	}
	require.Equal(t, "APPROVED", g.HandleProposal(context.Background(), bullishSPY("c-1")).Status)
	require.Equal(t, "APPROVED", g.HandleProposal(context.Background(), bullishSPY("c-2")).Status)

	bullishQQQ := testProposal()
	bullishQQQ.ID = "c-3"
	bullishQQQ.Symbol = "QQQ"
	bullishQQQ.Context = map[string]any{"vix": 18.0, "flow_state": "RISK_ON", "bias": "bullish"}
	out := g.HandleProposal(context.Background(), signedProposal(t, bullishQQQ))
	require.Equal(t, "REJECTED", out.Status)
	require.Contains(t, out.Reason, "correlation_cap_reached")
	require.Contains(t, out.Reason, "US_INDICES")
}

func TestHandleProposalRejectsMissingVIX(t *testing.T) {
	g, _ := newTestGate(t)
	p := testProposal()
	p.Context = map[string]any{"flow_state": "RISK_ON"}
	p = signedProposal(t, p)

	out := g.HandleProposal(context.Background(), p)
	require.Equal(t, "REJECTED", out.Status)
	require.Contains(t, out.Reason, "vix")
}

func TestHandleProposalRejectsUnknownFlowState(t *testing.T) {
	g, _ := newTestGate(t)
	p := testProposal()
	p.Context = map[string]any{"vix": 18.0}
	p = signedProposal(t, p)

	out := g.HandleProposal(context.Background(), p)
	require.Equal(t, "REJECTED", out.Status)
	require.Contains(t, out.Reason, "flow_state")
}

func TestLiquidateCancelsPendingOrdersAndLocks(t *testing.T) {
	g, _ := newTestGate(t)
	p := signedProposal(t, testProposal())
	require.Equal(t, "APPROVED", g.HandleProposal(context.Background(), p).Status)

	results, err := g.Liquidate(context.Background(), "test_emergency")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "cancelled", results[0].Status)
	require.Equal(t, string(Locked), g.Status().Status)
}
