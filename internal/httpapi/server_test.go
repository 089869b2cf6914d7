package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/optionsdesk/trading-engine/internal/broker"
	"github.com/optionsdesk/trading-engine/internal/config"
	"github.com/optionsdesk/trading-engine/internal/gate"
	"github.com/optionsdesk/trading-engine/internal/gateclient"
	"github.com/optionsdesk/trading-engine/internal/ledger"
	"github.com/optionsdesk/trading-engine/internal/notify"
	"github.com/optionsdesk/trading-engine/internal/proposal"
)

var testSecret = []byte("shh")

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := ledger.NewFileStore(t.TempDir())
	require.NoError(t, err)
	cfg := config.Constitution{
		AllowedSymbols: []string{"SPY"}, AllowedStrategies: []string{"CREDIT_SPREAD"},
		MaxOpenPositions: 8, MaxConcentrationPerSymbol: 2, MaxDailyLossPercent: 0.02,
		MaxDTE: 45, MaxCorrelatedPositions: 2, MaxTotalPositions: 12, StaleProposalMs: 5000, MaxVIXForOpen: 28,
	}
	g, err := gate.New(cfg, testSecret, broker.NewMockClient(decimal.NewFromInt(50000)), store, notify.LoggingSink{}, nil)
	require.NoError(t, err)
	return New(g, nil)
}

func signedBody(t *testing.T, p proposal.Proposal) []byte {
	t.Helper()
	canonical, err := gateclient.CanonicalJSON(p.ForSigning())
	require.NoError(t, err)
	p.Signature = gateclient.Sign(canonical, testSecret)
	b, err := json.Marshal(p)
	require.NoError(t, err)
	return b
}

func TestHandleProposalApprovesOverHTTP(t *testing.T) {
	s := newTestServer(t)
	exp := time.Now().UTC().AddDate(0, 0, 20).Format("2006-01-02")
	p := proposal.Proposal{
		ID: "h-1", TimestampMs: time.Now().UTC().UnixMilli(), Symbol: "SPY", Strategy: "CREDIT_SPREAD",
		Side: proposal.Open, Quantity: 1, Price: decimal.NewFromFloat(1.1),
		Legs: []proposal.Leg{
			{OptionSymbol: "SPY260101P00400000", Expiration: exp, Quantity: 1, Side: proposal.Sell},
			{OptionSymbol: "SPY260101P00395000", Expiration: exp, Quantity: 1, Side: proposal.Buy},
		},
		Context: map[string]any{"vix": 18.0, "flow_state": "RISK_ON"},
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/proposal", bytes.NewReader(signedBody(t, p)))
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, "APPROVED", out["status"])
}

func TestHandleProposalBadJSONReturnsBadRequest(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/proposal", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminLockThenProposalRejected(t *testing.T) {
	s := newTestServer(t)

	lockReq := httptest.NewRequest(http.MethodPost, "/v1/admin/lock", bytes.NewReader([]byte(`{"reason":"test"}`)))
	lockRec := httptest.NewRecorder()
	s.mux.ServeHTTP(lockRec, lockReq)
	require.Equal(t, http.StatusOK, lockRec.Code)

	exp := time.Now().UTC().AddDate(0, 0, 20).Format("2006-01-02")
	p := proposal.Proposal{
		ID: "h-2", TimestampMs: time.Now().UTC().UnixMilli(), Symbol: "SPY", Strategy: "CREDIT_SPREAD",
		Side: proposal.Open, Quantity: 1, Price: decimal.NewFromFloat(1.1),
		Legs: []proposal.Leg{{OptionSymbol: "SPY260101P00400000", Expiration: exp, Quantity: 1, Side: proposal.Sell}},
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/proposal", bytes.NewReader(signedBody(t, p)))
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStatusReflectsLockState(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, "NORMAL", out["status"])
}
