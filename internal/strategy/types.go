// Package strategy implements the Strategy Gates (spec 4.E): per-
// strategy windows, regime/IV/RSI guards, position sizing, leg
// construction, and pricing. Grounded on internal/decision/engine.go's
// ordered-gate evaluation and explainability (Reason) style.
package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/optionsdesk/trading-engine/internal/candles"
	"github.com/optionsdesk/trading-engine/internal/regime"
)

// Bias is the directional intent of a signal or position.
type Bias string

const (
	Bullish Bias = "bullish"
	Bearish Bias = "bearish"
	Neutral Bias = "neutral"
)

// FlowState is derived from price vs VWAP only; volume velocity is not
// used.
type FlowState string

const (
	RiskOn  FlowState = "RISK_ON"
	RiskOff FlowState = "RISK_OFF"
	FlowNeutral FlowState = "NEUTRAL"
	FlowUnknown FlowState = "UNKNOWN"
)

// MarketView is the per-symbol indicator snapshot a strategy gate
// evaluates against, assembled from internal/candles.Store.
type MarketView struct {
	Symbol         string
	Price          candles.Optional[decimal.Decimal]
	SMA200         candles.Optional[decimal.Decimal]
	RSI14          candles.Optional[decimal.Decimal]
	RSI2           candles.Optional[decimal.Decimal]
	ADX            candles.Optional[decimal.Decimal]
	VWAP           candles.Optional[decimal.Decimal]
	VolumeProfile  candles.Optional[candles.VolumeProfile]
	IVRank         candles.Optional[decimal.Decimal]
	VolumeVelocity decimal.Decimal // ratio of recent volume to its trailing average
	Flow           FlowState
}

// EvalContext bundles everything a Gate needs to decide whether to fire.
type EvalContext struct {
	Now    time.Time // in America/New_York
	View   MarketView
	Regime regime.Regime
	VIX    candles.Optional[decimal.Decimal]
}

// Signal is what a fired Gate emits: enough to drive leg construction
// and sizing, but not yet a full Proposal.
type Signal struct {
	Strategy  string
	Bias      Bias
	Structure string // CREDIT_SPREAD | IRON_CONDOR | IRON_BUTTERFLY | RATIO_SPREAD
	DTETarget int
	ZeroDTEOrNearest bool
}

// Gate is one strategy's eligibility rule (spec 4.E table).
type Gate interface {
	Name() string
	Evaluate(ctx EvalContext) (Signal, bool)
}

func inWindow(now time.Time, startHHMM, endHHMM string) bool {
	cur := now.Hour()*60 + now.Minute()
	return cur >= parseHHMM(startHHMM) && cur <= parseHHMM(endHHMM)
}

// parseHHMM parses a literal "HH:MM" gate-window boundary into minutes
// since midnight. Gate window strings are compile-time literals, so a
// parse failure collapses to 0 rather than propagating an error.
func parseHHMM(s string) int {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0
	}
	return t.Hour()*60 + t.Minute()
}
