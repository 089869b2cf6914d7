package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/optionsdesk/trading-engine/internal/broker"
	"github.com/optionsdesk/trading-engine/internal/candles"
	"github.com/optionsdesk/trading-engine/internal/config"
	"github.com/optionsdesk/trading-engine/internal/observ"
	"github.com/optionsdesk/trading-engine/internal/proposal"
	"github.com/optionsdesk/trading-engine/internal/regime"
)

// VIXSource and the Engine's ADXSPYProvider field let it read poller-maintained
// state without depending on internal/pollers (avoids a cycle).
type VIXSource func() candles.Optional[decimal.Decimal]
type RestrictedDateSource func(time.Time) bool
type EquitySource func() decimal.Decimal

// Engine evaluates every enabled strategy gate on each trade event and
// turns a fired signal into a ready-to-sign Proposal (spec 4.E).
// Grounded on internal/decision/engine.go's single Evaluate entrypoint.
type Engine struct {
	Store    *candles.Store
	Broker   broker.Client
	Throttle *Throttle
	Enabled  map[string]bool

	OpeningRanges map[string]OpeningRange

	VIX            VIXSource
	Restricted     RestrictedDateSource
	Equity         EquitySource
	ADXSPYProvider func() candles.Optional[decimal.Decimal]
}

// Snapshot assembles a MarketView for symbol from the Indicator Store.
func (e *Engine) Snapshot(symbol string) MarketView {
	return MarketView{
		Symbol:        symbol,
		Price:         e.Store.Price(symbol),
		SMA200:        e.Store.SMA(symbol, 200),
		RSI14:         e.Store.RSI(symbol, 14),
		RSI2:          e.Store.RSI(symbol, 2),
		ADX:           e.Store.ADX(symbol, 14),
		VWAP:          e.Store.VWAP(symbol),
		VolumeProfile: e.Store.VolumeProfile(symbol),
		IVRank:        e.Store.IVRank(symbol),
		Flow:          e.classifyFlow(symbol),
	}
}

func (e *Engine) classifyFlow(symbol string) FlowState {
	price := e.Store.Price(symbol)
	vwap := e.Store.VWAP(symbol)
	if !price.Present || !vwap.Present {
		return FlowUnknown
	}
	diff := price.Value.Sub(vwap.Value)
	threshold := decimal.NewFromFloat(0.05)
	switch {
	case diff.GreaterThan(threshold):
		return RiskOn
	case diff.LessThan(threshold.Neg()):
		return RiskOff
	default:
		return FlowNeutral
	}
}

// Evaluate runs every enabled gate for symbol at now and, if one
// fires and clears the throttle, returns a signed-ready Proposal. A
// nil, nil result means "no signal this tick" — not an error.
func (e *Engine) Evaluate(ctx context.Context, symbol string, now time.Time) (*proposal.Proposal, error) {
	if !e.Store.WarmedUp() {
		return nil, nil
	}

	et := now.In(config.ETLocation())
	view := e.Snapshot(symbol)
	vix := e.VIX()
	adxSPY := e.ADXSPYProvider()

	reg := regime.Classify(regime.Inputs{
		VIX: vix.Value, VIXPresent: vix.Present,
		ADXSPY: adxSPY.Value, ADXPresent: adxSPY.Present,
		IsRestricted: e.Restricted(et),
	})
	if reg == regime.InsufficientData {
		return nil, nil
	}

	evalCtx := EvalContext{Now: et, View: view, Regime: reg, VIX: vix}

	for _, gate := range AllGates(e.OpeningRanges) {
		if !e.Enabled[gate.Name()] {
			continue
		}
		sig, fired := gate.Evaluate(evalCtx)
		if !fired {
			continue
		}
		if !e.Throttle.Allow(symbol, sig, now) {
			continue
		}
		p, err := e.buildProposal(ctx, symbol, sig, view, vix)
		if err != nil {
			observ.Warn("strategy_build_proposal_failed", map[string]any{"symbol": symbol, "strategy": sig.Strategy, "error": err.Error()})
			return nil, nil
		}
		return p, nil
	}
	return nil, nil
}

func (e *Engine) buildProposal(ctx context.Context, symbol string, sig Signal, view MarketView, vix candles.Optional[decimal.Decimal]) (*proposal.Proposal, error) {
	if !view.Price.Present {
		return nil, fmt.Errorf("strategy: no price for %s", symbol)
	}

	expirations, err := e.Broker.GetExpirations(ctx, symbol)
	if err != nil {
		return nil, err
	}
	dteTarget := sig.DTETarget
	exp, ok := SelectExpiration(expirations, dteTarget, sig.ZeroDTEOrNearest)
	if !ok {
		return nil, fmt.Errorf("strategy: no suitable expiration for %s/%s", symbol, sig.Strategy)
	}

	chain, err := e.Broker.GetOptionChain(ctx, symbol, exp.Date)
	if err != nil {
		return nil, err
	}

	// First pass at qty=1 to discover the spread width the selection
	// logic actually picked; legs are rebuilt below at final qty so
	// entry pricing reflects the scaled trade (spec 9: quantity
	// scaling must precede price computation).
	legs1, _, width, err := e.buildLegsForStructure(symbol, chain, exp.Date, sig, view, 1)
	if err != nil {
		return nil, err
	}
	if len(legs1) == 0 {
		return nil, fmt.Errorf("strategy: empty leg set for %s/%s", symbol, sig.Strategy)
	}

	qty := SizePosition(e.Equity(), width)
	if qty <= 0 {
		return nil, fmt.Errorf("strategy: sizing produced qty<=0 for %s/%s", symbol, sig.Strategy)
	}

	legs, price, _, err := e.buildLegsForStructure(symbol, chain, exp.Date, sig, view, qty)
	if err != nil {
		return nil, err
	}

	flow := string(view.Flow)
	ctxMap := map[string]any{"flow_state": flow, "bias": string(sig.Bias), "strategy_name": sig.Strategy}
	if vix.Present {
		ctxMap["vix"] = vix.Value
	}

	return &proposal.Proposal{
		TimestampMs: time.Now().UTC().UnixMilli(),
		Symbol:      symbol,
		Strategy:    sig.Structure,
		Side:        proposal.Open,
		Quantity:    qty,
		Price:       price,
		Legs:        legs,
		Context:     ctxMap,
	}, nil
}

func (e *Engine) buildLegsForStructure(symbol string, chain []broker.ChainLeg, exp time.Time, sig Signal, view MarketView, qty int64) ([]proposal.Leg, decimal.Decimal, decimal.Decimal, error) {
	price := view.Price.Value
	switch sig.Structure {
	case "CREDIT_SPREAD":
		legs, limit, err := BuildCreditSpread(symbol, chain, exp, sig.Bias, price, qty)
		if err != nil || len(legs) < 2 {
			return legs, limit, decimal.Zero, err
		}
		width := legs[0].Strike.Sub(legs[1].Strike).Abs()
		return legs, limit, width, nil
	case "RATIO_SPREAD":
		legs, limit, err := BuildRatioSpread(symbol, chain, exp, sig.Bias, price, qty)
		if err != nil || len(legs) < 2 {
			return legs, limit, decimal.Zero, err
		}
		width := legs[0].Strike.Sub(legs[1].Strike).Abs()
		return legs, limit, width, nil
	case "IRON_CONDOR", "IRON_BUTTERFLY":
		if !view.VolumeProfile.Present {
			return nil, decimal.Zero, decimal.Zero, fmt.Errorf("strategy: no volume profile for %s", symbol)
		}
		offset := decimal.Zero
		if sig.Structure == "IRON_CONDOR" {
			offset = decimal.NewFromFloat(3)
		}
		legs, limit, err := BuildIronCondorOrButterfly(symbol, chain, exp, view.VolumeProfile.Value.POC, offset, qty)
		if err != nil || len(legs) < 4 {
			return legs, limit, decimal.Zero, err
		}
		width := legs[1].Strike.Sub(legs[0].Strike).Abs() // put wing width
		return legs, limit, width, nil
	default:
		return nil, decimal.Zero, decimal.Zero, fmt.Errorf("strategy: unknown structure %q", sig.Structure)
	}
}
