package strategy

import (
	"github.com/shopspring/decimal"

	"github.com/optionsdesk/trading-engine/internal/regime"
)

// OpeningRange tracks a symbol's 09:30-10:00 high/low so ORB can
// detect a breakout; owned by the engine, not an individual gate.
type OpeningRange struct {
	High, Low decimal.Decimal
	Set       bool
}

// ORBGate fires on a break of the opening range with a volume surge
// (spec 4.E row 1).
type ORBGate struct {
	Ranges map[string]OpeningRange
}

func (g ORBGate) Name() string { return "ORB" }

func (g ORBGate) Evaluate(ctx EvalContext) (Signal, bool) {
	if ctx.Regime == regime.EventRisk {
		return Signal{}, false
	}
	if !inWindow(ctx.Now, "10:00", "11:30") {
		return Signal{}, false
	}
	rng, ok := g.Ranges[ctx.View.Symbol]
	if !ok || !rng.Set || !ctx.View.Price.Present {
		return Signal{}, false
	}
	if ctx.View.VolumeVelocity.LessThanOrEqual(decimal.NewFromFloat(1.5)) {
		return Signal{}, false
	}
	price := ctx.View.Price.Value
	switch {
	case price.GreaterThan(rng.High):
		return Signal{Strategy: "ORB", Bias: Bullish, Structure: "CREDIT_SPREAD", ZeroDTEOrNearest: true}, true
	case price.LessThan(rng.Low):
		return Signal{Strategy: "ORB", Bias: Bearish, Structure: "CREDIT_SPREAD", ZeroDTEOrNearest: true}, true
	default:
		return Signal{}, false
	}
}

// RangeFarmerGate fires once in the 13:00-13:05 window during chop
// with a tight ADX and price pinned near POC (spec 4.E row 2).
type RangeFarmerGate struct{}

func (RangeFarmerGate) Name() string { return "RANGE_FARMER" }

func (g RangeFarmerGate) Evaluate(ctx EvalContext) (Signal, bool) {
	if ctx.Regime != regime.LowVolChop {
		return Signal{}, false
	}
	if !inWindow(ctx.Now, "13:00", "13:05") {
		return Signal{}, false
	}
	if !ctx.View.ADX.Present || !ctx.View.Price.Present || !ctx.View.VolumeProfile.Present {
		return Signal{}, false
	}
	if ctx.View.ADX.Value.GreaterThanOrEqual(decimal.NewFromInt(20)) {
		return Signal{}, false
	}
	dist := ctx.View.Price.Value.Sub(ctx.View.VolumeProfile.Value.POC).Abs()
	if dist.GreaterThanOrEqual(decimal.NewFromFloat(2.0)) {
		return Signal{}, false
	}
	return Signal{Strategy: "RANGE_FARMER", Bias: Neutral, Structure: "IRON_CONDOR", DTETarget: 0, ZeroDTEOrNearest: true}, true
}

// ScalperGate fires on extreme RSI(2) readings in trending/expansion
// regimes (spec 4.E row 3).
type ScalperGate struct{}

func (ScalperGate) Name() string { return "SCALPER_0DTE" }

func (g ScalperGate) Evaluate(ctx EvalContext) (Signal, bool) {
	if ctx.Regime != regime.Trending && ctx.Regime != regime.HighVolExpansion {
		return Signal{}, false
	}
	if !ctx.View.RSI2.Present {
		return Signal{}, false
	}
	rsi2 := ctx.View.RSI2.Value
	switch {
	case rsi2.LessThan(decimal.NewFromInt(5)):
		return Signal{Strategy: "SCALPER_0DTE", Bias: Bullish, Structure: "CREDIT_SPREAD", ZeroDTEOrNearest: true}, true
	case rsi2.GreaterThan(decimal.NewFromInt(95)):
		return Signal{Strategy: "SCALPER_0DTE", Bias: Bearish, Structure: "CREDIT_SPREAD", ZeroDTEOrNearest: true}, true
	default:
		return Signal{}, false
	}
}

// TrendEngineGate fires in TRENDING regimes on an RSI(14)/POC/flow
// confluence (spec 4.E row 4).
type TrendEngineGate struct{}

func (TrendEngineGate) Name() string { return "TREND_ENGINE" }

func (g TrendEngineGate) Evaluate(ctx EvalContext) (Signal, bool) {
	if ctx.Regime != regime.Trending {
		return Signal{}, false
	}
	if !ctx.View.RSI14.Present || !ctx.View.Price.Present || !ctx.View.VolumeProfile.Present {
		return Signal{}, false
	}
	if ctx.View.Flow == FlowNeutral || ctx.View.Flow == FlowUnknown {
		return Signal{}, false
	}
	rsi14 := ctx.View.RSI14.Value
	price := ctx.View.Price.Value
	poc := ctx.View.VolumeProfile.Value.POC

	if rsi14.LessThan(decimal.NewFromInt(30)) && price.GreaterThan(poc) {
		return Signal{Strategy: "TREND_ENGINE", Bias: Bullish, Structure: "CREDIT_SPREAD", DTETarget: 30}, true
	}
	if rsi14.GreaterThan(decimal.NewFromInt(70)) && price.LessThan(poc) {
		return Signal{Strategy: "TREND_ENGINE", Bias: Bearish, Structure: "CREDIT_SPREAD", DTETarget: 30}, true
	}
	return Signal{}, false
}

// IronButterflyGate fires midday in chop with elevated IV rank pinned
// near POC (spec 4.E row 5).
type IronButterflyGate struct{}

func (IronButterflyGate) Name() string { return "IRON_BUTTERFLY" }

func (g IronButterflyGate) Evaluate(ctx EvalContext) (Signal, bool) {
	if ctx.Regime != regime.LowVolChop {
		return Signal{}, false
	}
	if !inWindow(ctx.Now, "12:00", "13:00") {
		return Signal{}, false
	}
	if !ctx.View.IVRank.Present || !ctx.View.Price.Present || !ctx.View.VolumeProfile.Present {
		return Signal{}, false
	}
	if ctx.View.IVRank.Value.LessThanOrEqual(decimal.NewFromInt(50)) {
		return Signal{}, false
	}
	dist := ctx.View.Price.Value.Sub(ctx.View.VolumeProfile.Value.POC).Abs()
	if dist.GreaterThanOrEqual(decimal.NewFromFloat(2.0)) {
		return Signal{}, false
	}
	return Signal{Strategy: "IRON_BUTTERFLY", Bias: Neutral, Structure: "IRON_BUTTERFLY", DTETarget: 0, ZeroDTEOrNearest: true}, true
}

// RatioHedgeGate checks once per hour on the half-hour, regardless of
// regime, for a low IV-rank hedging opportunity (spec 4.E row 6).
type RatioHedgeGate struct{}

func (RatioHedgeGate) Name() string { return "RATIO_HEDGE" }

func (g RatioHedgeGate) Evaluate(ctx EvalContext) (Signal, bool) {
	if ctx.Now.Minute() != 30 {
		return Signal{}, false
	}
	if !ctx.View.IVRank.Present {
		return Signal{}, false
	}
	if ctx.View.IVRank.Value.GreaterThanOrEqual(decimal.NewFromInt(20)) {
		return Signal{}, false
	}
	return Signal{Strategy: "RATIO_HEDGE", Bias: Neutral, Structure: "RATIO_SPREAD", DTETarget: 30}, true
}

// WeekendWarriorGate fires Friday afternoon when VIX is calm (spec 4.E row 7).
type WeekendWarriorGate struct{}

func (WeekendWarriorGate) Name() string { return "WEEKEND_WARRIOR" }

func (g WeekendWarriorGate) Evaluate(ctx EvalContext) (Signal, bool) {
	if ctx.Now.Weekday().String() != "Friday" {
		return Signal{}, false
	}
	if !inWindow(ctx.Now, "15:55", "16:00") {
		return Signal{}, false
	}
	if !ctx.VIX.Present || ctx.VIX.Value.GreaterThanOrEqual(decimal.NewFromInt(25)) {
		return Signal{}, false
	}
	return Signal{Strategy: "WEEKEND_WARRIOR", Bias: Neutral, Structure: "CREDIT_SPREAD", DTETarget: 7}, true
}

// AllGates returns the full set in a stable, deterministic order.
func AllGates(orbRanges map[string]OpeningRange) []Gate {
	return []Gate{
		ORBGate{Ranges: orbRanges},
		RangeFarmerGate{},
		ScalperGate{},
		TrendEngineGate{},
		IronButterflyGate{},
		RatioHedgeGate{},
		WeekendWarriorGate{},
	}
}
