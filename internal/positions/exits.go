package positions

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/optionsdesk/trading-engine/internal/candles"
)

// Indicators is the read-only subset of the Indicator Store (4.A) the
// Position Manager needs to evaluate exit rules: RSI for the scalper's
// mean-reversion exit, price/SMA200 for the credit spread's trend
// break, and ADX for the neutral exit set's regime-shift close (spec
// 4.F step 5).
type Indicators interface {
	Price(symbol string) candles.Optional[decimal.Decimal]
	SMA(symbol string, n int) candles.Optional[decimal.Decimal]
	RSI(symbol string, n int) candles.Optional[decimal.Decimal]
	ADX(symbol string, n int) candles.Optional[decimal.Decimal]
}

// ExitRule is one reason a position should be closed. Rules for a
// given strategy family are evaluated in order on every tick; the
// first to fire wins.
type ExitRule interface {
	Name() string
	ShouldExit(pos *TrackedPosition, ind Indicators, now time.Time) bool
}

// ScalperExitRules implements spec 4.F step 5's Scalper exit set:
// RSI(14) mean-reverting back past 60/40 or a -20% stop.
func ScalperExitRules(eod eodForceClose) []ExitRule {
	return []ExitRule{
		scalperRSIReversion{},
		pnlPctFloor{Name_: "SCALPER_STOP", Floor: decimal.NewFromInt(-20)},
		eod,
	}
}

// CreditSpreadExitRules implements spec 4.F step 5's directional
// credit spread exit set: trailing stop off the high-water mark, a
// trend break versus SMA200, and the +80/-100 pnl_pct bounds.
func CreditSpreadExitRules(eod eodForceClose) []ExitRule {
	return []ExitRule{
		trailingStop{},
		trendBreak{},
		pnlPctCeiling{Name_: "CREDIT_TAKE_PROFIT", Ceiling: decimal.NewFromInt(80)},
		pnlPctFloor{Name_: "CREDIT_STOP", Floor: decimal.NewFromInt(-100)},
		eod,
	}
}

// NeutralExitRules implements spec 4.F step 5's neutral exit set
// (condor/butterfly/ratio/manual-recovery): an ADX>30 regime-shift
// close and the +50/-100 pnl_pct bounds.
func NeutralExitRules(eod eodForceClose) []ExitRule {
	return []ExitRule{
		adxRegimeShift{},
		pnlPctCeiling{Name_: "NEUTRAL_TAKE_PROFIT", Ceiling: decimal.NewFromInt(50)},
		pnlPctFloor{Name_: "NEUTRAL_STOP", Floor: decimal.NewFromInt(-100)},
		eod,
	}
}

// ExitRulesFor selects the exit rule set for a tracked position by its
// originating strategy (spec 4.F step 5's three named buckets: Scalper,
// directional credit spread, and neutral condor/butterfly/manual-recovery).
// forceCloseHHMM/loc are the Constitution's force-close cutoff (spec 9
// Open Question: resolved via zone database lookup, not a fixed offset).
func ExitRulesFor(pos *TrackedPosition, forceCloseHHMM string, loc *time.Location) []ExitRule {
	eod := eodForceClose{AfterHHMM: forceCloseHHMM, Location: loc}
	switch pos.Strategy {
	case "SCALPER_0DTE":
		return ScalperExitRules(eod)
	case "ORB", "TREND_ENGINE", "WEEKEND_WARRIOR":
		return CreditSpreadExitRules(eod)
	default: // RANGE_FARMER, IRON_BUTTERFLY, RATIO_HEDGE, MANUAL_RECOVERY
		return NeutralExitRules(eod)
	}
}

type scalperRSIReversion struct{}

func (scalperRSIReversion) Name() string { return "SCALPER_RSI_REVERSION" }

func (scalperRSIReversion) ShouldExit(pos *TrackedPosition, ind Indicators, now time.Time) bool {
	rsi := ind.RSI(pos.Symbol, 14)
	if !rsi.Present {
		return false
	}
	if pos.Bias == "bullish" {
		return rsi.Value.GreaterThan(decimal.NewFromInt(60))
	}
	if pos.Bias == "bearish" {
		return rsi.Value.LessThan(decimal.NewFromInt(40))
	}
	return false
}

// trailingStop implements the directional credit spread's trailing
// stop: once highest_pnl_seen has reached 30%, close if it has since
// given back 10 points from that peak.
type trailingStop struct{}

func (trailingStop) Name() string { return "TRAILING_STOP" }

func (trailingStop) ShouldExit(pos *TrackedPosition, ind Indicators, now time.Time) bool {
	thirty := decimal.NewFromInt(30)
	ten := decimal.NewFromInt(10)
	if pos.HighestPnLSeen.LessThan(thirty) {
		return false
	}
	return pos.HighestPnLSeen.Sub(pos.PnLPct).GreaterThanOrEqual(ten)
}

// trendBreak closes a directional credit spread once price crosses to
// the wrong side of SMA200 for its bias.
type trendBreak struct{}

func (trendBreak) Name() string { return "TREND_BREAK" }

func (trendBreak) ShouldExit(pos *TrackedPosition, ind Indicators, now time.Time) bool {
	price := ind.Price(pos.Symbol)
	sma := ind.SMA(pos.Symbol, 200)
	if !price.Present || !sma.Present {
		return false
	}
	switch pos.Bias {
	case "bullish":
		return price.Value.LessThan(sma.Value)
	case "bearish":
		return price.Value.GreaterThan(sma.Value)
	default:
		return false
	}
}

type adxRegimeShift struct{}

func (adxRegimeShift) Name() string { return "ADX_REGIME_SHIFT" }

func (adxRegimeShift) ShouldExit(pos *TrackedPosition, ind Indicators, now time.Time) bool {
	adx := ind.ADX(pos.Symbol, 14)
	if !adx.Present {
		return false
	}
	return adx.Value.GreaterThan(decimal.NewFromInt(30))
}

type pnlPctCeiling struct {
	Name_   string
	Ceiling decimal.Decimal
}

func (r pnlPctCeiling) Name() string { return r.Name_ }

func (r pnlPctCeiling) ShouldExit(pos *TrackedPosition, ind Indicators, now time.Time) bool {
	return pos.PnLPct.GreaterThanOrEqual(r.Ceiling)
}

type pnlPctFloor struct {
	Name_ string
	Floor decimal.Decimal
}

func (r pnlPctFloor) Name() string { return r.Name_ }

func (r pnlPctFloor) ShouldExit(pos *TrackedPosition, ind Indicators, now time.Time) bool {
	return pos.PnLPct.LessThanOrEqual(r.Floor)
}

// eodForceClose implements spec 4.F step 5's "any: at 15:55 ET, close
// all" rule, evaluated against the America/New_York zone database
// (spec 9 Open Question: DST is resolved via zone lookup, not a fixed
// offset).
type eodForceClose struct {
	AfterHHMM string
	Location  *time.Location
}

func (eodForceClose) Name() string { return "EOD_FORCE_CLOSE" }

func (r eodForceClose) ShouldExit(pos *TrackedPosition, ind Indicators, now time.Time) bool {
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	cutoff, err := time.Parse("15:04", r.AfterHHMM)
	if err != nil {
		cutoff, _ = time.Parse("15:04", "15:55")
	}
	et := now.In(loc)
	minutes := et.Hour()*60 + et.Minute()
	cutoffMinutes := cutoff.Hour()*60 + cutoff.Minute()
	return minutes >= cutoffMinutes
}
