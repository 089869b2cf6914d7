// Package regime implements the Regime Classifier (spec 4.B): a pure
// function mapping VIX and ADX(SPY) to a market-state label. Grounded
// on internal/decision/engine.go's pure-function evaluation style —
// no state, no I/O, deterministic given its inputs.
package regime

import "github.com/shopspring/decimal"

// Regime is the market-state classification that gates strategy eligibility.
type Regime string

const (
	Trending          Regime = "TRENDING"
	LowVolChop        Regime = "LOW_VOL_CHOP"
	HighVolExpansion  Regime = "HIGH_VOL_EXPANSION"
	EventRisk         Regime = "EVENT_RISK"
	InsufficientData  Regime = "INSUFFICIENT_DATA"
)

// Inputs bundles the classifier's inputs. VIX and ADX are optional
// (see candles.Optional) collapsed to (value, present) pairs here to
// keep this package free of a dependency on the candles package.
type Inputs struct {
	VIX          decimal.Decimal
	VIXPresent   bool
	ADXSPY       decimal.Decimal
	ADXPresent   bool
	IsRestricted bool // today's date is in the Gate's restricted-date set
}

// Classify implements the decision table in spec 4.B exactly. The
// restricted-date check is evaluated before the VIX/ADX presence
// check since a restricted date alone is sufficient for EVENT_RISK
// regardless of whether VIX/ADX happen to be available.
func Classify(in Inputs) Regime {
	if in.IsRestricted {
		return EventRisk
	}
	if !in.VIXPresent || !in.ADXPresent {
		return InsufficientData
	}

	thirty := decimal.NewFromInt(30)
	twentyTwo := decimal.NewFromInt(22)
	twentyFive := decimal.NewFromInt(25)
	twenty := decimal.NewFromInt(20)

	if in.VIX.GreaterThanOrEqual(thirty) {
		return EventRisk
	}
	if in.VIX.GreaterThanOrEqual(twentyTwo) && in.ADXSPY.GreaterThanOrEqual(twentyFive) {
		return HighVolExpansion
	}
	if in.ADXSPY.GreaterThanOrEqual(twenty) && in.VIX.LessThan(twentyTwo) {
		return Trending
	}
	return LowVolChop
}
