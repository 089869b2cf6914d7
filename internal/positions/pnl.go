package positions

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/optionsdesk/trading-engine/internal/proposal"
)

// creditStrategies is the set of structures entered for a net credit
// (spec 4.F step 3): closing them costs money, so cost_to_close is
// clamped to a floor of zero before subtracting from entry_price.
var creditStrategies = map[string]bool{
	"CREDIT_SPREAD":  true,
	"IRON_CONDOR":    true,
	"IRON_BUTTERFLY": true,
}

// IsCreditStrategy reports whether strategy is entered net-credit.
// Everything else (RATIO_SPREAD, CALENDAR_SPREAD, MANUAL_RECOVERY) is
// treated as debit per spec 4.F step 3.
func IsCreditStrategy(strategy string) bool {
	return creditStrategies[strategy]
}

// CostToClose recomputes spec 4.F step 2's signed cost to unwind a
// structure at today's quotes: SELL legs (buy to close) add, BUY legs
// (sell to close) subtract. The result may be negative — closing for a
// credit — and that is a valid, expected value.
func CostToClose(ctx context.Context, client Quoter, legs []proposal.Leg) (decimal.Decimal, error) {
	cost := decimal.Zero
	for _, l := range legs {
		q, err := client.GetQuote(ctx, l.OptionSymbol)
		if err != nil {
			return decimal.Zero, fmt.Errorf("positions: quote %s: %w", l.OptionSymbol, err)
		}
		notional := q.Mid().Mul(decimal.NewFromInt(l.Quantity))
		if l.Side == proposal.Sell {
			cost = cost.Add(notional)
		} else {
			cost = cost.Sub(notional)
		}
	}
	return cost, nil
}

// UnrealizedPnL implements spec 4.F step 3's two P&L formulas:
//
//   - credit strategies: pnl = entry_price - max(cost_to_close, 0)
//   - debit strategies: cost_to_close >= 0 -> entry_price - cost_to_close;
//     cost_to_close < 0 (closing for a credit) -> entry_price + |cost_to_close|
func UnrealizedPnL(strategy string, entryPrice, costToClose decimal.Decimal) decimal.Decimal {
	if IsCreditStrategy(strategy) {
		floor := costToClose
		if floor.IsNegative() {
			floor = decimal.Zero
		}
		return entryPrice.Sub(floor)
	}
	if costToClose.IsNegative() {
		return entryPrice.Add(costToClose.Abs())
	}
	return entryPrice.Sub(costToClose)
}

// PnLPct is pnl as a percentage of entry_price (spec 4.F step 3), used
// by every percentage-based exit threshold. Zero entry_price (never
// valid for a real position, but possible for a MANUAL_RECOVERY
// adoption with no recorded entry) yields 0 rather than dividing by
// zero.
func PnLPct(pnl, entryPrice decimal.Decimal) decimal.Decimal {
	if entryPrice.IsZero() {
		return decimal.Zero
	}
	return pnl.Div(entryPrice).Mul(decimal.NewFromInt(100))
}
