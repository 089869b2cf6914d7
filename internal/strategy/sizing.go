package strategy

import "github.com/shopspring/decimal"

// minEquityFloor guards against sizing off a corrupted or zero equity
// read (original_source/brain/src/position_sizer.py, SPEC_FULL.md 12.7).
var minEquityFloor = decimal.NewFromInt(1000)

// SizePosition implements spec 4.E's position-sizing formula:
// risk_amount = equity * 0.02; max_loss_per_contract = spread_width * 100;
// qty = floor(risk_amount / max_loss_per_contract), clamped to [1, 20]
// and bounded so that qty * max_loss <= equity * 0.10.
func SizePosition(equity decimal.Decimal, spreadWidth decimal.Decimal) int64 {
	if equity.LessThan(minEquityFloor) {
		return 0
	}
	riskAmount := equity.Mul(decimal.NewFromFloat(0.02))
	maxLossPerContract := spreadWidth.Mul(decimal.NewFromInt(100))
	if maxLossPerContract.IsZero() {
		return 0
	}

	qty := riskAmount.Div(maxLossPerContract).Floor().IntPart()
	if qty < 1 {
		qty = 1
	}
	if qty > 20 {
		qty = 20
	}

	cap := equity.Mul(decimal.NewFromFloat(0.10))
	for qty > 1 && decimal.NewFromInt(qty).Mul(maxLossPerContract).GreaterThan(cap) {
		qty--
	}
	if decimal.NewFromInt(qty).Mul(maxLossPerContract).GreaterThan(cap) {
		return 0
	}
	return qty
}
