package positions

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChaseDecision is what the Position Manager should do with a pending
// order this tick.
type ChaseDecision int

const (
	ChaseHold ChaseDecision = iota
	ChaseResubmit
)

// ChaseParams mirrors config.PositionManagerConfig's chase fields,
// kept as plain values here so this package stays independent of
// internal/config.
type ChaseParams struct {
	DriftCents      decimal.Decimal
	AggressionCents decimal.Decimal
	TimeoutSeconds  int
	CooldownSeconds int
}

// Evaluate decides whether a working order should be cancelled and
// resubmitted at a more aggressive price (spec 4.F): either the quoted
// mid has drifted past DriftCents from the last submitted price, or
// the order has been working longer than TimeoutSeconds. A cooldown
// after the most recent chase suppresses thrashing.
func (c *ChaseState) Evaluate(currentMid decimal.Decimal, now time.Time, p ChaseParams) ChaseDecision {
	if now.Before(c.CooldownUntil) {
		return ChaseHold
	}
	drift := currentMid.Sub(c.LastSubmittedMid).Abs()
	driftExceeded := drift.GreaterThanOrEqual(p.DriftCents.Div(decimal.NewFromInt(100)))
	timedOut := now.Sub(c.SubmittedAt) >= time.Duration(p.TimeoutSeconds)*time.Second
	if driftExceeded || timedOut {
		return ChaseResubmit
	}
	return ChaseHold
}

// Resubmit records a chase attempt: cancel and resubmit at the
// current mid plus an aggressiveness buffer (spec 4.F: "resubmit at
// the new mid plus an aggressiveness buffer"), a fresh submit clock,
// and a cooldown before the next chase is allowed.
func (c *ChaseState) Resubmit(currentMid decimal.Decimal, now time.Time, p ChaseParams) decimal.Decimal {
	aggression := p.AggressionCents.Div(decimal.NewFromInt(100))
	newPrice := currentMid.Add(aggression)
	c.LastSubmittedMid = newPrice
	c.SubmittedAt = now
	c.CooldownUntil = now.Add(time.Duration(p.CooldownSeconds) * time.Second)
	c.Attempts++
	return newPrice
}
