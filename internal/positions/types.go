// Package positions implements the Position Manager (spec 4.F): the
// Brain-side lifecycle tracker for every open options structure,
// covering fill confirmation, unrealized P&L, exit-rule evaluation,
// order chasing, periodic reconciliation against broker truth, and
// atomic on-disk persistence. Grounded on internal/portfolio/state.go's
// versioned atomic-rewrite pattern, generalized from single-symbol
// equity positions to multi-leg option trades keyed by trade id.
package positions

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/optionsdesk/trading-engine/internal/proposal"
)

// State is a TrackedPosition's place in the OPENING -> OPEN -> CLOSING
// lifecycle (spec 4.F). A position that finishes CLOSING is dropped
// from the tracked set entirely rather than lingering in a terminal
// state.
type State string

const (
	Opening State = "OPENING"
	Open    State = "OPEN"
	Closing State = "CLOSING"
)

// TrackedPosition is one open options structure the Brain is managing.
// EntryPrice is the total net price across every leg at its final,
// broker-confirmed quantity — it must never be computed from a
// provisional single-contract quote before sizing finishes, a bug a
// prior revision of this system shipped with.
type TrackedPosition struct {
	TradeID        string
	Symbol         string
	Strategy       string
	Structure      string
	Bias           string
	// OpenContext preserves the OPEN proposal's vix/flow_state so a
	// chase resubmit of a still-pending open can satisfy the Gate's
	// context checks (spec 4.H step 15) without a live indicator read.
	OpenContext    map[string]any
	State          State
	Legs           []proposal.Leg
	Quantity       int64
	EntryPrice     decimal.Decimal
	EntryTime      time.Time
	ExpirationDate time.Time

	OpenOrderID  string
	CloseOrderID string

	Chase ChaseState

	LastObservedMid decimal.Decimal
	UnrealizedPnL   decimal.Decimal
	PnLPct          decimal.Decimal
	HighestPnLSeen  decimal.Decimal

	ClosedAt    time.Time
	CloseReason string
	RealizedPnL decimal.Decimal
	Closed      bool
}

// ChaseState tracks the cancel/resubmit cadence for a pending open or
// close order (spec 4.F order chasing).
type ChaseState struct {
	LastSubmittedMid decimal.Decimal
	SubmittedAt      time.Time
	CooldownUntil    time.Time
	Attempts         int
}

// NewTrackedPosition opens a position in the OPENING state from a
// signed proposal that the Gate has already approved and submitted.
func NewTrackedPosition(tradeID string, p proposal.Proposal, orderID string, now time.Time) *TrackedPosition {
	var expiration time.Time
	if len(p.Legs) > 0 {
		expiration, _ = time.Parse("2006-01-02", p.Legs[0].Expiration)
	}
	return &TrackedPosition{
		TradeID:        tradeID,
		Symbol:         p.Symbol,
		Strategy:       p.StrategyName(),
		Structure:      p.Strategy,
		Bias:           p.Bias(),
		OpenContext:    p.Context,
		State:          Opening,
		Legs:           p.Legs,
		Quantity:       p.Quantity,
		EntryPrice:     p.Price,
		EntryTime:      now,
		ExpirationDate: expiration,
		OpenOrderID:    orderID,
		Chase: ChaseState{
			LastSubmittedMid: p.Price,
			SubmittedAt:      now,
		},
	}
}

// DTE returns days-to-expiration as of now.
func (p *TrackedPosition) DTE(now time.Time) int {
	if p.ExpirationDate.IsZero() {
		return 0
	}
	d := p.ExpirationDate.Sub(now.Truncate(24 * time.Hour))
	days := int(d.Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
