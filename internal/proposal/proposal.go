// Package proposal defines the wire-level Proposal message shared by
// the Brain (producer, via internal/strategy and internal/gateclient)
// and the Gate (consumer, via internal/gate). Kept as a leaf package
// with no dependency on either side to avoid an import cycle.
package proposal

import "github.com/shopspring/decimal"

// LegSide is BUY or SELL relative to the underlying position; the
// Gate direction-inverts it at CLOSE time (spec 3).
type LegSide string

const (
	Buy  LegSide = "BUY"
	Sell LegSide = "SELL"
)

// Side is OPEN or CLOSE.
type Side string

const (
	Open  Side = "OPEN"
	Close Side = "CLOSE"
)

// OptionType is PUT or CALL.
type OptionType string

const (
	Put  OptionType = "PUT"
	Call OptionType = "CALL"
)

// Leg is one option leg of a proposal.
type Leg struct {
	OptionSymbol string          `json:"option_symbol"`
	Expiration   string          `json:"expiration"` // YYYY-MM-DD
	Strike       decimal.Decimal `json:"strike"`
	Type         OptionType      `json:"type"`
	Quantity     int64           `json:"quantity"`
	Side         LegSide         `json:"side"`
}

// Proposal is the immutable signed message the Brain sends the Gate
// (spec 3, 6). Context is a semi-open map; the Gate interprets "vix"
// and "flow_state" (context checks) and "bias" (correlation check),
// copies "bias" and "strategy_name" into the position metadata, and
// stores the rest verbatim (spec 9).
type Proposal struct {
	ID          string          `json:"id"`
	TimestampMs int64           `json:"timestamp_ms"`
	Symbol      string          `json:"symbol"`
	Strategy    string          `json:"strategy"`
	Side        Side            `json:"side"`
	Quantity    int64           `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Legs        []Leg           `json:"legs"`
	Context     map[string]any  `json:"context"`
	Signature   string          `json:"signature,omitempty"`
}

// ForSigning returns a copy of p with Signature cleared, per spec 6's
// "canonical payload = JSON of the proposal with the signature field
// removed".
func (p Proposal) ForSigning() Proposal {
	p.Signature = ""
	return p
}

// VIX reads the numeric vix context field, if present and numeric.
func (p Proposal) VIX() (decimal.Decimal, bool) {
	v, ok := p.Context["vix"]
	if !ok {
		return decimal.Zero, false
	}
	switch t := v.(type) {
	case float64:
		return decimal.NewFromFloat(t), true
	case decimal.Decimal:
		return t, true
	default:
		return decimal.Zero, false
	}
}

// FlowState reads the flow_state context field, defaulting to UNKNOWN.
func (p Proposal) FlowState() string {
	v, ok := p.Context["flow_state"]
	if !ok {
		return "UNKNOWN"
	}
	s, ok := v.(string)
	if !ok {
		return "UNKNOWN"
	}
	return s
}

// StrategyName reads the originating signal name (e.g. "SCALPER_0DTE",
// "TREND_ENGINE") the strategy engine attaches to every OPEN proposal
// in context, distinct from the wire-level Strategy field which
// actually carries the option structure (CREDIT_SPREAD, IRON_CONDOR,
// ...) the Gate validates leg counts against (spec 4.H step 7). Falls
// back to Strategy when absent (e.g. CLOSE proposals re-derived by the
// Position Manager, which already knows the originating name).
func (p Proposal) StrategyName() string {
	v, ok := p.Context["strategy_name"]
	if !ok {
		return p.Strategy
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return p.Strategy
	}
	return s
}

// Bias reads the bias context field the strategy engine attaches to
// every OPEN proposal (bullish/bearish/neutral), defaulting to neutral
// for proposals that never set one (e.g. CLOSE proposals). The Gate
// stores this verbatim in Position Metadata for correlation-group
// accounting (spec 3, 9: "dynamic context field").
func (p Proposal) Bias() string {
	v, ok := p.Context["bias"]
	if !ok {
		return "neutral"
	}
	s, ok := v.(string)
	if !ok {
		return "neutral"
	}
	return s
}
