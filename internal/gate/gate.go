// Package gate is the Gatekeeper's single-writer actor (spec 4.H, 6):
// the only code in this engine that is allowed to place, cancel, or
// reconcile brokerage orders. Every external write is serialized
// behind one mutex so that two proposals can never race each other
// into the broker. Grounded on internal/risk/manager.go's RiskGate
// interface and ordered-evaluation RiskManager actor, adapted from
// "accumulate every blocked reason" to "stop at the first failing
// step" — a proposal either clears the whole Constitution or it
// doesn't, and a fail-fast rejection reason is what an operator needs
// to act on, not a bag of warnings.
package gate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/optionsdesk/trading-engine/internal/broker"
	"github.com/optionsdesk/trading-engine/internal/config"
	"github.com/optionsdesk/trading-engine/internal/gateclient"
	"github.com/optionsdesk/trading-engine/internal/ledger"
	"github.com/optionsdesk/trading-engine/internal/notify"
	"github.com/optionsdesk/trading-engine/internal/observ"
	"github.com/optionsdesk/trading-engine/internal/proposal"
)

// Status is the Gate's own two-state machine (spec 4.H: NORMAL or
// LOCKED; the teacher's eight-state circuit breaker is scoped down
// per the Open Question resolution in DESIGN.md).
type Status string

const (
	Normal Status = "NORMAL"
	Locked Status = "LOCKED"
)

// Outcome is the result of evaluating one proposal, mirrored back to
// the Brain's gateclient.Result over HTTP.
type Outcome struct {
	Status     string
	OrderID    string
	ProposalID string
	Reason     string
}

// Gate is the Gatekeeper actor. All fields are guarded by mu except
// cfg, secret, broker, ledger, notify and metrics, which are set once
// at construction and never mutated.
type Gate struct {
	mu sync.Mutex

	cfg     config.Constitution
	secret  []byte
	broker  broker.Client
	ledger  ledger.Store
	notify  notify.Sink
	metrics *observ.GateMetrics

	status     Status
	lockReason string

	restrictedDates map[string]bool // "YYYY-MM-DD" -> true

	seenProposals map[string]time.Time // replay guard

	dailyLossDate    string // "YYYY-MM-DD" the baseline below was struck for
	dailyLossBase    decimal.Decimal
	lastHeartbeat    time.Time
	lastHeartbeatSet bool

	// positionMeta is the Gate's side-index of open broker order id ->
	// {symbol, bias, strategy}, used solely for correlation-group
	// accounting (spec 3, 9). Maintained in lockstep with broker order
	// creation and closure; the broker order id is the single
	// authoritative key.
	positionMeta map[string]PositionMeta
}

// PositionMeta is one entry of the Gate's Position Metadata index
// (spec 3).
type PositionMeta struct {
	Symbol   string
	Bias     string
	Strategy string
	OpenedAt time.Time
}

// New constructs a Gate, restoring any persisted lock state from the
// ledger so a restart never silently re-opens a locked system.
func New(cfg config.Constitution, secret []byte, brokerClient broker.Client, store ledger.Store, sink notify.Sink, metrics *observ.GateMetrics) (*Gate, error) {
	g := &Gate{
		cfg:             cfg,
		secret:          secret,
		broker:          brokerClient,
		ledger:          store,
		notify:          sink,
		metrics:         metrics,
		status:          Normal,
		restrictedDates: map[string]bool{},
		seenProposals:   map[string]time.Time{},
		positionMeta:    map[string]PositionMeta{},
	}
	prev, err := store.GetSystemStatus(context.Background())
	if err == nil && prev.Status == string(Locked) {
		g.status = Locked
		g.lockReason = prev.Reason
	}
	return g, nil
}

// HandleProposal is the single entry point from internal/httpapi's
// /v1/proposal handler. It runs the whole evaluate-then-execute
// sequence under g.mu so no second proposal can interleave with a
// broker call in flight (spec 3: "Gate is a single-writer actor").
func (g *Gate) HandleProposal(ctx context.Context, p proposal.Proposal) Outcome {
	g.mu.Lock()
	defer g.mu.Unlock()

	ok, failedStep, reason := g.runConstitution(ctx, p)
	if !ok {
		g.recordRejection(ctx, p, failedStep, reason)
		return Outcome{Status: "REJECTED", ProposalID: p.ID, Reason: reason}
	}

	return g.execute(ctx, p)
}

// execute resolves broker sides, submits the multi-leg order, and
// writes the ledger before returning — spec 6's "ledger write happens
// before the HTTP response" ordering, satisfied trivially here because
// the whole call runs synchronously under g.mu.
func (g *Gate) execute(ctx context.Context, p proposal.Proposal) Outcome {
	legs := make([]broker.OrderLeg, 0, len(p.Legs))
	for _, l := range p.Legs {
		side, err := broker.ResolveBrokerSide(broker.LegSide(l.Side), broker.ProposalSide(p.Side))
		if err != nil {
			g.recordRejection(ctx, p, "structure", err.Error())
			return Outcome{Status: "REJECTED", ProposalID: p.ID, Reason: err.Error()}
		}
		legs = append(legs, broker.OrderLeg{OptionSymbol: l.OptionSymbol, Side: side, Quantity: l.Quantity})
	}

	orderType := "debit"
	if p.Side == proposal.Open {
		orderType = "credit"
	}
	order := broker.MultiLegOrder{Underlying: p.Symbol, Type: orderType, Duration: "day", Price: p.Price, Legs: legs}

	start := time.Now()
	orderID, err := g.broker.SubmitMultiLegOrder(ctx, order)
	if g.metrics != nil {
		g.metrics.OrderLatency.Observe(time.Since(start).Seconds())
	}

	status := "APPROVED"
	reason := ""
	if err != nil {
		status = "APPROVED_BUT_EXECUTION_FAILED"
		reason = err.Error()
		observ.Error("order_submit_failed", map[string]any{"proposal_id": p.ID, "error": err.Error()})
	}

	g.appendLedger(ctx, p, status, reason)
	if err == nil {
		_ = g.ledger.AppendOrder(ctx, ledger.OrderRecord{
			ID: orderID, ProposalID: p.ID, Symbol: p.Symbol, Status: "pending",
			Quantity: p.Quantity, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
		})
		if p.Side == proposal.Open {
			g.positionMeta[orderID] = PositionMeta{Symbol: p.Symbol, Bias: p.Bias(), Strategy: p.Strategy, OpenedAt: time.Now().UTC()}
		} else {
			g.removeMostRecentOpenMeta(p.Symbol, p.Strategy)
		}
		g.notify.Notify(ctx, notify.Message{
			Kind: notify.ProposalApproved, Symbol: p.Symbol, Strategy: p.Strategy,
			Summary: fmt.Sprintf("%s %s approved, order %s", p.Strategy, p.Side, orderID),
		})
	}
	if g.metrics != nil {
		g.metrics.ProposalsTotal.WithLabelValues(status).Inc()
	}

	return Outcome{Status: status, OrderID: orderID, ProposalID: p.ID, Reason: reason}
}

func (g *Gate) recordRejection(ctx context.Context, p proposal.Proposal, step, reason string) {
	g.appendLedger(ctx, p, "REJECTED", fmt.Sprintf("%s: %s", step, reason))
	if g.metrics != nil {
		g.metrics.ProposalsTotal.WithLabelValues("REJECTED").Inc()
	}
	g.notify.Notify(ctx, notify.Message{
		Kind: notify.ProposalRejected, Symbol: p.Symbol, Strategy: p.Strategy,
		Summary: fmt.Sprintf("%s %s rejected: %s", p.Strategy, p.Side, reason),
		Detail:  map[string]any{"step": step},
	})
}

func (g *Gate) appendLedger(ctx context.Context, p proposal.Proposal, status, reason string) {
	err := g.ledger.AppendProposal(ctx, ledger.ProposalRecord{
		ID: p.ID, TimestampS: p.TimestampMs / 1000, Symbol: p.Symbol, Strategy: p.Strategy,
		Side: string(p.Side), Quantity: p.Quantity, ContextJSON: p.Context,
		Status: status, RejectionReason: reason,
	})
	if err != nil {
		observ.Error("ledger_append_failed", map[string]any{"proposal_id": p.ID, "error": err.Error()})
	}
}

// VerifyCanonical re-derives the canonical signing payload for p and
// checks it against p.Signature (spec 6, 4.H step 1). Its caller is
// checkSignature, which runs inside HandleProposal under the actor
// lock.
func (g *Gate) VerifyCanonical(p proposal.Proposal) bool {
	canonical, err := gateclient.CanonicalJSON(p.ForSigning())
	if err != nil {
		return false
	}
	return gateclient.Verify(canonical, g.secret, p.Signature)
}
