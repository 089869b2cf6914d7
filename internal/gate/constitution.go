package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/optionsdesk/trading-engine/internal/ledger"
	"github.com/optionsdesk/trading-engine/internal/observ"
	"github.com/optionsdesk/trading-engine/internal/proposal"
)

// replayWindow bounds how long a proposal ID is remembered for replay
// rejection (checkStaleness uses StaleProposalMs directly). Kept as a
// small multiple of the configured staleness bound rather than a flat
// constant so a slower-clocked Brain doesn't spuriously trip it.
func (g *Gate) replayWindow() time.Duration {
	return 4 * time.Duration(g.cfg.StaleProposalMs) * time.Millisecond
}

type constitutionStep struct {
	name string
	fn   func(g *Gate, ctx context.Context, p proposal.Proposal) (bool, string)
}

var steps = []constitutionStep{
	{"replay", (*Gate).checkReplay},
	{"signature", (*Gate).checkSignature},
	{"staleness", (*Gate).checkStaleness},
	{"lock", (*Gate).checkLock},
	{"symbol_allowlist", (*Gate).checkSymbolAllowed},
	{"strategy_allowlist", (*Gate).checkStrategyAllowed},
	{"price_positive", (*Gate).checkPrice},
	{"structure", (*Gate).checkStructure},
	{"dte_bounds", (*Gate).checkDTE},
	{"calendar_lock", (*Gate).checkCalendar},
	{"account_reconciliation", (*Gate).checkBrokerHealthy},
	{"daily_loss_auto_lock", (*Gate).checkDailyLoss},
	{"position_cap", (*Gate).checkPositionCap},
	{"correlation_guard", (*Gate).checkCorrelation},
	{"concentration", (*Gate).checkConcentration},
	{"vix_context", (*Gate).checkVIXContext},
}

// runConstitution evaluates every step in order, stopping at the
// first rejection. Caller (HandleProposal) holds g.mu.
func (g *Gate) runConstitution(ctx context.Context, p proposal.Proposal) (ok bool, failedStep, reason string) {
	for _, s := range steps {
		pass, r := s.fn(g, ctx, p)
		verdict := "pass"
		if !pass {
			verdict = "fail"
		}
		if g.metrics != nil {
			g.metrics.GateOutcomeTotal.WithLabelValues(s.name, verdict).Inc()
		}
		if !pass {
			return false, s.name, r
		}
	}
	return true, "", ""
}

func (g *Gate) checkReplay(ctx context.Context, p proposal.Proposal) (bool, string) {
	now := time.Now().UTC()
	window := g.replayWindow()
	for id, seenAt := range g.seenProposals {
		if now.Sub(seenAt) > window {
			delete(g.seenProposals, id)
		}
	}
	if _, seen := g.seenProposals[p.ID]; seen {
		return false, "duplicate_proposal_id"
	}
	g.seenProposals[p.ID] = now
	return true, ""
}

func (g *Gate) checkSignature(ctx context.Context, p proposal.Proposal) (bool, string) {
	if !g.VerifyCanonical(p) {
		return false, "bad_signature"
	}
	return true, ""
}

func (g *Gate) checkStaleness(ctx context.Context, p proposal.Proposal) (bool, string) {
	age := time.Now().UTC().UnixMilli() - p.TimestampMs
	if age < 0 {
		age = -age
	}
	if age > g.cfg.StaleProposalMs {
		return false, "stale_proposal"
	}
	return true, ""
}

func (g *Gate) checkLock(ctx context.Context, p proposal.Proposal) (bool, string) {
	if g.status == Locked && p.Side == proposal.Open {
		return false, "system_locked: " + g.lockReason
	}
	return true, ""
}

func (g *Gate) checkSymbolAllowed(ctx context.Context, p proposal.Proposal) (bool, string) {
	if !contains(g.cfg.AllowedSymbols, p.Symbol) {
		return false, "symbol_not_allowed"
	}
	return true, ""
}

func (g *Gate) checkStrategyAllowed(ctx context.Context, p proposal.Proposal) (bool, string) {
	if p.Side != proposal.Open {
		return true, ""
	}
	if !contains(g.cfg.AllowedStrategies, p.Strategy) {
		return false, "strategy_not_allowed"
	}
	return true, ""
}

func (g *Gate) checkPrice(ctx context.Context, p proposal.Proposal) (bool, string) {
	if p.Price.Sign() <= 0 {
		return false, "invalid_price"
	}
	return true, ""
}

func (g *Gate) checkStructure(ctx context.Context, p proposal.Proposal) (bool, string) {
	if p.Side != proposal.Open {
		return true, ""
	}
	if len(p.Legs) == 0 {
		return false, "no_legs"
	}
	for _, l := range p.Legs {
		if l.Quantity <= 0 {
			return false, "leg_quantity_invalid"
		}
		if l.Side != proposal.Buy && l.Side != proposal.Sell {
			return false, "leg_side_invalid"
		}
		if _, err := occStrikeCheck(l.OptionSymbol); err != nil {
			return false, "leg_symbol_invalid"
		}
	}
	switch p.Strategy {
	case "CREDIT_SPREAD":
		if len(p.Legs) != 2 {
			return false, "credit_spread_requires_two_legs"
		}
	case "IRON_CONDOR":
		if len(p.Legs) != 4 {
			return false, "iron_condor_requires_four_legs"
		}
	case "IRON_BUTTERFLY":
		if len(p.Legs) != 4 {
			return false, "iron_butterfly_requires_four_legs"
		}
	case "RATIO_SPREAD":
		if len(p.Legs) != 2 {
			return false, "ratio_spread_requires_two_legs"
		}
		if p.Legs[0].Quantity == p.Legs[1].Quantity {
			return false, "ratio_spread_requires_unequal_quantities"
		}
	}
	return true, ""
}

func (g *Gate) checkDTE(ctx context.Context, p proposal.Proposal) (bool, string) {
	for _, l := range p.Legs {
		exp, err := time.Parse("2006-01-02", l.Expiration)
		if err != nil {
			return false, "leg_expiration_unparseable"
		}
		dte := int(exp.Sub(time.Now().UTC().Truncate(24*time.Hour)).Hours() / 24)
		if dte < g.cfg.MinDTE || dte > g.cfg.MaxDTE {
			return false, "dte_out_of_bounds"
		}
	}
	return true, ""
}

func (g *Gate) checkCalendar(ctx context.Context, p proposal.Proposal) (bool, string) {
	if p.Side != proposal.Open {
		return true, ""
	}
	today := time.Now().UTC().Format("2006-01-02")
	if g.restrictedDates[today] {
		return false, "calendar_restricted_date"
	}
	return true, ""
}

// checkBrokerHealthy is spec 4.H step 10's "account reconciliation":
// confirm the broker is reachable, then fetch positions and rewrite
// the ledger's positions snapshot with broker truth (balances are
// fetched separately, by checkDailyLoss)
// (spec 3, 6: "positions is a snapshot, refreshed on every
// evaluation"). Done on every proposal rather than on a timer since
// this step IS the evaluation.
func (g *Gate) checkBrokerHealthy(ctx context.Context, p proposal.Proposal) (bool, string) {
	if err := g.broker.HealthCheck(ctx); err != nil {
		observ.Warn("gate_broker_unhealthy", map[string]any{"error": err.Error()})
		return false, "broker_unreachable"
	}
	positions, err := g.broker.GetPositions(ctx)
	if err != nil {
		observ.Warn("gate_positions_unavailable", map[string]any{"error": err.Error()})
		return false, "broker_positions_unavailable"
	}
	now := time.Now().UTC()
	rows := make([]ledger.PositionSnapshotRow, 0, len(positions))
	for _, bp := range positions {
		rows = append(rows, ledger.PositionSnapshotRow{
			Symbol: bp.OptionSymbol, Quantity: bp.Quantity, CostBasis: bp.CostBasis,
			DateAcquired: bp.DateAcquired, UpdatedAt: now,
		})
	}
	if err := g.ledger.RewritePositionsSnapshot(ctx, rows); err != nil {
		observ.Warn("gate_positions_snapshot_failed", map[string]any{"error": err.Error()})
	}
	return true, ""
}

// checkDailyLoss compares current equity against the day's opening
// baseline and auto-locks the system if the loss reaches or exceeds
// MaxDailyLossPercent. Close proposals are let through even while
// this trips, since closing reduces risk.
func (g *Gate) checkDailyLoss(ctx context.Context, p proposal.Proposal) (bool, string) {
	bal, err := g.broker.GetBalances(ctx)
	if err != nil {
		return false, "balances_unavailable"
	}
	today := time.Now().UTC().Format("2006-01-02")
	if g.dailyLossDate != today {
		g.dailyLossDate = today
		g.dailyLossBase = bal.Equity
	}
	if p.Side != proposal.Open {
		return true, ""
	}
	if g.dailyLossBase.IsZero() {
		return true, ""
	}
	lossPct, _ := g.dailyLossBase.Sub(bal.Equity).Div(g.dailyLossBase).Float64()
	if lossPct >= g.cfg.MaxDailyLossPercent {
		g.status = Locked
		g.lockReason = "daily_loss_limit_breached"
		_ = g.ledger.SetSystemStatus(ctx, systemStatus(g.status, g.lockReason))
		g.notify.Notify(ctx, notifySystemLocked(g.lockReason))
		return false, "daily_loss_limit_breached"
	}
	return true, ""
}

func (g *Gate) checkPositionCap(ctx context.Context, p proposal.Proposal) (bool, string) {
	if p.Side != proposal.Open {
		return true, ""
	}
	trades, err := g.currentTrades(ctx)
	if err != nil {
		return false, "positions_unavailable"
	}
	if len(trades) >= g.cfg.MaxOpenPositions {
		return false, "position_cap_reached"
	}
	totalLegs := 0
	for _, t := range trades {
		totalLegs += t.legCount
	}
	if totalLegs+len(p.Legs) > g.cfg.MaxTotalPositions {
		return false, "total_position_cap_reached"
	}
	return true, ""
}

// checkCorrelation enforces spec 4.H step 13: for a non-neutral-bias
// OPEN proposal, count open positions sharing both the same
// correlation group and the same bias (via Position Metadata) and
// reject once that count reaches MaxCorrelatedPositions. Neutral-bias
// proposals (condors, butterflies, ratio spreads) are exempt — the
// step is explicitly scoped to directional exposure.
func (g *Gate) checkCorrelation(ctx context.Context, p proposal.Proposal) (bool, string) {
	if p.Side != proposal.Open {
		return true, ""
	}
	bias := p.Bias()
	if bias == "neutral" {
		return true, ""
	}
	group := g.cfg.GroupOf(p.Symbol)
	if group == "" {
		return true, ""
	}
	count := 0
	for _, meta := range g.positionMeta {
		if meta.Bias == bias && g.cfg.GroupOf(meta.Symbol) == group {
			count++
		}
	}
	if count >= g.cfg.MaxCorrelatedPositions {
		return false, fmt.Sprintf("correlation_cap_reached: group=%s bias=%s count=%d", group, bias, count)
	}
	return true, ""
}

func (g *Gate) checkConcentration(ctx context.Context, p proposal.Proposal) (bool, string) {
	if p.Side != proposal.Open {
		return true, ""
	}
	trades, err := g.currentTrades(ctx)
	if err != nil {
		return false, "positions_unavailable"
	}
	count := 0
	for _, t := range trades {
		if t.root == p.Symbol {
			count++
		}
	}
	if count >= g.cfg.MaxConcentrationPerSymbol {
		return false, "concentration_cap_reached"
	}
	return true, ""
}

func (g *Gate) checkVIXContext(ctx context.Context, p proposal.Proposal) (bool, string) {
	if p.Side != proposal.Open {
		return true, ""
	}
	vix, ok := p.VIX()
	if !ok {
		return false, "vix_missing"
	}
	if vix.GreaterThan(decimal.NewFromFloat(g.cfg.MaxVIXForOpen)) {
		return false, "vix_too_high"
	}
	if p.FlowState() == "UNKNOWN" {
		return false, "flow_state_unknown"
	}
	return true, ""
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
