package positions

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/optionsdesk/trading-engine/internal/broker"
	"github.com/optionsdesk/trading-engine/internal/gateclient"
	"github.com/optionsdesk/trading-engine/internal/observ"
	"github.com/optionsdesk/trading-engine/internal/proposal"
)

// Quoter is the read-only broker surface the Position Manager needs
// for P&L and reconciliation. Market-data reads do not require the
// Gate's signed-proposal path; only order placement does (spec 3: the
// Gate is the sole writer to the brokerage).
type Quoter interface {
	GetQuote(ctx context.Context, symbol string) (broker.Quote, error)
	GetPositions(ctx context.Context) ([]broker.BrokerPosition, error)
}

// ProposalSender is the subset of gateclient.Client the Position
// Manager needs; satisfied by *gateclient.Client in production and by
// a fake in tests.
type ProposalSender interface {
	SendProposal(ctx context.Context, p proposal.Proposal) (gateclient.Result, error)
}

// Manager tracks every open options structure, evaluates exit rules,
// chases working orders by resubmitting revised CLOSE proposals
// through the Gate, and periodically reconciles tracked state against
// broker truth (spec 4.F).
type Manager struct {
	mu        sync.Mutex
	positions map[string]*TrackedPosition

	quotes Quoter
	ind    Indicators
	gate   ProposalSender
	store  *DiskStore

	chaseParams    ChaseParams
	forceCloseHHMM string
	loc            *time.Location

	lastReconcile time.Time
}

// NewManager creates a Manager backed by a DiskStore at statePath,
// loading any positions persisted from a prior run. forceCloseHHMM and
// loc drive the "any position: close at HH:MM ET" exit rule (spec 4.F
// step 5).
func NewManager(quotes Quoter, ind Indicators, gate ProposalSender, statePath string, chase ChaseParams, forceCloseHHMM string, loc *time.Location) (*Manager, error) {
	store, err := NewDiskStore(statePath)
	if err != nil {
		return nil, err
	}
	loaded, err := store.Load()
	if err != nil {
		return nil, err
	}
	m := &Manager{
		positions:      loaded,
		quotes:         quotes,
		ind:            ind,
		gate:           gate,
		store:          store,
		chaseParams:    chase,
		forceCloseHHMM: forceCloseHHMM,
		loc:            loc,
	}
	return m, nil
}

// Open begins tracking a newly approved proposal (the Gate has
// already returned APPROVED with an order id; this just starts the
// Brain-side lifecycle).
func (m *Manager) Open(tradeID string, p proposal.Proposal, orderID string, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[tradeID] = NewTrackedPosition(tradeID, p, orderID, now)
	m.persistLocked()
}

// Snapshot returns a shallow copy of every tracked position, for
// status endpoints and tests.
func (m *Manager) Snapshot() []TrackedPosition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TrackedPosition, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	return out
}

// Tick runs one position-management cycle: refresh P&L, evaluate
// exits, chase working close orders, and reconcile against broker
// truth if the reconcile interval has elapsed.
func (m *Manager) Tick(ctx context.Context, now time.Time, reconcileInterval time.Duration) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.positions))
	for id := range m.positions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.tickOne(ctx, id, now)
	}

	if now.Sub(m.lastReconcile) >= reconcileInterval {
		m.Reconcile(ctx, now)
		m.lastReconcile = now
	}
}

func (m *Manager) tickOne(ctx context.Context, id string, now time.Time) {
	m.mu.Lock()
	pos, ok := m.positions[id]
	m.mu.Unlock()
	if !ok {
		return
	}

	costToClose, err := CostToClose(ctx, m.quotes, pos.Legs)
	if err != nil {
		observ.Warn("position_quote_refresh_failed", map[string]any{"trade_id": id, "error": err.Error()})
		return
	}

	m.mu.Lock()
	pos.LastObservedMid = costToClose
	pos.UnrealizedPnL = UnrealizedPnL(pos.Structure, pos.EntryPrice, costToClose)
	pos.PnLPct = PnLPct(pos.UnrealizedPnL, pos.EntryPrice)
	if pos.PnLPct.GreaterThan(pos.HighestPnLSeen) {
		pos.HighestPnLSeen = pos.PnLPct
	}
	state := pos.State
	m.mu.Unlock()

	switch state {
	case Open:
		for _, rule := range ExitRulesFor(pos, m.forceCloseHHMM, m.loc) {
			if rule.ShouldExit(pos, m.ind, now) {
				m.initiateClose(ctx, pos, rule.Name(), costToClose, now)
				break
			}
		}
	case Closing, Opening:
		m.chaseIfNeeded(ctx, pos, costToClose, now)
	}
}

func (m *Manager) initiateClose(ctx context.Context, pos *TrackedPosition, reason string, currentNet decimal.Decimal, now time.Time) {
	closeProposal := proposal.Proposal{
		Symbol:   pos.Symbol,
		Strategy: pos.Structure,
		Side:     proposal.Close,
		Quantity: pos.Quantity,
		Price:    currentNet.Abs(),
		Legs:     pos.Legs,
		Context:  map[string]any{"close_reason": reason, "strategy_name": pos.Strategy, "bias": pos.Bias},
	}
	result, err := m.gate.SendProposal(ctx, closeProposal)
	if err != nil || result.Status != "APPROVED" {
		observ.Warn("position_close_not_approved", map[string]any{
			"trade_id": pos.TradeID, "reason": reason, "status": result.Status,
		})
		return
	}

	m.mu.Lock()
	pos.State = Closing
	pos.CloseOrderID = result.OrderID
	pos.CloseReason = reason
	pos.Chase = ChaseState{LastSubmittedMid: currentNet, SubmittedAt: now}
	m.persistLocked()
	m.mu.Unlock()

	observ.Log("position_close_initiated", map[string]any{"trade_id": pos.TradeID, "reason": reason})
}

func (m *Manager) chaseIfNeeded(ctx context.Context, pos *TrackedPosition, currentNet decimal.Decimal, now time.Time) {
	m.mu.Lock()
	decision := pos.Chase.Evaluate(currentNet, now, m.chaseParams)
	m.mu.Unlock()
	if decision != ChaseResubmit {
		return
	}

	m.mu.Lock()
	newPrice := pos.Chase.Resubmit(currentNet, now, m.chaseParams)
	side := pos.State
	m.mu.Unlock()

	resubmitCtx := map[string]any{"chase_attempt": pos.Chase.Attempts, "strategy_name": pos.Strategy, "bias": pos.Bias}
	if side == Opening {
		for k, v := range pos.OpenContext {
			resubmitCtx[k] = v
		}
	}
	resubmit := proposal.Proposal{
		Symbol:   pos.Symbol,
		Strategy: pos.Structure,
		Quantity: pos.Quantity,
		Price:    newPrice.Abs(),
		Legs:     pos.Legs,
		Context:  resubmitCtx,
	}
	if side == Closing {
		resubmit.Side = proposal.Close
	} else {
		resubmit.Side = proposal.Open
	}

	result, err := m.gate.SendProposal(ctx, resubmit)
	if err != nil || result.Status != "APPROVED" {
		observ.Warn("position_chase_not_approved", map[string]any{"trade_id": pos.TradeID, "status": result.Status})
		return
	}

	m.mu.Lock()
	if side == Closing {
		pos.CloseOrderID = result.OrderID
	} else {
		pos.OpenOrderID = result.OrderID
	}
	m.persistLocked()
	m.mu.Unlock()

	observ.Log("position_chased", map[string]any{"trade_id": pos.TradeID, "attempt": pos.Chase.Attempts, "new_price": newPrice.String()})
}

// Reconcile compares every tracked position's legs against the
// broker's true position book: positions closed outside this system
// (manual intervention, assignment, expiration) are dropped as
// ghosts; OPENING positions whose legs now fully appear in broker
// truth are promoted to OPEN (spec 4.F).
func (m *Manager) Reconcile(ctx context.Context, now time.Time) {
	live, err := m.quotes.GetPositions(ctx)
	if err != nil {
		observ.Warn("position_reconcile_fetch_failed", map[string]any{"error": err.Error()})
		return
	}
	brokerQty := map[string]int64{}
	for _, bp := range live {
		brokerQty[bp.OptionSymbol] += bp.Quantity
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	covered := map[string]bool{}
	for id, pos := range m.positions {
		matched := legsMatchBroker(pos, brokerQty)
		switch pos.State {
		case Opening:
			if matched {
				pos.State = Open
				observ.Log("position_promoted_open", map[string]any{"trade_id": id})
			}
		case Open, Closing:
			if !matched {
				pos.Closed = true
				pos.ClosedAt = now
				if pos.CloseReason == "" {
					pos.CloseReason = "reconciled_ghost_removed"
				}
				delete(m.positions, id)
				observ.Log("position_reconciled_removed", map[string]any{"trade_id": id, "reason": pos.CloseReason})
				continue
			}
		}
		for _, l := range pos.Legs {
			covered[l.OptionSymbol] = true
		}
	}

	// Broker legs with no matching tracked position are adopted under
	// MANUAL_RECOVERY, bias neutral (spec 9 Open Question: positions
	// opened outside this system, e.g. by a human or a prior crashed
	// run, are not discarded — they are tracked and exited like any
	// other neutral structure).
	for symbol, qty := range brokerQty {
		if covered[symbol] || qty == 0 {
			continue
		}
		side := proposal.Buy
		legQty := qty
		if qty < 0 {
			side = proposal.Sell
			legQty = -qty
		}
		tradeID := "manual-recovery-" + symbol
		m.positions[tradeID] = &TrackedPosition{
			TradeID:   tradeID,
			Symbol:    underlyingFromOCC(symbol),
			Strategy:  "MANUAL_RECOVERY",
			Structure: "MANUAL_RECOVERY",
			Bias:      "neutral",
			State:     Open,
			Legs:      []proposal.Leg{{OptionSymbol: symbol, Quantity: legQty, Side: side}},
			Quantity:  legQty,
			EntryTime: now,
		}
		observ.Log("position_manual_recovery_adopted", map[string]any{"trade_id": tradeID, "symbol": symbol})
	}
	m.persistLocked()
}

// underlyingFromOCC extracts the root symbol from an OCC-encoded
// option symbol (everything before the first digit).
func underlyingFromOCC(occSymbol string) string {
	for i, r := range occSymbol {
		if r >= '0' && r <= '9' {
			return occSymbol[:i]
		}
	}
	return occSymbol
}

func legsMatchBroker(pos *TrackedPosition, brokerQty map[string]int64) bool {
	for _, l := range pos.Legs {
		want := l.Quantity
		if l.Side == proposal.Sell {
			want = -want
		}
		got, ok := brokerQty[l.OptionSymbol]
		if !ok || got != want {
			return false
		}
	}
	return len(pos.Legs) > 0
}

func (m *Manager) persistLocked() {
	if err := m.store.Save(m.positions); err != nil {
		observ.Warn("position_persist_failed", map[string]any{"error": err.Error()})
	}
}
