package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/optionsdesk/trading-engine/internal/notify"
	"github.com/optionsdesk/trading-engine/internal/observ"
)

// StatusSnapshot is what /v1/status reports.
type StatusSnapshot struct {
	Status          string    `json:"status"`
	Reason          string    `json:"reason,omitempty"`
	LastHeartbeat   time.Time `json:"last_heartbeat,omitempty"`
	HeartbeatAgeS   float64   `json:"heartbeat_age_s,omitempty"`
	RestrictedDates []string  `json:"restricted_dates"`
}

// Lock manually transitions the Gate to LOCKED (spec 4.H admin
// endpoints). Held proposals for Open continue to be rejected until
// Unlock; Close proposals are unaffected.
func (g *Gate) Lock(ctx context.Context, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status = Locked
	g.lockReason = reason
	if err := g.ledger.SetSystemStatus(ctx, systemStatus(g.status, g.lockReason)); err != nil {
		return err
	}
	g.notify.Notify(ctx, notifySystemLocked(reason))
	return nil
}

// Unlock clears a LOCKED state back to NORMAL.
func (g *Gate) Unlock(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status = Normal
	g.lockReason = ""
	return g.ledger.SetSystemStatus(ctx, systemStatus(g.status, ""))
}

// UpdateCalendar replaces the restricted-date set wholesale (spec
// 4.H: calendar update is a full replace, not a merge).
func (g *Gate) UpdateCalendar(dates []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	next := make(map[string]bool, len(dates))
	for _, d := range dates {
		next[d] = true
	}
	g.restrictedDates = next
}

// Heartbeat records that the Brain is alive. Failures to receive one
// are surfaced only via HeartbeatAge staying stale; they never block
// proposal evaluation (spec 7).
func (g *Gate) Heartbeat(state map[string]any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastHeartbeat = time.Now().UTC()
	g.lastHeartbeatSet = true
}

// Status returns a snapshot of the Gate's current state.
func (g *Gate) Status() StatusSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := StatusSnapshot{Status: string(g.status), Reason: g.lockReason, RestrictedDates: make([]string, 0, len(g.restrictedDates))}
	for d := range g.restrictedDates {
		s.RestrictedDates = append(s.RestrictedDates, d)
	}
	if g.lastHeartbeatSet {
		s.LastHeartbeat = g.lastHeartbeat
		s.HeartbeatAgeS = time.Since(g.lastHeartbeat).Seconds()
	}
	return s
}

// RunHeartbeatMonitor keeps the heartbeat-age gauge current until ctx
// is cancelled, grounded on internal/risk/manager.go's
// healthMonitoringLoop ticker pattern.
func (g *Gate) RunHeartbeatMonitor(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if g.metrics == nil {
				continue
			}
			g.mu.Lock()
			set := g.lastHeartbeatSet
			age := time.Since(g.lastHeartbeat).Seconds()
			g.mu.Unlock()
			if set {
				g.metrics.HeartbeatAge.Set(age)
			}
		}
	}
}

// LiquidateResult is one line of Liquidate's per-order report (spec
// 6: `{status: LOCKED, results[]}`).
type LiquidateResult struct {
	OrderID string `json:"order_id"`
	Symbol  string `json:"symbol"`
	Status  string `json:"status"` // cancelled | cancel_failed
	Error   string `json:"error,omitempty"`
}

// Liquidate cancels every pending order per symbol and locks the
// system (spec 4.H admin: "cancel pending orders per symbol; lock" —
// an operator emergency stop, not a risk-gated trade). It never
// submits new closing orders; that is a deliberately different,
// stronger action than Position Manager exits.
func (g *Gate) Liquidate(ctx context.Context, reason string) ([]LiquidateResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	pending, err := g.ledger.PendingOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("gate: liquidate: list pending orders: %w", err)
	}
	results := make([]LiquidateResult, 0, len(pending))
	var firstErr error
	for _, o := range pending {
		if err := g.broker.CancelOrder(ctx, o.ID); err != nil {
			observ.Error("liquidate_cancel_failed", map[string]any{"order_id": o.ID, "symbol": o.Symbol, "error": err.Error()})
			results = append(results, LiquidateResult{OrderID: o.ID, Symbol: o.Symbol, Status: "cancel_failed", Error: err.Error()})
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		_ = g.ledger.UpdateOrderStatus(ctx, o.ID, "cancelled", decimal.Zero)
		results = append(results, LiquidateResult{OrderID: o.ID, Symbol: o.Symbol, Status: "cancelled"})
	}
	g.status = Locked
	g.lockReason = "liquidated: " + reason
	_ = g.ledger.SetSystemStatus(ctx, systemStatus(g.status, g.lockReason))
	g.notify.Notify(ctx, notify.Message{Kind: notify.SystemLocked, Summary: "liquidation complete: " + reason})
	return results, firstErr
}

// RunEndOfDay assembles and emits the end-of-day report (spec 4.H,
// 12.6): recent proposal outcomes plus the closing balance.
func (g *Gate) RunEndOfDay(ctx context.Context) error {
	bal, err := g.broker.GetBalances(ctx)
	if err != nil {
		return err
	}
	recent, err := g.ledger.RecentProposals(ctx, 500)
	if err != nil {
		return err
	}
	approved, rejected := 0, 0
	for _, r := range recent {
		switch r.Status {
		case "APPROVED":
			approved++
		case "REJECTED":
			rejected++
		}
	}
	g.notify.Notify(ctx, notify.Message{
		Kind:    notify.EndOfDayReport,
		Summary: fmt.Sprintf("end of day: equity %s, %d approved, %d rejected", bal.Equity.StringFixed(2), approved, rejected),
		Detail:  map[string]any{"equity": bal.Equity, "approved": approved, "rejected": rejected},
	})
	return nil
}
