package gate

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/optionsdesk/trading-engine/internal/broker"
	"github.com/optionsdesk/trading-engine/internal/ledger"
	"github.com/optionsdesk/trading-engine/internal/notify"
)

// occStrikeCheck validates that occSymbol decodes as an OCC option
// symbol, without needing the decoded strike itself.
func occStrikeCheck(occSymbol string) (decimal.Decimal, error) {
	return broker.DecodeOCCStrike(occSymbol)
}

// occRoot strips the trailing 15-character date+type+strike suffix
// (YYMMDD + C/P + 8-digit strike) from an OCC symbol, leaving the
// underlying root.
func occRoot(occSymbol string) string {
	if len(occSymbol) <= 15 {
		return occSymbol
	}
	return occSymbol[:len(occSymbol)-15]
}

// trade groups broker legs sharing a root symbol, the unit the
// position-count and concentration checks reason about.
type trade struct {
	root     string
	legCount int
}

// currentTrades reads the broker's live position book and folds it
// into per-underlying trade groups (spec 6: "the broker is the source
// of truth for positions" — the Gate never trusts its own memory for
// risk-limit counting).
func (g *Gate) currentTrades(ctx context.Context) ([]trade, error) {
	positions, err := g.broker.GetPositions(ctx)
	if err != nil {
		return nil, err
	}
	byRoot := map[string]int{}
	for _, p := range positions {
		if p.Quantity == 0 {
			continue
		}
		byRoot[occRoot(p.OptionSymbol)]++
	}
	out := make([]trade, 0, len(byRoot))
	for root, n := range byRoot {
		out = append(out, trade{root: root, legCount: n})
	}
	return out, nil
}

// removeMostRecentOpenMeta locates the most recently opened Position
// Metadata entry matching (symbol, strategy) and removes it, per spec
// 4.H execution: "on CLOSE, locate the most recent matching OPEN order
// for (symbol, strategy) and remove its metadata."
func (g *Gate) removeMostRecentOpenMeta(symbol, strategy string) {
	var bestID string
	var bestAt time.Time
	for id, meta := range g.positionMeta {
		if meta.Symbol != symbol || meta.Strategy != strategy {
			continue
		}
		if bestID == "" || meta.OpenedAt.After(bestAt) {
			bestID, bestAt = id, meta.OpenedAt
		}
	}
	if bestID != "" {
		delete(g.positionMeta, bestID)
	}
}

func systemStatus(status Status, reason string) ledger.SystemStatus {
	return ledger.SystemStatus{Status: string(status), Reason: reason, UpdatedAt: time.Now().UTC()}
}

func notifySystemLocked(reason string) notify.Message {
	return notify.Message{Kind: notify.SystemLocked, Summary: "system locked: " + reason, Detail: map[string]any{"reason": reason}}
}
