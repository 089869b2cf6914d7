// Package ledger is the Gate's append-only audit trail (spec 3, 6):
// proposals, orders, a positions snapshot (truncated and rewritten on
// every reconciliation), and a system_status singleton row. Grounded
// on internal/outbox/outbox.go (JSONL append + dedupe window) and
// internal/portfolio/state.go (atomic temp+rename rewrite).
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ProposalRecord is one row of the proposals ledger.
type ProposalRecord struct {
	ID               string         `json:"id"`
	TimestampS       int64          `json:"ts_s"`
	Symbol           string         `json:"symbol"`
	Strategy         string         `json:"strategy"`
	Side             string         `json:"side"`
	Quantity         int64          `json:"quantity"`
	ContextJSON      map[string]any `json:"context_json"`
	Status           string         `json:"status"` // APPROVED | REJECTED | APPROVED_BUT_EXECUTION_FAILED
	RejectionReason  string         `json:"rejection_reason,omitempty"`
}

// OrderRecord is one row of the orders ledger.
type OrderRecord struct {
	ID          string          `json:"id"`
	ProposalID  string          `json:"proposal_id"`
	Symbol      string          `json:"symbol"`
	Status      string          `json:"status"` // pending | filled | cancelled | rejected
	FilledPrice decimal.Decimal `json:"filled_price,omitempty"`
	Quantity    int64           `json:"quantity"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// PositionSnapshotRow mirrors the broker's position book, refreshed on
// every reconciliation (spec 6: "positions is a snapshot, truncated
// and rewritten").
type PositionSnapshotRow struct {
	Symbol       string          `json:"symbol"`
	Quantity     int64           `json:"quantity"`
	CostBasis    decimal.Decimal `json:"cost_basis"`
	DateAcquired time.Time       `json:"date_acquired"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// SystemStatus is the singleton lock-state row.
type SystemStatus struct {
	Status    string `json:"status"` // NORMAL | LOCKED
	Reason    string `json:"reason,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the ledger's storage contract. FileStore is the default
// implementation; PgStore is an optional Postgres-backed alternative
// behind the same interface (SPEC_FULL.md 11).
type Store interface {
	AppendProposal(ctx context.Context, rec ProposalRecord) error
	AppendOrder(ctx context.Context, rec OrderRecord) error
	UpdateOrderStatus(ctx context.Context, orderID, status string, filledPrice decimal.Decimal) error
	PendingOrders(ctx context.Context) ([]OrderRecord, error)
	RewritePositionsSnapshot(ctx context.Context, rows []PositionSnapshotRow) error
	RecentProposals(ctx context.Context, n int) ([]ProposalRecord, error)
	PositionsSnapshot(ctx context.Context) ([]PositionSnapshotRow, error)
	SetSystemStatus(ctx context.Context, status SystemStatus) error
	GetSystemStatus(ctx context.Context) (SystemStatus, error)
	Close() error
}
