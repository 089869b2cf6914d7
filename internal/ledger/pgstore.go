package ledger

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/optionsdesk/trading-engine/internal/observ"
)

// PgStore is an optional Postgres-backed ledger.Store, wired per
// SPEC_FULL.md 11 for operators who want a real relational store
// behind the same interface as FileStore. The physical storage engine
// itself stays an external collaborator (spec 1); this is only the
// client binding and the DDL it expects to find already applied.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore connects to dsn and returns a PgStore. Callers are
// expected to have applied the ledger schema (proposals, orders,
// positions, system_status tables per spec 6) out of band.
func NewPgStore(ctx context.Context, dsn string) (*PgStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	observ.Log("ledger_pgstore_connected", map[string]any{})
	return &PgStore{pool: pool}, nil
}

func (s *PgStore) AppendProposal(ctx context.Context, rec ProposalRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO proposals (id, ts_s, symbol, strategy, side, quantity, context_json, status, rejection_reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.TimestampS, rec.Symbol, rec.Strategy, rec.Side, rec.Quantity, rec.ContextJSON, rec.Status, rec.RejectionReason)
	return err
}

func (s *PgStore) AppendOrder(ctx context.Context, rec OrderRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO orders (id, proposal_id, symbol, status, filled_price, quantity, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, filled_price = EXCLUDED.filled_price, updated_at = EXCLUDED.updated_at`,
		rec.ID, rec.ProposalID, rec.Symbol, rec.Status, rec.FilledPrice.String(), rec.Quantity, rec.CreatedAt, rec.UpdatedAt)
	return err
}

func (s *PgStore) UpdateOrderStatus(ctx context.Context, orderID, status string, filledPrice decimal.Decimal) error {
	_, err := s.pool.Exec(ctx, `UPDATE orders SET status=$2, filled_price=$3, updated_at=$4 WHERE id=$1`,
		orderID, status, filledPrice.String(), time.Now().UTC())
	return err
}

func (s *PgStore) PendingOrders(ctx context.Context) ([]OrderRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, proposal_id, symbol, status, quantity, created_at, updated_at FROM orders WHERE status = 'pending'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OrderRecord
	for rows.Next() {
		var r OrderRecord
		if err := rows.Scan(&r.ID, &r.ProposalID, &r.Symbol, &r.Status, &r.Quantity, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PgStore) RewritePositionsSnapshot(ctx context.Context, rows []PositionSnapshotRow) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, `TRUNCATE positions`); err != nil {
		return err
	}
	for _, r := range rows {
		if _, err := tx.Exec(ctx, `
			INSERT INTO positions (symbol, quantity, cost_basis, date_acquired, updated_at)
			VALUES ($1,$2,$3,$4,$5)`,
			r.Symbol, r.Quantity, r.CostBasis.String(), r.DateAcquired, r.UpdatedAt); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PgStore) RecentProposals(ctx context.Context, n int) ([]ProposalRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, ts_s, symbol, strategy, side, quantity, status, rejection_reason FROM proposals ORDER BY ts_s DESC LIMIT $1`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ProposalRecord
	for rows.Next() {
		var r ProposalRecord
		if err := rows.Scan(&r.ID, &r.TimestampS, &r.Symbol, &r.Strategy, &r.Side, &r.Quantity, &r.Status, &r.RejectionReason); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PgStore) PositionsSnapshot(ctx context.Context) ([]PositionSnapshotRow, error) {
	rows, err := s.pool.Query(ctx, `SELECT symbol, quantity, cost_basis, date_acquired, updated_at FROM positions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PositionSnapshotRow
	for rows.Next() {
		var r PositionSnapshotRow
		var costBasis string
		if err := rows.Scan(&r.Symbol, &r.Quantity, &costBasis, &r.DateAcquired, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.CostBasis, _ = decimal.NewFromString(costBasis)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PgStore) SetSystemStatus(ctx context.Context, status SystemStatus) error {
	status.UpdatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO system_status (id, status, reason, updated_at) VALUES ('singleton', $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, reason = EXCLUDED.reason, updated_at = EXCLUDED.updated_at`,
		status.Status, status.Reason, status.UpdatedAt)
	return err
}

func (s *PgStore) GetSystemStatus(ctx context.Context) (SystemStatus, error) {
	var st SystemStatus
	err := s.pool.QueryRow(ctx, `SELECT status, reason, updated_at FROM system_status WHERE id='singleton'`).
		Scan(&st.Status, &st.Reason, &st.UpdatedAt)
	if err != nil {
		return SystemStatus{Status: "NORMAL"}, nil
	}
	return st, nil
}

func (s *PgStore) Close() error {
	s.pool.Close()
	return nil
}
