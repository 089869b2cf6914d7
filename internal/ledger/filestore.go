package ledger

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// FileStore persists the ledger as JSONL append files (proposals.jsonl,
// orders.jsonl) plus atomically-rewritten snapshot files
// (positions_snapshot.json, system_status.json), grounded on
// internal/outbox/outbox.go and internal/portfolio/state.go.
type FileStore struct {
	mu  sync.Mutex
	dir string

	proposalsPath    string
	ordersPath       string
	positionsPath    string
	systemStatusPath string

	proposalsCache []ProposalRecord
	positionsCache []PositionSnapshotRow
	orders         map[string]OrderRecord
	status         SystemStatus
}

// NewFileStore opens (creating if needed) the ledger directory dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	fs := &FileStore{
		dir:              dir,
		proposalsPath:    filepath.Join(dir, "proposals.jsonl"),
		ordersPath:       filepath.Join(dir, "orders.jsonl"),
		positionsPath:    filepath.Join(dir, "positions_snapshot.json"),
		systemStatusPath: filepath.Join(dir, "system_status.json"),
		orders:           map[string]OrderRecord{},
		status:           SystemStatus{Status: "NORMAL"},
	}
	if err := fs.loadCaches(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) loadCaches() error {
	if b, err := os.ReadFile(fs.proposalsPath); err == nil {
		sc := bufio.NewScanner(bytes.NewReader(b))
		for sc.Scan() {
			var r ProposalRecord
			if json.Unmarshal(sc.Bytes(), &r) == nil {
				fs.proposalsCache = append(fs.proposalsCache, r)
			}
		}
	}
	if b, err := os.ReadFile(fs.ordersPath); err == nil {
		sc := bufio.NewScanner(bytes.NewReader(b))
		for sc.Scan() {
			var r OrderRecord
			if json.Unmarshal(sc.Bytes(), &r) == nil {
				fs.orders[r.ID] = r
			}
		}
	}
	if b, err := os.ReadFile(fs.positionsPath); err == nil {
		_ = json.Unmarshal(b, &fs.positionsCache)
	}
	if b, err := os.ReadFile(fs.systemStatusPath); err == nil {
		_ = json.Unmarshal(b, &fs.status)
	}
	return nil
}

func appendLine(path string, v any) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = f.Write(b)
	return err
}

func atomicWriteJSON(path string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (fs *FileStore) AppendProposal(ctx context.Context, rec ProposalRecord) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := appendLine(fs.proposalsPath, rec); err != nil {
		return err
	}
	fs.proposalsCache = append(fs.proposalsCache, rec)
	return nil
}

func (fs *FileStore) AppendOrder(ctx context.Context, rec OrderRecord) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := appendLine(fs.ordersPath, rec); err != nil {
		return err
	}
	fs.orders[rec.ID] = rec
	return nil
}

func (fs *FileStore) UpdateOrderStatus(ctx context.Context, orderID, status string, filledPrice decimal.Decimal) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	rec, ok := fs.orders[orderID]
	if !ok {
		rec = OrderRecord{ID: orderID, CreatedAt: time.Now().UTC()}
	}
	rec.Status = status
	rec.FilledPrice = filledPrice
	rec.UpdatedAt = time.Now().UTC()
	if err := appendLine(fs.ordersPath, rec); err != nil {
		return err
	}
	fs.orders[orderID] = rec
	return nil
}

func (fs *FileStore) PendingOrders(ctx context.Context) ([]OrderRecord, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make([]OrderRecord, 0)
	for _, rec := range fs.orders {
		if rec.Status == "pending" {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (fs *FileStore) RewritePositionsSnapshot(ctx context.Context, rows []PositionSnapshotRow) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := atomicWriteJSON(fs.positionsPath, rows); err != nil {
		return err
	}
	fs.positionsCache = rows
	return nil
}

func (fs *FileStore) RecentProposals(ctx context.Context, n int) ([]ProposalRecord, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.proposalsCache) <= n {
		out := make([]ProposalRecord, len(fs.proposalsCache))
		copy(out, fs.proposalsCache)
		return out, nil
	}
	out := make([]ProposalRecord, n)
	copy(out, fs.proposalsCache[len(fs.proposalsCache)-n:])
	return out, nil
}

func (fs *FileStore) PositionsSnapshot(ctx context.Context) ([]PositionSnapshotRow, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make([]PositionSnapshotRow, len(fs.positionsCache))
	copy(out, fs.positionsCache)
	return out, nil
}

func (fs *FileStore) SetSystemStatus(ctx context.Context, status SystemStatus) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	status.UpdatedAt = time.Now().UTC()
	if err := atomicWriteJSON(fs.systemStatusPath, status); err != nil {
		return err
	}
	fs.status = status
	return nil
}

func (fs *FileStore) GetSystemStatus(ctx context.Context) (SystemStatus, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.status, nil
}

func (fs *FileStore) Close() error { return nil }
