package broker

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/optionsdesk/trading-engine/internal/observ"
)

// MockClient is a deterministic in-memory broker used for local
// development and tests, grounded on internal/adapters/mock.go.
type MockClient struct {
	mu        sync.Mutex
	rng       *rand.Rand
	positions []BrokerPosition
	equity    decimal.Decimal
	orders    map[string]MultiLegOrder
	nextID    int
}

// NewMockClient creates a MockClient seeded with a starting equity.
func NewMockClient(startingEquity decimal.Decimal) *MockClient {
	return &MockClient{
		rng:    rand.New(rand.NewSource(1)),
		equity: startingEquity,
		orders: map[string]MultiLegOrder{},
	}
}

func (m *MockClient) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	base := decimal.NewFromFloat(100 + m.rng.Float64()*300)
	spread := decimal.NewFromFloat(0.02)
	return Quote{
		Symbol:    symbol,
		Bid:       base.Sub(spread),
		Ask:       base.Add(spread),
		Last:      base,
		Timestamp: time.Now().UTC(),
		Source:    "mock",
	}, nil
}

func (m *MockClient) GetQuotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	out := map[string]Quote{}
	for _, s := range symbols {
		q, err := m.GetQuote(ctx, s)
		if err != nil {
			return nil, err
		}
		out[s] = q
	}
	return out, nil
}

func (m *MockClient) GetExpirations(ctx context.Context, underlying string) ([]Expiration, error) {
	now := time.Now().UTC()
	out := make([]Expiration, 0, 8)
	for _, dte := range []int{7, 14, 21, 30, 37, 44, 60} {
		out = append(out, Expiration{Date: now.AddDate(0, 0, dte), DTE: dte})
	}
	return out, nil
}

func (m *MockClient) GetOptionChain(ctx context.Context, underlying string, expiration time.Time) ([]ChainLeg, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	center := 400 + m.rng.Float64()*20
	out := make([]ChainLeg, 0, 40)
	for i := -20; i <= 20; i++ {
		strike := decimal.NewFromFloat(center + float64(i))
		for _, t := range []OptionType{Put, Call} {
			mid := decimal.NewFromFloat(1 + m.rng.Float64()*3)
			out = append(out, ChainLeg{
				Strike: strike,
				Type:   t,
				Quote: Quote{
					Bid:   mid.Sub(decimal.NewFromFloat(0.05)),
					Ask:   mid.Add(decimal.NewFromFloat(0.05)),
					Delta: decimal.NewFromFloat(0.3),
					IV:    decimal.NewFromFloat(0.18 + m.rng.Float64()*0.25),
				},
			})
		}
	}
	return out, nil
}

func (m *MockClient) GetPositions(ctx context.Context) ([]BrokerPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]BrokerPosition, len(m.positions))
	copy(out, m.positions)
	return out, nil
}

func (m *MockClient) GetBalances(ctx context.Context) (Balances, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Balances{Equity: m.equity, Timestamp: time.Now().UTC()}, nil
}

func (m *MockClient) SubmitMultiLegOrder(ctx context.Context, order MultiLegOrder) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := fmt.Sprintf("mock-order-%d", m.nextID)
	m.orders[id] = order
	observ.Log("mock_broker_order_submitted", map[string]any{"order_id": id, "underlying": order.Underlying, "legs": len(order.Legs)})
	for _, leg := range order.Legs {
		qty := leg.Quantity
		if leg.Side == SellToOpen || leg.Side == SellToClose {
			qty = -qty
		}
		m.positions = append(m.positions, BrokerPosition{OptionSymbol: leg.OptionSymbol, Quantity: qty, DateAcquired: time.Now().UTC()})
	}
	return id, nil
}

func (m *MockClient) CancelOrder(ctx context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.orders, orderID)
	return nil
}

func (m *MockClient) HealthCheck(ctx context.Context) error { return nil }
func (m *MockClient) Close() error                          { return nil }
