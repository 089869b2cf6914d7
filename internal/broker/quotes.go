package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a bid/ask/last snapshot for an underlying or option symbol.
type Quote struct {
	Symbol    string
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	Last      decimal.Decimal
	Delta     decimal.Decimal // option greeks; zero for underlyings
	IV        decimal.Decimal // implied volatility; zero for underlyings
	Timestamp time.Time
	Source    string
}

// Mid returns the midpoint of bid/ask.
func (q Quote) Mid() decimal.Decimal {
	return q.Bid.Add(q.Ask).Div(decimal.NewFromInt(2))
}

// Expiration is a listed option expiration date and its days to expiration.
type Expiration struct {
	Date time.Time
	DTE  int
}

// ChainLeg is one strike/type row of an option chain, quote included.
type ChainLeg struct {
	Strike decimal.Decimal
	Type   OptionType
	Quote  Quote
}

// BrokerPosition is one open leg as reported by the brokerage (ground
// truth per spec 3: "the broker is the source of truth for positions").
type BrokerPosition struct {
	OptionSymbol string
	Quantity     int64 // signed: positive long, negative short
	CostBasis    decimal.Decimal
	DateAcquired time.Time
}

// Balances is the account snapshot used for equity/daily-loss checks.
type Balances struct {
	Equity    decimal.Decimal
	Timestamp time.Time
}

// Client is the full adapter surface the Brain and Gate use to talk
// to the brokerage. A single interface (rather than separate quotes
// vs order-execution adapters as in the teacher) because the Gate
// needs both quote and execution calls in one reconciliation pass.
type Client interface {
	GetQuote(ctx context.Context, symbol string) (Quote, error)
	GetQuotes(ctx context.Context, symbols []string) (map[string]Quote, error)
	GetExpirations(ctx context.Context, underlying string) ([]Expiration, error)
	GetOptionChain(ctx context.Context, underlying string, expiration time.Time) ([]ChainLeg, error)
	GetPositions(ctx context.Context) ([]BrokerPosition, error)
	GetBalances(ctx context.Context) (Balances, error)
	SubmitMultiLegOrder(ctx context.Context, order MultiLegOrder) (orderID string, err error)
	CancelOrder(ctx context.Context, orderID string) error
	HealthCheck(ctx context.Context) error
	Close() error
}
