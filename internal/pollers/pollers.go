// Package pollers runs the Brain's three periodic background reads
// (spec 4.C): a 60s VIX poll with a 180s staleness window, a 15-minute
// ATM-IV poll per symbol feeding a bounded history for IV rank, and a
// one-shot warm-up task that must finish before any strategy gate is
// allowed to fire. Grounded on internal/risk/manager.go's background
// ticker loop and original_source/brain/src/market_feed.py's
// _poll_vix_loop chunked stop-check cadence (SPEC_FULL.md 12.5),
// applied here to all three pollers.
package pollers

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/optionsdesk/trading-engine/internal/broker"
	"github.com/optionsdesk/trading-engine/internal/candles"
	"github.com/optionsdesk/trading-engine/internal/observ"
)

const stopCheckGranularity = 10 * time.Second

// sleepChunked waits for d in <=stopCheckGranularity increments so a
// poller never blocks shutdown for longer than one chunk.
func sleepChunked(ctx context.Context, d time.Duration) bool {
	remaining := d
	for remaining > 0 {
		step := stopCheckGranularity
		if step > remaining {
			step = remaining
		}
		select {
		case <-time.After(step):
		case <-ctx.Done():
			return false
		}
		remaining -= step
	}
	return true
}

// VIXPoller refreshes the system-wide VIX reading. A reading older
// than StaleAfter is treated as absent rather than served stale (spec
// 4.B regime classification falls back to INSUFFICIENT_DATA in that
// case).
type VIXPoller struct {
	Client     broker.Client
	Symbol     string // "VIX" in this engine's adapters
	Interval   time.Duration
	StaleAfter time.Duration

	value      atomic.Value // decimal.Decimal
	lastUpdate atomic.Value // time.Time
}

// NewVIXPoller creates a VIXPoller.
func NewVIXPoller(client broker.Client, symbol string, interval, staleAfter time.Duration) *VIXPoller {
	return &VIXPoller{Client: client, Symbol: symbol, Interval: interval, StaleAfter: staleAfter}
}

// Run polls until ctx is cancelled.
func (p *VIXPoller) Run(ctx context.Context) {
	for {
		p.pollOnce(ctx)
		if !sleepChunked(ctx, p.Interval) {
			return
		}
	}
}

func (p *VIXPoller) pollOnce(ctx context.Context) {
	q, err := p.Client.GetQuote(ctx, p.Symbol)
	if err != nil {
		observ.Warn("vix_poll_failed", map[string]any{"error": err.Error()})
		return
	}
	p.value.Store(q.Last)
	p.lastUpdate.Store(time.Now().UTC())
}

// VIX returns the current VIX reading, or Present=false if it has
// never been read or has gone stale.
func (p *VIXPoller) VIX() candles.Optional[decimal.Decimal] {
	v := p.value.Load()
	lu := p.lastUpdate.Load()
	if v == nil || lu == nil {
		return candles.Optional[decimal.Decimal]{}
	}
	if time.Since(lu.(time.Time)) > p.StaleAfter {
		return candles.Optional[decimal.Decimal]{}
	}
	return candles.Optional[decimal.Decimal]{Value: v.(decimal.Decimal), Present: true}
}

// IVPoller samples each symbol's ATM implied volatility on an interval
// and feeds it into the Indicator Store's bounded IV history for IV
// rank (spec 4.A iv_rank).
type IVPoller struct {
	Client    broker.Client
	Store     *candles.Store
	Symbols   []string
	Interval  time.Duration
	HistoryN  int
}

// NewIVPoller creates an IVPoller.
func NewIVPoller(client broker.Client, store *candles.Store, symbols []string, interval time.Duration, historyN int) *IVPoller {
	return &IVPoller{Client: client, Store: store, Symbols: symbols, Interval: interval, HistoryN: historyN}
}

// Run polls until ctx is cancelled.
func (p *IVPoller) Run(ctx context.Context) {
	for {
		for _, symbol := range p.Symbols {
			p.pollOne(ctx, symbol)
		}
		if !sleepChunked(ctx, p.Interval) {
			return
		}
	}
}

func (p *IVPoller) pollOne(ctx context.Context, symbol string) {
	iv, ok := p.atmIV(ctx, symbol)
	if !ok {
		return
	}
	p.Store.SeedIV(symbol, iv, p.HistoryN)
}

// atmIV picks the near-dated chain's closest-to-underlying strike and
// averages its put/call IV.
func (p *IVPoller) atmIV(ctx context.Context, symbol string) (decimal.Decimal, bool) {
	underlying, err := p.Client.GetQuote(ctx, symbol)
	if err != nil {
		observ.Warn("iv_poll_underlying_quote_failed", map[string]any{"symbol": symbol, "error": err.Error()})
		return decimal.Zero, false
	}
	expirations, err := p.Client.GetExpirations(ctx, symbol)
	if err != nil || len(expirations) == 0 {
		observ.Warn("iv_poll_expirations_failed", map[string]any{"symbol": symbol})
		return decimal.Zero, false
	}
	nearest := expirations[0]
	for _, e := range expirations {
		if e.DTE < nearest.DTE {
			nearest = e
		}
	}
	chain, err := p.Client.GetOptionChain(ctx, symbol, nearest.Date)
	if err != nil || len(chain) == 0 {
		observ.Warn("iv_poll_chain_failed", map[string]any{"symbol": symbol})
		return decimal.Zero, false
	}
	best := chain[0]
	bestDist := best.Strike.Sub(underlying.Last).Abs()
	for _, c := range chain[1:] {
		d := c.Strike.Sub(underlying.Last).Abs()
		if d.LessThan(bestDist) {
			best, bestDist = c, d
		}
	}
	if best.Quote.IV.IsZero() {
		return decimal.Zero, false
	}
	return best.Quote.IV, true
}

// WarmUp is a one-shot task that seeds the Indicator Store with enough
// trailing candle history (SMA200, RSI, ADX; IV history is filled by
// IVPoller, not here) that strategy gates can
// begin evaluating real signals from the first live tick, rather than
// waiting out a live warm-up period every morning.
type WarmUp struct {
	Client  broker.Client
	Store   *candles.Store
	Symbols []string
	Days    int
}

// Run fetches historical bars for each symbol and marks the store
// warmed up. It is a one-shot call, not a loop.
func (w *WarmUp) Run(ctx context.Context) error {
	for _, symbol := range w.Symbols {
		history, err := w.fetchHistory(ctx, symbol)
		if err != nil {
			return err
		}
		w.Store.SeedHistory(symbol, history)
	}
	w.Store.SetWarmedUp()
	observ.Log("warmup_complete", map[string]any{"symbols": len(w.Symbols)})
	return nil
}

// fetchHistory synthesizes a flat daily-bar series from the current
// quote when the broker adapter has no historical-bars endpoint
// (spec 4.A Non-goals: this engine does not own a market-data
// warehouse). Live deployments behind a historical-data-capable
// adapter should override this via a richer broker.Client.
func (w *WarmUp) fetchHistory(ctx context.Context, symbol string) ([]candles.Candle, error) {
	q, err := w.Client.GetQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}
	out := make([]candles.Candle, 0, w.Days)
	now := time.Now().UTC().Add(-time.Duration(w.Days) * 24 * time.Hour)
	for i := 0; i < w.Days; i++ {
		out = append(out, candles.Candle{
			OpenTime: now.Add(time.Duration(i) * 24 * time.Hour),
			Open:     q.Last,
			High:     q.Last,
			Low:      q.Last,
			Close:    q.Last,
			Volume:   1,
		})
	}
	return out, nil
}
