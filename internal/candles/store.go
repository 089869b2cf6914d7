// Package candles implements the Indicator Store (spec 4.A): a
// per-symbol 1-minute candle ring, session VWAP, SMA/RSI/ADX, a volume
// profile, and IV rank tracking. Every derived value is returned as an
// Optional so callers can distinguish "not yet enough data" from a
// real zero, matching the absent-value idiom in
// internal/adapters/quotes.go.
package candles

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/optionsdesk/trading-engine/internal/config"
)

// Optional wraps a value that may be absent. Consumers must treat a
// missing value as "do not trade on this signal" (spec 4.A contract).
type Optional[T any] struct {
	Value   T
	Present bool
}

func some[T any](v T) Optional[T] { return Optional[T]{Value: v, Present: true} }

func none[T any]() Optional[T] { return Optional[T]{} }

// Candle is one closed one-minute bar.
type Candle struct {
	OpenTime time.Time
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	Volume   int64
}

// RingCapacity is the minimum number of closed minutes the ring keeps
// (spec 4.3 Candle invariant: "ring keeps at least 1500 minutes").
const RingCapacity = 1500

// bucketWidth is the volume-profile bucket width for index ETFs (4.A).
var bucketWidth = decimal.NewFromFloat(0.25)

type symbolState struct {
	mu sync.RWMutex

	candles []Candle // ring buffer, oldest first, capped at RingCapacity
	partial *Candle  // the currently-open, not-yet-closed minute bar

	lastPrice    decimal.Decimal
	hasLastPrice bool

	vwap vwapState
	rsi  map[int]*rsiState
	adx  *adxState

	volProfile map[int64]int64 // bucket key (price/width, rounded) -> cumulative volume this session
	sessionKey string          // "YYYY-MM-DD" in ET, used to detect session rollover for vwap/profile

	ivHistory []decimal.Decimal // bounded at config length, most recent last
	warmedUp  bool
}

func newSymbolState() *symbolState {
	return &symbolState{
		rsi:        map[int]*rsiState{14: newRSIState(14), 2: newRSIState(2)},
		adx:        newADXState(14),
		volProfile: map[int64]int64{},
	}
}

// Store owns all per-symbol indicator state. It is the exclusive
// writer of candle rings (spec 3, Ownership); strategy gates and
// heartbeat snapshots only read from it.
type Store struct {
	mu       sync.RWMutex
	symbols  map[string]*symbolState
	warmedUp bool // global: true once the startup warm-up task has completed for all symbols
}

// NewStore creates an empty Store for the given symbol universe.
func NewStore(symbols []string) *Store {
	s := &Store{symbols: map[string]*symbolState{}}
	for _, sym := range symbols {
		s.symbols[sym] = newSymbolState()
	}
	return s
}

func (s *Store) state(symbol string) *symbolState {
	s.mu.RLock()
	st, ok := s.symbols[symbol]
	s.mu.RUnlock()
	if ok {
		return st
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.symbols[symbol]; ok {
		return st
	}
	st = newSymbolState()
	s.symbols[symbol] = st
	return st
}

// SetWarmedUp marks the store as ready for strategy evaluation. Until
// this is called, Price/SMA/RSI all return absent (spec 4.A Warm-up).
func (s *Store) SetWarmedUp() {
	s.mu.Lock()
	s.warmedUp = true
	s.mu.Unlock()
}

// WarmedUp reports whether startup warm-up has completed.
func (s *Store) WarmedUp() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.warmedUp
}

func minuteFloor(ts time.Time) time.Time {
	return ts.Truncate(time.Minute)
}

// OnTrade ingests one trade tick, aggregating it into the in-progress
// minute bar and updating VWAP and the volume profile. On minute
// rollover the in-progress bar is closed and folded into SMA/RSI/ADX.
func (s *Store) OnTrade(symbol string, price decimal.Decimal, size int64, ts time.Time) {
	st := s.state(symbol)
	st.mu.Lock()
	defer st.mu.Unlock()

	st.lastPrice = price
	st.hasLastPrice = true

	st.rollSessionIfNeeded(ts)
	if !ts.Before(st.vwap.sessionStart) {
		st.vwap.add(price, size)
	}
	st.addVolumeProfile(price, size)

	minute := minuteFloor(ts)
	if st.partial == nil || !st.partial.OpenTime.Equal(minute) {
		if st.partial != nil {
			st.closeBar(*st.partial)
		}
		st.partial = &Candle{OpenTime: minute, Open: price, High: price, Low: price, Close: price, Volume: size}
		return
	}
	if price.GreaterThan(st.partial.High) {
		st.partial.High = price
	}
	if price.LessThan(st.partial.Low) {
		st.partial.Low = price
	}
	st.partial.Close = price
	st.partial.Volume += size
}

// OnQuote ingests a bid/ask update. The Indicator Store does not
// currently derive anything from quotes alone beyond keeping the
// stream alive; Position Manager and Strategy Gates fetch quotes
// directly from the broker adapter for pricing.
func (s *Store) OnQuote(symbol string, bid, ask decimal.Decimal, ts time.Time) {
	_ = symbol
	_ = bid
	_ = ask
	_ = ts
}

func (st *symbolState) closeBar(c Candle) {
	st.candles = append(st.candles, c)
	if len(st.candles) > RingCapacity {
		st.candles = st.candles[len(st.candles)-RingCapacity:]
	}
	prevClose := decimal.Zero
	hasPrev := len(st.candles) >= 2
	if hasPrev {
		prevClose = st.candles[len(st.candles)-2].Close
	}
	for _, rs := range st.rsi {
		if hasPrev {
			rs.update(prevClose, c.Close)
		}
	}
	st.adx.update(c)
}

func (st *symbolState) rollSessionIfNeeded(ts time.Time) {
	et := ts.In(config.ETLocation())
	key := et.Format("2006-01-02")
	if st.sessionKey == key {
		return
	}
	st.sessionKey = key
	st.vwap = vwapState{sessionStart: sessionOpen(et)}
	st.volProfile = map[int64]int64{}
}

func sessionOpen(et time.Time) time.Time {
	return time.Date(et.Year(), et.Month(), et.Day(), 9, 30, 0, 0, et.Location())
}

// Price returns the last traded price, absent if no trade has been seen.
func (s *Store) Price(symbol string) Optional[decimal.Decimal] {
	if !s.WarmedUp() {
		return none[decimal.Decimal]()
	}
	st := s.state(symbol)
	st.mu.RLock()
	defer st.mu.RUnlock()
	if !st.hasLastPrice {
		return none[decimal.Decimal]()
	}
	return some(st.lastPrice)
}

// SMA returns the arithmetic mean of the last n closed bars, absent
// if fewer than n bars are available.
func (s *Store) SMA(symbol string, n int) Optional[decimal.Decimal] {
	if !s.WarmedUp() {
		return none[decimal.Decimal]()
	}
	st := s.state(symbol)
	st.mu.RLock()
	defer st.mu.RUnlock()
	if len(st.candles) < n {
		return none[decimal.Decimal]()
	}
	sum := decimal.Zero
	window := st.candles[len(st.candles)-n:]
	for _, c := range window {
		sum = sum.Add(c.Close)
	}
	return some(sum.Div(decimal.NewFromInt(int64(n))))
}

// RSI returns Wilder-smoothed RSI(n), absent until n bar-to-bar
// changes (n+1 closed bars) have seeded the initial average (spec 4.A).
func (s *Store) RSI(symbol string, n int) Optional[decimal.Decimal] {
	if !s.WarmedUp() {
		return none[decimal.Decimal]()
	}
	st := s.state(symbol)
	st.mu.RLock()
	defer st.mu.RUnlock()
	rs, ok := st.rsi[n]
	if !ok || !rs.initialized {
		return none[decimal.Decimal]()
	}
	return some(rs.value())
}

// ADX returns Wilder ADX(n), absent until warmed up.
func (s *Store) ADX(symbol string, n int) Optional[decimal.Decimal] {
	if !s.WarmedUp() {
		return none[decimal.Decimal]()
	}
	st := s.state(symbol)
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.adx == nil || !st.adx.initialized {
		return none[decimal.Decimal]()
	}
	return some(st.adx.value)
}

// VWAP returns cumulative price*volume / cumulative volume since the
// regular session open (09:30 ET), absent if no trade has occurred
// since then; trades stamped before the open are not counted.
func (s *Store) VWAP(symbol string) Optional[decimal.Decimal] {
	st := s.state(symbol)
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.vwap.value()
}

// SeedHistory loads warm-up candles (spec 4.A Warm-up) directly into
// the ring, replaying RSI/ADX updates bar-by-bar so smoothed averages
// are correctly initialised rather than recomputed from scratch.
func (s *Store) SeedHistory(symbol string, history []Candle) {
	st := s.state(symbol)
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, c := range history {
		st.closeBar(c)
	}
	if len(history) > 0 {
		last := history[len(history)-1]
		st.lastPrice = last.Close
		st.hasLastPrice = true
	}
}

// SeedIV appends a daily ATM IV observation, bounded at capacity.
func (s *Store) SeedIV(symbol string, iv decimal.Decimal, capacity int) {
	st := s.state(symbol)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.ivHistory = append(st.ivHistory, iv)
	if len(st.ivHistory) > capacity {
		st.ivHistory = st.ivHistory[len(st.ivHistory)-capacity:]
	}
}

// IVRank returns the percentile rank of the most recently recorded IV
// within its own history window (spec 4.A iv_rank).
func (s *Store) IVRank(symbol string) Optional[decimal.Decimal] {
	st := s.state(symbol)
	st.mu.RLock()
	defer st.mu.RUnlock()
	n := len(st.ivHistory)
	if n == 0 {
		return none[decimal.Decimal]()
	}
	current := st.ivHistory[n-1]
	below := 0
	for _, v := range st.ivHistory {
		if v.LessThanOrEqual(current) {
			below++
		}
	}
	pct := decimal.NewFromInt(int64(below)).Div(decimal.NewFromInt(int64(n))).Mul(decimal.NewFromInt(100))
	return some(pct)
}
