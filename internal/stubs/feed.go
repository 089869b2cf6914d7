// Package stubs serves a synthetic option-market tick feed over a
// websocket, standing in for the brokerage's streaming endpoint during
// local development and manual testing of the Stream Ingestor (4.D).
// Grounded on the teacher's internal/stubs SSE fixture server, rewired
// from its equity news/halts/tick fixture replay onto the wireTick
// envelope internal/ingest actually consumes, and from net/http SSE to
// github.com/gorilla/websocket to match the real stream transport.
package stubs

import (
	"log"
	"math/rand"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Tick is the synthetic wire event, matching internal/ingest's wireTick shape.
type Tick struct {
	Symbol string  `json:"symbol"`
	Kind   string  `json:"type"` // "trade" | "quote"
	Price  float64 `json:"price"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Size   int64   `json:"size"`
	TsMs   int64   `json:"ts_ms"`
}

// FeedServer generates a random-walk tick feed per symbol and pushes
// it to every connected websocket client.
type FeedServer struct {
	Symbols  []string
	Interval time.Duration
	upgrader websocket.Upgrader
	prices   map[string]float64
}

// NewFeedServer creates a FeedServer seeding every symbol at $100.
func NewFeedServer(symbols []string, interval time.Duration) *FeedServer {
	prices := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		prices[s] = 100.0
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &FeedServer{
		Symbols:  symbols,
		Interval: interval,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		prices:   prices,
	}
}

// ServeHTTP upgrades the connection and streams ticks until the client
// disconnects or the request context is cancelled.
func (f *FeedServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("stub feed: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(f.Interval)
	defer ticker.Stop()
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, symbol := range f.Symbols {
				tick := f.nextTick(symbol)
				if err := conn.WriteJSON(tick); err != nil {
					return
				}
			}
		}
	}
}

func (f *FeedServer) nextTick(symbol string) Tick {
	price := f.prices[symbol]
	price += (rand.Float64() - 0.5) * 0.2
	if price < 1 {
		price = 1
	}
	f.prices[symbol] = price

	spread := 0.02
	return Tick{
		Symbol: symbol,
		Kind:   "trade",
		Price:  round2(price),
		Bid:    round2(price - spread/2),
		Ask:    round2(price + spread/2),
		Size:   int64(100 + rand.Intn(900)),
		TsMs:   time.Now().UTC().UnixMilli(),
	}
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
