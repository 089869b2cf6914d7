// Command stubs runs a local synthetic market-data feed for exercising
// the Brain's Stream Ingestor (4.D) without a live brokerage
// connection. Grounded on the teacher's multi-port fixture-server
// main, rewired from posting equity news/halts/tick fixtures onto
// serving the option-tick websocket internal/stubs.FeedServer
// generates.
package main

import (
	"flag"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/optionsdesk/trading-engine/internal/stubs"
)

func health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func serve(addr string, routes map[string]http.HandlerFunc) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", health)
	for path, fn := range routes {
		mux.HandleFunc(path, fn)
	}
	log.Printf("listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server %s error: %v", addr, err)
	}
}

func main() {
	var addr, symbolList string
	var intervalMs int
	flag.StringVar(&addr, "addr", ":8083", "listen address")
	flag.StringVar(&symbolList, "symbols", "SPY,QQQ", "comma-separated symbols to simulate")
	flag.IntVar(&intervalMs, "interval-ms", 500, "tick interval in milliseconds")
	flag.Parse()

	symbols := strings.Split(symbolList, ",")
	feed := stubs.NewFeedServer(symbols, time.Duration(intervalMs)*time.Millisecond)

	serve(addr, map[string]http.HandlerFunc{
		"/v1/markets/stream": feed.ServeHTTP,
	})
}
