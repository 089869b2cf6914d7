// Command gate runs the Gatekeeper process (spec 4.H, §6): the
// single-writer risk firewall that evaluates signed proposals against
// the Constitution and is the only thing ever allowed to place an
// order at the brokerage. Grounded on cmd/decision/main.go's
// flag/config/wiring shape and cmd/stubs/main.go's HTTP bring-up.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/optionsdesk/trading-engine/internal/broker"
	"github.com/optionsdesk/trading-engine/internal/config"
	"github.com/optionsdesk/trading-engine/internal/gate"
	"github.com/optionsdesk/trading-engine/internal/httpapi"
	"github.com/optionsdesk/trading-engine/internal/ledger"
	"github.com/optionsdesk/trading-engine/internal/notify"
	"github.com/optionsdesk/trading-engine/internal/observ"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "config/gate.yaml", "gate config path")
	flag.Parse()

	cfg, err := config.LoadConstitution(cfgPath)
	if err != nil {
		observ.Error("gate_config_load_failed", map[string]any{"path": cfgPath, "error": err.Error()})
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openLedger(ctx, cfg)
	if err != nil {
		observ.Error("gate_ledger_open_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	brokerClient := broker.NewClient(broker.Config{
		Adapter:           "",
		BaseURL:           cfg.BrokerBaseURL,
		APIKeyEnv:         cfg.BrokerAPIKeyEnv,
		RequestsPerMinute: cfg.BrokerRPM,
		MockEquityUSD:     50000,
	})
	defer brokerClient.Close()

	secret := []byte(os.Getenv(cfg.SharedSecretEnv))
	if len(secret) == 0 {
		observ.Warn("gate_shared_secret_unset", map[string]any{"env": cfg.SharedSecretEnv})
	}

	reg := prometheus.NewRegistry()
	metrics := observ.NewGateMetrics(reg)

	sink := notify.LoggingSink{}

	g, err := gate.New(cfg, secret, brokerClient, store, sink, metrics)
	if err != nil {
		observ.Error("gate_init_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	srv := httpapi.New(g, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	go g.RunHeartbeatMonitor(ctx)
	go runEndOfDay(ctx, g, cfg.ForceEodCloseET)

	observ.Log("gate_started", map[string]any{"addr": cfg.ListenAddr, "symbols": cfg.AllowedSymbols})
	if err := srv.ListenAndServe(ctx, cfg.ListenAddr); err != nil {
		observ.Error("gate_http_server_exited", map[string]any{"error": err.Error()})
	}
	observ.Sync()
}

func openLedger(ctx context.Context, cfg config.Constitution) (ledger.Store, error) {
	if cfg.LedgerDSN != "" {
		return ledger.NewPgStore(ctx, cfg.LedgerDSN)
	}
	dir := cfg.LedgerPath
	if dir == "" {
		dir = "data/ledger"
	}
	return ledger.NewFileStore(dir)
}

// runEndOfDay fires the Gate's end-of-day report every 24h, counted
// from process start. forceCloseET is not consulted, so the report is
// not aligned to any time of day.
func runEndOfDay(ctx context.Context, g *gate.Gate, forceCloseET string) {
	interval := 24 * time.Hour
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := g.RunEndOfDay(ctx); err != nil {
				observ.Error("end_of_day_report_failed", map[string]any{"error": err.Error()})
			}
		}
	}
}
