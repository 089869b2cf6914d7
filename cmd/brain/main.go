// Command brain runs the Brain process (spec 4): the stateful,
// long-running service that ingests market data, classifies regime,
// evaluates strategy gates, and manages open positions — submitting
// every order-placing action as a signed proposal to the Gatekeeper.
// Grounded on cmd/decision/main.go's flag/config/wiring shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/optionsdesk/trading-engine/internal/broker"
	"github.com/optionsdesk/trading-engine/internal/candles"
	"github.com/optionsdesk/trading-engine/internal/config"
	"github.com/optionsdesk/trading-engine/internal/gateclient"
	"github.com/optionsdesk/trading-engine/internal/ingest"
	"github.com/optionsdesk/trading-engine/internal/observ"
	"github.com/optionsdesk/trading-engine/internal/pollers"
	"github.com/optionsdesk/trading-engine/internal/positions"
	"github.com/optionsdesk/trading-engine/internal/strategy"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "config/brain.yaml", "brain config path")
	flag.Parse()

	cfg, err := config.LoadBrainConfig(cfgPath)
	if err != nil {
		observ.Error("brain_config_load_failed", map[string]any{"path": cfgPath, "error": err.Error()})
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	brokerClient := broker.NewClient(broker.Config{Adapter: cfg.QuotesAdapter, MockEquityUSD: 50000})
	defer brokerClient.Close()

	store := candles.NewStore(cfg.Symbols)
	loc := config.ETLocation()

	secret := []byte(os.Getenv(cfg.GateClient.SharedSecretEnv))
	gc := gateclient.New(cfg.GateClient.BaseURL, secret, time.Duration(cfg.GateClient.ProposalTimeoutMs)*time.Millisecond)

	vixPoller := pollers.NewVIXPoller(brokerClient, "VIX", time.Duration(cfg.Pollers.VIXIntervalSeconds)*time.Second, time.Duration(cfg.Pollers.VIXStaleAfterSeconds)*time.Second)
	ivPoller := pollers.NewIVPoller(brokerClient, store, cfg.Symbols, time.Duration(cfg.Pollers.IVIntervalSeconds)*time.Second, cfg.Pollers.IVHistoryLength)
	warmUp := &pollers.WarmUp{Client: brokerClient, Store: store, Symbols: cfg.Symbols, Days: cfg.Pollers.IVHistoryLength}

	adxSPY := pollers.NewVIXPoller(brokerClient, "SPY", time.Duration(cfg.Pollers.VIXIntervalSeconds)*time.Second, time.Duration(cfg.Pollers.VIXStaleAfterSeconds)*time.Second)

	restrictedDates := map[string]bool{}

	engine := &strategy.Engine{
		Store:         store,
		Broker:        brokerClient,
		Throttle:      strategy.NewThrottle(time.Duration(cfg.Throttle.ProposalThrottleSeconds)*time.Second, time.Duration(cfg.Throttle.ReplayGuardSeconds)*time.Second),
		Enabled:       enabledSet(cfg.EnabledStrategies),
		OpeningRanges: map[string]strategy.OpeningRange{},
		VIX:           vixPoller.VIX,
		Restricted:    func(t time.Time) bool { return restrictedDates[t.In(loc).Format("2006-01-02")] },
		Equity:        func() decimal.Decimal { return mustEquity(ctx, brokerClient) },
		ADXSPYProvider: func() candles.Optional[decimal.Decimal] {
			return store.ADX("SPY", 14)
		},
	}

	chaseParams := positions.ChaseParams{
		DriftCents:      decimal.NewFromFloat(cfg.PositionManager.ChaseDriftCents),
		AggressionCents: decimal.NewFromFloat(cfg.PositionManager.ChaseAggressionCents),
		TimeoutSeconds:  cfg.PositionManager.ChaseTimeoutSeconds,
		CooldownSeconds: cfg.PositionManager.ChaseCooldownSeconds,
	}
	posMgr, err := positions.NewManager(brokerClient, store, gc, cfg.PositionManager.PositionsFilePath, chaseParams, cfg.PositionManager.ForceCloseET, loc)
	if err != nil {
		observ.Error("position_manager_init_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	sessionWindow := ingest.SessionWindow{StartET: cfg.Session.StartET, EndET: cfg.Session.EndET, Location: loc}
	backoff := ingest.Backoff{InitialMs: cfg.Stream.InitialBackoffMs, MaxMs: cfg.Stream.MaxBackoffMs}
	ingestor := ingest.New(cfg.Stream.BaseURL+cfg.Stream.StreamPath, cfg.Symbols, sessionWindow, backoff, store, ingest.DefaultDialer)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := warmUp.Run(gctx); err != nil {
			return fmt.Errorf("warmup: %w", err)
		}
		return nil
	})
	g.Go(func() error { vixPoller.Run(gctx); return nil })
	g.Go(func() error { adxSPY.Run(gctx); return nil })
	g.Go(func() error { ivPoller.Run(gctx); return nil })
	g.Go(func() error { ingestor.Run(gctx); return nil })
	g.Go(func() error { runHeartbeat(gctx, gc, time.Duration(cfg.GateClient.HeartbeatIntervalMs)*time.Millisecond); return nil })
	g.Go(func() error { runPositionLoop(gctx, posMgr, time.Duration(cfg.PositionManager.TickIntervalMs)*time.Millisecond, time.Duration(cfg.PositionManager.ReconcileIntervalMin)*time.Minute); return nil })
	g.Go(func() error { runStrategyLoop(gctx, engine, gc, posMgr, store, cfg.Symbols); return nil })
	g.Go(func() error { return serveHealth(gctx) })

	observ.Log("brain_started", map[string]any{"symbols": cfg.Symbols, "strategies": cfg.EnabledStrategies})
	if err := g.Wait(); err != nil && gctx.Err() == nil {
		observ.Error("brain_exited_with_error", map[string]any{"error": err.Error()})
	}
	observ.Sync()
}

func enabledSet(names []string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}

func mustEquity(ctx context.Context, client broker.Client) decimal.Decimal {
	bal, err := client.GetBalances(ctx)
	if err != nil {
		return decimal.NewFromInt(50000)
	}
	return bal.Equity
}

func runHeartbeat(ctx context.Context, gc *gateclient.Client, interval time.Duration) {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			gc.SendHeartbeat(ctx, map[string]any{"ts": time.Now().UTC()})
		}
	}
}

func runPositionLoop(ctx context.Context, mgr *positions.Manager, tick, reconcile time.Duration) {
	if tick <= 0 {
		tick = 5 * time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mgr.Tick(ctx, time.Now().UTC(), reconcile)
		}
	}
}

// runStrategyLoop evaluates every symbol on a fixed cadence and sends
// any fired proposal through the Gate client, tracking the resulting
// position on approval (spec 4.E-4.F handoff).
func runStrategyLoop(ctx context.Context, engine *strategy.Engine, gc *gateclient.Client, mgr *positions.Manager, store *candles.Store, symbols []string) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !store.WarmedUp() {
				continue
			}
			now := time.Now().UTC()
			for _, symbol := range symbols {
				p, err := engine.Evaluate(ctx, symbol, now)
				if err != nil || p == nil {
					continue
				}
				result, err := gc.SendProposal(ctx, *p)
				if err != nil {
					observ.Warn("strategy_proposal_send_failed", map[string]any{"symbol": symbol, "error": err.Error()})
					continue
				}
				if result.Status == "APPROVED" {
					mgr.Open(result.ProposalID, *p, result.OrderID, now)
				}
			}
		}
	}
}

func serveHealth(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: "127.0.0.1:8091", Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
