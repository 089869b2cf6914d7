// Package httpapi wires the Gatekeeper's HTTP surface (spec §6):
// /health, /v1/proposal, /v1/heartbeat, /v1/status, /v1/admin/* and
// /metrics. No handler is registered at /, so no HTML dashboard is
// served. Grounded on cmd/stubs/main.go's mux-registration style
// (http.ServeMux, one HandlerFunc per route); stdlib net/http is used
// directly since no router library appears anywhere in the pack.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/optionsdesk/trading-engine/internal/gate"
	"github.com/optionsdesk/trading-engine/internal/observ"
	"github.com/optionsdesk/trading-engine/internal/proposal"
)

// Server is the Gate's HTTP front door. It holds no state of its own;
// every request is delegated straight to the Gate actor.
type Server struct {
	gate     *gate.Gate
	registry http.Handler // /metrics, nil if metrics disabled
	mux      *http.ServeMux
}

// New builds the Server's mux. metricsHandler is typically
// promhttp.HandlerFor(reg, ...); pass nil to omit /metrics.
func New(g *gate.Gate, metricsHandler http.Handler) *Server {
	s := &Server{gate: g, registry: metricsHandler, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/v1/proposal", s.handleProposal)
	s.mux.HandleFunc("/v1/heartbeat", s.handleHeartbeat)
	s.mux.HandleFunc("/v1/status", s.handleStatus)
	s.mux.HandleFunc("/v1/admin/lock", s.handleAdminLock)
	s.mux.HandleFunc("/v1/admin/unlock", s.handleAdminUnlock)
	s.mux.HandleFunc("/v1/admin/liquidate", s.handleAdminLiquidate)
	s.mux.HandleFunc("/v1/admin/calendar", s.handleAdminCalendar)
	if s.registry != nil {
		s.mux.Handle("/metrics", s.registry)
	}
}

// ListenAndServe starts the HTTP server and blocks until ctx is
// cancelled, then shuts down gracefully (spec 5: bounded shutdown).
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.mux}
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

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleProposal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()

	var p proposal.Proposal
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "BAD_REQUEST", "error": err.Error()})
		return
	}

	out := s.gate.HandleProposal(r.Context(), p)
	writeJSON(w, statusCode(out.Status), map[string]any{
		"status": out.Status, "order_id": out.OrderID, "proposal_id": out.ProposalID, "reason": out.Reason,
	})
}

func statusCode(status string) int {
	switch status {
	case "APPROVED", "APPROVED_BUT_EXECUTION_FAILED":
		return http.StatusOK
	case "REJECTED":
		return http.StatusForbidden
	case "BAD_REQUEST":
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	var hb struct {
		State map[string]any `json:"state"`
	}
	_ = json.NewDecoder(r.Body).Decode(&hb)
	s.gate.Heartbeat(hb.State)
	writeJSON(w, http.StatusOK, map[string]any{"status": "OK"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.gate.Status())
}

func (s *Server) handleAdminLock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	defer r.Body.Close()
	_ = json.NewDecoder(r.Body).Decode(&body)
	if err := s.gate.Lock(r.Context(), body.Reason); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "LOCKED", "reason": body.Reason})
}

func (s *Server) handleAdminUnlock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.gate.Unlock(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "UNLOCKED"})
}

func (s *Server) handleAdminLiquidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	defer r.Body.Close()
	_ = json.NewDecoder(r.Body).Decode(&body)
	results, err := s.gate.Liquidate(r.Context(), body.Reason)
	if results == nil && err != nil {
		observ.Error("admin_liquidate_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	if err != nil {
		observ.Error("admin_liquidate_partial_failure", map[string]any{"error": err.Error()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "LOCKED", "results": results})
}

func (s *Server) handleAdminCalendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Dates []string `json:"dates"`
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	s.gate.UpdateCalendar(body.Dates)
	writeJSON(w, http.StatusOK, map[string]any{"status": "UPDATED", "count": len(body.Dates)})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
