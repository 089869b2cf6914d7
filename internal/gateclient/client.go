package gateclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/optionsdesk/trading-engine/internal/observ"
	"github.com/optionsdesk/trading-engine/internal/proposal"
)

// Result is the outcome of submitting a proposal to the Gate.
type Result struct {
	Status     string // APPROVED | REJECTED | APPROVED_BUT_EXECUTION_FAILED | BAD_REQUEST | UNAUTHORIZED | GATEKEEPER_ERROR | UNKNOWN_ERROR
	OrderID    string
	ProposalID string
	Reason     string
	Error      string
}

// Client posts signed proposals and heartbeats to the Gate. Grounded
// on gatekeeper_client.py's send_proposal/get_status.
type Client struct {
	baseURL string
	secret  []byte
	http    *http.Client
}

// New creates a Client. timeout bounds every call (spec 5: "Gate HTTP
// call from Brain 2 s").
func New(baseURL string, secret []byte, timeout time.Duration) *Client {
	return &Client{baseURL: baseURL, secret: secret, http: &http.Client{Timeout: timeout}}
}

// SendProposal fills in id/timestamp if absent, signs the canonical
// payload, and posts it to /v1/proposal.
func (c *Client) SendProposal(ctx context.Context, p proposal.Proposal) (Result, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.TimestampMs == 0 {
		p.TimestampMs = time.Now().UTC().UnixMilli()
	}

	signable := p.ForSigning()
	canonical, err := CanonicalJSON(signable)
	if err != nil {
		return Result{}, fmt.Errorf("gateclient: canonicalize proposal: %w", err)
	}
	p.Signature = Sign(canonical, c.secret)

	body, err := json.Marshal(p)
	if err != nil {
		return Result{}, fmt.Errorf("gateclient: marshal proposal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/proposal", bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GW-Signature", p.Signature)
	req.Header.Set("X-GW-Timestamp", fmt.Sprintf("%d", p.TimestampMs))

	resp, err := c.http.Do(req)
	if err != nil {
		observ.Warn("gate_proposal_call_failed", map[string]any{"proposal_id": p.ID, "error": err.Error()})
		return Result{Status: "UNKNOWN_ERROR", ProposalID: p.ID, Error: err.Error()}, nil
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var wire struct {
		Status     string `json:"status"`
		OrderID    string `json:"order_id"`
		ProposalID string `json:"proposal_id"`
		Reason     string `json:"reason"`
		Error      string `json:"error"`
	}
	_ = json.Unmarshal(raw, &wire)

	result := Result{Status: wire.Status, OrderID: wire.OrderID, ProposalID: p.ID, Reason: wire.Reason, Error: wire.Error}
	if result.Status == "" {
		result.Status = statusFromHTTP(resp.StatusCode)
	}
	return result, nil
}

func statusFromHTTP(code int) string {
	switch code {
	case http.StatusOK:
		return "APPROVED"
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusForbidden:
		return "REJECTED"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusInternalServerError:
		return "GATEKEEPER_ERROR"
	default:
		return "UNKNOWN_ERROR"
	}
}

// Heartbeat is the 60s snapshot sent to the Gate (spec 4.G, 3).
type Heartbeat struct {
	State map[string]any `json:"state,omitempty"`
}

// SendHeartbeat posts a heartbeat. Failures are logged and swallowed —
// heartbeat failures are non-fatal and must not stall proposal traffic
// (spec 4.G, 7).
func (c *Client) SendHeartbeat(ctx context.Context, state map[string]any) {
	body, err := json.Marshal(Heartbeat{State: state})
	if err != nil {
		observ.Warn("heartbeat_marshal_failed", map[string]any{"error": err.Error()})
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/heartbeat", bytes.NewReader(body))
	if err != nil {
		observ.Warn("heartbeat_request_failed", map[string]any{"error": err.Error()})
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		observ.Warn("heartbeat_send_failed", map[string]any{"error": err.Error()})
		return
	}
	_ = resp.Body.Close()
}
