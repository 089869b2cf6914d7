package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// LiveClient talks to the real brokerage HTTP API. Grounded on
// gatekeeper_client.py's HTTP semantics (bearer auth header, JSON in,
// form-encoded out for order submission) and
// internal/adapters/live_quotes.go's http.Client-with-timeout idiom.
// The outbound call rate is capped the way internal/adapters/{alphavantage,polygon}.go
// cap theirs, since brokerage APIs enforce the same kind of per-minute quota.
type LiveClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

// NewLiveClient creates a LiveClient with a bounded per-call timeout
// and a requests-per-minute cap.
func NewLiveClient(baseURL, apiKey string, timeout time.Duration, requestsPerMinute int) *LiveClient {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 120
	}
	return &LiveClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60), 1),
	}
}

func (c *LiveClient) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("broker: rate limiter: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("broker: %s %s returned %d: %s", method, path, resp.StatusCode, string(b))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type quoteWire struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Last   float64 `json:"last"`
}

func (c *LiveClient) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	var w quoteWire
	if err := c.do(ctx, http.MethodGet, "/v1/markets/quotes?symbols="+symbol, nil, "", &w); err != nil {
		return Quote{}, err
	}
	return Quote{
		Symbol:    w.Symbol,
		Bid:       decimal.NewFromFloat(w.Bid),
		Ask:       decimal.NewFromFloat(w.Ask),
		Last:      decimal.NewFromFloat(w.Last),
		Timestamp: time.Now().UTC(),
		Source:    "live",
	}, nil
}

func (c *LiveClient) GetQuotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	out := map[string]Quote{}
	for _, s := range symbols {
		q, err := c.GetQuote(ctx, s)
		if err != nil {
			return nil, err
		}
		out[s] = q
	}
	return out, nil
}

func (c *LiveClient) GetExpirations(ctx context.Context, underlying string) ([]Expiration, error) {
	var w struct {
		Expirations []string `json:"expirations"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/markets/options/expirations?symbol="+underlying, nil, "", &w); err != nil {
		return nil, err
	}
	out := make([]Expiration, 0, len(w.Expirations))
	now := time.Now().UTC()
	for _, e := range w.Expirations {
		t, err := time.Parse("2006-01-02", e)
		if err != nil {
			continue
		}
		out = append(out, Expiration{Date: t, DTE: int(t.Sub(now).Hours() / 24)})
	}
	return out, nil
}

func (c *LiveClient) GetOptionChain(ctx context.Context, underlying string, expiration time.Time) ([]ChainLeg, error) {
	var w struct {
		Options []struct {
			Strike float64 `json:"strike"`
			Type   string  `json:"option_type"`
			Bid    float64 `json:"bid"`
			Ask    float64 `json:"ask"`
			Delta  float64 `json:"delta"`
			IV     float64 `json:"implied_volatility"`
		} `json:"options"`
	}
	path := fmt.Sprintf("/v1/markets/options/chains?symbol=%s&expiration=%s&greeks=true", underlying, expiration.Format("2006-01-02"))
	if err := c.do(ctx, http.MethodGet, path, nil, "", &w); err != nil {
		return nil, err
	}
	out := make([]ChainLeg, 0, len(w.Options))
	for _, o := range w.Options {
		ot := Put
		if strings.EqualFold(o.Type, "call") {
			ot = Call
		}
		out = append(out, ChainLeg{
			Strike: decimal.NewFromFloat(o.Strike),
			Type:   ot,
			Quote: Quote{
				Bid:   decimal.NewFromFloat(o.Bid),
				Ask:   decimal.NewFromFloat(o.Ask),
				Delta: decimal.NewFromFloat(o.Delta),
				IV:    decimal.NewFromFloat(o.IV),
			},
		})
	}
	return out, nil
}

func (c *LiveClient) GetPositions(ctx context.Context) ([]BrokerPosition, error) {
	var w struct {
		Positions []struct {
			Symbol    string  `json:"symbol"`
			Quantity  int64   `json:"quantity"`
			CostBasis float64 `json:"cost_basis"`
		} `json:"positions"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/accounts/positions", nil, "", &w); err != nil {
		return nil, err
	}
	out := make([]BrokerPosition, 0, len(w.Positions))
	for _, p := range w.Positions {
		out = append(out, BrokerPosition{OptionSymbol: p.Symbol, Quantity: p.Quantity, CostBasis: decimal.NewFromFloat(p.CostBasis)})
	}
	return out, nil
}

func (c *LiveClient) GetBalances(ctx context.Context) (Balances, error) {
	var w struct {
		Equity float64 `json:"total_equity"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/accounts/balances", nil, "", &w); err != nil {
		return Balances{}, err
	}
	return Balances{Equity: decimal.NewFromFloat(w.Equity), Timestamp: time.Now().UTC()}, nil
}

func (c *LiveClient) SubmitMultiLegOrder(ctx context.Context, order MultiLegOrder) (string, error) {
	form := order.EncodeForm()
	var w struct {
		Order struct {
			ID string `json:"id"`
		} `json:"order"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/accounts/orders", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", &w); err != nil {
		return "", err
	}
	return w.Order.ID, nil
}

func (c *LiveClient) CancelOrder(ctx context.Context, orderID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/accounts/orders/"+orderID, nil, "", nil)
}

func (c *LiveClient) HealthCheck(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/v1/user/profile", nil, "", nil)
}

func (c *LiveClient) Close() error { return nil }
