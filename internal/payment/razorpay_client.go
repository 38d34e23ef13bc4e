package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// RazorpayClient creates payment links through Razorpay's REST API. A
// circuit breaker shields checkout from a flapping gateway: once it opens,
// link creation fails fast and the engine routes shoppers to the manual
// path instead of timing out mid-conversation.
type RazorpayClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*PaymentLink]
	logger     *slog.Logger
}

func NewRazorpayClient(baseURL string, logger *slog.Logger) *RazorpayClient {
	if baseURL == "" {
		baseURL = "https://api.razorpay.com/v1"
	}
	settings := gobreaker.Settings{
		Name:    "razorpay",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("gateway breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &RazorpayClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		breaker:    gobreaker.NewCircuitBreaker[*PaymentLink](settings),
		logger:     logger,
	}
}

type linkRequestBody struct {
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
	ReferenceID string `json:"reference_id"`
	Customer    struct {
		Contact string `json:"contact"`
	} `json:"customer"`
	Notify struct {
		SMS bool `json:"sms"`
	} `json:"notify"`
	Notes map[string]string `json:"notes"`
}

type linkResponseBody struct {
	ID       string `json:"id"`
	ShortURL string `json:"short_url"`
}

func (c *RazorpayClient) CreatePaymentLink(ctx context.Context, req LinkRequest) (*PaymentLink, error) {
	link, err := c.breaker.Execute(func() (*PaymentLink, error) {
		return c.createLink(ctx, req)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
		}
		return nil, err
	}
	return link, nil
}

func (c *RazorpayClient) createLink(ctx context.Context, req LinkRequest) (*PaymentLink, error) {
	var body linkRequestBody
	body.Amount = req.AmountPaise
	body.Currency = req.Currency
	if body.Currency == "" {
		body.Currency = "INR"
	}
	body.Description = req.Description
	body.ReferenceID = req.ReferenceID
	body.Customer.Contact = req.Contact
	body.Notify.SMS = true
	body.Notes = map[string]string{
		"order_id": fmt.Sprint(req.OrderID),
		"shop_id":  fmt.Sprint(req.ShopID),
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal link request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/payment_links", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build link request: %w", err)
	}
	httpReq.SetBasicAuth(req.KeyID, req.KeySecret)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("gateway rejected link: status %d: %s", resp.StatusCode, detail)
	}

	var out linkResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode link response: %w", err)
	}
	return &PaymentLink{ID: out.ID, ShortURL: out.ShortURL}, nil
}
