package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// token cache entry; Shiprocket tokens are valid for days, so one login
// per merchant per process lifetime is plenty for an hourly poller.
type cachedToken struct {
	token   string
	fetched time.Time
}

const tokenTTL = 24 * time.Hour

// ShiprocketClient polls the Shiprocket external API. Each merchant logs
// in with their own credentials; tokens are cached per email.
type ShiprocketClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[string]
	logger     *slog.Logger

	mu     sync.Mutex
	tokens map[string]cachedToken
}

func NewShiprocketClient(baseURL string, logger *slog.Logger) *ShiprocketClient {
	if baseURL == "" {
		baseURL = "https://apiv2.shiprocket.in/v1/external"
	}
	settings := gobreaker.Settings{
		Name:    "shiprocket",
		Timeout: 5 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("shipping breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &ShiprocketClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		breaker:    gobreaker.NewCircuitBreaker[string](settings),
		logger:     logger,
		tokens:     make(map[string]cachedToken),
	}
}

func (c *ShiprocketClient) ShipmentStatus(ctx context.Context, creds Credentials, shipmentID string) (string, error) {
	status, err := c.breaker.Execute(func() (string, error) {
		token, err := c.login(ctx, creds)
		if err != nil {
			return "", err
		}
		return c.trackShipment(ctx, token, shipmentID)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		return "", err
	}
	return status, nil
}

func (c *ShiprocketClient) login(ctx context.Context, creds Credentials) (string, error) {
	c.mu.Lock()
	if cached, ok := c.tokens[creds.Email]; ok && time.Since(cached.fetched) < tokenTTL {
		c.mu.Unlock()
		return cached.token, nil
	}
	c.mu.Unlock()

	payload, err := json.Marshal(map[string]string{
		"email":    creds.Email,
		"password": creds.Password,
	})
	if err != nil {
		return "", fmt.Errorf("marshal login: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/auth/login", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("shiprocket login failed: status %d", resp.StatusCode)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if out.Token == "" {
		return "", fmt.Errorf("shiprocket login returned empty token")
	}

	c.mu.Lock()
	c.tokens[creds.Email] = cachedToken{token: out.Token, fetched: time.Now()}
	c.mu.Unlock()
	return out.Token, nil
}

// trackingResponse mirrors the aggregator's tracking payload; it nests the
// useful part under either "0" or the top level depending on endpoint age.
type trackingResponse struct {
	TrackingData *trackingData `json:"tracking_data"`
	Zero         *struct {
		TrackingData *trackingData `json:"tracking_data"`
	} `json:"0"`
}

type trackingData struct {
	ShipmentTrack []struct {
		CurrentStatus string `json:"current_status"`
	} `json:"shipment_track"`
}

func (c *ShiprocketClient) trackShipment(ctx context.Context, token, shipmentID string) (string, error) {
	url := fmt.Sprintf("%s/courier/track/shipment/%s", c.baseURL, shipmentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build track request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("track shipment: status %d", resp.StatusCode)
	}

	var out trackingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode tracking response: %w", err)
	}

	data := out.TrackingData
	if data == nil && out.Zero != nil {
		data = out.Zero.TrackingData
	}
	if data == nil || len(data.ShipmentTrack) == 0 {
		return "UNKNOWN", nil
	}
	return strings.ToUpper(data.ShipmentTrack[0].CurrentStatus), nil
}
