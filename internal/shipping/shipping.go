// Package shipping talks to the courier aggregator used by merchants on
// the automated fulfilment path. The orchestrator only reads: it polls
// shipment status so the delivery watchdog can close out orders.
package shipping

import (
	"context"
	"errors"
)

// ErrProviderUnavailable is returned when the aggregator cannot be
// reached or the circuit breaker is open. The watchdog skips the cycle
// and retries on the next tick.
var ErrProviderUnavailable = errors.New("shipping provider unavailable")

// StatusDelivered is the terminal tracking status the watchdog acts on.
const StatusDelivered = "DELIVERED"

// Credentials are the merchant's aggregator login, stored per shop.
type Credentials struct {
	Email    string
	Password string
}

// Provider exposes shipment tracking. Login tokens are an implementation
// detail of the client.
type Provider interface {
	// ShipmentStatus returns the courier's current status string,
	// uppercased, or "UNKNOWN" when the payload has no tracking data.
	ShipmentStatus(ctx context.Context, creds Credentials, shipmentID string) (string, error)
}
