// Package payment integrates with the hosted payment gateway: link
// creation for online checkout and webhook signature verification.
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrGatewayUnavailable is returned when the gateway cannot be reached or
// the circuit breaker is open. Callers fall back to the manual-proof path.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// PaymentLink is a hosted checkout page created on the gateway.
type PaymentLink struct {
	ID       string
	ShortURL string
}

// LinkRequest carries everything the gateway needs to build a link.
type LinkRequest struct {
	AmountPaise int64
	Currency    string
	Description string
	Contact     string
	// ReferenceID and the notes tie the link back to our order for
	// reconciliation when the confirmation webhook arrives.
	ReferenceID string
	OrderID     int64
	ShopID      int64
	KeyID       string
	KeySecret   string
}

// Gateway creates hosted payment links. Credentials are per-merchant and
// travel with each request rather than living on the client.
type Gateway interface {
	CreatePaymentLink(ctx context.Context, req LinkRequest) (*PaymentLink, error)
}

// VerifySignature checks the webhook HMAC-SHA256 signature over the raw
// body using the merchant's webhook secret. Constant-time compare.
func VerifySignature(body []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
