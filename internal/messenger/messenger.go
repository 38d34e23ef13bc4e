// Package messenger delivers outbound messages to shoppers over the
// WhatsApp Cloud API. All sends are best-effort from the caller's
// perspective: checkout state never depends on a send succeeding.
package messenger

import (
	"context"

	"github.com/ShreyashF130/copit-backend/internal/domain"
)

// Sender is the outbound messaging surface the engine and sweepers use.
type Sender interface {
	SendText(ctx context.Context, to, body string) error
	// SendButtons sends an interactive message with up to three reply
	// buttons. Extra buttons are dropped, not split.
	SendButtons(ctx context.Context, to, body string, buttons []domain.Button) error
	SendImage(ctx context.Context, to, imageURL, caption string) error
}
