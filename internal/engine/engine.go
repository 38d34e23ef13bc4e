// Package engine is the checkout orchestrator: it turns classified inbound
// events into session transitions, order writes and outbound prompts. All
// handling for a shopper runs inside that shopper's lock, so a rapid
// double-tap or a duplicate webhook delivery cannot interleave transitions.
package engine

import (
	"context"
	"log/slog"

	"github.com/ShreyashF130/copit-backend/internal/domain"
	"github.com/ShreyashF130/copit-backend/internal/messenger"
	"github.com/ShreyashF130/copit-backend/internal/payment"
	"github.com/ShreyashF130/copit-backend/internal/repository"
	"github.com/ShreyashF130/copit-backend/internal/session"
	"github.com/ShreyashF130/copit-backend/internal/token"
)

// Repo is the slice of the repository the state machine touches.
type Repo interface {
	GetItem(ctx context.Context, id int64) (*domain.Item, error)
	DecrementStock(ctx context.Context, itemID int64, qty int) error
	GetCoupon(ctx context.Context, shopID int64, code string) (*domain.Coupon, error)
	GetAddress(ctx context.Context, id int64) (*domain.Address, error)
	LatestAddress(ctx context.Context, shopperID string) (*domain.Address, error)
	CreateAddress(ctx context.Context, addr *domain.Address) (int64, error)
	CreateOrder(ctx context.Context, order *domain.Order) (int64, error)
	SubmitPaymentProof(ctx context.Context, id int64, proofRef string) error
	GetShopCredentials(ctx context.Context, shopID int64) (*repository.ShopCredentials, error)
}

// Config carries the URLs the engine embeds in outbound messages.
type Config struct {
	// CheckoutBaseURL prefixes the web address hand-off, e.g.
	// "https://shop.example.com/checkout". The token is appended as a path
	// segment; the shopper identity never appears in the URL.
	CheckoutBaseURL string
	// ManualPayBaseURL prefixes the manual-payment page shown on the
	// screenshot path.
	ManualPayBaseURL string
}

// Engine wires the state machine to its collaborators.
type Engine struct {
	sessions session.Store
	locks    *session.KeyedLock
	repo     Repo
	tokens   *token.Issuer
	sender   messenger.Sender
	gateway  payment.Gateway
	shops    *ShopConfigReader
	approver Approver
	cfg      Config
	logger   *slog.Logger
}

func New(sessions session.Store, locks *session.KeyedLock, repo Repo, tokens *token.Issuer,
	sender messenger.Sender, gateway payment.Gateway, shops *ShopConfigReader,
	cfg Config, logger *slog.Logger) *Engine {
	return &Engine{
		sessions: sessions,
		locks:    locks,
		repo:     repo,
		tokens:   tokens,
		sender:   sender,
		gateway:  gateway,
		shops:    shops,
		cfg:      cfg,
		logger:   logger,
	}
}

// HandleEvent runs one inbound event through the state machine. It never
// returns an error to the ingestion boundary: the upstream channel cannot
// display failures and would retry forever, so every failure degrades to a
// logged no-op or a corrective prompt to the shopper.
func (e *Engine) HandleEvent(ctx context.Context, ev *domain.Event) {
	e.locks.Do(ev.Shopper, func() {
		sess, err := e.sessions.Get(ctx, ev.Shopper)
		if err != nil {
			e.logger.Error("session read failed", "shopper", ev.Shopper, "error", err)
			return
		}

		switch ev.Kind {
		case domain.EventText:
			e.handleText(ctx, ev.Shopper, ev.Text, sess)
		case domain.EventButton:
			e.handleButton(ctx, ev.Shopper, ev.Button, sess)
		case domain.EventForm:
			e.handleAddressForm(ctx, ev.Shopper, ev.Form, sess)
		case domain.EventImage:
			e.handleImage(ctx, ev.Shopper, ev.Image, sess)
		default:
			e.logger.Warn("unclassified event dropped", "shopper", ev.Shopper, "kind", ev.Kind)
		}
	})
}

func (e *Engine) send(ctx context.Context, to, body string) {
	if err := e.sender.SendText(ctx, to, body); err != nil {
		e.logger.Error("send text failed", "to", to, "error", err)
	}
}

func (e *Engine) sendButtons(ctx context.Context, to, body string, buttons []domain.Button) {
	if err := e.sender.SendButtons(ctx, to, body, buttons); err != nil {
		e.logger.Error("send buttons failed", "to", to, "error", err)
	}
}

func (e *Engine) sendImage(ctx context.Context, to, url, caption string) {
	if err := e.sender.SendImage(ctx, to, url, caption); err != nil {
		e.logger.Error("send image failed", "to", to, "error", err)
	}
}
