// Package reconciler consumes asynchronous payment confirmations and the
// manual-proof approval decisions. Both paths settle the same invariant:
// an order reaches paid exactly once no matter how many times the
// provider retries delivery or a human clicks a button.
package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ShreyashF130/copit-backend/internal/domain"
	"github.com/ShreyashF130/copit-backend/internal/engine"
	"github.com/ShreyashF130/copit-backend/internal/messenger"
	"github.com/ShreyashF130/copit-backend/internal/payment"
	"github.com/ShreyashF130/copit-backend/internal/repository"
	"github.com/ShreyashF130/copit-backend/internal/session"
)

var (
	// ErrBadPayload means the webhook body could not be parsed or lacked
	// the correlation fields. Maps to 400 at the HTTP boundary.
	ErrBadPayload = errors.New("malformed webhook payload")
	// ErrBadSignature means the signature check failed. Maps to 400 and
	// the event is never partially processed.
	ErrBadSignature = errors.New("invalid webhook signature")
)

// Repo is the repository slice the reconciler needs.
type Repo interface {
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	MarkOrderPaid(ctx context.Context, id int64, providerPaymentID string) (bool, error)
	ApproveOrderPayment(ctx context.Context, id int64) (bool, error)
	RejectOrderPayment(ctx context.Context, id int64) (bool, error)
}

type Reconciler struct {
	repo     Repo
	shops    *engine.ShopConfigReader
	sessions session.Store
	locks    *session.KeyedLock
	sender   messenger.Sender
	logger   *slog.Logger
}

func New(repo Repo, shops *engine.ShopConfigReader, sessions session.Store,
	locks *session.KeyedLock, sender messenger.Sender, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		repo:     repo,
		shops:    shops,
		sessions: sessions,
		locks:    locks,
		sender:   sender,
		logger:   logger,
	}
}

// webhookEvent is the provider's confirmation shape. The correlation we
// planted at link-creation time comes back in the payment notes.
type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID    string `json:"id"`
				Notes struct {
					OrderID string `json:"order_id"`
					ShopID  string `json:"shop_id"`
				} `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
		PaymentLink struct {
			Entity struct {
				ReferenceID string `json:"reference_id"`
			} `json:"entity"`
		} `json:"payment_link"`
	} `json:"payload"`
}

// confirmingEvents are the provider event types that settle a payment.
var confirmingEvents = map[string]bool{
	"payment.captured":  true,
	"payment_link.paid": true,
}

// ProcessWebhook runs the full reconciliation: parse, verify, resolve,
// idempotently settle, notify. A nil return means the caller should
// acknowledge with 200 — including for duplicates, unknown orders and
// irrelevant event types, which are intentionally-ignored successes.
func (r *Reconciler) ProcessWebhook(ctx context.Context, body []byte, signature string) error {
	var ev webhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	orderID, shopID, err := r.correlate(ev)
	if err != nil {
		return err
	}

	shop, err := r.shops.Load(ctx, shopID)
	if err != nil {
		if errors.Is(err, repository.ErrShopNotFound) {
			return fmt.Errorf("%w: unknown shop %d", ErrBadSignature, shopID)
		}
		return fmt.Errorf("load shop %d: %w", shopID, err)
	}
	if !payment.VerifySignature(body, signature, shop.WebhookSecret) {
		return ErrBadSignature
	}

	if !confirmingEvents[ev.Event] {
		r.logger.Debug("ignoring webhook event", "event", ev.Event, "order", orderID)
		return nil
	}

	return r.settle(ctx, orderID, ev.Payload.Payment.Entity.ID)
}

func (r *Reconciler) correlate(ev webhookEvent) (orderID, shopID int64, err error) {
	notes := ev.Payload.Payment.Entity.Notes
	rawOrder := notes.OrderID
	if rawOrder == "" {
		rawOrder = ev.Payload.PaymentLink.Entity.ReferenceID
	}
	if rawOrder == "" || notes.ShopID == "" {
		return 0, 0, fmt.Errorf("%w: missing correlation", ErrBadPayload)
	}
	orderID, err = strconv.ParseInt(rawOrder, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: bad order id %q", ErrBadPayload, rawOrder)
	}
	shopID, err = strconv.ParseInt(notes.ShopID, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: bad shop id %q", ErrBadPayload, notes.ShopID)
	}
	return orderID, shopID, nil
}

// settle flips the order to paid at most once. The conditional update in
// MarkOrderPaid is the idempotency guard: a retried delivery finds the
// order already paid, applies nothing, and acknowledges silently.
func (r *Reconciler) settle(ctx context.Context, orderID int64, providerPaymentID string) error {
	order, err := r.repo.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			r.logger.Warn("webhook for unknown order, discarding", "order", orderID)
			return nil
		}
		return fmt.Errorf("resolve order %d: %w", orderID, err)
	}

	applied, err := r.repo.MarkOrderPaid(ctx, orderID, providerPaymentID)
	if err != nil {
		return fmt.Errorf("mark order %d paid: %w", orderID, err)
	}
	if !applied {
		r.logger.Info("duplicate payment confirmation, no-op", "order", orderID)
		return nil
	}

	// The shopper's session was parked on the outstanding link; close it
	// out under their lock so a concurrent inbound event cannot interleave.
	// Clear only the session that belongs to this order: a late webhook must
	// not wipe a fresh cart the shopper started after abandoning the link.
	r.locks.Do(order.ShopperID, func() {
		sess, err := r.sessions.Get(ctx, order.ShopperID)
		if err != nil {
			r.logger.Error("session lookup failed", "shopper", order.ShopperID, "error", err)
			return
		}
		if sess.OrderID != orderID {
			return
		}
		if err := r.sessions.Clear(ctx, order.ShopperID); err != nil {
			r.logger.Error("session clear failed", "shopper", order.ShopperID, "error", err)
		}
	})

	// Notification is best-effort: the money is already reconciled.
	msg := fmt.Sprintf("Payment received! Order #%d is confirmed and being processed.", orderID)
	if err := r.sender.SendText(ctx, order.ShopperID, msg); err != nil {
		r.logger.Error("payment confirmation notify failed", "order", orderID, "error", err)
	}
	return nil
}

// Approve settles a needs_approval order as paid and notifies the shopper.
func (r *Reconciler) Approve(ctx context.Context, orderID int64) error {
	applied, err := r.repo.ApproveOrderPayment(ctx, orderID)
	if err != nil {
		return fmt.Errorf("approve order %d: %w", orderID, err)
	}
	if !applied {
		return fmt.Errorf("order %d is not awaiting approval", orderID)
	}
	order, err := r.repo.GetOrder(ctx, orderID)
	if err != nil {
		r.logger.Error("order lookup after approval failed", "order", orderID, "error", err)
		return nil
	}
	msg := fmt.Sprintf("Payment verified! Order #%d is confirmed and being processed.", orderID)
	if err := r.sender.SendText(ctx, order.ShopperID, msg); err != nil {
		r.logger.Error("approval notify failed", "order", orderID, "error", err)
	}
	r.offerUpsell(ctx, order)
	return nil
}

// offerUpsell opens the add-on window after a verified payment, when the
// merchant has one configured. Best-effort: the payment is already settled.
func (r *Reconciler) offerUpsell(ctx context.Context, order *domain.Order) {
	shop, err := r.shops.Load(ctx, order.ShopID)
	if err != nil {
		r.logger.Error("shop config load failed", "shop", order.ShopID, "error", err)
		return
	}
	if shop.UpsellItemName == "" || shop.UpsellItemPrice <= 0 {
		return
	}

	r.locks.Do(order.ShopperID, func() {
		sess := domain.Session{
			State:  domain.StateAwaitingUpsell,
			ShopID: order.ShopID,
			Upsell: &domain.UpsellOffer{
				ItemName:      shop.UpsellItemName,
				Price:         shop.UpsellItemPrice,
				LinkedOrderID: order.ID,
			},
		}
		if err := r.sessions.Set(ctx, order.ShopperID, sess); err != nil {
			r.logger.Error("upsell session seed failed", "shopper", order.ShopperID, "error", err)
		}
	})
	pitch := fmt.Sprintf(
		"One-time offer: add %s for just ₹%s to this shipment.\nReply YES to add it.",
		shop.UpsellItemName, strconv.FormatFloat(shop.UpsellItemPrice, 'f', -1, 64))
	if err := r.sender.SendText(ctx, order.ShopperID, pitch); err != nil {
		r.logger.Error("upsell pitch send failed", "order", order.ID, "error", err)
	}
}

// Reject fails a needs_approval order and notifies the shopper.
func (r *Reconciler) Reject(ctx context.Context, orderID int64) error {
	applied, err := r.repo.RejectOrderPayment(ctx, orderID)
	if err != nil {
		return fmt.Errorf("reject order %d: %w", orderID, err)
	}
	if !applied {
		return fmt.Errorf("order %d is not awaiting approval", orderID)
	}
	order, err := r.repo.GetOrder(ctx, orderID)
	if err != nil {
		r.logger.Error("order lookup after rejection failed", "order", orderID, "error", err)
		return nil
	}
	msg := fmt.Sprintf("Your payment for order #%d could not be verified and the order was cancelled. Please contact the seller.", orderID)
	if err := r.sender.SendText(ctx, order.ShopperID, msg); err != nil {
		r.logger.Error("rejection notify failed", "order", orderID, "error", err)
	}
	return nil
}
