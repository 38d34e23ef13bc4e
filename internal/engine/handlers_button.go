package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ShreyashF130/copit-backend/internal/domain"
	"github.com/ShreyashF130/copit-backend/internal/repository"
	"github.com/ShreyashF130/copit-backend/internal/token"
)

// Approver terminates the needs_approval payment state. Wired after
// construction because the reconciler also depends on the session store.
type Approver interface {
	Approve(ctx context.Context, orderID int64) error
	Reject(ctx context.Context, orderID int64) error
}

// SetApprover installs the manual-proof approval backend.
func (e *Engine) SetApprover(a Approver) { e.approver = a }

func (e *Engine) handleButton(ctx context.Context, shopper string, reply domain.ButtonReply, sess domain.Session) {
	id := reply.ID

	switch {
	case strings.HasPrefix(id, "VAR_"):
		if sess.State != domain.StateAwaitingSelection {
			e.send(ctx, shopper, "This selection is no longer active. Tap the product link to start again.")
			return
		}
		e.handleVariantValue(ctx, shopper, strings.TrimPrefix(id, "VAR_"), sess)

	case strings.HasPrefix(id, "CONFIRM_ADDR_"):
		e.confirmAddress(ctx, shopper, strings.TrimPrefix(id, "CONFIRM_ADDR_"), sess)

	case id == "CHANGE_ADDR":
		tok := e.tokens.Issue(shopper)
		e.send(ctx, shopper, fmt.Sprintf(
			"Tap the link below to securely update your address:\n\n%s/%s\n\nThis link expires in %d minutes.",
			e.cfg.CheckoutBaseURL, tok, int(token.Validity.Minutes())))

	case id == "TYPE_ADDR":
		if _, err := e.sessions.Update(ctx, shopper, func(s *domain.Session) {
			s.State = domain.StateAwaitingManualAddr
		}); err != nil {
			e.logger.Error("session update failed", "shopper", shopper, "error", err)
			return
		}
		e.send(ctx, shopper, "Type your address as: Pincode, House No, City")

	case id == domain.PayCOD || id == domain.PayOnline:
		e.handlePaymentSelection(ctx, shopper, id, sess)

	case id == "recover_checkout":
		if sess.Empty() {
			e.send(ctx, shopper, "Your cart is empty. Tap a product link to start shopping.")
			return
		}
		e.promptAddress(ctx, shopper)

	case id == "recover_cancel":
		if err := e.sessions.Clear(ctx, shopper); err != nil {
			e.logger.Error("session clear failed", "shopper", shopper, "error", err)
		}
		e.send(ctx, shopper, "Cart cleared.")

	case strings.HasPrefix(id, "approve_order_"):
		e.handleMerchantDecision(ctx, shopper, strings.TrimPrefix(id, "approve_order_"), true)

	case strings.HasPrefix(id, "reject_order_"):
		e.handleMerchantDecision(ctx, shopper, strings.TrimPrefix(id, "reject_order_"), false)

	default:
		e.logger.Warn("unrecognized button reply", "shopper", shopper, "id", id)
	}
}

// confirmAddress validates the tapped address id against persisted data
// rather than trusting the button payload: a confirm button from an old
// message must not attach someone else's (or a deleted) address.
func (e *Engine) confirmAddress(ctx context.Context, shopper, rawID string, sess domain.Session) {
	addrID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		e.promptAddress(ctx, shopper)
		return
	}
	addr, err := e.repo.GetAddress(ctx, addrID)
	if err != nil || addr.ShopperID != shopper {
		if err != nil && !errors.Is(err, repository.ErrAddressNotFound) {
			e.logger.Error("address lookup failed", "shopper", shopper, "error", err)
		}
		e.promptAddress(ctx, shopper)
		return
	}

	sess.AddressID = addr.ID
	sess.State = domain.StateAwaitingPayment
	if err := e.sessions.Set(ctx, shopper, sess); err != nil {
		e.logger.Error("session set failed", "shopper", shopper, "error", err)
		return
	}
	e.promptPayment(ctx, shopper, sess.CartTotal())
}

// handlePaymentSelection fires the finalizer exactly once per checkout: it
// only acts in the payment-method state, and once an order exists for the
// session a repeated tap gets a reminder, never a second order.
func (e *Engine) handlePaymentSelection(ctx context.Context, shopper, method string, sess domain.Session) {
	if sess.State != domain.StateAwaitingPayment {
		if sess.Empty() {
			e.send(ctx, shopper, "Your cart is empty. Tap a product link to start shopping.")
		}
		return
	}
	if sess.OrderID != 0 {
		e.send(ctx, shopper, fmt.Sprintf("Order #%d is awaiting payment. Check the link sent above.", sess.OrderID))
		return
	}

	sess.PaymentMethod = method
	if sess.AddressID == 0 {
		addr, err := e.repo.LatestAddress(ctx, shopper)
		if err != nil {
			e.promptAddress(ctx, shopper)
			return
		}
		sess.AddressID = addr.ID
	}
	if _, err := e.sessions.Update(ctx, shopper, func(s *domain.Session) {
		s.PaymentMethod = method
		s.AddressID = sess.AddressID
	}); err != nil {
		e.logger.Error("session update failed", "shopper", shopper, "error", err)
		return
	}

	e.finalizeOrder(ctx, shopper, sess)
}

// handleMerchantDecision processes the approve/reject buttons sent to the
// merchant on the manual-proof path. Chat-side mirror of /verify-order.
func (e *Engine) handleMerchantDecision(ctx context.Context, merchant, rawID string, approve bool) {
	if e.approver == nil {
		e.logger.Warn("merchant decision received but no approver wired", "merchant", merchant)
		return
	}
	orderID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		e.logger.Warn("malformed merchant decision", "merchant", merchant, "id", rawID)
		return
	}
	if approve {
		err = e.approver.Approve(ctx, orderID)
	} else {
		err = e.approver.Reject(ctx, orderID)
	}
	if err != nil {
		e.logger.Error("merchant decision failed", "order", orderID, "approve", approve, "error", err)
		e.send(ctx, merchant, fmt.Sprintf("Could not update order #%d. It may already be settled.", orderID))
		return
	}
	if approve {
		e.send(ctx, merchant, fmt.Sprintf("Order #%d approved.", orderID))
	} else {
		e.send(ctx, merchant, fmt.Sprintf("Order #%d rejected.", orderID))
	}
}
