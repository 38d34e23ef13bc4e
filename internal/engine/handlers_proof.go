package engine

import (
	"context"
	"fmt"

	"github.com/ShreyashF130/copit-backend/internal/domain"
)

// handleAddressForm processes a structured address form reply and advances
// straight to the payment prompt.
func (e *Engine) handleAddressForm(ctx context.Context, shopper string, form map[string]string, sess domain.Session) {
	pincode := form["pincode"]
	houseNo := form["house_no"]
	if pincode == "" {
		e.logger.Warn("address form missing pincode", "shopper", shopper)
		return
	}
	addr := &domain.Address{
		ShopperID: shopper,
		Pincode:   pincode,
		HouseNo:   houseNo,
		Area:      form["area"],
		City:      form["city"],
	}
	addrID, err := e.repo.CreateAddress(ctx, addr)
	if err != nil {
		e.logger.Error("address create failed", "shopper", shopper, "error", err)
		e.send(ctx, shopper, "Could not save your address. Please try again.")
		return
	}

	sess.AddressID = addrID
	sess.State = domain.StateAwaitingPayment
	if err := e.sessions.Set(ctx, shopper, sess); err != nil {
		e.logger.Error("session set failed", "shopper", shopper, "error", err)
		return
	}
	e.promptPayment(ctx, shopper, sess.CartTotal())
}

func (e *Engine) handleImage(ctx context.Context, shopper string, img domain.ImageRef, sess domain.Session) {
	if sess.State != domain.StateAwaitingScreenshot {
		// Unsolicited image: nothing expected, nothing to correct.
		return
	}
	e.submitProof(ctx, shopper, sess, "img:"+img.ProviderID)
}

// submitProof records the payment proof, moves the order to approval and
// hands the decision to the merchant. The session ends here; approval
// transitions the order, not the session.
func (e *Engine) submitProof(ctx context.Context, shopper string, sess domain.Session, proofRef string) {
	if sess.OrderID == 0 {
		e.logger.Warn("proof received with no pending order", "shopper", shopper)
		if err := e.sessions.Clear(ctx, shopper); err != nil {
			e.logger.Error("session clear failed", "shopper", shopper, "error", err)
		}
		return
	}
	if err := e.repo.SubmitPaymentProof(ctx, sess.OrderID, proofRef); err != nil {
		e.logger.Error("proof submit failed", "order", sess.OrderID, "error", err)
		e.send(ctx, shopper, "Could not record your payment proof. Please try again.")
		return
	}

	if err := e.sessions.Clear(ctx, shopper); err != nil {
		e.logger.Error("session clear failed", "shopper", shopper, "error", err)
	}
	e.send(ctx, shopper, fmt.Sprintf(
		"Payment proof received for order #%d. The seller will verify it shortly.", sess.OrderID))

	shop, err := e.shops.Load(ctx, sess.ShopID)
	if err != nil || shop.SellerPhone == "" {
		if err != nil {
			e.logger.Error("shop config load failed", "shop", sess.ShopID, "error", err)
		}
		return
	}
	e.sendButtons(ctx, shop.SellerPhone,
		fmt.Sprintf("Payment proof uploaded for order #%d (₹%s pending verification).",
			sess.OrderID, formatAmount(sess.CartTotal())),
		[]domain.Button{
			{ID: fmt.Sprintf("approve_order_%d", sess.OrderID), Title: "Approve"},
			{ID: fmt.Sprintf("reject_order_%d", sess.OrderID), Title: "Reject"},
		})
}
