package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/ShreyashF130/copit-backend/internal/domain"
	"github.com/ShreyashF130/copit-backend/internal/payment"
	"github.com/ShreyashF130/copit-backend/internal/repository"
)

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// finalizeOrder persists exactly one order for the accumulated session and
// routes it to a payment path. Callers hold the shopper lock and must have
// verified the session is in the payment-method state; after this returns
// the session is either cleared, parked on a post-payment state, or left
// waiting on an outstanding gateway link with OrderID set so a repeated
// tap can never finalize twice.
func (e *Engine) finalizeOrder(ctx context.Context, shopper string, sess domain.Session) {
	addr, err := e.repo.GetAddress(ctx, sess.AddressID)
	if err != nil {
		if errors.Is(err, repository.ErrAddressNotFound) {
			// Stale address id: re-enter address collection instead of
			// failing silently.
			e.promptAddress(ctx, shopper)
			return
		}
		e.logger.Error("address lookup failed", "shopper", shopper, "error", err)
		e.send(ctx, shopper, "Something went wrong. Please try again.")
		return
	}

	lines := sess.Cart
	if len(lines) == 0 {
		lines = []domain.CartLine{{
			ItemID:    sess.ItemID,
			Name:      sess.ItemName,
			Quantity:  sess.Quantity,
			UnitPrice: sess.UnitPrice,
		}}
	}
	summary := lines[0].Name
	totalQty := 0
	for i, l := range lines {
		totalQty += l.Quantity
		if i > 0 {
			summary += ", " + l.Name
		}
	}
	total := sess.CartTotal()

	shop, err := e.shops.Load(ctx, sess.ShopID)
	if err != nil {
		e.logger.Error("shop config load failed", "shop", sess.ShopID, "error", err)
		e.send(ctx, shopper, "Something went wrong. Please try again.")
		return
	}

	if sess.PaymentMethod == domain.PayCOD {
		e.finalizeCOD(ctx, shopper, sess, shop, lines, summary, totalQty, total, addr)
		return
	}
	e.finalizeOnline(ctx, shopper, sess, shop, lines, summary, totalQty, total, addr)
}

func (e *Engine) finalizeCOD(ctx context.Context, shopper string, sess domain.Session,
	shop *repository.ShopCredentials, lines []domain.CartLine, summary string,
	totalQty int, total float64, addr *domain.Address) {

	order := &domain.Order{
		ShopperID:       shopper,
		ShopID:          sess.ShopID,
		Lines:           lines,
		ItemSummary:     summary,
		Quantity:        totalQty,
		TotalAmount:     total,
		PaymentMethod:   "COD",
		Status:          domain.OrderStatusPlaced,
		PaymentStatus:   domain.PaymentStatusPending,
		DeliveryAddress: addr.Display(),
		DeliveryPincode: addr.Pincode,
		DeliveryCity:    addr.City,
	}
	orderID, err := e.repo.CreateOrder(ctx, order)
	if err != nil {
		e.logger.Error("order create failed", "shopper", shopper, "error", err)
		e.send(ctx, shopper, "Could not place your order. Please try again.")
		return
	}
	e.reserveStock(ctx, lines)

	e.send(ctx, shopper, fmt.Sprintf(
		"Order #%d confirmed!\n%s\nTotal: ₹%s\nPay on delivery.",
		orderID, summary, formatAmount(total)))

	e.offerUpsellOrClear(ctx, shopper, sess.ShopID, orderID, shop)
}

func (e *Engine) finalizeOnline(ctx context.Context, shopper string, sess domain.Session,
	shop *repository.ShopCredentials, lines []domain.CartLine, summary string,
	totalQty int, total float64, addr *domain.Address) {

	gatewayUsable := shop.GatewayUsable()
	manualUsable := shop.ManualPayAddress != ""
	if !gatewayUsable && !manualUsable {
		// No online path configured for this merchant.
		e.sendButtons(ctx, shopper,
			"This shop accepts Cash on Delivery only right now.",
			[]domain.Button{{ID: domain.PayCOD, Title: "Cash on Delivery"}})
		return
	}

	order := &domain.Order{
		ShopperID:       shopper,
		ShopID:          sess.ShopID,
		Lines:           lines,
		ItemSummary:     summary,
		Quantity:        totalQty,
		TotalAmount:     total,
		PaymentMethod:   "ONLINE",
		Status:          domain.OrderStatusPlaced,
		PaymentStatus:   domain.PaymentStatusPending,
		DeliveryAddress: addr.Display(),
		DeliveryPincode: addr.Pincode,
		DeliveryCity:    addr.City,
	}
	orderID, err := e.repo.CreateOrder(ctx, order)
	if err != nil {
		e.logger.Error("order create failed", "shopper", shopper, "error", err)
		e.send(ctx, shopper, "Could not place your order. Please try again.")
		return
	}
	e.reserveStock(ctx, lines)

	if gatewayUsable {
		link, err := e.gateway.CreatePaymentLink(ctx, payment.LinkRequest{
			AmountPaise: int64(math.Round(total * 100)),
			Description: "Order from " + shop.Name,
			Contact:     shopper,
			ReferenceID: strconv.FormatInt(orderID, 10),
			OrderID:     orderID,
			ShopID:      sess.ShopID,
			KeyID:       shop.GatewayKeyID,
			KeySecret:   shop.GatewayKeySecret,
		})
		if err == nil {
			e.send(ctx, shopper, fmt.Sprintf(
				"Secure payment link\nAmount: ₹%s\n\nTap to pay: %s\n\nYour order confirms automatically after payment.",
				formatAmount(total), link.ShortURL))
			// Session stays on the payment state with OrderID set; the
			// webhook reconciler clears it once the payment lands, and a
			// re-tapped pay button only re-sends the link.
			if _, err := e.sessions.Update(ctx, shopper, func(s *domain.Session) {
				s.OrderID = orderID
				s.PaymentLinkID = link.ID
			}); err != nil {
				e.logger.Error("session update failed", "shopper", shopper, "error", err)
			}
			return
		}
		e.logger.Warn("gateway link creation failed, falling back to manual",
			"shopper", shopper, "order", orderID, "error", err)
		if !manualUsable {
			// The order row already exists; pin it to the session so a
			// re-tapped pay button gets the reminder instead of a second
			// finalize.
			if _, err := e.sessions.Update(ctx, shopper, func(s *domain.Session) {
				s.OrderID = orderID
			}); err != nil {
				e.logger.Error("session update failed", "shopper", shopper, "error", err)
			}
			e.send(ctx, shopper, fmt.Sprintf(
				"Payment gateway is unavailable. Order #%d is on hold until the merchant confirms payment options.",
				orderID))
			return
		}
	}

	// Manual-proof path: pay out of band, upload a screenshot.
	payURL := fmt.Sprintf("%s?order=%d&amount=%s", e.cfg.ManualPayBaseURL, orderID, formatAmount(total))
	e.send(ctx, shopper, fmt.Sprintf(
		"Direct payment\nAmount: ₹%s\nPay to: %s\n\n%s\n\nAfter paying, come back here and send a screenshot.",
		formatAmount(total), shop.ManualPayAddress, payURL))
	if _, err := e.sessions.Update(ctx, shopper, func(s *domain.Session) {
		s.State = domain.StateAwaitingScreenshot
		s.OrderID = orderID
	}); err != nil {
		e.logger.Error("session update failed", "shopper", shopper, "error", err)
	}
}

func (e *Engine) reserveStock(ctx context.Context, lines []domain.CartLine) {
	for _, l := range lines {
		if l.ItemID == 0 {
			continue
		}
		if err := e.repo.DecrementStock(ctx, l.ItemID, l.Quantity); err != nil {
			e.logger.Warn("stock decrement failed", "item", l.ItemID, "qty", l.Quantity, "error", err)
		}
	}
}

// offerUpsellOrClear either parks the session on the upsell decision or
// clears it, depending on whether the merchant has an add-on configured.
func (e *Engine) offerUpsellOrClear(ctx context.Context, shopper string, shopID, orderID int64,
	shop *repository.ShopCredentials) {

	if shop.UpsellItemName == "" || shop.UpsellItemPrice <= 0 {
		if err := e.sessions.Clear(ctx, shopper); err != nil {
			e.logger.Error("session clear failed", "shopper", shopper, "error", err)
		}
		return
	}

	sess := domain.Session{
		State:  domain.StateAwaitingUpsell,
		ShopID: shopID,
		Upsell: &domain.UpsellOffer{
			ItemName:      shop.UpsellItemName,
			Price:         shop.UpsellItemPrice,
			LinkedOrderID: orderID,
		},
	}
	if err := e.sessions.Set(ctx, shopper, sess); err != nil {
		e.logger.Error("session set failed", "shopper", shopper, "error", err)
		return
	}
	e.send(ctx, shopper, fmt.Sprintf(
		"One-time offer: add %s for just ₹%s to this shipment.\nReply YES to add it.",
		shop.UpsellItemName, formatAmount(shop.UpsellItemPrice)))
}
