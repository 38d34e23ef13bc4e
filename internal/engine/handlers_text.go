package engine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ShreyashF130/copit-backend/internal/domain"
	"github.com/ShreyashF130/copit-backend/internal/repository"
)

// Storefront hand-off commands embedded in the first chat message.
var (
	buyItemRe = regexp.MustCompile(`buy_item_(\d+)`)
	buyBulkRe = regexp.MustCompile(`buy_bulk_([\d:,]+)(?:_COUPON:(\w+))?`)
)

// addressConfirmedMarker is embedded in the deep link the web hand-off
// redirects through; its presence resumes a checkout paused on address
// capture.
const addressConfirmedMarker = "Address_Confirmed_for_"

// upsellAffirmatives are the replies treated as accepting the add-on.
var upsellAffirmatives = map[string]bool{
	"yes": true, "add": true, "ok": true, "y": true, "1": true,
}

func (e *Engine) handleText(ctx context.Context, shopper, text string, sess domain.Session) {
	trimmed := strings.TrimSpace(text)

	// Commands take priority over the current state: a shopper tapping a
	// fresh storefront link mid-checkout starts over.
	if strings.Contains(trimmed, addressConfirmedMarker) {
		e.resumeAfterAddressHandoff(ctx, shopper, sess)
		return
	}
	if m := buyBulkRe.FindStringSubmatch(trimmed); m != nil {
		e.beginBulkCheckout(ctx, shopper, m[1], m[2])
		return
	}
	if m := buyItemRe.FindStringSubmatch(trimmed); m != nil {
		itemID, _ := strconv.ParseInt(m[1], 10, 64)
		e.beginCheckout(ctx, shopper, itemID)
		return
	}

	switch sess.State {
	case domain.StateAwaitingSelection:
		e.handleVariantValue(ctx, shopper, trimmed, sess)
	case domain.StateAwaitingQty:
		e.handleQuantity(ctx, shopper, trimmed, sess)
	case domain.StateAwaitingManualAddr:
		e.handleManualAddress(ctx, shopper, trimmed, sess)
	case domain.StateAwaitingScreenshot:
		e.handleProofText(ctx, shopper, trimmed, sess)
	case domain.StateAwaitingUpsell:
		e.handleUpsellDecision(ctx, shopper, trimmed, sess)
	case domain.StateAwaitingReviewRating:
		e.handleReviewRating(ctx, shopper, trimmed, sess)
	case domain.StateAwaitingAddress:
		e.promptAddress(ctx, shopper)
	case domain.StateAwaitingPayment:
		e.promptPayment(ctx, shopper, sess.CartTotal())
	default:
		// Idle chatter: nothing expected, nothing to correct.
	}
}

// beginCheckout starts a single-item flow: variant drilldown when the item
// has configurable attributes, quantity capture otherwise.
func (e *Engine) beginCheckout(ctx context.Context, shopper string, itemID int64) {
	item, err := e.repo.GetItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, repository.ErrItemNotFound) {
			e.send(ctx, shopper, "This item is discontinued or not found.")
			return
		}
		e.logger.Error("item lookup failed", "item", itemID, "error", err)
		e.send(ctx, shopper, "Something went wrong. Please try again.")
		return
	}
	if item.Stock <= 0 {
		e.send(ctx, shopper, fmt.Sprintf("Sorry, %s is currently out of stock.", item.Name))
		return
	}

	sess := domain.Session{
		ShopID:    item.ShopID,
		ItemID:    item.ID,
		ItemName:  item.Name,
		BasePrice: item.Price,
		UnitPrice: item.Price,
		Quantity:  1,
	}

	if item.HasVariants() {
		sess.State = domain.StateAwaitingSelection
		sess.Variant = &domain.VariantSelection{Chosen: map[string]string{}}
		if err := e.sessions.Set(ctx, shopper, sess); err != nil {
			e.logger.Error("session set failed", "shopper", shopper, "error", err)
			return
		}
		e.askNextOption(ctx, shopper, item, 0)
		return
	}

	sess.State = domain.StateAwaitingQty
	if err := e.sessions.Set(ctx, shopper, sess); err != nil {
		e.logger.Error("session set failed", "shopper", shopper, "error", err)
		return
	}
	caption := fmt.Sprintf("%s\nPrice: ₹%s\n\n%s\n\nReply with the quantity (e.g. 1, 2, 5).",
		item.Name, formatAmount(item.Price), item.Description)
	if strings.HasPrefix(item.ImageURL, "http") {
		e.sendImage(ctx, shopper, item.ImageURL, caption)
	} else {
		e.send(ctx, shopper, caption)
	}
}

func (e *Engine) askNextOption(ctx context.Context, shopper string, item *domain.Item, step int) {
	opt := item.Options[step]
	buttons := make([]domain.Button, 0, 3)
	for _, v := range opt.Values {
		if len(buttons) == 3 {
			break
		}
		buttons = append(buttons, domain.Button{ID: "VAR_" + v, Title: v})
	}
	e.sendButtons(ctx, shopper, fmt.Sprintf("%s\nSelect %s:", item.Name, opt.Name), buttons)
}

// handleVariantValue validates one drilldown reply against the offered
// option set, advancing a step per reply. On the last attribute the session
// resolves to a concrete priced variant, or the base price when no exact
// combination exists.
func (e *Engine) handleVariantValue(ctx context.Context, shopper, value string, sess domain.Session) {
	item, err := e.repo.GetItem(ctx, sess.ItemID)
	if err != nil {
		e.logger.Error("item lookup failed", "item", sess.ItemID, "error", err)
		e.send(ctx, shopper, "Something went wrong. Please try again.")
		return
	}
	if sess.Variant == nil || sess.Variant.StepIndex >= len(item.Options) {
		e.send(ctx, shopper, "This selection is no longer active. Tap the product link to start again.")
		return
	}

	opt := item.Options[sess.Variant.StepIndex]
	valid := false
	for _, v := range opt.Values {
		if strings.EqualFold(v, value) {
			value = v
			valid = true
			break
		}
	}
	if !valid {
		e.send(ctx, shopper, fmt.Sprintf("Please pick one of the offered %s options.", opt.Name))
		return
	}

	sess.Variant.Chosen[opt.Name] = value
	sess.Variant.StepIndex++

	if sess.Variant.StepIndex < len(item.Options) {
		if err := e.sessions.Set(ctx, shopper, sess); err != nil {
			e.logger.Error("session set failed", "shopper", shopper, "error", err)
			return
		}
		e.askNextOption(ctx, shopper, item, sess.Variant.StepIndex)
		return
	}

	sess.UnitPrice = item.ResolveVariant(sess.Variant.Chosen)
	sess.State = domain.StateAwaitingQty
	if err := e.sessions.Set(ctx, shopper, sess); err != nil {
		e.logger.Error("session set failed", "shopper", shopper, "error", err)
		return
	}
	e.send(ctx, shopper, fmt.Sprintf("%s\nPrice: ₹%s\n\nReply with the quantity (e.g. 1, 2, 5).",
		item.Name, formatAmount(sess.UnitPrice)))
}

// handleQuantity guards the quantity reply against live stock: over-ask is
// rejected quoting the current stock count so the shopper can retry with
// the maximum, and zero stock short-circuits to sold-out and clears the
// session.
func (e *Engine) handleQuantity(ctx context.Context, shopper, text string, sess domain.Session) {
	qty, err := strconv.Atoi(text)
	if err != nil || qty <= 0 {
		e.send(ctx, shopper, "Please reply with a whole number, e.g. 1, 2 or 5.")
		return
	}

	item, err := e.repo.GetItem(ctx, sess.ItemID)
	if err != nil {
		e.logger.Error("item lookup failed", "item", sess.ItemID, "error", err)
		e.send(ctx, shopper, "Something went wrong. Please try again.")
		return
	}
	if item.Stock == 0 {
		if err := e.sessions.Clear(ctx, shopper); err != nil {
			e.logger.Error("session clear failed", "shopper", shopper, "error", err)
		}
		e.send(ctx, shopper, fmt.Sprintf("Sorry, %s just sold out.", item.Name))
		return
	}
	if qty > item.Stock {
		e.send(ctx, shopper, fmt.Sprintf("Only %d left in stock. Please pick %d or fewer.", item.Stock, item.Stock))
		return
	}

	sess.Quantity = qty
	sess.Total = sess.UnitPrice * float64(qty)
	sess.Cart = []domain.CartLine{{
		ItemID:    sess.ItemID,
		Name:      sess.ItemName,
		Quantity:  qty,
		UnitPrice: sess.UnitPrice,
	}}
	sess.State = domain.StateAwaitingAddress
	if err := e.sessions.Set(ctx, shopper, sess); err != nil {
		e.logger.Error("session set failed", "shopper", shopper, "error", err)
		return
	}
	e.promptAddress(ctx, shopper)
}

// beginBulkCheckout parses a storefront cart hand-off like
// "12:2,15:1" with an optional coupon code and jumps straight to address
// collection.
func (e *Engine) beginBulkCheckout(ctx context.Context, shopper, itemsPart, couponCode string) {
	var (
		cart     []domain.CartLine
		subtotal float64
		shopID   int64
		heroURL  string
	)
	for _, entry := range strings.Split(itemsPart, ",") {
		idStr, qtyStr, ok := strings.Cut(entry, ":")
		if !ok {
			continue
		}
		itemID, err1 := strconv.ParseInt(idStr, 10, 64)
		qty, err2 := strconv.Atoi(qtyStr)
		if err1 != nil || err2 != nil || qty <= 0 {
			continue
		}
		item, err := e.repo.GetItem(ctx, itemID)
		if err != nil {
			continue
		}
		subtotal += item.Price * float64(qty)
		shopID = item.ShopID
		if heroURL == "" {
			heroURL = item.ImageURL
		}
		cart = append(cart, domain.CartLine{
			ItemID:    item.ID,
			Name:      item.Name,
			Quantity:  qty,
			UnitPrice: item.Price,
		})
	}
	if len(cart) == 0 {
		e.send(ctx, shopper, "Your cart is empty.")
		return
	}

	var discount float64
	if couponCode != "" {
		coupon, err := e.repo.GetCoupon(ctx, shopID, couponCode)
		if err == nil {
			discount = coupon.DiscountOn(subtotal)
		} else if !errors.Is(err, repository.ErrCouponNotFound) {
			e.logger.Warn("coupon lookup failed", "shop", shopID, "code", couponCode, "error", err)
		}
	}
	total := subtotal - discount
	if total < 0 {
		total = 0
	}

	sess := domain.Session{
		State:    domain.StateAwaitingAddress,
		ShopID:   shopID,
		Cart:     cart,
		Subtotal: subtotal,
		Discount: discount,
		Total:    total,
	}
	if err := e.sessions.Set(ctx, shopper, sess); err != nil {
		e.logger.Error("session set failed", "shopper", shopper, "error", err)
		return
	}

	msg := fmt.Sprintf("Order summary\nSubtotal: ₹%s\nTotal: ₹%s", formatAmount(subtotal), formatAmount(total))
	if heroURL != "" {
		e.sendImage(ctx, shopper, heroURL, msg)
	} else {
		e.send(ctx, shopper, msg)
	}
	e.promptAddress(ctx, shopper)
}

// handleManualAddress parses the comma-separated fallback address:
// "pincode, house no[, city]".
func (e *Engine) handleManualAddress(ctx context.Context, shopper, text string, sess domain.Session) {
	parts := strings.Split(text, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		e.send(ctx, shopper, "Format: Pincode, House No, City")
		return
	}
	addr := &domain.Address{
		ShopperID: shopper,
		Pincode:   parts[0],
		HouseNo:   parts[1],
	}
	if len(parts) > 2 {
		addr.City = parts[2]
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

// handleProofText accepts a transaction reference typed instead of a
// screenshot on the manual-proof path.
func (e *Engine) handleProofText(ctx context.Context, shopper, text string, sess domain.Session) {
	if len(text) < 12 {
		e.send(ctx, shopper, "Please send the payment screenshot, or the full transaction reference.")
		return
	}
	e.submitProof(ctx, shopper, sess, "ref:"+text)
}

func (e *Engine) handleUpsellDecision(ctx context.Context, shopper, text string, sess domain.Session) {
	reply := strings.ToLower(strings.TrimSpace(text))
	if upsellAffirmatives[reply] && sess.Upsell != nil {
		order := &domain.Order{
			ShopperID:     shopper,
			ShopID:        sess.ShopID,
			Lines:         []domain.CartLine{{Name: sess.Upsell.ItemName, Quantity: 1, UnitPrice: sess.Upsell.Price}},
			ItemSummary:   sess.Upsell.ItemName,
			Quantity:      1,
			TotalAmount:   sess.Upsell.Price,
			PaymentMethod: "COD",
			Status:        domain.OrderStatusPlaced,
			PaymentStatus: domain.PaymentStatusPending,
		}
		if _, err := e.repo.CreateOrder(ctx, order); err != nil {
			e.logger.Error("upsell order create failed", "shopper", shopper, "error", err)
		} else {
			e.send(ctx, shopper, fmt.Sprintf("Added %s to your shipment!", sess.Upsell.ItemName))
		}
	}
	// Declines and malformed replies both end the offer window.
	if err := e.sessions.Clear(ctx, shopper); err != nil {
		e.logger.Error("session clear failed", "shopper", shopper, "error", err)
	}
}

func (e *Engine) handleReviewRating(ctx context.Context, shopper, text string, sess domain.Session) {
	rating, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || rating < 1 || rating > 5 {
		e.send(ctx, shopper, "Please rate your experience with a number from 1 to 5.")
		return
	}
	e.logger.Info("review captured", "shopper", shopper, "order", sess.OrderID, "rating", rating)
	if err := e.sessions.Clear(ctx, shopper); err != nil {
		e.logger.Error("session clear failed", "shopper", shopper, "error", err)
	}
	e.send(ctx, shopper, "Thanks for the feedback!")
}

// resumeAfterAddressHandoff continues a checkout after the web hand-off
// wrote a fresh address. The latest persisted address, not anything from
// the message text, is what gets attached.
func (e *Engine) resumeAfterAddressHandoff(ctx context.Context, shopper string, sess domain.Session) {
	addr, err := e.repo.LatestAddress(ctx, shopper)
	if err != nil {
		if errors.Is(err, repository.ErrAddressNotFound) {
			e.promptAddress(ctx, shopper)
			return
		}
		e.logger.Error("address lookup failed", "shopper", shopper, "error", err)
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

// promptAddress shows the saved address with confirm/change buttons, or
// offers the add-address hand-off when the shopper has none on file.
func (e *Engine) promptAddress(ctx context.Context, shopper string) {
	addr, err := e.repo.LatestAddress(ctx, shopper)
	if err != nil {
		if errors.Is(err, repository.ErrAddressNotFound) {
			e.sendButtons(ctx, shopper, "Shipping address required.",
				[]domain.Button{
					{ID: "CHANGE_ADDR", Title: "Add Address"},
					{ID: "TYPE_ADDR", Title: "Type Address"},
				})
			return
		}
		e.logger.Error("address lookup failed", "shopper", shopper, "error", err)
		return
	}
	e.sendButtons(ctx, shopper,
		fmt.Sprintf("Confirm delivery address:\n\n%s", addr.Display()),
		[]domain.Button{
			{ID: fmt.Sprintf("CONFIRM_ADDR_%d", addr.ID), Title: "Yes, Ship Here"},
			{ID: "CHANGE_ADDR", Title: "Change Address"},
		})
}

func (e *Engine) promptPayment(ctx context.Context, shopper string, total float64) {
	e.sendButtons(ctx, shopper,
		fmt.Sprintf("Total: ₹%s\nSelect payment method:", formatAmount(total)),
		[]domain.Button{
			{ID: domain.PayOnline, Title: "Pay Online"},
			{ID: domain.PayCOD, Title: "Cash on Delivery"},
		})
}
