package domain

import "time"

// FunnelState tracks where a shopper is in the purchase funnel.
type FunnelState string

const (
	StateIdle                 FunnelState = "idle"
	StateAwaitingSelection    FunnelState = "awaiting_selection"
	StateAwaitingQty          FunnelState = "awaiting_qty"
	StateAwaitingAddress      FunnelState = "awaiting_address"
	StateAwaitingManualAddr   FunnelState = "awaiting_manual_address"
	StateAwaitingPayment      FunnelState = "awaiting_payment_method"
	StateAwaitingScreenshot   FunnelState = "awaiting_screenshot"
	StateAwaitingUpsell       FunnelState = "awaiting_upsell_decision"
	StateAwaitingReviewRating FunnelState = "awaiting_review_rating"
)

// InProgress reports whether the state is an active checkout step, i.e. one
// the recovery sweeper considers recoverable.
func (s FunnelState) InProgress() bool {
	switch s {
	case StateAwaitingQty, StateAwaitingAddress, StateAwaitingManualAddr,
		StateAwaitingPayment, StateAwaitingScreenshot:
		return true
	}
	return false
}

func (s FunnelState) String() string {
	return string(s)
}

// CartLine is a single line item accumulated during checkout.
type CartLine struct {
	ItemID    int64   `json:"item_id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"qty"`
	UnitPrice float64 `json:"price"`
}

// Subtotal returns quantity times unit price.
func (l CartLine) Subtotal() float64 {
	return l.UnitPrice * float64(l.Quantity)
}

// VariantSelection carries the drilldown progress for an item with
// configurable attributes. StepIndex points at the option currently being
// asked; Chosen maps option name to the picked value.
type VariantSelection struct {
	StepIndex int               `json:"step_index"`
	Chosen    map[string]string `json:"chosen"`
}

// UpsellOffer is a post-purchase add-on pending a yes/no reply.
type UpsellOffer struct {
	ItemName      string  `json:"item_name"`
	Price         float64 `json:"price"`
	LinkedOrderID int64   `json:"linked_order_id"`
}

// Session is the per-shopper conversation state. Fields are grouped by the
// funnel stage that owns them; only the fields relevant to the current State
// are populated.
type Session struct {
	State  FunnelState `json:"state"`
	ShopID int64       `json:"shop_id,omitempty"`

	// Item selection and quantity capture.
	ItemID    int64             `json:"item_id,omitempty"`
	ItemName  string            `json:"item_name,omitempty"`
	BasePrice float64           `json:"base_price,omitempty"`
	UnitPrice float64           `json:"unit_price,omitempty"`
	Variant   *VariantSelection `json:"variant,omitempty"`

	// Accumulated cart. Single-item checkouts hold one line; bulk hand-offs
	// hold many.
	Cart     []CartLine `json:"cart,omitempty"`
	Quantity int        `json:"qty,omitempty"`
	Subtotal float64    `json:"subtotal,omitempty"`
	Discount float64    `json:"discount,omitempty"`
	Total    float64    `json:"total,omitempty"`

	// Address and payment routing.
	AddressID     int64  `json:"address_id,omitempty"`
	PaymentMethod string `json:"payment_method,omitempty"`

	// Set once the finalizer has produced an order.
	OrderID       int64  `json:"order_id,omitempty"`
	PaymentLinkID string `json:"payment_link_id,omitempty"`

	// Post-purchase stages.
	Upsell *UpsellOffer `json:"upsell,omitempty"`
	Rating int          `json:"rating,omitempty"`

	// Nudged guards the recovery sweeper: at most one nudge per abandonment.
	Nudged bool `json:"nudged"`

	LastUpdated time.Time `json:"last_updated"`
}

// Empty reports whether the session carries no checkout progress.
func (s Session) Empty() bool {
	return s.State == "" || s.State == StateIdle
}

// CartTotal recomputes the total from line items. Used by the recovery
// sweeper when Total was never cached on the session.
func (s Session) CartTotal() float64 {
	if s.Total > 0 {
		return s.Total
	}
	var sum float64
	for _, l := range s.Cart {
		sum += l.Subtotal()
	}
	return sum
}
