package domain

import "time"

type OrderStatus string

const (
	OrderStatusPlaced     OrderStatus = "placed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusPending       PaymentStatus = "pending"
	PaymentStatusNeedsApproval PaymentStatus = "needs_approval"
	PaymentStatusPaid          PaymentStatus = "paid"
	PaymentStatusFailed        PaymentStatus = "failed"
)

func (s PaymentStatus) String() string { return string(s) }
func (s OrderStatus) String() string   { return string(s) }

// PaymentMethod values as chosen by the shopper.
const (
	PayCOD    = "pay_cod"
	PayOnline = "pay_online"
)

// Order is the durable financial record. Orders are never deleted; rejection
// and cancellation are recorded as statuses.
type Order struct {
	ID            int64
	ShopperID     string
	ShopID        int64
	Lines         []CartLine
	ItemSummary   string
	Quantity      int
	TotalAmount   float64
	PaymentMethod string // "COD" or "ONLINE"
	Status        OrderStatus
	PaymentStatus PaymentStatus

	// Denormalized delivery address snapshot.
	DeliveryAddress string
	DeliveryPincode string
	DeliveryCity    string

	// Optional references filled in later by collaborators.
	ProviderPaymentID string
	ShipmentID        string
	ShippingProvider  string
	ProofRef          string
	ReviewRequested   bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Address is an immutable delivery address snapshot. Corrections create a new
// row; the newest row per shopper is the current address.
type Address struct {
	ID        int64
	ShopperID string
	HouseNo   string
	Area      string
	City      string
	Pincode   string
	CreatedAt time.Time
}

// Display renders the address the way it is quoted back to the shopper and
// denormalized onto orders.
func (a Address) Display() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{a.HouseNo, a.Area, a.City, a.Pincode} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
