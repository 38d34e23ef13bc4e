package domain

// ItemOption is one configurable attribute of an item, asked one step at a
// time during variant drilldown.
type ItemOption struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// ItemVariant is a concrete priced combination of option values.
type ItemVariant struct {
	Options map[string]string `json:"options"`
	Price   float64           `json:"price"`
}

// Item is a catalog entry. Catalog management is owned by a collaborator;
// the orchestrator only reads items during checkout.
type Item struct {
	ID          int64
	ShopID      int64
	Name        string
	Description string
	Price       float64
	Stock       int
	ImageURL    string
	Options     []ItemOption
	Variants    []ItemVariant
}

// HasVariants reports whether quantity capture must be preceded by the
// attribute drilldown.
func (i Item) HasVariants() bool {
	return len(i.Options) > 0
}

// ResolveVariant finds the priced variant matching the chosen option values.
// Falls back to the base price when no exact match exists.
func (i Item) ResolveVariant(chosen map[string]string) float64 {
	for _, v := range i.Variants {
		if len(v.Options) != len(chosen) {
			continue
		}
		match := true
		for k, want := range v.Options {
			if chosen[k] != want {
				match = false
				break
			}
		}
		if match {
			return v.Price
		}
	}
	return i.Price
}

// Coupon applies a percent or flat discount to a bulk cart.
type Coupon struct {
	Code         string
	ShopID       int64
	DiscountType string // "percent" or "flat"
	Value        float64
	Active       bool
}

// DiscountOn returns the discount amount for the given subtotal.
func (c Coupon) DiscountOn(subtotal float64) float64 {
	if c.DiscountType == "percent" {
		return subtotal * c.Value / 100
	}
	if c.Value > subtotal {
		return subtotal
	}
	return c.Value
}

// PlanFree and PlanPro are merchant tiers; gateway checkout requires pro.
const (
	PlanFree = "free"
	PlanPro  = "pro"
)

// Gateway method selector in shop settings.
const (
	MethodGateway = "gateway"
	MethodManual  = "manual"
)

// ShopPaymentConfig is the per-merchant payment configuration, read-only from
// the orchestrator's perspective. Gateway credentials are stored encrypted.
type ShopPaymentConfig struct {
	ShopID           int64
	Name             string
	SellerPhone      string
	Plan             string
	ActiveMethod     string
	GatewayKeyID     string
	GatewayKeySecret string
	ManualPayAddress string // bank/UPI-style identifier for the manual-proof path
	UpsellItemName   string
	UpsellItemPrice  float64
}

// GatewayUsable reports whether the automated gateway path is available.
func (c ShopPaymentConfig) GatewayUsable() bool {
	return c.Plan == PlanPro && c.ActiveMethod == MethodGateway &&
		c.GatewayKeyID != "" && c.GatewayKeySecret != ""
}
