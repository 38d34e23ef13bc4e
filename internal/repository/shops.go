package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ShreyashF130/copit-backend/internal/domain"
)

// ShopCredentials extends the payment config with the secrets the
// orchestrator needs: webhook verification and shipping provider login.
// Gateway key secret and webhook secret come back encrypted; callers decrypt.
type ShopCredentials struct {
	domain.ShopPaymentConfig
	WebhookSecret    string
	ShippingEmail    string
	ShippingPassword string
}

// GetShopCredentials reads the per-merchant configuration.
func (r *Repository) GetShopCredentials(ctx context.Context, shopID int64) (*ShopCredentials, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, seller_phone, plan, active_method,
		       gateway_key_id, gateway_key_secret, gateway_webhook_secret,
		       manual_pay_address, upsell_item_name, upsell_item_price,
		       shipping_email, shipping_password
		FROM shops WHERE id = $1`, shopID)

	var c ShopCredentials
	err := row.Scan(&c.ShopID, &c.Name, &c.SellerPhone, &c.Plan, &c.ActiveMethod,
		&c.GatewayKeyID, &c.GatewayKeySecret, &c.WebhookSecret,
		&c.ManualPayAddress, &c.UpsellItemName, &c.UpsellItemPrice,
		&c.ShippingEmail, &c.ShippingPassword)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrShopNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan shop: %w", err)
	}
	return &c, nil
}
