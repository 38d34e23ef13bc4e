package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ShreyashF130/copit-backend/internal/domain"
)

// GetItem fetches a catalog item with its variant options. Catalog writes are
// owned by the merchant-settings collaborator; the orchestrator only reads.
func (r *Repository) GetItem(ctx context.Context, id int64) (*domain.Item, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, shop_id, name, description, price, stock, image_url,
		       options, variants
		FROM items WHERE id = $1`, id)

	var item domain.Item
	var optionsJSON, variantsJSON string
	err := row.Scan(&item.ID, &item.ShopID, &item.Name, &item.Description,
		&item.Price, &item.Stock, &item.ImageURL, &optionsJSON, &variantsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan item: %w", err)
	}

	if err := json.Unmarshal([]byte(optionsJSON), &item.Options); err != nil {
		return nil, fmt.Errorf("unmarshal item options: %w", err)
	}
	if err := json.Unmarshal([]byte(variantsJSON), &item.Variants); err != nil {
		return nil, fmt.Errorf("unmarshal item variants: %w", err)
	}
	return &item, nil
}

// DecrementStock reduces live stock after a paid order. Stock never goes
// negative; an oversell attempt leaves it untouched.
func (r *Repository) DecrementStock(ctx context.Context, itemID int64, qty int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE items SET stock = stock - $1
		WHERE id = $2 AND stock >= $1`, qty, itemID)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	return nil
}

// GetCoupon fetches an active coupon for the shop. Codes compare
// case-insensitively.
func (r *Repository) GetCoupon(ctx context.Context, shopID int64, code string) (*domain.Coupon, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT code, shop_id, discount_type, value, active
		FROM coupons WHERE shop_id = $1 AND code = $2 AND active = 1`,
		shopID, strings.ToUpper(code))

	var c domain.Coupon
	var active int
	err := row.Scan(&c.Code, &c.ShopID, &c.DiscountType, &c.Value, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCouponNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan coupon: %w", err)
	}
	c.Active = active != 0
	return &c, nil
}
