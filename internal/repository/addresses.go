package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ShreyashF130/copit-backend/internal/domain"
)

// CreateAddress inserts a new address snapshot and returns its id. Addresses
// are immutable; corrections insert a new row.
func (r *Repository) CreateAddress(ctx context.Context, addr *domain.Address) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO addresses (shopper_id, house_no, area, city, pincode)
		VALUES ($1, $2, $3, $4, $5)`,
		addr.ShopperID, addr.HouseNo, addr.Area, addr.City, addr.Pincode,
	)
	if err != nil {
		return 0, fmt.Errorf("insert address: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("address id: %w", err)
	}
	return id, nil
}

// GetAddress fetches one address by id.
func (r *Repository) GetAddress(ctx context.Context, id int64) (*domain.Address, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, shopper_id, house_no, area, city, pincode, created_at
		FROM addresses WHERE id = $1`, id)
	return scanAddress(row)
}

// LatestAddress returns the most recently created address for the shopper,
// which is by definition their current address.
func (r *Repository) LatestAddress(ctx context.Context, shopperID string) (*domain.Address, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, shopper_id, house_no, area, city, pincode, created_at
		FROM addresses WHERE shopper_id = $1
		ORDER BY created_at DESC, id DESC LIMIT 1`, shopperID)
	return scanAddress(row)
}

func scanAddress(row *sql.Row) (*domain.Address, error) {
	var addr domain.Address
	err := row.Scan(&addr.ID, &addr.ShopperID, &addr.HouseNo, &addr.Area,
		&addr.City, &addr.Pincode, &addr.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAddressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan address: %w", err)
	}
	return &addr, nil
}
