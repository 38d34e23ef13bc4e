package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ShreyashF130/copit-backend/internal/domain"
	"github.com/google/uuid"
)

// OrderEventCreated and friends tag outbox rows written alongside order
// mutations for downstream consumers (dashboard, marketing).
const (
	OrderEventCreated   = "order.created"
	OrderEventPaid      = "order.paid"
	OrderEventCancelled = "order.cancelled"
	OrderEventDelivered = "order.delivered"
)

// CreateOrder persists exactly one order row and its outbox event in a single
// transaction, returning the new order id.
func (r *Repository) CreateOrder(ctx context.Context, order *domain.Order) (int64, error) {
	linesJSON, err := json.Marshal(order.Lines)
	if err != nil {
		return 0, fmt.Errorf("marshal order lines: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO orders (
			shopper_id, shop_id, lines, item_summary, quantity, total_amount,
			payment_method, status, payment_status,
			delivery_address, delivery_pincode, delivery_city
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		order.ShopperID, order.ShopID, string(linesJSON), order.ItemSummary,
		order.Quantity, order.TotalAmount, order.PaymentMethod,
		string(order.Status), string(order.PaymentStatus),
		order.DeliveryAddress, order.DeliveryPincode, order.DeliveryCity,
	)
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("order id: %w", err)
	}

	if err := insertOutboxTx(ctx, tx, id, OrderEventCreated, map[string]interface{}{
		"order_id":     id,
		"shopper_id":   order.ShopperID,
		"shop_id":      order.ShopID,
		"total_amount": order.TotalAmount,
		"method":       order.PaymentMethod,
	}); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit order: %w", err)
	}
	return id, nil
}

// GetOrder fetches one order by id.
func (r *Repository) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, shopper_id, shop_id, lines, item_summary, quantity,
		       total_amount, payment_method, status, payment_status,
		       delivery_address, delivery_pincode, delivery_city,
		       provider_payment_id, shipment_id, shipping_provider, proof_ref,
		       review_requested, created_at, updated_at
		FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	var linesJSON string
	var reviewRequested int
	err := row.Scan(
		&order.ID, &order.ShopperID, &order.ShopID, &linesJSON,
		&order.ItemSummary, &order.Quantity, &order.TotalAmount,
		&order.PaymentMethod, &order.Status, &order.PaymentStatus,
		&order.DeliveryAddress, &order.DeliveryPincode, &order.DeliveryCity,
		&order.ProviderPaymentID, &order.ShipmentID, &order.ShippingProvider,
		&order.ProofRef, &reviewRequested, &order.CreatedAt, &order.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}
	if err := json.Unmarshal([]byte(linesJSON), &order.Lines); err != nil {
		return nil, fmt.Errorf("unmarshal order lines: %w", err)
	}
	order.ReviewRequested = reviewRequested != 0
	return &order, nil
}

// MarkOrderPaid is the reconciler's atomic check-and-set: it flips an unpaid
// order to paid/processing and records the provider payment id. Returns false
// without error when the order was already paid, so duplicate webhook
// deliveries are silent no-ops.
func (r *Repository) MarkOrderPaid(ctx context.Context, id int64, providerPaymentID string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $1, status = $2, provider_payment_id = $3,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $4 AND payment_status != $1`,
		string(domain.PaymentStatusPaid), string(domain.OrderStatusProcessing),
		providerPaymentID, id,
	)
	if err != nil {
		return false, fmt.Errorf("mark order paid: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if err := insertOutboxTx(ctx, tx, id, OrderEventPaid, map[string]interface{}{
		"order_id":   id,
		"payment_id": providerPaymentID,
	}); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit mark paid: %w", err)
	}
	return true, nil
}

// SubmitPaymentProof moves a pending online order to needs_approval and
// records the uploaded proof reference.
func (r *Repository) SubmitPaymentProof(ctx context.Context, id int64, proofRef string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $1, proof_ref = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3 AND payment_status = $4`,
		string(domain.PaymentStatusNeedsApproval), proofRef, id,
		string(domain.PaymentStatusPending),
	)
	if err != nil {
		return fmt.Errorf("submit payment proof: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// ApproveOrderPayment terminates needs_approval as paid. Returns false when
// the order was not awaiting approval (already decided or unknown).
func (r *Repository) ApproveOrderPayment(ctx context.Context, id int64) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $1, status = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3 AND payment_status = $4`,
		string(domain.PaymentStatusPaid), string(domain.OrderStatusProcessing),
		id, string(domain.PaymentStatusNeedsApproval),
	)
	if err != nil {
		return false, fmt.Errorf("approve order payment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if err := insertOutboxTx(ctx, tx, id, OrderEventPaid, map[string]interface{}{
		"order_id": id,
		"manual":   true,
	}); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit approve: %w", err)
	}
	return true, nil
}

// RejectOrderPayment terminates needs_approval as failed and cancels the
// order. Returns false when the order was not awaiting approval.
func (r *Repository) RejectOrderPayment(ctx context.Context, id int64) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $1, status = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3 AND payment_status = $4`,
		string(domain.PaymentStatusFailed), string(domain.OrderStatusCancelled),
		id, string(domain.PaymentStatusNeedsApproval),
	)
	if err != nil {
		return false, fmt.Errorf("reject order payment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if err := insertOutboxTx(ctx, tx, id, OrderEventCancelled, map[string]interface{}{
		"order_id": id,
		"reason":   "payment_rejected",
	}); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit reject: %w", err)
	}
	return true, nil
}

// ListShippedOrders returns all orders in shipped status using the given
// automated shipping provider, for the delivery watchdog.
func (r *Repository) ListShippedOrders(ctx context.Context, provider string) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, shopper_id, shop_id, lines, item_summary, quantity,
		       total_amount, payment_method, status, payment_status,
		       delivery_address, delivery_pincode, delivery_city,
		       provider_payment_id, shipment_id, shipping_provider, proof_ref,
		       review_requested, created_at, updated_at
		FROM orders
		WHERE status = $1 AND shipping_provider = $2`,
		string(domain.OrderStatusShipped), provider)
	if err != nil {
		return nil, fmt.Errorf("query shipped orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return orders, nil
}

// MarkOrderDelivered transitions a shipped order to delivered and flags it as
// review-requested. Returns false when the order was not in shipped status.
func (r *Repository) MarkOrderDelivered(ctx context.Context, id int64) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, review_requested = 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2 AND status = $3`,
		string(domain.OrderStatusDelivered), id, string(domain.OrderStatusShipped),
	)
	if err != nil {
		return false, fmt.Errorf("mark order delivered: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if err := insertOutboxTx(ctx, tx, id, OrderEventDelivered, map[string]interface{}{
		"order_id": id,
	}); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delivered: %w", err)
	}
	return true, nil
}

func insertOutboxTx(ctx context.Context, tx *sql.Tx, orderID int64, eventType string, payload map[string]interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO outbox (id, aggregate_id, event_type, payload)
		VALUES ($1, $2, $3, $4)`,
		uuid.NewString(), fmt.Sprintf("%d", orderID), eventType, string(data),
	)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}
