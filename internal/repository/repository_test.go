package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShreyashF130/copit-backend/internal/domain"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	require.NoError(t, repo.RunMigrations("../../migrations"))
	return repo
}

func seedShop(t *testing.T, repo *Repository) int64 {
	t.Helper()
	res, err := repo.db.Exec(`
		INSERT INTO shops (name, seller_phone, plan, active_method)
		VALUES ('Kurta House', '918800554433', 'pro', 'gateway')`)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func seedItem(t *testing.T, repo *Repository, shopID int64, stock int, options, variants string) int64 {
	t.Helper()
	res, err := repo.db.Exec(`
		INSERT INTO items (shop_id, name, description, price, stock, options, variants)
		VALUES ($1, 'Blue Kurta', 'Handwoven cotton', 100, $2, $3, $4)`,
		shopID, stock, options, variants)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func sampleOrder(shopID int64) *domain.Order {
	return &domain.Order{
		ShopperID: "919900112233",
		ShopID:    shopID,
		Lines: []domain.CartLine{
			{ItemID: 1, Name: "Blue Kurta", Quantity: 3, UnitPrice: 100},
		},
		ItemSummary:     "Blue Kurta",
		Quantity:        3,
		TotalAmount:     300,
		PaymentMethod:   "ONLINE",
		Status:          domain.OrderStatusPlaced,
		PaymentStatus:   domain.PaymentStatusPending,
		DeliveryAddress: "42 MG Road, Bengaluru, 560001",
		DeliveryPincode: "560001",
		DeliveryCity:    "Bengaluru",
	}
}

func TestCreateOrderRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	shopID := seedShop(t, repo)

	id, err := repo.CreateOrder(ctx, sampleOrder(shopID))
	require.NoError(t, err)
	require.NotZero(t, id)

	order, err := repo.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "919900112233", order.ShopperID)
	assert.Equal(t, 300.0, order.TotalAmount)
	assert.Equal(t, domain.PaymentStatusPending, order.PaymentStatus)
	require.Len(t, order.Lines, 1)
	assert.Equal(t, 3, order.Lines[0].Quantity)
	assert.Equal(t, "560001", order.DeliveryPincode)
}

func TestCreateOrderStagesOutboxEvent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	shopID := seedShop(t, repo)

	_, err := repo.CreateOrder(ctx, sampleOrder(shopID))
	require.NoError(t, err)

	events, err := repo.UnpublishedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, OrderEventCreated, events[0].EventType)
	assert.Contains(t, string(events[0].Payload), `"shopper_id":"919900112233"`)

	require.NoError(t, repo.MarkEventPublished(ctx, events[0].ID))
	events, err = repo.UnpublishedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestGetOrderNotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetOrder(context.Background(), 404)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestMarkOrderPaidAppliesOnce(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	shopID := seedShop(t, repo)
	id, err := repo.CreateOrder(ctx, sampleOrder(shopID))
	require.NoError(t, err)

	applied, err := repo.MarkOrderPaid(ctx, id, "pay_abc")
	require.NoError(t, err)
	assert.True(t, applied)

	// The provider retries delivery; the second confirmation applies nothing.
	applied, err = repo.MarkOrderPaid(ctx, id, "pay_abc")
	require.NoError(t, err)
	assert.False(t, applied)

	order, err := repo.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, order.PaymentStatus)
	assert.Equal(t, domain.OrderStatusProcessing, order.Status)
	assert.Equal(t, "pay_abc", order.ProviderPaymentID)
}

func TestProofApprovalLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	shopID := seedShop(t, repo)
	id, err := repo.CreateOrder(ctx, sampleOrder(shopID))
	require.NoError(t, err)

	// Approval is only reachable through a submitted proof.
	applied, err := repo.ApproveOrderPayment(ctx, id)
	require.NoError(t, err)
	assert.False(t, applied)

	require.NoError(t, repo.SubmitPaymentProof(ctx, id, "img:media-883"))

	applied, err = repo.ApproveOrderPayment(ctx, id)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = repo.ApproveOrderPayment(ctx, id)
	require.NoError(t, err)
	assert.False(t, applied)

	order, err := repo.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, order.PaymentStatus)
	assert.Equal(t, "img:media-883", order.ProofRef)
}

func TestProofRejectionCancelsOrder(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	shopID := seedShop(t, repo)
	id, err := repo.CreateOrder(ctx, sampleOrder(shopID))
	require.NoError(t, err)
	require.NoError(t, repo.SubmitPaymentProof(ctx, id, "ref:UTR123456789012"))

	applied, err := repo.RejectOrderPayment(ctx, id)
	require.NoError(t, err)
	assert.True(t, applied)

	order, err := repo.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, order.PaymentStatus)
	assert.Equal(t, domain.OrderStatusCancelled, order.Status)

	// A rejected order cannot come back through approval.
	applied, err = repo.ApproveOrderPayment(ctx, id)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestSubmitProofUnknownOrder(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.SubmitPaymentProof(context.Background(), 404, "ref:x")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestDeliveryTransition(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	shopID := seedShop(t, repo)
	id, err := repo.CreateOrder(ctx, sampleOrder(shopID))
	require.NoError(t, err)

	_, err = repo.db.Exec(`
		UPDATE orders SET status = 'shipped', shipment_id = 'SR-100',
		shipping_provider = 'shiprocket' WHERE id = $1`, id)
	require.NoError(t, err)

	shipped, err := repo.ListShippedOrders(ctx, "shiprocket")
	require.NoError(t, err)
	require.Len(t, shipped, 1)
	assert.Equal(t, "SR-100", shipped[0].ShipmentID)

	applied, err := repo.MarkOrderDelivered(ctx, id)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = repo.MarkOrderDelivered(ctx, id)
	require.NoError(t, err)
	assert.False(t, applied)

	shipped, err = repo.ListShippedOrders(ctx, "shiprocket")
	require.NoError(t, err)
	assert.Empty(t, shipped)

	order, err := repo.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusDelivered, order.Status)
	assert.True(t, order.ReviewRequested)
}

func TestGetItemWithVariants(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	shopID := seedShop(t, repo)
	id := seedItem(t, repo, shopID, 10,
		`[{"name":"Size","values":["8","9"]}]`,
		`[{"options":{"Size":"9"},"price":120}]`)

	item, err := repo.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Blue Kurta", item.Name)
	assert.Equal(t, 10, item.Stock)
	require.Len(t, item.Options, 1)
	assert.Equal(t, []string{"8", "9"}, item.Options[0].Values)
	assert.Equal(t, 120.0, item.ResolveVariant(map[string]string{"Size": "9"}))

	_, err = repo.GetItem(ctx, 404)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestDecrementStockNeverGoesNegative(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	shopID := seedShop(t, repo)
	id := seedItem(t, repo, shopID, 3, "[]", "[]")

	require.NoError(t, repo.DecrementStock(ctx, id, 2))
	item, err := repo.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, item.Stock)

	// Oversell leaves the stock untouched rather than underflowing.
	require.NoError(t, repo.DecrementStock(ctx, id, 2))
	item, err = repo.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, item.Stock)
}

func TestLatestAddressPicksNewest(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.CreateAddress(ctx, &domain.Address{
		ShopperID: "919900112233", HouseNo: "old place", Pincode: "110011",
	})
	require.NoError(t, err)
	newest, err := repo.CreateAddress(ctx, &domain.Address{
		ShopperID: "919900112233", HouseNo: "42 MG Road", City: "Bengaluru", Pincode: "560001",
	})
	require.NoError(t, err)

	addr, err := repo.LatestAddress(ctx, "919900112233")
	require.NoError(t, err)
	assert.Equal(t, newest, addr.ID)
	assert.Equal(t, "560001", addr.Pincode)

	got, err := repo.GetAddress(ctx, newest)
	require.NoError(t, err)
	assert.Equal(t, "42 MG Road", got.HouseNo)

	_, err = repo.LatestAddress(ctx, "unknown")
	assert.ErrorIs(t, err, ErrAddressNotFound)
}

func TestGetCouponCaseInsensitive(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	shopID := seedShop(t, repo)
	_, err := repo.db.Exec(`
		INSERT INTO coupons (code, shop_id, discount_type, value, active)
		VALUES ('SALE10', $1, 'percent', 10, 1)`, shopID)
	require.NoError(t, err)
	_, err = repo.db.Exec(`
		INSERT INTO coupons (code, shop_id, discount_type, value, active)
		VALUES ('DEAD', $1, 'flat', 50, 0)`, shopID)
	require.NoError(t, err)

	coupon, err := repo.GetCoupon(ctx, shopID, "sale10")
	require.NoError(t, err)
	assert.Equal(t, 10.0, coupon.Value)
	assert.Equal(t, 40.0, coupon.DiscountOn(400))

	_, err = repo.GetCoupon(ctx, shopID, "DEAD")
	assert.ErrorIs(t, err, ErrCouponNotFound)
}

func TestGetShopCredentials(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	shopID := seedShop(t, repo)
	_, err := repo.db.Exec(`
		UPDATE shops SET gateway_key_id = 'rzp_key', gateway_key_secret = 'rzp_secret',
		gateway_webhook_secret = 'whsec', manual_pay_address = 'kurtahouse@upi',
		upsell_item_name = 'Matching Stole', upsell_item_price = 250,
		shipping_email = 'ship@kurta.house', shipping_password = 'hunter2'
		WHERE id = $1`, shopID)
	require.NoError(t, err)

	creds, err := repo.GetShopCredentials(ctx, shopID)
	require.NoError(t, err)
	assert.Equal(t, "Kurta House", creds.Name)
	assert.True(t, creds.GatewayUsable())
	assert.Equal(t, "whsec", creds.WebhookSecret)
	assert.Equal(t, "Matching Stole", creds.UpsellItemName)
	assert.Equal(t, "ship@kurta.house", creds.ShippingEmail)

	_, err = repo.GetShopCredentials(ctx, 404)
	assert.ErrorIs(t, err, ErrShopNotFound)
}
