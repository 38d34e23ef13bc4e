package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShreyashF130/copit-backend/internal/domain"
	"github.com/ShreyashF130/copit-backend/internal/payment"
	"github.com/ShreyashF130/copit-backend/internal/repository"
)

// seedPaymentReady installs a session parked on payment-method selection with
// one cart line (item 12, qty 3, ₹300) and a saved address.
func (env *testEnv) seedPaymentReady(t *testing.T) {
	t.Helper()
	env.repo.Addresses[1] = &domain.Address{
		ID: 1, ShopperID: shopper, HouseNo: "42 MG Road", City: "Bengaluru", Pincode: "560001",
	}
	err := env.sessions.Set(context.Background(), shopper, domain.Session{
		State:  domain.StateAwaitingPayment,
		ShopID: 1,
		Cart: []domain.CartLine{
			{ItemID: 12, Name: "Blue Kurta", Quantity: 3, UnitPrice: 100},
		},
		Quantity:  3,
		Total:     300,
		AddressID: 1,
	})
	require.NoError(t, err)
}

func codShop() *repository.ShopCredentials {
	return &repository.ShopCredentials{
		ShopPaymentConfig: domain.ShopPaymentConfig{
			ShopID:      1,
			Name:        "Kurta House",
			SellerPhone: "918800554433",
			Plan:        domain.PlanFree,
		},
	}
}

func gatewayShop() *repository.ShopCredentials {
	s := codShop()
	s.Plan = domain.PlanPro
	s.ActiveMethod = domain.MethodGateway
	s.GatewayKeyID = "rzp_test_key"
	s.GatewayKeySecret = "rzp_test_secret"
	return s
}

func manualShop() *repository.ShopCredentials {
	s := codShop()
	s.ActiveMethod = domain.MethodManual
	s.ManualPayAddress = "kurtahouse@upi"
	return s
}

func TestCODFinalize(t *testing.T) {
	env := newTestEnv()
	env.seedItem(12, "Blue Kurta", 100, 5)
	env.repo.Shops[1] = codShop()
	env.seedPaymentReady(t)

	env.engine.HandleEvent(context.Background(), buttonEvent(domain.PayCOD))

	require.Equal(t, 1, env.repo.orderCount())
	order := env.repo.CreatedOrders[0]
	assert.Equal(t, "COD", order.PaymentMethod)
	assert.Equal(t, domain.OrderStatusPlaced, order.Status)
	assert.Equal(t, 300.0, order.TotalAmount)
	assert.Equal(t, "560001", order.DeliveryPincode)
	assert.Equal(t, 3, env.repo.Decrements[12])
	assert.Contains(t, env.sender.lastText(), "Pay on delivery")
	assert.True(t, env.session(t).Empty())
}

func TestDoubleTapCODCreatesOneOrder(t *testing.T) {
	env := newTestEnv()
	env.seedItem(12, "Blue Kurta", 100, 5)
	env.repo.Shops[1] = codShop()
	env.seedPaymentReady(t)

	ctx := context.Background()
	env.engine.HandleEvent(ctx, buttonEvent(domain.PayCOD))
	env.engine.HandleEvent(ctx, buttonEvent(domain.PayCOD))

	assert.Equal(t, 1, env.repo.orderCount())
}

func TestOnlineGatewaySendsLinkAndParksOrder(t *testing.T) {
	env := newTestEnv()
	env.seedItem(12, "Blue Kurta", 100, 5)
	env.repo.Shops[1] = gatewayShop()
	env.seedPaymentReady(t)

	env.engine.HandleEvent(context.Background(), buttonEvent(domain.PayOnline))

	require.Equal(t, 1, env.repo.orderCount())
	assert.Equal(t, "ONLINE", env.repo.CreatedOrders[0].PaymentMethod)
	assert.Equal(t, 1, env.gateway.Calls)
	assert.Contains(t, env.sender.lastText(), "https://rzp.io/l/abc")

	sess := env.session(t)
	assert.Equal(t, domain.StateAwaitingPayment, sess.State)
	assert.Equal(t, int64(1), sess.OrderID)
	assert.Equal(t, "plink_1", sess.PaymentLinkID)
}

func TestPaymentLinkAmountRoundsToWholePaise(t *testing.T) {
	env := newTestEnv()
	env.seedItem(12, "Blue Kurta", 100, 5)
	env.repo.Shops[1] = gatewayShop()
	env.seedPaymentReady(t)
	_, err := env.sessions.Update(context.Background(), shopper, func(s *domain.Session) {
		s.Cart[0].UnitPrice = 116.65
		s.Total = 349.95
	})
	require.NoError(t, err)

	env.engine.HandleEvent(context.Background(), buttonEvent(domain.PayOnline))

	// 349.95 has no exact float64 representation; truncation would yield 34994.
	assert.Equal(t, int64(34995), env.gateway.LastReq.AmountPaise)
}

func TestRetapWhileLinkOutstandingSendsReminder(t *testing.T) {
	env := newTestEnv()
	env.seedItem(12, "Blue Kurta", 100, 5)
	env.repo.Shops[1] = gatewayShop()
	env.seedPaymentReady(t)

	ctx := context.Background()
	env.engine.HandleEvent(ctx, buttonEvent(domain.PayOnline))
	env.engine.HandleEvent(ctx, buttonEvent(domain.PayOnline))

	assert.Equal(t, 1, env.repo.orderCount())
	assert.Equal(t, 1, env.gateway.Calls)
	assert.Contains(t, env.sender.lastText(), "awaiting payment")
}

func TestGatewayFailureFallsBackToManualProof(t *testing.T) {
	env := newTestEnv()
	env.seedItem(12, "Blue Kurta", 100, 5)
	shop := gatewayShop()
	shop.ManualPayAddress = "kurtahouse@upi"
	env.repo.Shops[1] = shop
	env.gateway.Err = payment.ErrGatewayUnavailable
	env.seedPaymentReady(t)

	env.engine.HandleEvent(context.Background(), buttonEvent(domain.PayOnline))

	require.Equal(t, 1, env.repo.orderCount())
	assert.Contains(t, env.sender.lastText(), "kurtahouse@upi")

	sess := env.session(t)
	assert.Equal(t, domain.StateAwaitingScreenshot, sess.State)
	assert.Equal(t, int64(1), sess.OrderID)
}

func TestGatewayFailureWithoutManualPinsOrder(t *testing.T) {
	env := newTestEnv()
	env.seedItem(12, "Blue Kurta", 100, 5)
	env.repo.Shops[1] = gatewayShop()
	env.gateway.Err = payment.ErrGatewayUnavailable
	env.seedPaymentReady(t)

	ctx := context.Background()
	env.engine.HandleEvent(ctx, buttonEvent(domain.PayOnline))

	require.Equal(t, 1, env.repo.orderCount())
	assert.Contains(t, env.sender.lastText(), "gateway is unavailable")
	assert.Equal(t, int64(1), env.session(t).OrderID)

	// Re-taps on either button must never finalize a second time.
	env.engine.HandleEvent(ctx, buttonEvent(domain.PayOnline))
	env.engine.HandleEvent(ctx, buttonEvent(domain.PayCOD))

	assert.Equal(t, 1, env.repo.orderCount())
	assert.Equal(t, 3, env.repo.Decrements[12])
	assert.Contains(t, env.sender.lastText(), "awaiting payment")
}

func TestOnlineWithoutAnyPathCreatesNoOrder(t *testing.T) {
	env := newTestEnv()
	env.seedItem(12, "Blue Kurta", 100, 5)
	env.repo.Shops[1] = codShop()
	env.seedPaymentReady(t)

	env.engine.HandleEvent(context.Background(), buttonEvent(domain.PayOnline))

	assert.Equal(t, 0, env.repo.orderCount())
	b := env.sender.lastButtons()
	require.NotNil(t, b)
	assert.Equal(t, domain.PayCOD, b.Buttons[0].ID)
	// Still on payment selection so the COD button works.
	assert.Equal(t, domain.StateAwaitingPayment, env.session(t).State)
}

func TestManualOnlyShopSkipsGateway(t *testing.T) {
	env := newTestEnv()
	env.seedItem(12, "Blue Kurta", 100, 5)
	env.repo.Shops[1] = manualShop()
	env.seedPaymentReady(t)

	env.engine.HandleEvent(context.Background(), buttonEvent(domain.PayOnline))

	assert.Equal(t, 0, env.gateway.Calls)
	assert.Equal(t, domain.StateAwaitingScreenshot, env.session(t).State)
	assert.Contains(t, env.sender.lastText(), "kurtahouse@upi")
}

func TestScreenshotProofHandsOffToMerchant(t *testing.T) {
	env := newTestEnv()
	env.repo.Shops[1] = manualShop()
	err := env.sessions.Set(context.Background(), shopper, domain.Session{
		State:   domain.StateAwaitingScreenshot,
		ShopID:  1,
		OrderID: 41,
		Total:   300,
	})
	require.NoError(t, err)

	env.engine.HandleEvent(context.Background(), &domain.Event{
		Kind: domain.EventImage, Shopper: shopper,
		Image: domain.ImageRef{ProviderID: "media-883"},
	})

	assert.Equal(t, "img:media-883", env.repo.Proofs[41])
	assert.True(t, env.session(t).Empty())

	b := env.sender.lastButtons()
	require.NotNil(t, b)
	assert.Equal(t, "918800554433", b.To)
	assert.Equal(t, "approve_order_41", b.Buttons[0].ID)
	assert.Equal(t, "reject_order_41", b.Buttons[1].ID)
}

func TestTypedReferenceAcceptedAsProof(t *testing.T) {
	env := newTestEnv()
	env.repo.Shops[1] = manualShop()
	err := env.sessions.Set(context.Background(), shopper, domain.Session{
		State:   domain.StateAwaitingScreenshot,
		ShopID:  1,
		OrderID: 41,
	})
	require.NoError(t, err)

	ctx := context.Background()
	env.engine.HandleEvent(ctx, textEvent("short"))
	assert.Empty(t, env.repo.Proofs[41])

	env.engine.HandleEvent(ctx, textEvent("UTR123456789012"))
	assert.Equal(t, "ref:UTR123456789012", env.repo.Proofs[41])
	assert.True(t, env.session(t).Empty())
}

func TestUpsellOfferAfterCOD(t *testing.T) {
	env := newTestEnv()
	env.seedItem(12, "Blue Kurta", 100, 5)
	shop := codShop()
	shop.UpsellItemName = "Matching Stole"
	shop.UpsellItemPrice = 250
	env.repo.Shops[1] = shop
	env.seedPaymentReady(t)

	ctx := context.Background()
	env.engine.HandleEvent(ctx, buttonEvent(domain.PayCOD))

	sess := env.session(t)
	require.Equal(t, domain.StateAwaitingUpsell, sess.State)
	require.NotNil(t, sess.Upsell)
	assert.Equal(t, int64(1), sess.Upsell.LinkedOrderID)

	env.engine.HandleEvent(ctx, textEvent("yes"))

	require.Equal(t, 2, env.repo.orderCount())
	addon := env.repo.CreatedOrders[1]
	assert.Equal(t, "Matching Stole", addon.ItemSummary)
	assert.Equal(t, 250.0, addon.TotalAmount)
	assert.Equal(t, "COD", addon.PaymentMethod)
	assert.True(t, env.session(t).Empty())
}

func TestUpsellDeclineJustClears(t *testing.T) {
	env := newTestEnv()
	env.seedItem(12, "Blue Kurta", 100, 5)
	shop := codShop()
	shop.UpsellItemName = "Matching Stole"
	shop.UpsellItemPrice = 250
	env.repo.Shops[1] = shop
	env.seedPaymentReady(t)

	ctx := context.Background()
	env.engine.HandleEvent(ctx, buttonEvent(domain.PayCOD))
	env.engine.HandleEvent(ctx, textEvent("no thanks"))

	assert.Equal(t, 1, env.repo.orderCount())
	assert.True(t, env.session(t).Empty())
}

func TestAddressFormAdvancesToPayment(t *testing.T) {
	env := newTestEnv()
	env.seedCheckoutSession(t, domain.StateAwaitingAddress)

	env.engine.HandleEvent(context.Background(), &domain.Event{
		Kind: domain.EventForm, Shopper: shopper,
		Form: map[string]string{"pincode": "560001", "house_no": "42", "city": "Bengaluru"},
	})

	sess := env.session(t)
	assert.Equal(t, domain.StateAwaitingPayment, sess.State)
	require.NotZero(t, sess.AddressID)
	assert.Equal(t, "560001", env.repo.Addresses[sess.AddressID].Pincode)
}

func TestReviewRatingCapture(t *testing.T) {
	env := newTestEnv()
	err := env.sessions.Set(context.Background(), shopper, domain.Session{
		State: domain.StateAwaitingReviewRating, ShopID: 1, OrderID: 41,
	})
	require.NoError(t, err)

	ctx := context.Background()
	env.engine.HandleEvent(ctx, textEvent("7"))
	assert.Equal(t, domain.StateAwaitingReviewRating, env.session(t).State)

	env.engine.HandleEvent(ctx, textEvent("5"))
	assert.True(t, env.session(t).Empty())
	assert.Contains(t, env.sender.lastText(), "Thanks")
}
