package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ShreyashF130/copit-backend/internal/domain"
	"github.com/ShreyashF130/copit-backend/internal/engine"
	"github.com/ShreyashF130/copit-backend/internal/messenger"
	"github.com/ShreyashF130/copit-backend/internal/session"
	"github.com/ShreyashF130/copit-backend/internal/shipping"
)

// DefaultWatchdogTick spaces polls out to stay under courier API limits.
const DefaultWatchdogTick = time.Hour

// ShiprocketProvider labels orders fulfilled through the aggregator.
const ShiprocketProvider = "shiprocket"

// WatchdogRepo is the repository slice the watchdog needs.
type WatchdogRepo interface {
	ListShippedOrders(ctx context.Context, provider string) ([]*domain.Order, error)
	MarkOrderDelivered(ctx context.Context, id int64) (bool, error)
}

// DeliveryWatchdog polls shipment status for in-transit orders and, on
// delivery, closes the order and opens a review conversation.
type DeliveryWatchdog struct {
	repo     WatchdogRepo
	shops    *engine.ShopConfigReader
	provider shipping.Provider
	sessions session.Store
	locks    *session.KeyedLock
	sender   messenger.Sender
	logger   *slog.Logger

	tick time.Duration
}

func NewDeliveryWatchdog(repo WatchdogRepo, shops *engine.ShopConfigReader,
	provider shipping.Provider, sessions session.Store, locks *session.KeyedLock,
	sender messenger.Sender, logger *slog.Logger) *DeliveryWatchdog {
	return &DeliveryWatchdog{
		repo:     repo,
		shops:    shops,
		provider: provider,
		sessions: sessions,
		locks:    locks,
		sender:   sender,
		logger:   logger,
		tick:     DefaultWatchdogTick,
	}
}

// Run blocks until ctx is cancelled.
func (w *DeliveryWatchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.Sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Sweep polls every shipped order once. A poll failure for one order is
// logged and the batch continues.
func (w *DeliveryWatchdog) Sweep(ctx context.Context) {
	orders, err := w.repo.ListShippedOrders(ctx, ShiprocketProvider)
	if err != nil {
		w.logger.Error("shipped order listing failed", "error", err)
		return
	}

	for _, order := range orders {
		if err := w.poll(ctx, order); err != nil {
			w.logger.Error("shipment poll failed", "order", order.ID, "error", err)
		}
	}
}

func (w *DeliveryWatchdog) poll(ctx context.Context, order *domain.Order) error {
	shop, err := w.shops.Load(ctx, order.ShopID)
	if err != nil {
		return fmt.Errorf("load shop %d: %w", order.ShopID, err)
	}
	if shop.ShippingEmail == "" {
		return nil
	}

	status, err := w.provider.ShipmentStatus(ctx, shipping.Credentials{
		Email:    shop.ShippingEmail,
		Password: shop.ShippingPassword,
	}, order.ShipmentID)
	if err != nil {
		return err
	}
	if status != shipping.StatusDelivered {
		return nil
	}

	applied, err := w.repo.MarkOrderDelivered(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	if !applied {
		return nil
	}
	w.logger.Info("order delivered", "order", order.ID, "shopper", order.ShopperID)

	// Seed the review conversation under the shopper's lock so a
	// concurrent inbound event cannot clobber the fresh session.
	w.locks.Do(order.ShopperID, func() {
		sess := domain.Session{
			State:   domain.StateAwaitingReviewRating,
			ShopID:  order.ShopID,
			OrderID: order.ID,
		}
		if err := w.sessions.Set(ctx, order.ShopperID, sess); err != nil {
			w.logger.Error("review session seed failed", "shopper", order.ShopperID, "error", err)
		}
	})

	msg := fmt.Sprintf(
		"Delivered! We hope you love your order #%d.\n\nHow would you rate your experience? Reply with a number 1 to 5.",
		order.ID)
	if err := w.sender.SendText(ctx, order.ShopperID, msg); err != nil {
		w.logger.Error("review prompt send failed", "order", order.ID, "error", err)
	}
	return nil
}
