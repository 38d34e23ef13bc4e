// Package sweeper holds the periodic background tasks: abandoned-cart
// recovery and delivery polling. Each sweeper runs its ticks strictly
// sequentially off one ticker, so an overrunning tick delays the next
// rather than overlapping it.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ShreyashF130/copit-backend/internal/domain"
	"github.com/ShreyashF130/copit-backend/internal/messenger"
	"github.com/ShreyashF130/copit-backend/internal/session"
)

// Recovery sweep window: silence shorter than the floor means the shopper
// is likely still typing; older than the ceiling means truly abandoned.
const (
	DefaultRecoveryTick   = time.Minute
	DefaultSilenceFloor   = 30 * time.Minute
	DefaultSilenceCeiling = 24 * time.Hour
)

// RecoverySweeper nudges shoppers who stalled mid-checkout. At most one
// nudge per abandonment: the session's Nudged flag is set under the
// shopper's lock before the next tick can see the session again.
type RecoverySweeper struct {
	sessions session.Store
	locks    *session.KeyedLock
	sender   messenger.Sender
	logger   *slog.Logger

	tick   time.Duration
	minAge time.Duration
	maxAge time.Duration
}

func NewRecoverySweeper(sessions session.Store, locks *session.KeyedLock,
	sender messenger.Sender, logger *slog.Logger) *RecoverySweeper {
	return &RecoverySweeper{
		sessions: sessions,
		locks:    locks,
		sender:   sender,
		logger:   logger,
		tick:     DefaultRecoveryTick,
		minAge:   DefaultSilenceFloor,
		maxAge:   DefaultSilenceCeiling,
	}
}

// Run blocks until ctx is cancelled.
func (s *RecoverySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Sweep runs one pass. Exported so tests drive it without the ticker.
func (s *RecoverySweeper) Sweep(ctx context.Context) {
	stale, err := s.sessions.ScanStale(ctx, s.minAge, s.maxAge, func(sess domain.Session) bool {
		return sess.State.InProgress() && !sess.Nudged && len(sess.Cart) > 0
	})
	if err != nil {
		s.logger.Error("stale session scan failed", "error", err)
		return
	}

	for _, entry := range stale {
		s.nudge(ctx, entry)
	}
}

func (s *RecoverySweeper) nudge(ctx context.Context, entry session.Entry) {
	s.locks.Do(entry.ShopperID, func() {
		// Re-read under the lock: the shopper may have resumed, finished
		// or been nudged since the snapshot was taken.
		sess, err := s.sessions.Get(ctx, entry.ShopperID)
		if err != nil {
			s.logger.Error("session read failed", "shopper", entry.ShopperID, "error", err)
			return
		}
		if !sess.State.InProgress() || sess.Nudged || len(sess.Cart) == 0 {
			return
		}

		total := sess.CartTotal()
		msg := fmt.Sprintf(
			"You forgot something! Your %d item(s) worth ₹%.0f are still reserved, but stock is limited.",
			len(sess.Cart), total)
		err = s.sender.SendButtons(ctx, entry.ShopperID, msg, []domain.Button{
			{ID: "recover_checkout", Title: "Resume Checkout"},
			{ID: "recover_cancel", Title: "Empty Cart"},
		})
		if err != nil {
			s.logger.Error("nudge send failed", "shopper", entry.ShopperID, "error", err)
			return
		}

		// Setting the flag refreshes LastUpdated, which also pushes the
		// session out of the sweep window for another full silence period.
		if _, err := s.sessions.Update(ctx, entry.ShopperID, func(sess *domain.Session) {
			sess.Nudged = true
		}); err != nil {
			s.logger.Error("nudge flag update failed", "shopper", entry.ShopperID, "error", err)
		}
		s.logger.Info("abandoned cart nudged", "shopper", entry.ShopperID, "total", total)
	})
}
