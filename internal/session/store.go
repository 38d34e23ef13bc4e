package session

import (
	"context"
	"time"

	"github.com/ShreyashF130/copit-backend/internal/domain"
)

// Store holds per-shopper conversation state. Get never fails on a missing
// key: an unknown shopper has an empty idle session. All operations are safe
// under concurrent callers, but a read-decide-write cycle additionally needs
// the per-shopper lock (see KeyedLock) to be a critical section.
type Store interface {
	// Get returns the session for the shopper, or an empty session.
	Get(ctx context.Context, shopperID string) (domain.Session, error)

	// Set replaces the session, refreshing its LastUpdated timestamp.
	Set(ctx context.Context, shopperID string, s domain.Session) error

	// Update applies fn to the current session and stores the result.
	// LastUpdated is always refreshed, even when fn leaves the session
	// unchanged.
	Update(ctx context.Context, shopperID string, fn func(*domain.Session)) (domain.Session, error)

	// Clear removes the session. Clearing an absent session is a no-op.
	Clear(ctx context.Context, shopperID string) error

	// ScanStale returns a snapshot of sessions whose silence duration lies in
	// (minAge, maxAge) and for which pred returns true. The snapshot is taken
	// under the store lock; callers iterate it without holding any lock.
	ScanStale(ctx context.Context, minAge, maxAge time.Duration, pred func(domain.Session) bool) ([]Entry, error)
}

// Entry pairs a shopper id with a session snapshot from ScanStale.
type Entry struct {
	ShopperID string
	Session   domain.Session
}
