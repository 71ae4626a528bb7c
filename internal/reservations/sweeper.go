// Package reservations runs the periodic sweep that releases item
// reservations no longer backed by a pending order.
package reservations

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/erazemk/bazar/internal/events"
	"github.com/erazemk/bazar/internal/store"
)

// Invalidator is notified when item availability changes.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// reclaimedEvent builds the event published for each released item.
var reclaimedEvent = events.ReservationReclaimed

// Sweeper periodically reclaims orphaned reservations, reports items whose
// status disagrees with their orders, and purges expired revoked tokens.
type Sweeper struct {
	DB       *sql.DB
	Interval time.Duration
	Timeout  time.Duration
	Events   events.Publisher
	Cache    Invalidator
	Logger   *slog.Logger
}

// Sweep runs one pass and returns the number of items released.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	logger := s.logger()

	reclaimed, err := store.ReclaimStaleReservations(ctx, s.DB, s.Timeout)
	for _, r := range reclaimed {
		logger.InfoContext(ctx, "reservation reclaimed", "item", r.ItemID, "buyer", r.BuyerID)
		if s.Events == nil {
			continue
		}
		e, err := reclaimedEvent(r.ItemID, r.BuyerID, r.ReservedAt)
		if err != nil {
			logger.ErrorContext(ctx, "building event", "item", r.ItemID, "error", err)
			continue
		}
		s.Events.Publish(ctx, e)
	}
	if len(reclaimed) > 0 && s.Cache != nil {
		s.Cache.Invalidate(ctx)
	}
	if err != nil {
		return len(reclaimed), fmt.Errorf("reclaiming reservations: %w", err)
	}

	mismatches, err := store.CheckReservations(ctx, s.DB)
	if err != nil {
		return len(reclaimed), err
	}
	for _, m := range mismatches {
		// A reserved item without a pending order is reclaimed once it ages
		// past the timeout; anything else needs a human.
		logger.WarnContext(ctx, "reservation mismatch", "item", m.ItemID, "status", m.Status, "pending", m.PendingOrders)
	}

	if n, err := store.PurgeExpiredTokens(ctx, s.DB); err != nil {
		return len(reclaimed), err
	} else if n > 0 {
		logger.InfoContext(ctx, "purged expired tokens", "count", n)
	}

	return len(reclaimed), nil
}

// Run sweeps every Interval until ctx is cancelled. A non-positive interval
// disables sweeping; Run then just waits for ctx.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.Interval <= 0 {
		<-ctx.Done()
		return nil
	}

	logger := s.logger()
	logger.Info("reservation sweeper started", "interval", s.Interval, "timeout", s.Timeout)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, time.Minute)
			if _, err := s.Sweep(runCtx); err != nil {
				logger.Error("reservation sweep failed", "error", err)
			}
			cancel()
		}
	}
}

func (s *Sweeper) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
