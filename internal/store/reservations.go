package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Reclaim describes an item whose orphaned reservation was released.
type Reclaim struct {
	ItemID     int64
	BuyerID    int64
	ReservedAt *time.Time
}

type staleReservation struct {
	itemID     int64
	buyerID    int64
	reservedAt *time.Time
}

// ReclaimStaleReservations returns items to the available pool when they have
// been reserved for longer than timeout without a pending order backing the
// reservation. Items with a live pending order are never touched.
func ReclaimStaleReservations(ctx context.Context, db *sql.DB, timeout time.Duration) ([]Reclaim, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT i.id, i.reserved_by, i.reserved_at FROM items i
		 WHERE i.status = 'reserved'
		   AND NOT EXISTS (SELECT 1 FROM orders o WHERE o.item_id = i.id AND o.status = 'pending')`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing orphaned reservations: %w", err)
	}

	var candidates []staleReservation
	cutoff := now().Add(-timeout)
	for rows.Next() {
		var r staleReservation
		if err := rows.Scan(&r.itemID, &r.buyerID, &r.reservedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning reservation: %w", err)
		}
		if r.reservedAt == nil || r.reservedAt.Before(cutoff) {
			candidates = append(candidates, r)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing orphaned reservations: %w", err)
	}

	var reclaimed []Reclaim
	for _, c := range candidates {
		result, err := db.ExecContext(ctx,
			`UPDATE items SET status = 'available', reserved_by = NULL, reserved_at = NULL, updated_at = CURRENT_TIMESTAMP
			 WHERE id = ? AND status = 'reserved' AND reserved_by = ?
			   AND NOT EXISTS (SELECT 1 FROM orders o WHERE o.item_id = items.id AND o.status = 'pending')`,
			c.itemID, c.buyerID,
		)
		if err != nil {
			return reclaimed, fmt.Errorf("reclaiming item %d: %w", c.itemID, err)
		}
		ok, err := rowsChanged(result)
		if err != nil {
			return reclaimed, fmt.Errorf("reclaiming item %d: %w", c.itemID, err)
		}
		if ok {
			reclaimed = append(reclaimed, Reclaim{ItemID: c.itemID, BuyerID: c.buyerID, ReservedAt: c.reservedAt})
		}
	}
	return reclaimed, nil
}

// ReservationMismatch is an item whose status disagrees with its orders.
type ReservationMismatch struct {
	ItemID        int64
	Status        string
	PendingOrders int
}

// CheckReservations lists every item violating the pairing between a reserved
// status and exactly one pending order.
func CheckReservations(ctx context.Context, db *sql.DB) ([]ReservationMismatch, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, status, pending FROM (
		     SELECT i.id, i.status,
		            (SELECT COUNT(*) FROM orders o WHERE o.item_id = i.id AND o.status = 'pending') AS pending
		     FROM items i
		 )
		 WHERE (status = 'reserved') <> (pending = 1) OR pending > 1
		 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("checking reservations: %w", err)
	}
	defer rows.Close()

	var mismatches []ReservationMismatch
	for rows.Next() {
		var m ReservationMismatch
		if err := rows.Scan(&m.ItemID, &m.Status, &m.PendingOrders); err != nil {
			return nil, fmt.Errorf("scanning reservation check: %w", err)
		}
		mismatches = append(mismatches, m)
	}
	return mismatches, rows.Err()
}
