package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/bazar/internal/model"
)

// AddToCart puts an item in a user's cart.
func AddToCart(ctx context.Context, db *sql.DB, userID, itemID int64) error {
	item, err := GetItem(ctx, db, itemID)
	if err != nil {
		return err
	}
	if item == nil || item.DeletedAt != nil {
		return ErrNotFound
	}
	if item.SellerID == userID {
		return ErrOwnItem
	}
	if item.Status == model.ItemStatusSold {
		return ErrItemUnavailable
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO cart_items (user_id, item_id) VALUES (?, ?)`,
		userID, itemID,
	)
	if uniqueViolation(err, "") {
		return ErrAlreadyInCart
	}
	if err != nil {
		return fmt.Errorf("adding to cart: %w", err)
	}
	return nil
}

// ListCart returns a user's cart. Entries whose item was sold or deleted are
// pruned first.
func ListCart(ctx context.Context, db *sql.DB, userID int64) ([]model.CartEntry, error) {
	_, err := db.ExecContext(ctx,
		`DELETE FROM cart_items WHERE user_id = ? AND item_id IN
		     (SELECT id FROM items WHERE status = 'sold' OR deleted_at IS NOT NULL)`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("pruning cart: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT c.user_id, c.item_id, c.added_at, `+itemColumns+`
		 FROM cart_items c
		 JOIN items i ON i.id = c.item_id
		 JOIN users u ON u.id = i.seller_id
		 WHERE c.user_id = ?
		 ORDER BY c.added_at DESC, c.item_id DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing cart: %w", err)
	}
	defer rows.Close()

	var entries []model.CartEntry
	for rows.Next() {
		var e model.CartEntry
		item, err := scanItem(scanFunc(func(dest ...any) error {
			return rows.Scan(append([]any{&e.UserID, &e.ItemID, &e.AddedAt}, dest...)...)
		}))
		if err != nil {
			return nil, fmt.Errorf("scanning cart entry: %w", err)
		}
		e.Item = item
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RemoveFromCart removes a single item from a user's cart.
func RemoveFromCart(ctx context.Context, db *sql.DB, userID, itemID int64) error {
	result, err := db.ExecContext(ctx,
		`DELETE FROM cart_items WHERE user_id = ? AND item_id = ?`,
		userID, itemID,
	)
	if err != nil {
		return fmt.Errorf("removing from cart: %w", err)
	}
	if err := expectRow(result, ErrNotFound); err != nil {
		return err
	}
	return nil
}

// ClearCart empties a user's cart.
func ClearCart(ctx context.Context, db *sql.DB, userID int64) error {
	_, err := db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("clearing cart: %w", err)
	}
	return nil
}

// scanFunc adapts a closure to the row scanner interface.
type scanFunc func(dest ...any) error

func (f scanFunc) Scan(dest ...any) error { return f(dest...) }
