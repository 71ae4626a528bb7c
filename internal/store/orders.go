package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/erazemk/bazar/internal/model"
	"github.com/erazemk/bazar/internal/otp"
)

// now is the clock used for reservations and OTP expiry. Tests replace it.
var now = func() time.Time { return time.Now().UTC() }

// newTransactionID mints order references. Tests replace it.
var newTransactionID = otp.NewTransactionID

// maxVerifyRetries bounds how often a verification is retried after losing a
// conditional update to a concurrent request on the same order.
const maxVerifyRetries = 5

// errConcurrentChange signals that a conditional update matched no row because
// the order changed after it was read.
var errConcurrentChange = errors.New("order changed concurrently")

// PlacedOrder is the result of placing an order. OTP is the plaintext code;
// it is returned only here and never stored.
type PlacedOrder struct {
	Order   *model.Order
	OTP     string
	Resumed bool
}

// IssuedOTP is the result of regenerating an order's code.
type IssuedOTP struct {
	Order     *model.Order
	OTP       string
	ExpiresAt time.Time
}

// Delivery is the result of a successful OTP verification.
type Delivery struct {
	Order *model.Order
	// CancelledOrderIDs lists other pending orders for the same item that were
	// cancelled because the item is now sold.
	CancelledOrderIDs []int64
}

const orderColumns = `o.id, o.transaction_id, o.item_id, o.buyer_id, o.seller_id, o.quantity, o.total_paise,
	o.status, o.otp_hash, o.otp_expires_at, o.otp_attempts, o.cancel_reason,
	o.created_at, o.updated_at, o.delivered_at, o.cancelled_at,
	i.name, b.first_name || ' ' || b.last_name, s.first_name || ' ' || s.last_name`

const orderFrom = ` FROM orders o
	JOIN items i ON i.id = o.item_id
	JOIN users b ON b.id = o.buyer_id
	JOIN users s ON s.id = o.seller_id`

func scanOrder(row interface{ Scan(...any) error }) (*model.Order, error) {
	o := &model.Order{}
	var totalPaise int64
	var cancelReason sql.NullString
	err := row.Scan(&o.ID, &o.TransactionID, &o.ItemID, &o.BuyerID, &o.SellerID, &o.Quantity, &totalPaise,
		&o.Status, &o.OTPHash, &o.OTPExpiresAt, &o.OTPAttemptsRemaining, &cancelReason,
		&o.CreatedAt, &o.UpdatedAt, &o.DeliveredAt, &o.CancelledAt,
		&o.ItemName, &o.BuyerName, &o.SellerName)
	if err != nil {
		return nil, err
	}
	o.TotalAmount = model.FromPaise(totalPaise)
	o.CancelReason = cancelReason.String
	return o, nil
}

// CreateOrder places an order for an item on behalf of a buyer.
//
// The item must be available, or already reserved by the same buyer. In the
// latter case the buyer's pending order is resumed with a fresh OTP instead of
// creating a second one. Reserving the item, inserting the order and removing
// the item from the buyer's cart happen in one transaction.
func CreateOrder(ctx context.Context, db *sql.DB, itemID, buyerID int64, quantity int) (*PlacedOrder, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	// Hash outside the transaction; bcrypt is slow and the write lock is not.
	code, hash, err := otp.Issue()
	if err != nil {
		return nil, err
	}

	// A transaction ID collision is retried once with a fresh ID.
	for attempt := 0; ; attempt++ {
		txID, err := newTransactionID()
		if err != nil {
			return nil, err
		}

		placed, err := placeOrder(ctx, db, itemID, buyerID, quantity, txID, hash)
		if errors.Is(err, ErrDuplicateTransactionID) && attempt == 0 {
			continue
		}
		if err != nil {
			return nil, err
		}
		placed.OTP = code
		return placed, nil
	}
}

func placeOrder(ctx context.Context, db *sql.DB, itemID, buyerID int64, quantity int, txID, hash string) (*PlacedOrder, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var sellerID, pricePaise int64
	var status string
	var reservedBy sql.NullInt64
	var deletedAt *time.Time
	err = tx.QueryRowContext(ctx,
		`SELECT seller_id, price_paise, status, reserved_by, deleted_at FROM items WHERE id = ?`, itemID,
	).Scan(&sellerID, &pricePaise, &status, &reservedBy, &deletedAt)
	if err == sql.ErrNoRows || (err == nil && deletedAt != nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	if sellerID == buyerID {
		return nil, ErrSelfPurchase
	}

	t := now()
	expiresAt := otp.ExpiresAt(t)

	switch {
	case status == model.ItemStatusReserved && reservedBy.Valid && reservedBy.Int64 == buyerID:
		var orderID int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM orders WHERE item_id = ? AND buyer_id = ? AND status = 'pending'`,
			itemID, buyerID,
		).Scan(&orderID)
		switch {
		case err == nil:
			return resumeOrder(ctx, db, tx, orderID, itemID, buyerID, hash, t)
		case err != sql.ErrNoRows:
			return nil, fmt.Errorf("finding pending order: %w", err)
		}

		// Reserved for this buyer without a live order: claim it afresh.
		result, err := tx.ExecContext(ctx,
			`UPDATE items SET reserved_at = ?, updated_at = CURRENT_TIMESTAMP
			 WHERE id = ? AND status = 'reserved' AND reserved_by = ?`,
			t, itemID, buyerID,
		)
		if err != nil {
			return nil, fmt.Errorf("reserving item: %w", err)
		}
		if err := expectRow(result, ErrItemUnavailable); err != nil {
			return nil, err
		}

	case model.CanTransitionItem(status, model.ItemStatusReserved):
		result, err := tx.ExecContext(ctx,
			`UPDATE items SET status = 'reserved', reserved_by = ?, reserved_at = ?, updated_at = CURRENT_TIMESTAMP
			 WHERE id = ? AND status = 'available' AND deleted_at IS NULL`,
			buyerID, t, itemID,
		)
		if err != nil {
			return nil, fmt.Errorf("reserving item: %w", err)
		}
		if err := expectRow(result, ErrItemUnavailable); err != nil {
			return nil, err
		}

	default:
		return nil, ErrItemUnavailable
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO orders (transaction_id, item_id, buyer_id, seller_id, quantity, total_paise,
		                     status, otp_hash, otp_expires_at, otp_attempts, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 'pending', ?, ?, ?, ?, ?)`,
		txID, itemID, buyerID, sellerID, quantity, pricePaise*int64(quantity),
		hash, expiresAt, otp.MaxAttempts, t, t,
	)
	if uniqueViolation(err, "orders.transaction_id") {
		return nil, ErrDuplicateTransactionID
	}
	if uniqueViolation(err, "orders.item_id") {
		return nil, ErrItemUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("inserting order: %w", err)
	}

	orderID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting order id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM cart_items WHERE user_id = ? AND item_id = ?`, buyerID, itemID,
	); err != nil {
		return nil, fmt.Errorf("removing item from cart: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing order: %w", err)
	}

	order, err := GetOrder(ctx, db, orderID)
	if err != nil {
		return nil, err
	}
	return &PlacedOrder{Order: order}, nil
}

// resumeOrder replaces the OTP of the buyer's existing pending order and commits tx.
func resumeOrder(ctx context.Context, db *sql.DB, tx *sql.Tx, orderID, itemID, buyerID int64, hash string, t time.Time) (*PlacedOrder, error) {
	result, err := tx.ExecContext(ctx,
		`UPDATE orders SET otp_hash = ?, otp_expires_at = ?, otp_attempts = ?, updated_at = ?
		 WHERE id = ? AND status = 'pending'`,
		hash, otp.ExpiresAt(t), otp.MaxAttempts, t, orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("resuming order: %w", err)
	}
	if err := expectRow(result, ErrItemUnavailable); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM cart_items WHERE user_id = ? AND item_id = ?`, buyerID, itemID,
	); err != nil {
		return nil, fmt.Errorf("removing item from cart: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing order: %w", err)
	}

	order, err := GetOrder(ctx, db, orderID)
	if err != nil {
		return nil, err
	}
	return &PlacedOrder{Order: order, Resumed: true}, nil
}

// RegenerateOTP replaces a pending order's code with a fresh one. The previous
// code stops working immediately. Only the buyer may regenerate.
func RegenerateOTP(ctx context.Context, db *sql.DB, orderID, buyerID int64) (*IssuedOTP, error) {
	o, err := GetOrder(ctx, db, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrNotFound
	}
	if o.BuyerID != buyerID {
		return nil, ErrForbidden
	}
	if o.Status != model.OrderStatusPending {
		return nil, ErrOrderNotPending
	}

	code, hash, err := otp.Issue()
	if err != nil {
		return nil, err
	}

	t := now()
	expiresAt := otp.ExpiresAt(t)
	result, err := db.ExecContext(ctx,
		`UPDATE orders SET otp_hash = ?, otp_expires_at = ?, otp_attempts = ?, updated_at = ?
		 WHERE id = ? AND status = 'pending'`,
		hash, expiresAt, otp.MaxAttempts, t, orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("regenerating otp: %w", err)
	}
	if err := expectRow(result, ErrOrderNotPending); err != nil {
		return nil, err
	}

	o, err = GetOrder(ctx, db, orderID)
	if err != nil {
		return nil, err
	}
	return &IssuedOTP{Order: o, OTP: code, ExpiresAt: expiresAt}, nil
}

// VerifyOrderOTP completes delivery of a pending order when the seller submits
// the buyer's code.
//
// An expired code fails without consuming an attempt. A wrong code consumes
// one; when none remain every further call fails with ErrOTPAttemptsExhausted.
// On success the order is delivered, the item is sold, and any other pending
// order for the item is cancelled.
func VerifyOrderOTP(ctx context.Context, db *sql.DB, orderID, sellerID int64, candidate string) (*Delivery, error) {
	if !otp.ValidFormat(candidate) {
		return nil, otp.ErrInvalidFormat
	}

	for range maxVerifyRetries {
		o, err := GetOrder(ctx, db, orderID)
		if err != nil {
			return nil, err
		}
		if o == nil {
			return nil, ErrNotFound
		}
		if o.SellerID != sellerID {
			return nil, ErrForbidden
		}
		if !model.CanTransitionOrder(o.Status, model.OrderStatusDelivered) {
			return nil, ErrOrderNotPending
		}
		if now().After(o.OTPExpiresAt) {
			return nil, ErrOTPExpired
		}
		if o.OTPAttemptsRemaining <= 0 {
			return nil, ErrOTPAttemptsExhausted
		}

		if !otp.Matches(o.OTPHash, candidate) {
			remaining, err := consumeAttempt(ctx, db, o)
			if errors.Is(err, errConcurrentChange) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if remaining > 0 {
				return nil, &OTPMismatchError{Remaining: remaining}
			}
			return nil, ErrOTPAttemptsExhausted
		}

		delivery, err := completeDelivery(ctx, db, o)
		if errors.Is(err, errConcurrentChange) {
			continue
		}
		return delivery, err
	}

	return nil, fmt.Errorf("verifying order %d: %w", orderID, errConcurrentChange)
}

// consumeAttempt decrements the attempts counter, keyed on the values read in o.
func consumeAttempt(ctx context.Context, db *sql.DB, o *model.Order) (int, error) {
	remaining := o.OTPAttemptsRemaining - 1
	result, err := db.ExecContext(ctx,
		`UPDATE orders SET otp_attempts = ?, updated_at = ?
		 WHERE id = ? AND status = 'pending' AND otp_attempts = ? AND otp_hash = ?`,
		remaining, now(), o.ID, o.OTPAttemptsRemaining, o.OTPHash,
	)
	if err != nil {
		return 0, fmt.Errorf("recording otp attempt: %w", err)
	}
	if err := expectRow(result, errConcurrentChange); err != nil {
		return 0, err
	}
	return remaining, nil
}

func completeDelivery(ctx context.Context, db *sql.DB, o *model.Order) (*Delivery, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	t := now()
	result, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = 'delivered', delivered_at = ?, updated_at = ?
		 WHERE id = ? AND status = 'pending' AND otp_attempts = ? AND otp_hash = ?`,
		t, t, o.ID, o.OTPAttemptsRemaining, o.OTPHash,
	)
	if err != nil {
		return nil, fmt.Errorf("marking order delivered: %w", err)
	}
	if err := expectRow(result, errConcurrentChange); err != nil {
		return nil, err
	}

	result, err = tx.ExecContext(ctx,
		`UPDATE items SET status = 'sold', reserved_by = NULL, reserved_at = NULL, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = 'reserved'`,
		o.ItemID,
	)
	if err != nil {
		return nil, fmt.Errorf("marking item sold: %w", err)
	}
	if err := expectRow(result, fmt.Errorf("item %d is not reserved for pending order %d", o.ItemID, o.ID)); err != nil {
		return nil, err
	}

	cancelled, err := pendingOrderIDs(ctx, tx, o.ItemID)
	if err != nil {
		return nil, err
	}
	if len(cancelled) > 0 {
		_, err = tx.ExecContext(ctx,
			`UPDATE orders SET status = 'cancelled', cancel_reason = ?, cancelled_at = ?, updated_at = ?
			 WHERE item_id = ? AND status = 'pending'`,
			model.CancelReasonSoldElsewhere, t, t, o.ItemID,
		)
		if err != nil {
			return nil, fmt.Errorf("cancelling competing orders: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE item_id = ?`, o.ItemID); err != nil {
		return nil, fmt.Errorf("removing sold item from carts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing delivery: %w", err)
	}

	order, err := GetOrder(ctx, db, o.ID)
	if err != nil {
		return nil, err
	}
	return &Delivery{Order: order, CancelledOrderIDs: cancelled}, nil
}

func pendingOrderIDs(ctx context.Context, tx *sql.Tx, itemID int64) ([]int64, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM orders WHERE item_id = ? AND status = 'pending' ORDER BY id`, itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing pending orders: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning order id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CancelOrder cancels a pending order on behalf of its buyer or seller and
// makes the item available again.
func CancelOrder(ctx context.Context, db *sql.DB, orderID, actorID int64) (*model.Order, error) {
	o, err := GetOrder(ctx, db, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrNotFound
	}

	var reason string
	switch actorID {
	case o.BuyerID:
		reason = model.CancelReasonBuyer
	case o.SellerID:
		reason = model.CancelReasonSeller
	default:
		return nil, ErrForbidden
	}
	if !model.CanTransitionOrder(o.Status, model.OrderStatusCancelled) {
		return nil, ErrOrderNotPending
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	t := now()
	result, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = 'cancelled', cancel_reason = ?, cancelled_at = ?, updated_at = ?
		 WHERE id = ? AND status = 'pending'`,
		reason, t, t, orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("cancelling order: %w", err)
	}
	if err := expectRow(result, ErrOrderNotPending); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE items SET status = 'available', reserved_by = NULL, reserved_at = NULL, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = 'reserved'`,
		o.ItemID,
	)
	if err != nil {
		return nil, fmt.Errorf("releasing item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing cancellation: %w", err)
	}

	return GetOrder(ctx, db, orderID)
}

// GetOrder returns an order by ID.
func GetOrder(ctx context.Context, db *sql.DB, id int64) (*model.Order, error) {
	o, err := scanOrder(db.QueryRowContext(ctx,
		`SELECT `+orderColumns+orderFrom+` WHERE o.id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}
	return o, nil
}

// GetOrderFor returns an order visible to userID, who must be its buyer or seller.
func GetOrderFor(ctx context.Context, db *sql.DB, id, userID int64) (*model.Order, error) {
	o, err := GetOrder(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrNotFound
	}
	if o.BuyerID != userID && o.SellerID != userID {
		return nil, ErrForbidden
	}
	return o, nil
}

// ListBuyerOrders returns a buyer's orders, newest first.
func ListBuyerOrders(ctx context.Context, db *sql.DB, buyerID int64) ([]model.Order, error) {
	return listOrders(ctx, db, `o.buyer_id = ?`, buyerID)
}

// ListSellerOrders returns a seller's orders, newest first.
func ListSellerOrders(ctx context.Context, db *sql.DB, sellerID int64) ([]model.Order, error) {
	return listOrders(ctx, db, `o.seller_id = ?`, sellerID)
}

// ListOrdersToDeliver returns a seller's pending and delivered orders together
// with a summary of the seller's order book.
func ListOrdersToDeliver(ctx context.Context, db *sql.DB, sellerID int64) ([]model.Order, *model.SellerStats, error) {
	orders, err := listOrders(ctx, db, `o.seller_id = ? AND o.status IN ('pending', 'delivered')`, sellerID)
	if err != nil {
		return nil, nil, err
	}

	var pending, delivered int
	var earnedPaise int64
	err = db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(status = 'pending'), 0),
		        COALESCE(SUM(status = 'delivered'), 0),
		        COALESCE(SUM(CASE WHEN status = 'delivered' THEN total_paise ELSE 0 END), 0)
		 FROM orders WHERE seller_id = ?`, sellerID,
	).Scan(&pending, &delivered, &earnedPaise)
	if err != nil {
		return nil, nil, fmt.Errorf("computing seller stats: %w", err)
	}

	return orders, &model.SellerStats{
		Pending:       pending,
		Delivered:     delivered,
		TotalEarnings: model.FromPaise(earnedPaise),
	}, nil
}

func listOrders(ctx context.Context, db *sql.DB, where string, args ...any) ([]model.Order, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+orderColumns+orderFrom+` WHERE `+where+` ORDER BY o.id DESC`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}
