package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Domain errors returned by workflow operations.
var (
	ErrNotFound               = errors.New("not found")
	ErrForbidden              = errors.New("not allowed")
	ErrItemUnavailable        = errors.New("item not available")
	ErrSelfPurchase           = errors.New("cannot buy your own item")
	ErrOrderNotPending        = errors.New("order is not pending")
	ErrOTPExpired             = errors.New("OTP has expired")
	ErrOTPAttemptsExhausted   = errors.New("OTP attempts exhausted")
	ErrDuplicateTransactionID = errors.New("duplicate transaction id")
	ErrInvalidQuantity        = errors.New("quantity must be at least 1")
	ErrAlreadyInCart          = errors.New("item already in cart")
	ErrOwnItem                = errors.New("cannot add your own item to cart")
	ErrAlreadyReviewed        = errors.New("you have already reviewed this seller")
	ErrSelfReview             = errors.New("cannot review yourself")
	ErrItemLocked             = errors.New("item is reserved or sold")
	ErrEmailTaken             = errors.New("user already exists")
	ErrChatSessionClosed      = errors.New("chat session is closed")
)

// OTPMismatchError is returned when a wrong code is submitted and attempts remain.
type OTPMismatchError struct {
	Remaining int
}

func (e *OTPMismatchError) Error() string {
	return fmt.Sprintf("invalid OTP, %d attempts remaining", e.Remaining)
}

// uniqueViolation reports whether err is a UNIQUE constraint failure on the
// given table.column (any column when target is empty).
func uniqueViolation(err error, target string) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
	case sqlite3.SQLITE_CONSTRAINT:
		if !strings.Contains(se.Error(), "UNIQUE") {
			return false
		}
	default:
		return false
	}
	return target == "" || strings.Contains(se.Error(), target)
}

// rowsChanged reports whether a statement touched any row.
func rowsChanged(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected: %w", err)
	}
	return n > 0, nil
}

// expectRow returns none when a conditional statement matched no row.
func expectRow(result sql.Result, none error) error {
	ok, err := rowsChanged(result)
	if err != nil {
		return err
	}
	if !ok {
		return none
	}
	return nil
}
