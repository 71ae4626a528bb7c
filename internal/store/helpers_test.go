package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/bazar/internal/model"
	"github.com/erazemk/bazar/internal/otp"
)

func TestMain(m *testing.M) {
	otp.Cost = bcrypt.MinCost
	os.Exit(m.Run())
}

var userSeq atomic.Int64

func newTestUser(t *testing.T, database *sql.DB) *model.User {
	t.Helper()
	n := userSeq.Add(1)
	u, err := CreateUser(context.Background(), database,
		fmt.Sprintf("user%d@iiit.ac.in", n), "Test", fmt.Sprintf("User%d", n), 20, "9876543210", "hash")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func newTestItem(t *testing.T, database *sql.DB, sellerID int64, price string) *model.Item {
	t.Helper()
	item, err := CreateItem(context.Background(), database, sellerID,
		"Desk lamp", "Warm white LED desk lamp", decimal.RequireFromString(price), model.CategoryElectronics)
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	return item
}

// placeTestOrder places an order and fails the test on error.
func placeTestOrder(t *testing.T, database *sql.DB, itemID, buyerID int64) *PlacedOrder {
	t.Helper()
	placed, err := CreateOrder(context.Background(), database, itemID, buyerID, 1)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	return placed
}

func itemStatus(t *testing.T, database *sql.DB, id int64) string {
	t.Helper()
	item, err := GetItem(context.Background(), database, id)
	if err != nil || item == nil {
		t.Fatalf("GetItem(%d): %v", id, err)
	}
	return item.Status
}

func orderStatus(t *testing.T, database *sql.DB, id int64) string {
	t.Helper()
	o, err := GetOrder(context.Background(), database, id)
	if err != nil || o == nil {
		t.Fatalf("GetOrder(%d): %v", id, err)
	}
	return o.Status
}

// wrongCode returns a well-formed code that differs from code.
func wrongCode(code string) string {
	if code == "999999" {
		return "100000"
	}
	return "999999"
}

func assertConsistent(t *testing.T, database *sql.DB) {
	t.Helper()
	mismatches, err := CheckReservations(context.Background(), database)
	if err != nil {
		t.Fatalf("CheckReservations: %v", err)
	}
	if len(mismatches) > 0 {
		t.Fatalf("reservation invariant violated: %+v", mismatches)
	}
}
