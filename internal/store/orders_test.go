package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/bazar/internal/db"
	"github.com/erazemk/bazar/internal/model"
	"github.com/erazemk/bazar/internal/otp"
)

// setClock pins the store clock for the duration of a test.
func setClock(t *testing.T, at time.Time) *time.Time {
	t.Helper()
	current := at
	orig := now
	now = func() time.Time { return current }
	t.Cleanup(func() { now = orig })
	return &current
}

func TestCreateOrder(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	seller := newTestUser(t, database)
	buyer := newTestUser(t, database)
	item := newTestItem(t, database, seller.ID, "500")

	placed, err := CreateOrder(ctx, database, item.ID, buyer.ID, 1)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	o := placed.Order
	if !o.TotalAmount.Equal(decimal.NewFromInt(500)) {
		t.Errorf("expected total 500, got %s", o.TotalAmount)
	}
	if o.Status != model.OrderStatusPending {
		t.Errorf("expected pending, got %q", o.Status)
	}
	if o.SellerID != seller.ID || o.BuyerID != buyer.ID {
		t.Errorf("unexpected parties %d/%d", o.SellerID, o.BuyerID)
	}
	if len(o.TransactionID) != 16 {
		t.Errorf("expected 16 char transaction id, got %q", o.TransactionID)
	}
	if o.OTPAttemptsRemaining != otp.MaxAttempts {
		t.Errorf("expected %d attempts, got %d", otp.MaxAttempts, o.OTPAttemptsRemaining)
	}
	if !otp.ValidFormat(placed.OTP) {
		t.Errorf("expected 6 digit OTP, got %q", placed.OTP)
	}
	if o.OTPHash == placed.OTP || !otp.Matches(o.OTPHash, placed.OTP) {
		t.Error("expected only the hash of the OTP to be stored")
	}
	if placed.Resumed {
		t.Error("fresh order must not be marked resumed")
	}

	got, _ := GetItem(ctx, database, item.ID)
	if got.Status != model.ItemStatusReserved {
		t.Errorf("expected item reserved, got %q", got.Status)
	}
	if got.ReservedBy == nil || *got.ReservedBy != buyer.ID || got.ReservedAt == nil {
		t.Errorf("expected reservation fields set, got %v %v", got.ReservedBy, got.ReservedAt)
	}
	assertConsistent(t, database)
}

func TestCreateOrderQuantity(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	seller := newTestUser(t, database)
	buyer := newTestUser(t, database)
	item := newTestItem(t, database, seller.ID, "120.25")

	if _, err := CreateOrder(ctx, database, item.ID, buyer.ID, 0); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("expected ErrInvalidQuantity, got %v", err)
	}
	if s := itemStatus(t, database, item.ID); s != model.ItemStatusAvailable {
		t.Errorf("rejected order must not reserve the item, got %q", s)
	}

	placed, err := CreateOrder(ctx, database, item.ID, buyer.ID, 2)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if !placed.Order.TotalAmount.Equal(decimal.RequireFromString("240.5")) {
		t.Errorf("expected total 240.50, got %s", placed.Order.TotalAmount)
	}
}

func TestCreateOrderSelfPurchase(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	seller := newTestUser(t, database)
	item := newTestItem(t, database, seller.ID, "100")

	_, err := CreateOrder(ctx, database, item.ID, seller.ID, 1)
	if !errors.Is(err, ErrSelfPurchase) {
		t.Fatalf("expected ErrSelfPurchase, got %v", err)
	}
	if s := itemStatus(t, database, item.ID); s != model.ItemStatusAvailable {
		t.Errorf("self purchase must not mutate item, got %q", s)
	}
	orders, _ := ListSellerOrders(ctx, database, seller.ID)
	if len(orders) != 0 {
		t.Errorf("expected no orders, got %d", len(orders))
	}
}

func TestCreateOrderNotFound(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	seller := newTestUser(t, database)
	buyer := newTestUser(t, database)
	item := newTestItem(t, database, seller.ID, "100")
	DeleteItem(ctx, database, item.ID, seller.ID)

	if _, err := CreateOrder(ctx, database, 9999, buyer.ID, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := CreateOrder(ctx, database, item.ID, buyer.ID, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for deleted item, got %v", err)
	}
}

func TestCreateOrderUnavailable(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	seller := newTestUser(t, database)
	a := newTestUser(t, database)
	b := newTestUser(t, database)
	item := newTestItem(t, database, seller.ID, "100")

	placeTestOrder(t, database, item.ID, a.ID)

	if _, err := CreateOrder(ctx, database, item.ID, b.ID, 1); !errors.Is(err, ErrItemUnavailable) {
		t.Errorf("expected ErrItemUnavailable for reserved item, got %v", err)
	}
	assertConsistent(t, database)
}

func TestCreateOrderResumesOwnReservation(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	seller := newTestUser(t, database)
	buyer := newTestUser(t, database)
	item := newTestItem(t, database, seller.ID, "100")

	first := placeTestOrder(t, database, item.ID, buyer.ID)
	second, err := CreateOrder(ctx, database, item.ID, buyer.ID, 1)
	if err != nil {
		t.Fatalf("CreateOrder again: %v", err)
	}
	if !second.Resumed {
		t.Error("expected second call to resume the existing order")
	}
	if second.Order.ID != first.Order.ID {
		t.Errorf("expected same order %d, got %d", first.Order.ID, second.Order.ID)
	}

	if first.OTP != second.OTP {
		if _, err := VerifyOrderOTP(ctx, database, first.Order.ID, seller.ID, first.OTP); err == nil {
			t.Error("expected the superseded OTP to be rejected")
		}
	}
	if _, err := VerifyOrderOTP(ctx, database, first.Order.ID, seller.ID, second.OTP); err != nil {
		t.Fatalf("expected fresh OTP to verify, got %v", err)
	}
	assertConsistent(t, database)
}

func TestCreateOrderRetriesDuplicateTransactionID(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	seller := newTestUser(t, database)
	a := newTestUser(t, database)
	b := newTestUser(t, database)
	first := newTestItem(t, database, seller.ID, "100")
	second := newTestItem(t, database, seller.ID, "100")

	ids := []string{"AAAAAAAAAAAAAAAA", "AAAAAAAAAAAAAAAA", "BBBBBBBBBBBBBBBB"}
	orig := newTransactionID
	newTransactionID = func() (string, error) {
		id := ids[0]
		ids = ids[1:]
		return id, nil
	}
	t.Cleanup(func() { newTransactionID = orig })

	placeTestOrder(t, database, first.ID, a.ID)
	placed, err := CreateOrder(ctx, database, second.ID, b.ID, 1)
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if placed.Order.TransactionID != "BBBBBBBBBBBBBBBB" {
		t.Errorf("expected retried transaction id, got %q", placed.Order.TransactionID)
	}
	assertConsistent(t, database)
}

func TestCreateOrderDuplicateTransactionIDTwice(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	seller := newTestUser(t, database)
	a := newTestUser(t, database)
	b := newTestUser(t, database)
	first := newTestItem(t, database, seller.ID, "100")
	second := newTestItem(t, database, seller.ID, "100")

	orig := newTransactionID
	newTransactionID = func() (string, error) { return "CCCCCCCCCCCCCCCC", nil }
	t.Cleanup(func() { newTransactionID = orig })

	placeTestOrder(t, database, first.ID, a.ID)
	_, err := CreateOrder(ctx, database, second.ID, b.ID, 1)
	if !errors.Is(err, ErrDuplicateTransactionID) {
		t.Fatalf("expected ErrDuplicateTransactionID, got %v", err)
	}
	if s := itemStatus(t, database, second.ID); s != model.ItemStatusAvailable {
		t.Errorf("failed order must roll back the reservation, got %q", s)
	}
	assertConsistent(t, database)
}

func TestConcurrentBuyersOneWins(t *testing.T) {
	database := db.NewFileTestDB(t)
	ctx := context.Background()
	seller := newTestUser(t, database)
	item := newTestItem(t, database, seller.ID, "100")

	const buyers = 10
	ids := make([]int64, buyers)
	for i := range ids {
		ids[i] = newTestUser(t, database).ID
	}

	var wg sync.WaitGroup
	errs := make([]error, buyers)
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = CreateOrder(ctx, database, item.ID, id, 1)
		}()
	}
	wg.Wait()

	var ok, unavailable int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrItemUnavailable):
			unavailable++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || unavailable != buyers-1 {
		t.Errorf("expected 1 winner and %d conflicts, got %d and %d", buyers-1, ok, unavailable)
	}
	if s := itemStatus(t, database, item.ID); s != model.ItemStatusReserved {
		t.Errorf("expected reserved item, got %q", s)
	}
	assertConsistent(t, database)
}

func TestConcurrentWrongVerifies(t *testing.T) {
	database := db.NewFileTestDB(t)
	ctx := context.Background()
	seller := newTestUser(t, database)
	buyer := newTestUser(t, database)
	item := newTestItem(t, database, seller.ID, "100")
	placed := placeTestOrder(t, database, item.ID, buyer.ID)
	wrong := wrongCode(placed.OTP)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = VerifyOrderOTP(ctx, database, placed.Order.ID, seller.ID, wrong)
		}()
	}
	wg.Wait()

	var mismatches, exhausted int
	seen := map[int]bool{}
	for _, err := range errs {
		var mismatch *OTPMismatchError
		switch {
		case errors.As(err, &mismatch):
			mismatches++
			if seen[mismatch.Remaining] {
				t.Errorf("two callers were told %d attempts remain", mismatch.Remaining)
			}
			seen[mismatch.Remaining] = true
		case errors.Is(err, ErrOTPAttemptsExhausted):
			exhausted++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if mismatches != otp.MaxAttempts-1 || exhausted != callers-(otp.MaxAttempts-1) {
		t.Errorf("expected %d mismatches and %d exhausted, got %d and %d",
			otp.MaxAttempts-1, callers-(otp.MaxAttempts-1), mismatches, exhausted)
	}

	var attempts int
	if err := database.QueryRowContext(ctx,
		`SELECT otp_attempts FROM orders WHERE id = ?`, placed.Order.ID,
	).Scan(&attempts); err != nil {
		t.Fatalf("reading attempts: %v", err)
	}
	if attempts != 0 {
		t.Errorf("expected every decrement to land, %d attempts left", attempts)
	}
	if s := orderStatus(t, database, placed.Order.ID); s != model.OrderStatusPending {
		t.Errorf("expected order to stay pending, got %q", s)
	}
	assertConsistent(t, database)
}

func TestVerifyOTPSucceedsOnce(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	seller := newTestUser(t, database)
	buyer := newTestUser(t, database)
	item := newTestItem(t, database, seller.ID, "500")
	placed := placeTestOrder(t, database, item.ID, buyer.ID)

	delivery, err := VerifyOrderOTP(ctx, database, placed.Order.ID, seller.ID, placed.OTP)
	if err != nil {
		t.Fatalf("VerifyOrderOTP: %v", err)
	}
	if delivery.Order.Status != model.OrderStatusDelivered || delivery.Order.DeliveredAt == nil {
		t.Errorf("expected delivered order, got %+v", delivery.Order)
	}

	got, _ := GetItem(ctx, database, item.ID)
	if got.Status != model.ItemStatusSold {
		t.Errorf("expected sold item, got %q", got.Status)
	}
	if got.ReservedBy != nil || got.ReservedAt != nil {
		t.Error("expected reservation fields cleared")
	}

	_, err = VerifyOrderOTP(ctx, database, placed.Order.ID, seller.ID, placed.OTP)
	if !errors.Is(err, ErrOrderNotPending) {
		t.Errorf("expected ErrOrderNotPending on second verification, got %v", err)
	}
	assertConsistent(t, database)
}

func TestVerifyOTPWrongActor(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	seller := newTestUser(t, database)
	buyer := newTestUser(t, database)
	item := newTestItem(t, database, seller.ID, "100")
	placed := placeTestOrder(t, database, item.ID, buyer.ID)

	if _, err := VerifyOrderOTP(ctx, database, placed.Order.ID, buyer.ID, placed.OTP); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden for buyer, got %v", err)
	}
	if _, err := VerifyOrderOTP(ctx, database, 9999, seller.ID, placed.OTP); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := VerifyOrderOTP(ctx, database, placed.Order.ID, seller.ID, "12ab56"); !errors.Is(err, otp.ErrInvalidFormat) {
		t.Errorf("expected ErrInvalidFormat, got %v", err)
	}

	o, _ := GetOrder(ctx, database, placed.Order.ID)
	if o.OTPAttemptsRemaining != otp.MaxAttempts {
		t.Errorf("rejected calls must not consume attempts, got %d", o.OTPAttemptsRemaining)
	}
}

func TestVerifyOTPAttemptsExhausted(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	seller := newTestUser(t, database)
	buyer := newTestUser(t, database)
	item := newTestItem(t, database, seller.ID, "100")
	placed := placeTestOrder(t, database, item.ID, buyer.ID)
	wrong := wrongCode(placed.OTP)

	for want := 2; want >= 1; want-- {
		_, err := VerifyOrderOTP(ctx, database, placed.Order.ID, seller.ID, wrong)
		var mismatch *OTPMismatchError
		if !errors.As(err, &mismatch) {
			t.Fatalf("expected OTPMismatchError, got %v", err)
		}
		if mismatch.Remaining != want {
			t.Errorf("expected %d remaining, got %d", want, mismatch.Remaining)
		}
	}

	if _, err := VerifyOrderOTP(ctx, database, placed.Order.ID, seller.ID, wrong); !errors.Is(err, ErrOTPAttemptsExhausted) {
		t.Fatalf("expected third wrong code to exhaust attempts, got %v", err)
	}

	// Correct code no longer helps.
	if _, err := VerifyOrderOTP(ctx, database, placed.Order.ID, seller.ID, placed.OTP); !errors.Is(err, ErrOTPAttemptsExhausted) {
		t.Fatalf("expected fourth attempt to fail with exhaustion, got %v", err)
	}
	if s := orderStatus(t, database, placed.Order.ID); s != model.OrderStatusPending {
		t.Errorf("exhausted order stays pending, got %q", s)
	}
	assertConsistent(t, database)
}

func TestVerifyOTPExpired(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	clock := setClock(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	seller := newTestUser(t, database)
	buyer := newTestUser(t, database)
	item := newTestItem(t, database, seller.ID, "100")
	placed := placeTestOrder(t, database, item.ID, buyer.ID)

	*clock = clock.Add(otp.TTL + time.Second)

	_, err := VerifyOrderOTP(ctx, database, placed.Order.ID, seller.ID, placed.OTP)
	if !errors.Is(err, ErrOTPExpired) {
		t.Fatalf("expected ErrOTPExpired, got %v", err)
	}
	o, _ := GetOrder(ctx, database, placed.Order.ID)
	if o.OTPAttemptsRemaining != otp.MaxAttempts {
		t.Errorf("expired verification must not consume attempts, got %d", o.OTPAttemptsRemaining)
	}
}

func TestVerifyOTPJustBeforeExpiry(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	clock := setClock(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	seller := newTestUser(t, database)
	buyer := newTestUser(t, database)
	item := newTestItem(t, database, seller.ID, "100")
	placed := placeTestOrder(t, database, item.ID, buyer.ID)

	*clock = clock.Add(otp.TTL - time.Second)

	if _, err := VerifyOrderOTP(ctx, database, placed.Order.ID, seller.ID, placed.OTP); err != nil {
		t.Fatalf("expected verification inside the window, got %v", err)
	}
}

func TestRegenerateOTP(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	clock := setClock(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	seller := newTestUser(t, database)
	buyer := newTestUser(t, database)
	item := newTestItem(t, database, seller.ID, "500")
	placed := placeTestOrder(t, database, item.ID, buyer.ID)

	// Burn one attempt and let time pass so the reset is visible.
	VerifyOrderOTP(ctx, database, placed.Order.ID, seller.ID, wrongCode(placed.OTP))
	*clock = clock.Add(20 * time.Minute)

	if _, err := RegenerateOTP(ctx, database, placed.Order.ID, seller.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected seller regeneration to be forbidden, got %v", err)
	}

	issued, err := RegenerateOTP(ctx, database, placed.Order.ID, buyer.ID)
	if err != nil {
		t.Fatalf("RegenerateOTP: %v", err)
	}
	if !issued.ExpiresAt.Equal(clock.Add(otp.TTL)) {
		t.Errorf("expected fresh expiry, got %v", issued.ExpiresAt)
	}
	if issued.Order.OTPAttemptsRemaining != otp.MaxAttempts {
		t.Errorf("expected attempts reset, got %d", issued.Order.OTPAttemptsRemaining)
	}

	if issued.OTP != placed.OTP {
		_, err = VerifyOrderOTP(ctx, database, placed.Order.ID, seller.ID, placed.OTP)
		var mismatch *OTPMismatchError
		if !errors.As(err, &mismatch) {
			t.Fatalf("expected old OTP to be rejected, got %v", err)
		}
	}
	if _, err := VerifyOrderOTP(ctx, database, placed.Order.ID, seller.ID, issued.OTP); err != nil {
		t.Fatalf("expected new OTP to verify, got %v", err)
	}

	if _, err := RegenerateOTP(ctx, database, placed.Order.ID, buyer.ID); !errors.Is(err, ErrOrderNotPending) {
		t.Errorf("expected ErrOrderNotPending after delivery, got %v", err)
	}
}

func TestVerifyCancelsStrayPendingOrders(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	seller := newTestUser(t, database)
	a := newTestUser(t, database)
	b := newTestUser(t, database)
	item := newTestItem(t, database, seller.ID, "100")

	o1 := placeTestOrder(t, database, item.ID, a.ID)

	// A second pending order can only exist in data written before the
	// partial unique index; recreate that state directly.
	if _, err := database.Exec(`DROP INDEX idx_orders_item_pending`); err != nil {
		t.Fatal(err)
	}
	res, err := database.Exec(
		`INSERT INTO orders (transaction_id, item_id, buyer_id, seller_id, quantity, total_paise,
		                     status, otp_hash, otp_expires_at, otp_attempts)
		 VALUES ('0000000000000002', ?, ?, ?, 1, 10000, 'pending', 'x', ?, 3)`,
		item.ID, b.ID, seller.ID, time.Now().UTC().Add(time.Hour),
	)
	if err != nil {
		t.Fatal(err)
	}
	o2, _ := res.LastInsertId()

	delivery, err := VerifyOrderOTP(ctx, database, o1.Order.ID, seller.ID, o1.OTP)
	if err != nil {
		t.Fatalf("VerifyOrderOTP: %v", err)
	}
	if len(delivery.CancelledOrderIDs) != 1 || delivery.CancelledOrderIDs[0] != o2 {
		t.Errorf("expected order %d cancelled, got %v", o2, delivery.CancelledOrderIDs)
	}

	stray, _ := GetOrder(ctx, database, o2)
	if stray.Status != model.OrderStatusCancelled || stray.CancelReason != model.CancelReasonSoldElsewhere {
		t.Errorf("expected O2 cancelled as sold elsewhere, got %q/%q", stray.Status, stray.CancelReason)
	}
	if s := itemStatus(t, database, item.ID); s != model.ItemStatusSold {
		t.Errorf("expected sold item, got %q", s)
	}
}

func TestCancelOrder(t *testing.T) {
	tests := []struct {
		name       string
		byBuyer    bool
		wantReason string
	}{
		{"buyer cancels", true, model.CancelReasonBuyer},
		{"seller cancels", false, model.CancelReasonSeller},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			database := db.NewTestDB(t)
			ctx := context.Background()
			seller := newTestUser(t, database)
			buyer := newTestUser(t, database)
			item := newTestItem(t, database, seller.ID, "100")
			placed := placeTestOrder(t, database, item.ID, buyer.ID)

			actor := seller.ID
			if tt.byBuyer {
				actor = buyer.ID
			}
			o, err := CancelOrder(ctx, database, placed.Order.ID, actor)
			if err != nil {
				t.Fatalf("CancelOrder: %v", err)
			}
			if o.Status != model.OrderStatusCancelled || o.CancelReason != tt.wantReason {
				t.Errorf("got %q/%q", o.Status, o.CancelReason)
			}

			got, _ := GetItem(ctx, database, item.ID)
			if got.Status != model.ItemStatusAvailable || got.ReservedBy != nil || got.ReservedAt != nil {
				t.Errorf("expected released item, got %+v", got)
			}

			if _, err := CancelOrder(ctx, database, placed.Order.ID, actor); !errors.Is(err, ErrOrderNotPending) {
				t.Errorf("expected ErrOrderNotPending, got %v", err)
			}
			if _, err := VerifyOrderOTP(ctx, database, placed.Order.ID, seller.ID, placed.OTP); !errors.Is(err, ErrOrderNotPending) {
				t.Errorf("expected cancelled order to refuse verification, got %v", err)
			}
			assertConsistent(t, database)
		})
	}
}

func TestCancelOrderStranger(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	seller := newTestUser(t, database)
	buyer := newTestUser(t, database)
	stranger := newTestUser(t, database)
	item := newTestItem(t, database, seller.ID, "100")
	placed := placeTestOrder(t, database, item.ID, buyer.ID)

	if _, err := CancelOrder(ctx, database, placed.Order.ID, stranger.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if _, err := CancelOrder(ctx, database, 9999, buyer.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if s := itemStatus(t, database, item.ID); s != model.ItemStatusReserved {
		t.Errorf("expected item still reserved, got %q", s)
	}
}

func TestCancelledItemCanBeBoughtAgain(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	seller := newTestUser(t, database)
	a := newTestUser(t, database)
	b := newTestUser(t, database)
	item := newTestItem(t, database, seller.ID, "100")

	first := placeTestOrder(t, database, item.ID, a.ID)
	if _, err := CancelOrder(ctx, database, first.Order.ID, a.ID); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	second := placeTestOrder(t, database, item.ID, b.ID)
	if second.Order.ID == first.Order.ID {
		t.Error("expected a new order")
	}
	assertConsistent(t, database)
}

func TestOrderQueries(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	seller := newTestUser(t, database)
	buyer := newTestUser(t, database)
	stranger := newTestUser(t, database)

	delivered := placeTestOrder(t, database, newTestItem(t, database, seller.ID, "500").ID, buyer.ID)
	VerifyOrderOTP(ctx, database, delivered.Order.ID, seller.ID, delivered.OTP)
	placeTestOrder(t, database, newTestItem(t, database, seller.ID, "200").ID, buyer.ID)
	cancelled := placeTestOrder(t, database, newTestItem(t, database, seller.ID, "300").ID, buyer.ID)
	CancelOrder(ctx, database, cancelled.Order.ID, buyer.ID)

	bought, err := ListBuyerOrders(ctx, database, buyer.ID)
	if err != nil {
		t.Fatalf("ListBuyerOrders: %v", err)
	}
	if len(bought) != 3 {
		t.Fatalf("expected 3 buyer orders, got %d", len(bought))
	}
	if bought[0].ID != cancelled.Order.ID {
		t.Errorf("expected newest order first")
	}
	if bought[0].ItemName == "" || bought[0].SellerName == "" {
		t.Errorf("expected joined names, got %+v", bought[0])
	}

	sold, _ := ListSellerOrders(ctx, database, seller.ID)
	if len(sold) != 3 {
		t.Errorf("expected 3 seller orders, got %d", len(sold))
	}

	toDeliver, stats, err := ListOrdersToDeliver(ctx, database, seller.ID)
	if err != nil {
		t.Fatalf("ListOrdersToDeliver: %v", err)
	}
	if len(toDeliver) != 2 {
		t.Errorf("expected 2 orders to deliver, got %d", len(toDeliver))
	}
	if stats.Pending != 1 || stats.Delivered != 1 || !stats.TotalEarnings.Equal(decimal.NewFromInt(500)) {
		t.Errorf("unexpected stats %+v", stats)
	}

	if _, err := GetOrderFor(ctx, database, delivered.Order.ID, stranger.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if o, err := GetOrderFor(ctx, database, delivered.Order.ID, seller.ID); err != nil || o.ID != delivered.Order.ID {
		t.Errorf("expected seller to see order, got %v %v", o, err)
	}
}
