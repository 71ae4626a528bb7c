// Package events describes the order lifecycle notifications emitted after a
// state change commits, and the publishers that deliver them.
//
// Payloads never carry an OTP or its hash.
package events

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/erazemk/bazar/internal/model"
)

// Event types.
const (
	TypeOrderCreated         = "OrderCreated"
	TypeOrderDelivered       = "OrderDelivered"
	TypeOrderCancelled       = "OrderCancelled"
	TypeOTPRegenerated       = "OTPRegenerated"
	TypeReservationReclaimed = "ReservationReclaimed"
)

// Producer identifies this service in every envelope.
const Producer = "bazar"

// Envelope wraps every event.
type Envelope struct {
	EventID       string          `json:"eventId"`
	EventType     string          `json:"eventType"`
	EventVersion  int             `json:"eventVersion"`
	OccurredAt    time.Time       `json:"occurredAt"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderID       int64           `json:"orderId"`
	TransactionID string          `json:"transactionId"`
	ItemID        int64           `json:"itemId"`
	BuyerID       int64           `json:"buyerId"`
	SellerID      int64           `json:"sellerId"`
	Quantity      int             `json:"quantity"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	OTPExpiresAt  time.Time       `json:"otpExpiresAt"`
	Resumed       bool            `json:"resumed,omitempty"`
}

type OrderDeliveredPayload struct {
	OrderID       int64           `json:"orderId"`
	TransactionID string          `json:"transactionId"`
	ItemID        int64           `json:"itemId"`
	BuyerID       int64           `json:"buyerId"`
	SellerID      int64           `json:"sellerId"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
}

type OrderCancelledPayload struct {
	OrderID int64  `json:"orderId"`
	ItemID  int64  `json:"itemId"`
	Reason  string `json:"reason"`
}

type OTPRegeneratedPayload struct {
	OrderID   int64     `json:"orderId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type ReservationReclaimedPayload struct {
	ItemID     int64      `json:"itemId"`
	BuyerID    int64      `json:"buyerId"`
	ReservedAt *time.Time `json:"reservedAt,omitempty"`
}

// New builds an envelope around payload.
func New(eventType, correlationID string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encoding %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      Producer,
		CorrelationID: correlationID,
		Payload:       raw,
	}, nil
}

func orderKey(id int64) string {
	return "order-" + strconv.FormatInt(id, 10)
}

// OrderCreated describes a newly placed (or resumed) order.
func OrderCreated(o *model.Order, resumed bool) (Envelope, error) {
	return New(TypeOrderCreated, orderKey(o.ID), OrderCreatedPayload{
		OrderID:       o.ID,
		TransactionID: o.TransactionID,
		ItemID:        o.ItemID,
		BuyerID:       o.BuyerID,
		SellerID:      o.SellerID,
		Quantity:      o.Quantity,
		TotalAmount:   o.TotalAmount,
		OTPExpiresAt:  o.OTPExpiresAt,
		Resumed:       resumed,
	})
}

// OrderDelivered describes a completed hand-off.
func OrderDelivered(o *model.Order) (Envelope, error) {
	return New(TypeOrderDelivered, orderKey(o.ID), OrderDeliveredPayload{
		OrderID:       o.ID,
		TransactionID: o.TransactionID,
		ItemID:        o.ItemID,
		BuyerID:       o.BuyerID,
		SellerID:      o.SellerID,
		TotalAmount:   o.TotalAmount,
	})
}

// OrderCancelled describes a cancellation.
func OrderCancelled(orderID, itemID int64, reason string) (Envelope, error) {
	return New(TypeOrderCancelled, orderKey(orderID), OrderCancelledPayload{
		OrderID: orderID,
		ItemID:  itemID,
		Reason:  reason,
	})
}

// OTPRegenerated records that an order's code was replaced.
func OTPRegenerated(orderID int64, expiresAt time.Time) (Envelope, error) {
	return New(TypeOTPRegenerated, orderKey(orderID), OTPRegeneratedPayload{
		OrderID:   orderID,
		ExpiresAt: expiresAt,
	})
}

// ReservationReclaimed records an orphaned reservation released by the sweeper.
func ReservationReclaimed(itemID, buyerID int64, reservedAt *time.Time) (Envelope, error) {
	return New(TypeReservationReclaimed, "item-"+strconv.FormatInt(itemID, 10), ReservationReclaimedPayload{
		ItemID:     itemID,
		BuyerID:    buyerID,
		ReservedAt: reservedAt,
	})
}
