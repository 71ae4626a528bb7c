package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is a buyer's claim on an item, completed by an OTP hand-off.
type Order struct {
	ID                   int64           `json:"id"`
	TransactionID        string          `json:"transactionId"`
	ItemID               int64           `json:"itemId"`
	BuyerID              int64           `json:"buyerId"`
	SellerID             int64           `json:"sellerId"`
	Quantity             int             `json:"quantity"`
	TotalAmount          decimal.Decimal `json:"totalAmount"`
	Status               string          `json:"status"`
	OTPHash              string          `json:"-"`
	OTPExpiresAt         time.Time       `json:"otpExpiresAt"`
	OTPAttemptsRemaining int             `json:"otpAttemptsRemaining"`
	CancelReason         string          `json:"cancelReason,omitempty"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
	DeliveredAt          *time.Time      `json:"deliveredAt,omitempty"`
	CancelledAt          *time.Time      `json:"cancelledAt,omitempty"`

	// Joined fields (not always populated).
	ItemName   string `json:"itemName,omitempty"`
	BuyerName  string `json:"buyerName,omitempty"`
	SellerName string `json:"sellerName,omitempty"`
}

// Order statuses.
const (
	OrderStatusPending   = "pending"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)

// Cancellation reasons.
const (
	CancelReasonBuyer         = "buyer"
	CancelReasonSeller        = "seller"
	CancelReasonSoldElsewhere = "sold_elsewhere"
)

var orderTransitions = map[string][]string{
	OrderStatusPending:   {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered: {},
	OrderStatusCancelled: {},
}

// CanTransitionOrder reports whether an order may move from one status to another.
// Delivered and cancelled are terminal.
func CanTransitionOrder(from, to string) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

var itemTransitions = map[string][]string{
	ItemStatusAvailable: {ItemStatusReserved},
	ItemStatusReserved:  {ItemStatusSold, ItemStatusAvailable},
	ItemStatusSold:      {},
}

// CanTransitionItem reports whether an item may move from one status to another.
// Sold is terminal.
func CanTransitionItem(from, to string) bool {
	for _, next := range itemTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SellerStats summarizes a seller's order book.
type SellerStats struct {
	Pending       int             `json:"pending"`
	Delivered     int             `json:"delivered"`
	TotalEarnings decimal.Decimal `json:"totalEarnings"`
}
