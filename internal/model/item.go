package model

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Item is a single one-of-a-kind listing.
type Item struct {
	ID          int64           `json:"id"`
	SellerID    int64           `json:"sellerId"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Status      string          `json:"status"`
	ReservedBy  *int64          `json:"reservedBy,omitempty"`
	ReservedAt  *time.Time      `json:"reservedAt,omitempty"`
	ImageMime   string          `json:"imageMime,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	DeletedAt   *time.Time      `json:"deletedAt,omitempty"`

	// Joined fields (not always populated).
	SellerName    string `json:"sellerName,omitempty"`
	SellerEmail   string `json:"sellerEmail,omitempty"`
	SellerContact string `json:"sellerContact,omitempty"`
}

// Item statuses.
const (
	ItemStatusAvailable = "available"
	ItemStatusReserved  = "reserved"
	ItemStatusSold      = "sold"
)

// Item categories.
const (
	CategoryClothing    = "clothing"
	CategoryGrocery     = "grocery"
	CategoryElectronics = "electronics"
	CategoryBooks       = "books"
	CategoryFurniture   = "furniture"
	CategoryOther       = "other"
)

// Categories lists every valid item category.
var Categories = []string{
	CategoryClothing,
	CategoryGrocery,
	CategoryElectronics,
	CategoryBooks,
	CategoryFurniture,
	CategoryOther,
}

// ValidCategory reports whether c is a known category.
func ValidCategory(c string) bool {
	return slices.Contains(Categories, c)
}

// Listing field bounds.
const (
	MinItemNameLength        = 3
	MinItemDescriptionLength = 10
)

// Validation errors for listing fields.
var (
	ErrItemNameTooShort        = errors.New("name must be at least 3 characters")
	ErrItemDescriptionTooShort = errors.New("description must be at least 10 characters")
	ErrInvalidPrice            = errors.New("price must be a positive amount with at most two decimals")
	ErrInvalidCategory         = errors.New("invalid category")
)

// ValidateItem checks the seller-editable listing fields.
func ValidateItem(name, description string, price decimal.Decimal, category string) error {
	if len(strings.TrimSpace(name)) < MinItemNameLength {
		return ErrItemNameTooShort
	}
	if len(strings.TrimSpace(description)) < MinItemDescriptionLength {
		return ErrItemDescriptionTooShort
	}
	if !price.IsPositive() {
		return ErrInvalidPrice
	}
	if _, err := ToPaise(price); err != nil {
		return err
	}
	if !ValidCategory(category) {
		return ErrInvalidCategory
	}
	return nil
}

// ItemFilter narrows down a listing query.
type ItemFilter struct {
	Search     string
	Categories []string
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
}
