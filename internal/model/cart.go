package model

import "time"

// CartEntry is an item a user is considering buying.
type CartEntry struct {
	UserID  int64     `json:"userId"`
	ItemID  int64     `json:"itemId"`
	AddedAt time.Time `json:"addedAt"`
	Item    *Item     `json:"item,omitempty"`
}

// Review is a buyer's rating of a seller.
type Review struct {
	ID         int64     `json:"id"`
	SellerID   int64     `json:"sellerId"`
	ReviewerID int64     `json:"reviewerId"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`

	// Joined fields (not always populated).
	ReviewerName string `json:"reviewerName,omitempty"`
}

// ValidRating reports whether r is a valid star rating.
func ValidRating(r int) bool {
	return r >= 1 && r <= 5
}
