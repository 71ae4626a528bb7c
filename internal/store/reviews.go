package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/bazar/internal/model"
)

const reviewColumns = `r.id, r.seller_id, r.reviewer_id, r.rating, r.comment, r.created_at, r.updated_at,
	u.first_name || ' ' || u.last_name`

func scanReview(row interface{ Scan(...any) error }) (*model.Review, error) {
	r := &model.Review{}
	var comment sql.NullString
	if err := row.Scan(&r.ID, &r.SellerID, &r.ReviewerID, &r.Rating, &comment, &r.CreatedAt, &r.UpdatedAt, &r.ReviewerName); err != nil {
		return nil, err
	}
	r.Comment = comment.String
	return r, nil
}

// CreateReview records a reviewer's rating of a seller. Each reviewer may
// review a seller once.
func CreateReview(ctx context.Context, db *sql.DB, sellerID, reviewerID int64, rating int, comment string) (*model.Review, error) {
	if sellerID == reviewerID {
		return nil, ErrSelfReview
	}
	seller, err := GetUser(ctx, db, sellerID)
	if err != nil {
		return nil, err
	}
	if seller == nil || seller.DeletedAt != nil {
		return nil, ErrNotFound
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO reviews (seller_id, reviewer_id, rating, comment) VALUES (?, ?, ?, ?)`,
		sellerID, reviewerID, rating, comment,
	)
	if uniqueViolation(err, "reviews.") {
		return nil, ErrAlreadyReviewed
	}
	if err != nil {
		return nil, fmt.Errorf("creating review: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting review id: %w", err)
	}
	return GetReview(ctx, db, id)
}

// GetReview returns a review by ID.
func GetReview(ctx context.Context, db *sql.DB, id int64) (*model.Review, error) {
	r, err := scanReview(db.QueryRowContext(ctx,
		`SELECT `+reviewColumns+` FROM reviews r JOIN users u ON u.id = r.reviewer_id WHERE r.id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting review: %w", err)
	}
	return r, nil
}

// ListReviewsForSeller returns a seller's reviews, newest first.
func ListReviewsForSeller(ctx context.Context, db *sql.DB, sellerID int64) ([]model.Review, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+reviewColumns+` FROM reviews r JOIN users u ON u.id = r.reviewer_id
		 WHERE r.seller_id = ? ORDER BY r.id DESC`, sellerID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing reviews: %w", err)
	}
	defer rows.Close()

	var reviews []model.Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning review: %w", err)
		}
		reviews = append(reviews, *r)
	}
	return reviews, rows.Err()
}

func ownReview(ctx context.Context, db *sql.DB, id, reviewerID int64) error {
	r, err := GetReview(ctx, db, id)
	if err != nil {
		return err
	}
	if r == nil {
		return ErrNotFound
	}
	if r.ReviewerID != reviewerID {
		return ErrForbidden
	}
	return nil
}

// UpdateReview changes a review's rating and comment. Only its author may do so.
func UpdateReview(ctx context.Context, db *sql.DB, id, reviewerID int64, rating int, comment string) (*model.Review, error) {
	if err := ownReview(ctx, db, id, reviewerID); err != nil {
		return nil, err
	}
	_, err := db.ExecContext(ctx,
		`UPDATE reviews SET rating = ?, comment = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		rating, comment, id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating review: %w", err)
	}
	return GetReview(ctx, db, id)
}

// DeleteReview removes a review. Only its author may do so.
func DeleteReview(ctx context.Context, db *sql.DB, id, reviewerID int64) error {
	if err := ownReview(ctx, db, id, reviewerID); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM reviews WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting review: %w", err)
	}
	return nil
}
