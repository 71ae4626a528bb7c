package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/bazar/internal/model"
)

const userColumns = `id, email, first_name, last_name, age, contact_number, password_hash, created_at, deleted_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Age, &u.ContactNumber,
		&u.PasswordHash, &u.CreatedAt, &u.DeletedAt)
	return u, err
}

// CreateUser registers a new user. The email must already be normalized.
func CreateUser(ctx context.Context, db *sql.DB, email, firstName, lastName string, age int, contactNumber, passwordHash string) (*model.User, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO users (email, first_name, last_name, age, contact_number, password_hash)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		email, firstName, lastName, age, contactNumber, passwordHash,
	)
	if uniqueViolation(err, "users.email") {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user id: %w", err)
	}

	return GetUser(ctx, db, id)
}

// GetUser returns a user by ID, including soft-deleted users.
func GetUser(ctx context.Context, db *sql.DB, id int64) (*model.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetUserByEmail returns the active user with the given email.
func GetUserByEmail(ctx context.Context, db *sql.DB, email string) (*model.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? AND deleted_at IS NULL`, email,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by email: %w", err)
	}
	return u, nil
}

// GetProfile returns a user's public profile with their review summary.
func GetProfile(ctx context.Context, db *sql.DB, id int64) (*model.Profile, error) {
	p := &model.Profile{}
	err := db.QueryRowContext(ctx,
		`SELECT u.id, u.first_name, u.last_name, u.email, u.contact_number,
		        COALESCE((SELECT AVG(r.rating) FROM reviews r WHERE r.seller_id = u.id), 0),
		        (SELECT COUNT(*) FROM reviews r WHERE r.seller_id = u.id)
		 FROM users u WHERE u.id = ? AND u.deleted_at IS NULL`, id,
	).Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.ContactNumber, &p.AverageRating, &p.ReviewCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	return p, nil
}

// UpdateUserProfile updates the editable account fields.
func UpdateUserProfile(ctx context.Context, db *sql.DB, id int64, firstName, lastName string, age int, contactNumber string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET first_name = ?, last_name = ?, age = ?, contact_number = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		firstName, lastName, age, contactNumber, id,
	)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	return nil
}

// UpdateUserPassword updates a user's password hash.
func UpdateUserPassword(ctx context.Context, db *sql.DB, id int64, passwordHash string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET password_hash = ? WHERE id = ? AND deleted_at IS NULL`,
		passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("updating user password: %w", err)
	}
	return nil
}
