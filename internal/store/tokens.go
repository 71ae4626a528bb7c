package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RevokeToken adds a token's JTI to the revocation list until it would have expired.
func RevokeToken(ctx context.Context, db *sql.DB, jti string, expiresAt time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO revoked_tokens (jti, expires_at) VALUES (?, ?)`,
		jti, expiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	return nil
}

// IsTokenRevoked checks if a token's JTI has been revoked.
func IsTokenRevoked(ctx context.Context, db *sql.DB, jti string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM revoked_tokens WHERE jti = ?`, jti,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking token revocation: %w", err)
	}
	return count > 0, nil
}

// PurgeExpiredTokens drops revocations for tokens that have expired anyway.
func PurgeExpiredTokens(ctx context.Context, db *sql.DB) (int, error) {
	rows, err := db.QueryContext(ctx, `SELECT jti, expires_at FROM revoked_tokens`)
	if err != nil {
		return 0, fmt.Errorf("listing revoked tokens: %w", err)
	}

	var expired []string
	cutoff := now()
	for rows.Next() {
		var jti string
		var expiresAt time.Time
		if err := rows.Scan(&jti, &expiresAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning revoked token: %w", err)
		}
		if expiresAt.Before(cutoff) {
			expired = append(expired, jti)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("listing revoked tokens: %w", err)
	}

	for _, jti := range expired {
		if _, err := db.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE jti = ?`, jti); err != nil {
			return 0, fmt.Errorf("purging revoked token: %w", err)
		}
	}
	return len(expired), nil
}
