package db

import (
	"database/sql"
	"fmt"
)

// migrations is a list of SQL statements applied in order after schema creation.
// Each migration must be idempotent. Append new migrations at the end.
var migrations = []string{
	// Migration 1: order history listings page by (buyer|seller, status).
	`CREATE INDEX IF NOT EXISTS idx_orders_seller_status ON orders(seller_id, status)`,
	// Migration 2: reservation sweeper scans reserved items by age.
	`CREATE INDEX IF NOT EXISTS idx_items_reserved_at ON items(reserved_at) WHERE status = 'reserved'`,
	// Migration 3: assistant chat sessions, one active per user.
	`CREATE TABLE IF NOT EXISTS chat_sessions (
	    id            INTEGER PRIMARY KEY,
	    user_id       INTEGER NOT NULL REFERENCES users(id),
	    is_active     INTEGER NOT NULL DEFAULT 1,
	    last_activity DATETIME NOT NULL,
	    created_at    DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_chat_sessions_active ON chat_sessions(user_id) WHERE is_active = 1`,
	// Migration 4: chat message history.
	`CREATE TABLE IF NOT EXISTS chat_messages (
	    id         INTEGER PRIMARY KEY,
	    session_id INTEGER NOT NULL REFERENCES chat_sessions(id),
	    role       TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
	    content    TEXT NOT NULL,
	    created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, id)`,
}

// Migrate ensures the schema and runs the migrations.
func Migrate(db *sql.DB) error {
	if err := EnsureSchema(db); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}

	return nil
}
