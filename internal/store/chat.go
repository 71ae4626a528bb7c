package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/bazar/internal/model"
)

const chatSessionColumns = `id, user_id, is_active, last_activity, created_at`

func scanChatSession(row interface{ Scan(...any) error }) (*model.ChatSession, error) {
	s := &model.ChatSession{}
	if err := row.Scan(&s.ID, &s.UserID, &s.Active, &s.LastActivity, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.Messages = []model.ChatMessage{}
	return s, nil
}

// OpenChatSession returns the user's active chat session, starting a new one
// seeded with greeting when there is none. created reports which happened.
func OpenChatSession(ctx context.Context, db *sql.DB, userID int64, greeting string) (session *model.ChatSession, created bool, err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM chat_sessions WHERE user_id = ? AND is_active = 1`, userID,
	).Scan(&id)
	switch {
	case err == nil:
		if err := tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("committing chat session: %w", err)
		}
		session, err := GetChatSession(ctx, db, id, userID)
		return session, false, err
	case err != sql.ErrNoRows:
		return nil, false, fmt.Errorf("finding active chat session: %w", err)
	}

	t := now()
	result, err := tx.ExecContext(ctx,
		`INSERT INTO chat_sessions (user_id, is_active, last_activity, created_at) VALUES (?, 1, ?, ?)`,
		userID, t, t,
	)
	if err != nil {
		return nil, false, fmt.Errorf("creating chat session: %w", err)
	}
	id, err = result.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("getting chat session id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chat_messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		id, model.ChatRoleAssistant, greeting, t,
	); err != nil {
		return nil, false, fmt.Errorf("storing greeting: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("committing chat session: %w", err)
	}

	session, err = GetChatSession(ctx, db, id, userID)
	return session, true, err
}

// GetChatSession returns a session with its messages. Sessions belonging to
// other users are reported as ErrNotFound.
func GetChatSession(ctx context.Context, db *sql.DB, id, userID int64) (*model.ChatSession, error) {
	session, err := scanChatSession(db.QueryRowContext(ctx,
		`SELECT `+chatSessionColumns+` FROM chat_sessions WHERE id = ? AND user_id = ?`, id, userID,
	))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting chat session: %w", err)
	}

	messages, err := chatMessages(ctx, db, `m.session_id = ?`, id)
	if err != nil {
		return nil, err
	}
	if m := messages[id]; m != nil {
		session.Messages = m
	}
	return session, nil
}

// ListChatSessions returns a user's sessions with their messages, most
// recently used first.
func ListChatSessions(ctx context.Context, db *sql.DB, userID int64) ([]model.ChatSession, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+chatSessionColumns+` FROM chat_sessions WHERE user_id = ? ORDER BY last_activity DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing chat sessions: %w", err)
	}

	var sessions []model.ChatSession
	for rows.Next() {
		s, err := scanChatSession(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning chat session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing chat sessions: %w", err)
	}

	messages, err := chatMessages(ctx, db,
		`m.session_id IN (SELECT id FROM chat_sessions WHERE user_id = ?)`, userID)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if m := messages[sessions[i].ID]; m != nil {
			sessions[i].Messages = m
		}
	}
	return sessions, nil
}

// chatMessages loads messages matching where, grouped by session in the
// order they were written.
func chatMessages(ctx context.Context, db *sql.DB, where string, args ...any) (map[int64][]model.ChatMessage, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT m.session_id, m.role, m.content, m.created_at FROM chat_messages m
		 WHERE `+where+` ORDER BY m.id`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing chat messages: %w", err)
	}
	defer rows.Close()

	bySession := map[int64][]model.ChatMessage{}
	for rows.Next() {
		var sessionID int64
		var m model.ChatMessage
		if err := rows.Scan(&sessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chat message: %w", err)
		}
		bySession[sessionID] = append(bySession[sessionID], m)
	}
	return bySession, rows.Err()
}

// AppendChatExchange stores a user message and the assistant's reply on an
// active session.
func AppendChatExchange(ctx context.Context, db *sql.DB, id, userID int64, message, reply string) (*model.ChatSession, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	t := now()
	result, err := tx.ExecContext(ctx,
		`UPDATE chat_sessions SET last_activity = ? WHERE id = ? AND user_id = ? AND is_active = 1`,
		t, id, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("touching chat session: %w", err)
	}
	if err := expectRow(result, ErrChatSessionClosed); err != nil {
		return nil, err
	}

	for _, m := range []struct{ role, content string }{
		{model.ChatRoleUser, message},
		{model.ChatRoleAssistant, reply},
	} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chat_messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
			id, m.role, m.content, t,
		); err != nil {
			return nil, fmt.Errorf("storing chat message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing chat messages: %w", err)
	}

	return GetChatSession(ctx, db, id, userID)
}

// CloseChatSession marks a session inactive. Closing a closed session is a no-op.
func CloseChatSession(ctx context.Context, db *sql.DB, id, userID int64) (*model.ChatSession, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE chat_sessions SET is_active = 0 WHERE id = ? AND user_id = ?`, id, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("closing chat session: %w", err)
	}
	if err := expectRow(result, ErrNotFound); err != nil {
		return nil, err
	}
	return GetChatSession(ctx, db, id, userID)
}
