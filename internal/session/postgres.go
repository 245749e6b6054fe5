package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/emreacar/prompt-optimizer/internal/domain"
)

// PostgresStore persists sessions with the message log as a JSONB column.
// Saves are upserts; the write-behind cache may flush the same session
// repeatedly with a growing log.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres connects and verifies the database is reachable.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return NewPostgresStore(db), nil
}

func (s *PostgresStore) Get(ctx context.Context, sessionID string) (*domain.ConversationSession, error) {
	query := `
		SELECT session_id, user_id, title, created_at, last_activity_at,
		       is_active, messages, message_count, max_messages
		FROM conversation_sessions
		WHERE session_id = $1 AND is_active = true
	`

	var sess domain.ConversationSession
	var title sql.NullString
	var messagesJSON []byte

	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(
		&sess.SessionID,
		&sess.UserID,
		&title,
		&sess.CreatedAt,
		&sess.LastActivityAt,
		&sess.IsActive,
		&messagesJSON,
		&sess.MessageCount,
		&sess.MaxMessages,
	)

	if err == sql.ErrNoRows {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}

	if title.Valid {
		sess.Title = title.String
	}
	if len(messagesJSON) > 0 {
		if err := json.Unmarshal(messagesJSON, &sess.Messages); err != nil {
			return nil, fmt.Errorf("unmarshal messages: %w", err)
		}
	}

	return &sess, nil
}

func (s *PostgresStore) Save(ctx context.Context, session *domain.ConversationSession) error {
	messagesJSON, err := json.Marshal(session.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}

	query := `
		INSERT INTO conversation_sessions
			(session_id, user_id, title, created_at, last_activity_at,
			 is_active, messages, message_count, max_messages)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id) DO UPDATE SET
			title = EXCLUDED.title,
			last_activity_at = EXCLUDED.last_activity_at,
			is_active = EXCLUDED.is_active,
			messages = EXCLUDED.messages,
			message_count = EXCLUDED.message_count
	`

	_, err = s.db.ExecContext(ctx, query,
		session.SessionID,
		session.UserID,
		sql.NullString{String: session.Title, Valid: session.Title != ""},
		session.CreatedAt,
		session.LastActivityAt,
		session.IsActive,
		messagesJSON,
		session.MessageCount,
		session.MaxMessages,
	)

	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, sessionID string) error {
	query := `
		UPDATE conversation_sessions
		SET is_active = false, last_activity_at = $2
		WHERE session_id = $1 AND is_active = true
	`

	result, err := s.db.ExecContext(ctx, query, sessionID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("deactivate session: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrSessionNotFound
	}

	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]*domain.ConversationSession, error) {
	query := `
		SELECT session_id, user_id, title, created_at, last_activity_at,
		       is_active, messages, message_count, max_messages
		FROM conversation_sessions
		WHERE user_id = $1 AND is_active = true
		ORDER BY last_activity_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.ConversationSession
	for rows.Next() {
		var sess domain.ConversationSession
		var title sql.NullString
		var messagesJSON []byte

		err := rows.Scan(
			&sess.SessionID,
			&sess.UserID,
			&title,
			&sess.CreatedAt,
			&sess.LastActivityAt,
			&sess.IsActive,
			&messagesJSON,
			&sess.MessageCount,
			&sess.MaxMessages,
		)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}

		if title.Valid {
			sess.Title = title.String
		}
		if len(messagesJSON) > 0 {
			if err := json.Unmarshal(messagesJSON, &sess.Messages); err != nil {
				return nil, fmt.Errorf("unmarshal messages: %w", err)
			}
		}

		sessions = append(sessions, &sess)
	}

	return sessions, rows.Err()
}

// DB exposes the connection pool so other stores can share it.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
