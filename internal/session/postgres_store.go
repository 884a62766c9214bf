package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists records in the chatbot_sessions table.
type PostgresStore struct {
	pool rowQuerier
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("session: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

func newPostgresStoreWithExec(exec rowQuerier) *PostgresStore {
	if exec == nil {
		panic("session: exec required")
	}
	return &PostgresStore{pool: exec}
}

func (s *PostgresStore) Get(ctx context.Context, conversationID string) (Record, error) {
	query := `
		SELECT conversation_id, session_id, origin_address, expires_at
		FROM chatbot_sessions
		WHERE conversation_id = $1
	`
	return s.scan(s.pool.QueryRow(ctx, query, conversationID), "get")
}

func (s *PostgresStore) Put(ctx context.Context, rec Record) error {
	query := `
		INSERT INTO chatbot_sessions (conversation_id, session_id, origin_address, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (conversation_id) DO UPDATE SET
			session_id = EXCLUDED.session_id,
			origin_address = EXCLUDED.origin_address,
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()
	`
	if _, err := s.pool.Exec(ctx, query, rec.ConversationID, rec.SessionID, rec.OriginAddress, rec.ExpiresAt.UTC()); err != nil {
		return fmt.Errorf("session: postgres put: %w", err)
	}
	return nil
}

func (s *PostgresStore) Touch(ctx context.Context, conversationID string, expiresAt time.Time) (Record, error) {
	query := `
		UPDATE chatbot_sessions
		SET expires_at = $2, updated_at = NOW()
		WHERE conversation_id = $1
		RETURNING conversation_id, session_id, origin_address, expires_at
	`
	return s.scan(s.pool.QueryRow(ctx, query, conversationID, expiresAt.UTC()), "touch")
}

func (s *PostgresStore) Delete(ctx context.Context, conversationID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM chatbot_sessions WHERE conversation_id = $1`, conversationID); err != nil {
		return fmt.Errorf("session: postgres delete: %w", err)
	}
	return nil
}

func (s *PostgresStore) scan(row pgx.Row, op string) (Record, error) {
	var rec Record
	if err := row.Scan(&rec.ConversationID, &rec.SessionID, &rec.OriginAddress, &rec.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("session: postgres %s: %w", op, err)
	}
	return rec, nil
}
