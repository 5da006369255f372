// Package postgres stores conversation documents in a PostgreSQL JSONB column.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zhouzirui/smartspark/backend/internal/model/chat"
)

const schema = `CREATE TABLE IF NOT EXISTS conversations (
    conversation_id TEXT PRIMARY KEY,
    messages        JSONB       NOT NULL DEFAULT '[]'::jsonb,
    created_at      TIMESTAMPTZ NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS conversations_updated_at ON conversations (updated_at DESC);`

// Store implements chat.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// Connect opens a pgx pool, pings it and applies the schema.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 0
	config.MaxConnLifetime = time.Hour
	config.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("open pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply postgres schema: %w", err)
	}
	return &Store{pool: pool, now: time.Now}, nil
}

const selectColumns = `SELECT conversation_id, messages, created_at, updated_at FROM conversations`

func scanConversation(row pgx.Row) (chat.Conversation, error) {
	var (
		conv chat.Conversation
		raw  []byte
	)
	if err := row.Scan(&conv.ConversationID, &raw, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
		return chat.Conversation{}, err
	}
	if err := json.Unmarshal(raw, &conv.Messages); err != nil {
		return chat.Conversation{}, fmt.Errorf("decode messages of %s: %w", conv.ConversationID, err)
	}
	if conv.Messages == nil {
		conv.Messages = []chat.Turn{}
	}
	conv.CreatedAt = conv.CreatedAt.UTC()
	conv.UpdatedAt = conv.UpdatedAt.UTC()
	return conv, nil
}

func (s *Store) Get(ctx context.Context, id string) (chat.Conversation, error) {
	conv, err := scanConversation(s.pool.QueryRow(ctx, selectColumns+` WHERE conversation_id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.Conversation{}, chat.ErrNotFound
	}
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("get conversation %s: %w", id, err)
	}
	return conv, nil
}

func (s *Store) Create(ctx context.Context, id string) (chat.Conversation, error) {
	now := s.now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (conversation_id, messages, created_at, updated_at)
         VALUES ($1, '[]'::jsonb, $2, $2)
         ON CONFLICT (conversation_id) DO NOTHING`, id, now)
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("create conversation %s: %w", id, err)
	}
	return s.Get(ctx, id)
}

func (s *Store) AppendTurn(ctx context.Context, id string, turn chat.Turn) error {
	if err := turn.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal([]chat.Turn{turn})
	if err != nil {
		return fmt.Errorf("encode turn: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE conversations
            SET messages = messages || $2::jsonb,
                updated_at = GREATEST($3, updated_at + interval '1 microsecond')
          WHERE conversation_id = $1`, id, string(payload), s.now().UTC())
	if err != nil {
		return fmt.Errorf("append turn to %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return chat.ErrNotFound
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]chat.Conversation, error) {
	rows, err := s.pool.Query(ctx, selectColumns+` ORDER BY updated_at DESC, conversation_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	out := make([]chat.Conversation, 0)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE conversation_id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("delete conversation %s: %w", id, err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close(context.Context) error {
	s.pool.Close()
	return nil
}

// Truncate empties the table; tests use it between runs.
func (s *Store) Truncate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE conversations`)
	return err
}
