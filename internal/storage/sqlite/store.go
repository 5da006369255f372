// Package sqlite keeps conversation documents in a single-file SQLite database.
//
// Each row holds one conversation with its message log serialised as a JSON
// array, so appends stay a single-row update.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/zhouzirui/smartspark/backend/internal/model/chat"
)

const schema = `CREATE TABLE IF NOT EXISTS conversations (
    conversation_id TEXT PRIMARY KEY,
    messages        TEXT    NOT NULL DEFAULT '[]',
    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS conversations_updated_at ON conversations (updated_at DESC);`

// Store implements chat.Store on SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database file at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// SQLite serialises writers anyway; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(row scanner) (chat.Conversation, error) {
	var (
		conv             chat.Conversation
		raw              string
		created, updated int64
	)
	if err := row.Scan(&conv.ConversationID, &raw, &created, &updated); err != nil {
		return chat.Conversation{}, err
	}
	if err := json.Unmarshal([]byte(raw), &conv.Messages); err != nil {
		return chat.Conversation{}, fmt.Errorf("decode messages of %s: %w", conv.ConversationID, err)
	}
	if conv.Messages == nil {
		conv.Messages = []chat.Turn{}
	}
	conv.CreatedAt = time.Unix(0, created).UTC()
	conv.UpdatedAt = time.Unix(0, updated).UTC()
	return conv, nil
}

func (s *Store) Get(ctx context.Context, id string) (chat.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT conversation_id, messages, created_at, updated_at FROM conversations WHERE conversation_id = ?;`, id)
	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Conversation{}, chat.ErrNotFound
	}
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("get conversation %s: %w", id, err)
	}
	return conv, nil
}

func (s *Store) Create(ctx context.Context, id string) (chat.Conversation, error) {
	now := s.now().UTC().UnixNano()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (conversation_id, messages, created_at, updated_at) VALUES (?, '[]', ?, ?)
         ON CONFLICT(conversation_id) DO NOTHING;`, id, now, now)
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("create conversation %s: %w", id, err)
	}
	return s.Get(ctx, id)
}

func (s *Store) AppendTurn(ctx context.Context, id string, turn chat.Turn) error {
	if err := turn.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("encode turn: %w", err)
	}

	// max() keeps updated_at strictly increasing when the clock stalls.
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations
            SET messages = json_insert(messages, '$[#]', json(?)),
                updated_at = max(?, updated_at + 1)
          WHERE conversation_id = ?;`, string(payload), s.now().UTC().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("append turn to %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("append turn to %s: %w", id, err)
	}
	if n == 0 {
		return chat.ErrNotFound
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]chat.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT conversation_id, messages, created_at, updated_at FROM conversations
          ORDER BY updated_at DESC, conversation_id ASC;`)
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
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE conversation_id = ?;`, id)
	if err != nil {
		return 0, fmt.Errorf("delete conversation %s: %w", id, err)
	}
	return res.RowsAffected()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close(context.Context) error {
	return s.db.Close()
}
