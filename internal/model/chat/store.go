package chat

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a conversation id has no stored document.
	ErrNotFound = errors.New("conversation not found")
	// ErrInvalidTurn is returned by AppendTurn for a turn that fails Validate.
	ErrInvalidTurn = errors.New("invalid turn")
)

// Store persists conversations keyed by conversation id.
//
// Implementations must be safe for concurrent use. Each call is atomic for the
// single document it touches; nothing spans documents or calls.
type Store interface {
	// Get returns the conversation or ErrNotFound.
	Get(ctx context.Context, id string) (Conversation, error)
	// Create inserts an empty conversation when id is absent and returns the
	// stored document either way.
	Create(ctx context.Context, id string) (Conversation, error)
	// AppendTurn pushes turn onto the message log and refreshes updated_at.
	// It returns ErrNotFound when id is absent and ErrInvalidTurn when the
	// turn fails Validate; an invalid turn is never stored.
	AppendTurn(ctx context.Context, id string, turn Turn) error
	// List returns every conversation ordered by updated_at, newest first.
	List(ctx context.Context) ([]Conversation, error)
	// Delete removes the conversation and reports how many documents went away.
	Delete(ctx context.Context, id string) (int64, error)
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases the backend connection.
	Close(ctx context.Context) error
}
