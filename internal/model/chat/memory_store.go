package chat

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store with an in-process map, suitable for tests and
// single-node development.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	now           func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*Conversation),
		now:           time.Now,
	}
}

// WithClock overrides the time source; used by tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Get(_ context.Context, id string) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	return conv.Clone(), nil
}

func (s *MemoryStore) Create(_ context.Context, id string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.conversations[id]; ok {
		return conv.Clone(), nil
	}

	conv := NewConversation(id, s.now())
	s.conversations[id] = &conv
	return conv.Clone(), nil
}

func (s *MemoryStore) AppendTurn(_ context.Context, id string, turn Turn) error {
	if err := turn.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return ErrNotFound
	}

	// updated_at must strictly advance even when the clock doesn't.
	updated := s.now().UTC()
	if !updated.After(conv.UpdatedAt) {
		updated = conv.UpdatedAt.Add(time.Microsecond)
	}

	conv.Messages = append(conv.Messages, turn)
	conv.UpdatedAt = updated
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]Conversation, error) {
	s.mu.RLock()
	out := make([]Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		out = append(out, conv.Clone())
	}
	s.mu.RUnlock()

	SortByUpdatedDesc(out)
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return 0, nil
	}
	delete(s.conversations, id)
	return 1, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close(context.Context) error { return nil }

// SortByUpdatedDesc orders conversations newest first, breaking ties by id so
// the result is deterministic.
func SortByUpdatedDesc(items []Conversation) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
			return items[i].UpdatedAt.After(items[j].UpdatedAt)
		}
		return items[i].ConversationID < items[j].ConversationID
	})
}
