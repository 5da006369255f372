package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/smartspark/backend/internal/model/chat"
	"github.com/zhouzirui/smartspark/backend/internal/service/ai"
)

var (
	// ErrNotFound means the conversation id has no stored document.
	ErrNotFound = errors.New("conversation not found")
	// ErrEmptyMessage rejects blank user input before anything is stored.
	ErrEmptyMessage = errors.New("message is required")
	// ErrUpstream wraps completion provider failures, timeouts included.
	ErrUpstream = errors.New("completion provider failed")
	// ErrPersistence wraps conversation store failures.
	ErrPersistence = errors.New("conversation store failed")
)

const defaultCompletionTimeout = 60 * time.Second

// Options tunes the gateway.
type Options struct {
	SystemPrompt string
	// Timeout bounds each completion call.
	Timeout time.Duration
	// HistoryLimit caps the prior turns sent to the provider; 0 sends all.
	HistoryLimit int
}

// Reply is the result of one chat exchange.
type Reply struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id"`
}

// Service is the chat gateway. It keeps no state between requests; everything
// lives in the store.
type Service struct {
	store     chat.Store
	completer ai.Completer
	opts      Options
	log       *zap.Logger
	newID     func() string
	now       func() time.Time
}

// NewService wires the gateway to its store and completion provider.
func NewService(store chat.Store, completer ai.Completer, opts Options, log *zap.Logger) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultCompletionTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:     store,
		completer: completer,
		opts:      opts,
		log:       log.Named("chat"),
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// Chat records the user message, asks the provider for a reply and records it.
//
// The user turn is stored before the provider is called and the assistant turn
// only after it returns, so a failed or timed-out call leaves the user turn
// without a reply. Once the id is resolved, errors come with a Reply carrying
// it. conversationID is opaque and used as given.
func (s *Service) Chat(ctx context.Context, message, conversationID string) (Reply, error) {
	if strings.TrimSpace(message) == "" {
		return Reply{}, ErrEmptyMessage
	}

	id := conversationID
	if id == "" {
		id = s.newID()
	}
	log := s.log.With(zap.String("conversation_id", id))
	failed := Reply{ConversationID: id}

	conv, err := s.store.Create(ctx, id)
	if err != nil {
		return failed, fmt.Errorf("%w: load conversation: %w", ErrPersistence, err)
	}
	history := s.trimHistory(conv.Messages)

	if err := s.store.AppendTurn(ctx, id, chat.NewTurn(chat.RoleUser, message, s.now())); err != nil {
		return failed, fmt.Errorf("%w: append user turn: %w", ErrPersistence, err)
	}

	completionCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	started := s.now()
	response, err := s.completer.Complete(completionCtx, s.opts.SystemPrompt, history, message)
	if err != nil {
		log.Warn("completion failed", zap.Error(err), zap.Duration("elapsed", time.Since(started)))
		return failed, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	if err := s.store.AppendTurn(ctx, id, chat.NewTurn(chat.RoleAssistant, response, s.now())); err != nil {
		return failed, fmt.Errorf("%w: append assistant turn: %w", ErrPersistence, err)
	}

	log.Info("chat turn completed",
		zap.Int("history_turns", len(history)),
		zap.Int("reply_length", len(response)),
		zap.Duration("completion", time.Since(started)))

	return Reply{Response: response, ConversationID: id}, nil
}

// GetConversation returns one conversation or ErrNotFound.
func (s *Service) GetConversation(ctx context.Context, id string) (chat.Conversation, error) {
	conv, err := s.store.Get(ctx, id)
	if errors.Is(err, chat.ErrNotFound) {
		return chat.Conversation{}, ErrNotFound
	}
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("%w: get conversation: %w", ErrPersistence, err)
	}
	return conv, nil
}

// ListConversations returns every conversation, most recently updated first.
func (s *Service) ListConversations(ctx context.Context) ([]chat.Conversation, error) {
	convs, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list conversations: %w", ErrPersistence, err)
	}
	if convs == nil {
		convs = []chat.Conversation{}
	}
	return convs, nil
}

// DeleteConversation removes a conversation or returns ErrNotFound.
func (s *Service) DeleteConversation(ctx context.Context, id string) error {
	n, err := s.store.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: delete conversation: %w", ErrPersistence, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	s.log.Info("conversation deleted", zap.String("conversation_id", id))
	return nil
}

func (s *Service) trimHistory(turns []chat.Turn) []chat.Turn {
	if s.opts.HistoryLimit <= 0 || len(turns) <= s.opts.HistoryLimit {
		return turns
	}
	return turns[len(turns)-s.opts.HistoryLimit:]
}
