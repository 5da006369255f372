package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/zhouzirui/smartspark/backend/internal/config"
	"github.com/zhouzirui/smartspark/backend/internal/model/chat"
)

// ErrEmptyCompletion is returned when the provider answers without any text.
var ErrEmptyCompletion = errors.New("model returned an empty completion")

// Completer produces the assistant reply for a conversation.
//
// history holds the prior turns in chronological order and excludes message.
type Completer interface {
	Complete(ctx context.Context, systemPrompt string, history []chat.Turn, message string) (string, error)
}

// NewCompleter builds the Completer for the configured provider.
func NewCompleter(ctx context.Context, cfg config.AIConfig) (Completer, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("%s credentials or model missing", cfg.Provider)
	}

	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAICompleter(cfg), nil
	case config.ProviderArk:
		completer, err := NewArkCompleter(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return completer, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}
