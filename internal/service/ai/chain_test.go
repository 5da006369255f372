package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/smartspark/backend/internal/model/chat"
)

type fakeChatModel struct {
	input []*schema.Message
	reply string
	err   error
}

func (m *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.input = input
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *fakeChatModel) Stream(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m.input = input
	return schema.StreamReaderFromArray([]*schema.Message{schema.AssistantMessage(m.reply, nil)}), nil
}

func (m *fakeChatModel) BindTools([]*schema.ToolInfo) error { return nil }

func TestChainCompleterRendersPrompt(t *testing.T) {
	fake := &fakeChatModel{reply: "42"}
	completer, err := NewChainCompleter(context.Background(), fake)
	require.NoError(t, err)

	now := time.Now()
	history := []chat.Turn{
		chat.NewTurn(chat.RoleUser, "what is six times seven?", now),
		chat.NewTurn(chat.RoleAssistant, "let me think", now),
	}

	got, err := completer.Complete(context.Background(), "You are SmartSpark.", history, "well?")
	require.NoError(t, err)
	assert.Equal(t, "42", got)

	require.Len(t, fake.input, 4)
	assert.Equal(t, schema.System, fake.input[0].Role)
	assert.Equal(t, "You are SmartSpark.", fake.input[0].Content)
	assert.Equal(t, schema.User, fake.input[1].Role)
	assert.Equal(t, schema.Assistant, fake.input[2].Role)
	assert.Equal(t, schema.User, fake.input[3].Role)
	assert.Equal(t, "well?", fake.input[3].Content)
}

func TestChainCompleterWithoutHistory(t *testing.T) {
	fake := &fakeChatModel{reply: "hello"}
	completer, err := NewChainCompleter(context.Background(), fake)
	require.NoError(t, err)

	_, err = completer.Complete(context.Background(), "sys", nil, "hi")
	require.NoError(t, err)
	assert.Len(t, fake.input, 2)
}

func TestChainCompleterErrors(t *testing.T) {
	upstream := errors.New("model overloaded")
	completer, err := NewChainCompleter(context.Background(), &fakeChatModel{err: upstream})
	require.NoError(t, err)
	_, err = completer.Complete(context.Background(), "sys", nil, "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), upstream.Error())

	completer, err = NewChainCompleter(context.Background(), &fakeChatModel{reply: "  "})
	require.NoError(t, err)
	_, err = completer.Complete(context.Background(), "sys", nil, "hi")
	require.ErrorIs(t, err, ErrEmptyCompletion)
}
