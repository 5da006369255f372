package chat_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	model "github.com/zhouzirui/smartspark/backend/internal/model/chat"
	chat "github.com/zhouzirui/smartspark/backend/internal/service/chat"
)

type completerCall struct {
	system  string
	history []model.Turn
	message string
}

type fakeCompleter struct {
	mu    sync.Mutex
	calls []completerCall
	reply string
	err   error
	block bool
}

func (f *fakeCompleter) Complete(ctx context.Context, system string, history []model.Turn, message string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, completerCall{system: system, history: history, message: message})
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

// brokenStore fails every call after embedding a working store for reads.
type brokenStore struct {
	model.Store
	failCreate bool
	failAppend bool
	failList   bool
	failDelete bool
}

var errDown = errors.New("connection refused")

func (b *brokenStore) Create(ctx context.Context, id string) (model.Conversation, error) {
	if b.failCreate {
		return model.Conversation{}, errDown
	}
	return b.Store.Create(ctx, id)
}

func (b *brokenStore) AppendTurn(ctx context.Context, id string, turn model.Turn) error {
	if b.failAppend {
		return errDown
	}
	return b.Store.AppendTurn(ctx, id, turn)
}

func (b *brokenStore) List(ctx context.Context) ([]model.Conversation, error) {
	if b.failList {
		return nil, errDown
	}
	return b.Store.List(ctx)
}

func (b *brokenStore) Delete(ctx context.Context, id string) (int64, error) {
	if b.failDelete {
		return 0, errDown
	}
	return b.Store.Delete(ctx, id)
}

func newService(store model.Store, completer *fakeCompleter, opts chat.Options) *chat.Service {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = "You are SmartSpark."
	}
	return chat.NewService(store, completer, opts, zap.NewNop())
}

func TestChatCreatesConversation(t *testing.T) {
	store := model.NewMemoryStore()
	completer := &fakeCompleter{reply: "Hello there!"}
	svc := newService(store, completer, chat.Options{})
	ctx := context.Background()

	reply, err := svc.Chat(ctx, "hi", "")
	require.NoError(t, err)
	assert.Equal(t, "Hello there!", reply.Response)
	assert.NotEmpty(t, reply.ConversationID)

	conv, err := svc.GetConversation(ctx, reply.ConversationID)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, model.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, "hi", conv.Messages[0].Content)
	assert.Equal(t, model.RoleAssistant, conv.Messages[1].Role)
	assert.Equal(t, "Hello there!", conv.Messages[1].Content)
	assert.False(t, conv.UpdatedAt.Before(conv.CreatedAt))

	require.Len(t, completer.calls, 1)
	assert.Equal(t, "You are SmartSpark.", completer.calls[0].system)
	assert.Empty(t, completer.calls[0].history)
	assert.Equal(t, "hi", completer.calls[0].message)
}

func TestChatGeneratesDistinctIDs(t *testing.T) {
	svc := newService(model.NewMemoryStore(), &fakeCompleter{reply: "ok"}, chat.Options{})

	first, err := svc.Chat(context.Background(), "one", "")
	require.NoError(t, err)
	second, err := svc.Chat(context.Background(), "two", "")
	require.NoError(t, err)
	assert.NotEqual(t, first.ConversationID, second.ConversationID)
}

func TestChatContinuesConversation(t *testing.T) {
	store := model.NewMemoryStore()
	completer := &fakeCompleter{reply: "sure"}
	svc := newService(store, completer, chat.Options{})
	ctx := context.Background()

	first, err := svc.Chat(ctx, "first", "")
	require.NoError(t, err)
	before, err := svc.GetConversation(ctx, first.ConversationID)
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)
	second, err := svc.Chat(ctx, "second", first.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, second.ConversationID)

	after, err := svc.GetConversation(ctx, first.ConversationID)
	require.NoError(t, err)
	require.Len(t, after.Messages, len(before.Messages)+2)
	assert.Equal(t, before.Messages, after.Messages[:2])
	assert.Equal(t, model.RoleUser, after.Messages[2].Role)
	assert.Equal(t, "second", after.Messages[2].Content)
	assert.Equal(t, model.RoleAssistant, after.Messages[3].Role)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))

	require.Len(t, completer.calls, 2)
	history := completer.calls[1].history
	require.Len(t, history, 2)
	assert.Equal(t, "first", history[0].Content)
	assert.Equal(t, "sure", history[1].Content)
}

func TestChatUsesCallerSuppliedID(t *testing.T) {
	svc := newService(model.NewMemoryStore(), &fakeCompleter{reply: "ok"}, chat.Options{})

	reply, err := svc.Chat(context.Background(), "hi", "my-conversation")
	require.NoError(t, err)
	assert.Equal(t, "my-conversation", reply.ConversationID)

	_, err = svc.GetConversation(context.Background(), "my-conversation")
	require.NoError(t, err)
}

func TestChatKeepsConversationIDVerbatim(t *testing.T) {
	svc := newService(model.NewMemoryStore(), &fakeCompleter{reply: "ok"}, chat.Options{})
	ctx := context.Background()

	reply, err := svc.Chat(ctx, "hi", " padded ")
	require.NoError(t, err)
	assert.Equal(t, " padded ", reply.ConversationID)

	_, err = svc.GetConversation(ctx, " padded ")
	require.NoError(t, err)
	_, err = svc.GetConversation(ctx, "padded")
	require.ErrorIs(t, err, chat.ErrNotFound)
}

func TestChatFailureReturnsGeneratedID(t *testing.T) {
	store := model.NewMemoryStore()
	svc := newService(store, &fakeCompleter{err: errors.New("boom")}, chat.Options{})
	ctx := context.Background()

	reply, err := svc.Chat(ctx, "hi", "")
	require.ErrorIs(t, err, chat.ErrUpstream)
	require.NotEmpty(t, reply.ConversationID)
	assert.Empty(t, reply.Response)

	conv, err := svc.GetConversation(ctx, reply.ConversationID)
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 1)
}

func TestChatHistoryLimit(t *testing.T) {
	completer := &fakeCompleter{reply: "ok"}
	svc := newService(model.NewMemoryStore(), completer, chat.Options{HistoryLimit: 3})
	ctx := context.Background()

	reply, err := svc.Chat(ctx, "m1", "")
	require.NoError(t, err)
	_, err = svc.Chat(ctx, "m2", reply.ConversationID)
	require.NoError(t, err)
	_, err = svc.Chat(ctx, "m3", reply.ConversationID)
	require.NoError(t, err)

	last := completer.calls[len(completer.calls)-1]
	require.Len(t, last.history, 3)
	assert.Equal(t, "ok", last.history[0].Content)
	assert.Equal(t, "m2", last.history[1].Content)
	assert.Equal(t, "ok", last.history[2].Content)
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	store := model.NewMemoryStore()
	svc := newService(store, &fakeCompleter{reply: "ok"}, chat.Options{})

	_, err := svc.Chat(context.Background(), "   ", "")
	require.ErrorIs(t, err, chat.ErrEmptyMessage)

	convs, err := svc.ListConversations(context.Background())
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestChatUpstreamFailureKeepsUserTurn(t *testing.T) {
	store := model.NewMemoryStore()
	svc := newService(store, &fakeCompleter{err: errors.New("invalid api key")}, chat.Options{})
	ctx := context.Background()

	reply, err := svc.Chat(ctx, "hi", "c1")
	require.ErrorIs(t, err, chat.ErrUpstream)
	assert.Equal(t, "c1", reply.ConversationID)
	assert.Contains(t, err.Error(), "invalid api key")

	conv, err := svc.GetConversation(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, model.RoleUser, conv.Messages[0].Role)
}

func TestChatCompletionTimeout(t *testing.T) {
	svc := newService(model.NewMemoryStore(), &fakeCompleter{block: true}, chat.Options{Timeout: 20 * time.Millisecond})

	_, err := svc.Chat(context.Background(), "hi", "slow")
	require.ErrorIs(t, err, chat.ErrUpstream)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChatPersistenceFailures(t *testing.T) {
	ctx := context.Background()

	svc := newService(&brokenStore{Store: model.NewMemoryStore(), failCreate: true}, &fakeCompleter{reply: "ok"}, chat.Options{})
	_, err := svc.Chat(ctx, "hi", "")
	require.ErrorIs(t, err, chat.ErrPersistence)
	assert.ErrorIs(t, err, errDown)

	completer := &fakeCompleter{reply: "ok"}
	svc = newService(&brokenStore{Store: model.NewMemoryStore(), failAppend: true}, completer, chat.Options{})
	_, err = svc.Chat(ctx, "hi", "")
	require.ErrorIs(t, err, chat.ErrPersistence)
	assert.Empty(t, completer.calls, "provider must not be called when the user turn was not stored")
}

func TestGetConversationNotFound(t *testing.T) {
	svc := newService(model.NewMemoryStore(), &fakeCompleter{}, chat.Options{})

	_, err := svc.GetConversation(context.Background(), "missing")
	require.ErrorIs(t, err, chat.ErrNotFound)
}

func TestListConversationsSorted(t *testing.T) {
	svc := newService(model.NewMemoryStore(), &fakeCompleter{reply: "ok"}, chat.Options{})
	ctx := context.Background()

	a, err := svc.Chat(ctx, "a", "")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	b, err := svc.Chat(ctx, "b", "")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = svc.Chat(ctx, "a again", a.ConversationID)
	require.NoError(t, err)

	convs, err := svc.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, a.ConversationID, convs[0].ConversationID)
	assert.Equal(t, b.ConversationID, convs[1].ConversationID)

	_, err = newService(&brokenStore{Store: model.NewMemoryStore(), failList: true}, &fakeCompleter{}, chat.Options{}).ListConversations(ctx)
	require.ErrorIs(t, err, chat.ErrPersistence)
}

func TestDeleteConversation(t *testing.T) {
	svc := newService(model.NewMemoryStore(), &fakeCompleter{reply: "ok"}, chat.Options{})
	ctx := context.Background()

	reply, err := svc.Chat(ctx, "hi", "")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteConversation(ctx, reply.ConversationID))
	_, err = svc.GetConversation(ctx, reply.ConversationID)
	require.ErrorIs(t, err, chat.ErrNotFound)

	err = svc.DeleteConversation(ctx, reply.ConversationID)
	require.ErrorIs(t, err, chat.ErrNotFound)

	err = newService(&brokenStore{Store: model.NewMemoryStore(), failDelete: true}, &fakeCompleter{}, chat.Options{}).DeleteConversation(ctx, "x")
	require.ErrorIs(t, err, chat.ErrPersistence)
}
