package chat

import (
	"fmt"
	"time"
)

// Role tags the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one message within a conversation.
type Turn struct {
	Role      Role      `json:"role" bson:"role"`
	Content   string    `json:"content" bson:"content"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// Conversation is a persisted, append-only log of turns.
type Conversation struct {
	ConversationID string    `json:"conversation_id" bson:"conversation_id"`
	Messages       []Turn    `json:"messages" bson:"messages"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" bson:"updated_at"`
}

// Validate rejects turns no store should accept.
func (t Turn) Validate() error {
	if !t.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidTurn, t.Role)
	}
	return nil
}

// NewConversation returns an empty conversation stamped with now.
func NewConversation(id string, now time.Time) Conversation {
	now = now.UTC()
	return Conversation{
		ConversationID: id,
		Messages:       []Turn{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// NewTurn builds a turn stamped with now in UTC.
func NewTurn(role Role, content string, now time.Time) Turn {
	return Turn{Role: role, Content: content, Timestamp: now.UTC()}
}

// Clone returns a deep copy so callers can't alias store-owned slices.
func (c Conversation) Clone() Conversation {
	out := c
	out.Messages = append(make([]Turn, 0, len(c.Messages)), c.Messages...)
	return out
}
