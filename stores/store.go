package stores

import (
	"context"

	"voiceturn/core"
)

// ConversationStore persists a finished session's conversation. Called
// exactly once per session, during teardown; failures are logged and do not
// block the close.
type ConversationStore interface {
	Save(ctx context.Context, sessionID string, messages []core.ConversationMessage) error
}

// GoalStore persists what the session revealed about the user's goals.
// Same contract as ConversationStore: exactly once, at teardown, non-fatal.
type GoalStore interface {
	Save(ctx context.Context, sessionID string, messages []core.ConversationMessage) error
}
