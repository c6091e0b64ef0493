package session

import (
	"time"

	"github.com/google/uuid"

	"voiceturn/core"
)

// Session bundles the per-session identity and guarded state: the lifecycle
// state machine, the media track set, and the conversation history. The
// lifecycle manager owns construction and teardown ordering.
type Session struct {
	ID        string
	RemoteID  string // session ID assigned by the avatar provider
	StartedAt time.Time

	Machine *StateMachine
	Tracks  *MediaTrackManager
	History *core.History

	Logger *core.Logger
}

func NewSession(logger *core.Logger) *Session {
	id := uuid.NewString()
	sessLogger := logger.With(map[string]any{"session_id": id})
	return &Session{
		ID:        id,
		StartedAt: time.Now(),
		Machine:   NewStateMachine(sessLogger),
		History:   core.NewHistory(),
		Logger:    sessLogger,
	}
}
