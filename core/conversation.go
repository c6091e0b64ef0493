package core

import "sync"

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ConversationMessage is one entry of the session transcript. Insertion
// order is significant: it defines the model context and UI replay.
type ConversationMessage struct {
	Role     MessageRole `json:"role"`
	Content  string      `json:"content"`
	Sequence int         `json:"sequence"`
}

// History is the append-only ordered message log for one session. Messages
// are never mutated after append; lifetime equals the session.
type History struct {
	mu   sync.Mutex
	msgs []ConversationMessage
}

func NewHistory() *History {
	return &History{}
}

func (h *History) Append(role MessageRole, content string) ConversationMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	msg := ConversationMessage{
		Role:     role,
		Content:  content,
		Sequence: len(h.msgs),
	}
	h.msgs = append(h.msgs, msg)
	return msg
}

// Messages returns a copy of the log in insertion order.
func (h *History) Messages() []ConversationMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ConversationMessage, len(h.msgs))
	copy(out, h.msgs)
	return out
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.msgs)
}
