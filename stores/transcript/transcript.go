package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"voiceturn/core"
)

// header is the first JSON line of each transcript file.
type header struct {
	SessionID string `json:"session_id"`
	SavedAt   string `json:"saved_at"`
	Messages  int    `json:"messages"`
}

// Store writes finished conversations to per-session .jsonl files: a header
// line followed by one line per message.
type Store struct {
	mu     sync.Mutex
	dir    string
	logger *core.Logger
}

func NewStore(dir string, logger *core.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("transcript store: mkdir %q: %w", dir, err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

func (s *Store) Save(ctx context.Context, sessionID string, messages []core.ConversationMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, sessionID+".jsonl")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("transcript store: create %q: %w", path, err)
	}
	defer f.Close()

	head, _ := json.Marshal(header{
		SessionID: sessionID,
		SavedAt:   time.Now().UTC().Format(time.RFC3339),
		Messages:  len(messages),
	})
	f.Write(head)
	f.Write([]byte("\n"))

	for _, m := range messages {
		line, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("transcript store: marshal message %d: %w", m.Sequence, err)
		}
		f.Write(line)
		f.Write([]byte("\n"))
	}

	s.logger.With(map[string]any{
		"session_id": sessionID,
		"path":       path,
		"messages":   len(messages),
	}).Info("transcript written")
	return nil
}
