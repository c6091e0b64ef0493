package goals

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"voiceturn/core"
)

// Extractor distills the finished conversation into the user's goals and
// session notes. Satisfied by the conversational model service.
type Extractor interface {
	Complete(ctx context.Context, history []core.ConversationMessage) (string, error)
}

// record is the JSON document written per session.
type record struct {
	SessionID string `json:"session_id"`
	SavedAt   string `json:"saved_at"`
	Goals     string `json:"goals"`
}

// Store runs the conversation through the extractor once at session close
// and writes the distilled goals to a per-session JSON file.
type Store struct {
	dir       string
	extractor Extractor
	logger    *core.Logger
}

func NewStore(dir string, extractor Extractor, logger *core.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("goal store: mkdir %q: %w", dir, err)
	}
	return &Store{dir: dir, extractor: extractor, logger: logger}, nil
}

func (s *Store) Save(ctx context.Context, sessionID string, messages []core.ConversationMessage) error {
	if len(messages) == 0 {
		// Nothing was said; there is nothing to extract.
		return nil
	}

	summary, err := s.extractor.Complete(ctx, []core.ConversationMessage{
		{Role: core.RoleUser, Content: extractionPrompt(messages)},
	})
	if err != nil {
		return fmt.Errorf("goal store: extract: %w", err)
	}

	path := filepath.Join(s.dir, sessionID+"-goals.json")
	data, err := json.MarshalIndent(record{
		SessionID: sessionID,
		SavedAt:   time.Now().UTC().Format(time.RFC3339),
		Goals:     summary,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("goal store: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("goal store: write %q: %w", path, err)
	}

	s.logger.With(map[string]any{
		"session_id": sessionID,
		"path":       path,
	}).Info("goals written")
	return nil
}

func extractionPrompt(messages []core.ConversationMessage) string {
	var b strings.Builder
	b.WriteString("You are an assistant that extracts the user's goals and objectives from conversations.\n")
	b.WriteString("Here is the current conversation:\n")
	for _, m := range messages {
		fmt.Fprintf(&b, "[%s]: %s\n", strings.ToUpper(string(m.Role)), m.Content)
	}
	b.WriteString("\nPlease do the following:\n")
	b.WriteString("1) Identify the core objectives the user wants to achieve.\n")
	b.WriteString("2) Summarize them in bullet points.\n")
	b.WriteString("3) Provide session notes on how to best support the user going forward.\n")
	b.WriteString("Return the result in plain text.\n")
	return b.String()
}
