package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"

	"voiceturn/core"
)

// Config holds the webhook conversation sink settings.
type Config struct {
	URL         string `json:"url"`
	BearerToken string `json:"bearer_token,omitempty"`
	TimeoutMS   int    `json:"timeout_ms,omitempty"`
}

// payload is the POST body delivered to the webhook.
type payload struct {
	SessionID string                     `json:"session_id"`
	EndedAt   string                     `json:"ended_at"`
	Messages  []core.ConversationMessage `json:"messages"`
}

// Store delivers the finished conversation to an external endpoint with one
// JSON POST per session.
type Store struct {
	config     Config
	httpClient *http.Client
	logger     *core.Logger
}

func NewStore(config Config, logger *core.Logger) *Store {
	timeout := 10 * time.Second
	if config.TimeoutMS > 0 {
		timeout = time.Duration(config.TimeoutMS) * time.Millisecond
	}
	return &Store{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (s *Store) Save(ctx context.Context, sessionID string, messages []core.ConversationMessage) error {
	body, err := sonic.Marshal(payload{
		SessionID: sessionID,
		EndedAt:   time.Now().UTC().Format(time.RFC3339),
		Messages:  messages,
	})
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.BearerToken)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post conversation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("post conversation: status %d: %s", resp.StatusCode, string(respBody))
	}

	s.logger.With(map[string]any{
		"session_id": sessionID,
		"messages":   len(messages),
	}).Info("conversation delivered to webhook")
	return nil
}
