package avatar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"voiceturn/core"
)

// APIClient wraps the streaming-avatar provider's REST API. Every response
// arrives in a {"data": ...} envelope.
type APIClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// SessionInfo is the response from POST /streaming.new.
type SessionInfo struct {
	SessionID   string `json:"session_id"`
	URL         string `json:"url"`
	AccessToken string `json:"access_token"`
}

// sessionRequest is the request body for POST /streaming.new.
type sessionRequest struct {
	AvatarID string `json:"avatar_id,omitempty"`
	VoiceID  string `json:"voice_id,omitempty"`
	Quality  string `json:"quality,omitempty"`
	Version  string `json:"version,omitempty"`
}

// TaskType selects how the avatar treats dispatched text.
type TaskType string

const (
	// TaskRepeat speaks the text verbatim.
	TaskRepeat TaskType = "repeat"
)

func NewAPIClient(apiKey, baseURL string) *APIClient {
	if baseURL == "" {
		baseURL = DefaultConfig().APIBaseURL
	}
	return &APIClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CreateToken mints a short-lived session token. The long-lived API key
// never leaves this client.
func (c *APIClient) CreateToken(ctx context.Context) (string, error) {
	var data struct {
		Token string `json:"token"`
	}
	if err := c.post(ctx, "/streaming.create_token", nil, &data); err != nil {
		return "", fmt.Errorf("create token: %w", err)
	}
	return data.Token, nil
}

// CreateSession provisions a new streaming session.
func (c *APIClient) CreateSession(ctx context.Context, token string, config *Config) (*SessionInfo, error) {
	req := sessionRequest{
		AvatarID: config.AvatarID,
		VoiceID:  config.VoiceID,
		Quality:  config.Quality,
		Version:  "v2",
	}
	var info SessionInfo
	if err := c.postWithToken(ctx, "/streaming.new", token, req, &info); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &info, nil
}

// StartSession activates a provisioned session.
func (c *APIClient) StartSession(ctx context.Context, token, sessionID string) error {
	body := map[string]string{"session_id": sessionID}
	if err := c.postWithToken(ctx, "/streaming.start", token, body, nil); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	return nil
}

// SendTask dispatches reply text to the avatar renderer.
func (c *APIClient) SendTask(ctx context.Context, sessionID, text string, taskType TaskType) error {
	body := map[string]string{
		"session_id": sessionID,
		"text":       text,
		"task_type":  string(taskType),
	}
	if err := c.post(ctx, "/streaming.task", body, nil); err != nil {
		return fmt.Errorf("send task: %w", err)
	}
	return nil
}

// Interrupt cuts off the avatar's current speech.
func (c *APIClient) Interrupt(ctx context.Context, sessionID string) error {
	body := map[string]string{"session_id": sessionID}
	if err := c.post(ctx, "/streaming.interrupt", body, nil); err != nil {
		return fmt.Errorf("interrupt: %w", err)
	}
	return nil
}

// StopSession terminates the session on the provider side.
func (c *APIClient) StopSession(ctx context.Context, sessionID string) error {
	body := map[string]string{"session_id": sessionID}
	if err := c.post(ctx, "/streaming.stop", body, nil); err != nil {
		return fmt.Errorf("stop session: %w", err)
	}
	return nil
}

func (c *APIClient) post(ctx context.Context, path string, body any, out any) error {
	return c.do(ctx, path, body, out, func(req *http.Request) {
		req.Header.Set("X-Api-Key", c.apiKey)
	})
}

func (c *APIClient) postWithToken(ctx context.Context, path, token string, body any, out any) error {
	return c.do(ctx, path, body, out, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	})
}

func (c *APIClient) do(ctx context.Context, path string, body any, out any, auth func(*http.Request)) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	auth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: status %d: %s", core.ErrTransport, resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}
