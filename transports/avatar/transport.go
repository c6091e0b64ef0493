package avatar

import (
	"context"
	"fmt"
	"sync"

	"voiceturn/core"
)

// Transport owns one avatar streaming session end to end: REST provisioning,
// the signaling channel, and teardown. Open and Close bracket the session;
// SendTask and Interrupt are valid in between.
type Transport struct {
	config *Config
	api    *APIClient
	logger *core.Logger

	mu        sync.Mutex
	token     string
	sessionID string
	signaling *SignalingClient
	opened    bool
}

func NewTransport(config *Config, logger *core.Logger) *Transport {
	if config == nil {
		config = DefaultConfig()
	}
	return &Transport{
		config: config,
		api:    NewAPIClient(config.APIKey, config.APIBaseURL),
		logger: logger,
	}
}

// Open provisions the remote session: token, create, start, then the
// signaling channel. Events decoded from signaling are pushed through sink.
// Any step failing tears down what came before it.
func (t *Transport) Open(ctx context.Context, sink func(core.IEvent)) (*SessionInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.opened {
		return nil, fmt.Errorf("%w: transport already open", core.ErrStateConflict)
	}

	token, err := t.api.CreateToken(ctx)
	if err != nil {
		return nil, err
	}

	info, err := t.api.CreateSession(ctx, token, t.config)
	if err != nil {
		return nil, err
	}

	if err := t.api.StartSession(ctx, token, info.SessionID); err != nil {
		t.api.StopSession(ctx, info.SessionID)
		return nil, err
	}

	signaling := NewSignalingClient(info.URL, sink, t.logger)
	if err := signaling.Connect(ctx); err != nil {
		t.api.StopSession(ctx, info.SessionID)
		return nil, err
	}

	t.token = token
	t.sessionID = info.SessionID
	t.signaling = signaling
	t.opened = true
	t.logger.With(map[string]any{"remote_session_id": info.SessionID}).Info("avatar session opened")
	return info, nil
}

func (t *Transport) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

// SendTask dispatches reply text to the avatar for verbatim speech.
func (t *Transport) SendTask(ctx context.Context, text string) error {
	t.mu.Lock()
	sessionID := t.sessionID
	opened := t.opened
	t.mu.Unlock()
	if !opened {
		return fmt.Errorf("%w: transport not open", core.ErrStateConflict)
	}
	return t.api.SendTask(ctx, sessionID, text, TaskRepeat)
}

// Interrupt cuts the avatar's current speech short.
func (t *Transport) Interrupt(ctx context.Context) error {
	t.mu.Lock()
	sessionID := t.sessionID
	opened := t.opened
	t.mu.Unlock()
	if !opened {
		return fmt.Errorf("%w: transport not open", core.ErrStateConflict)
	}
	return t.api.Interrupt(ctx, sessionID)
}

// Close stops the remote session and shuts the signaling channel. Safe to
// call twice; the second call is a no-op.
func (t *Transport) Close(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.opened {
		return nil
	}
	t.opened = false

	var firstErr error
	if t.signaling != nil {
		if err := t.signaling.Close(); err != nil {
			firstErr = err
		}
		t.signaling = nil
	}
	if err := t.api.StopSession(ctx, t.sessionID); err != nil && firstErr == nil {
		firstErr = err
	}
	t.logger.With(map[string]any{"remote_session_id": t.sessionID}).Info("avatar session closed")
	return firstErr
}
