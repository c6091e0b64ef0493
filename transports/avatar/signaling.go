package avatar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"voiceturn/core"
	remoteev "voiceturn/events/remote"
)

// wireEvent is the provider's signaling message shape. Only the fields the
// engine reacts to are decoded.
type wireEvent struct {
	Type    string `json:"type"`
	TaskID  string `json:"task_id,omitempty"`
	TrackID string `json:"track_id,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

// SignalingClient holds the provider's event WebSocket open for the life of
// the session and converts wire messages into engine events, pushed through
// the sink as they arrive.
type SignalingClient struct {
	url    string
	sink   func(core.IEvent)
	logger *core.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	done   chan struct{}
	closed bool
}

func NewSignalingClient(url string, sink func(core.IEvent), logger *core.Logger) *SignalingClient {
	return &SignalingClient{
		url:    url,
		sink:   sink,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Connect dials the signaling endpoint and starts the read loop.
func (c *SignalingClient) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("%w: dial signaling: %v", core.ErrTransport, err)
	}
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)
	go c.heartbeat(conn)
	return nil
}

func (c *SignalingClient) readLoop(conn *websocket.Conn) {
	for {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				c.logger.With(map[string]any{"error": err}).Warn("signaling read failed")
				c.sink(&remoteev.TransportClosedEvent{Error: err.Error()})
			}
			return
		}
		c.dispatch(msg)
	}
}

func (c *SignalingClient) dispatch(msg []byte) {
	var event wireEvent
	if err := sonic.Unmarshal(msg, &event); err != nil {
		c.logger.With(map[string]any{"raw": string(msg)}).Warn("unparseable signaling message")
		return
	}

	switch event.Type {
	case "avatar_start_talking":
		c.sink(&remoteev.AgentTalkingStartedEvent{})
	case "avatar_stop_talking":
		c.sink(&remoteev.AgentTalkingStoppedEvent{})
	case "track_subscribed":
		c.sink(&remoteev.TrackSubscribedEvent{Track: core.TrackHandle{
			ID:   event.TrackID,
			Kind: core.TrackKind(event.Kind),
		}})
	case "track_unsubscribed":
		c.sink(&remoteev.TrackUnsubscribedEvent{Track: core.TrackHandle{
			ID:   event.TrackID,
			Kind: core.TrackKind(event.Kind),
		}})
	default:
		// Informational message types are ignored.
		c.logger.With(map[string]any{"type": event.Type}).Debug("signaling event ignored")
	}
}

func (c *SignalingClient) heartbeat(conn *websocket.Conn) {
	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close shuts the signaling channel down. The read loop sees the closed
// flag and does not report the teardown as transport loss.
func (c *SignalingClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	if c.conn == nil {
		return nil
	}
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}
