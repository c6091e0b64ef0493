package wsmic

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"voiceturn/core"
	"voiceturn/device"
	"voiceturn/utils/audio"
)

// Config holds the WebSocket microphone server settings.
type Config struct {
	Port           int    `json:"port,omitempty"`
	Path           string `json:"path,omitempty"`
	SampleRate     int    `json:"sample_rate,omitempty"`
	Encoding       string `json:"encoding,omitempty"` // "pcm16" or "ulaw"
	ReadBufferSize int    `json:"read_buffer_size,omitempty"`

	// MaxBuffered sizes the frame buffer for worst-case consumer latency;
	// at 20ms frames the default of 256 absorbs a ~5s stall. Overflow drops
	// the oldest frame and is logged, since a frame lost mid-utterance
	// corrupts the capture.
	MaxBuffered int `json:"max_buffered,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:           8091,
		Path:           "/mic",
		SampleRate:     16000,
		Encoding:       "pcm16",
		ReadBufferSize: 4096,
		MaxBuffered:    256,
	}
}

// Source accepts one WebSocket client pushing microphone audio as binary
// frames and serves them to the engine through the non-blocking MicSource
// interface. A client disconnect makes the device unavailable until the
// browser reconnects.
type Source struct {
	config   *Config
	upgrader websocket.Upgrader
	logger   *core.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	frames    chan core.AudioFrame
	server    *http.Server
	closed    bool
	connected bool
	dropped   uint64
}

func NewSource(config *Config, logger *core.Logger) *Source {
	if config == nil {
		config = DefaultConfig()
	}
	return &Source{
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize: config.ReadBufferSize,
			CheckOrigin:    func(*http.Request) bool { return true },
		},
		logger: logger,
		frames: make(chan core.AudioFrame, config.MaxBuffered),
	}
}

// Start brings up the HTTP server accepting the microphone WebSocket.
func (s *Source) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc(s.config.Path, s.handleConnection)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: mux,
	}
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.With(map[string]any{"error": err}).Error("mic server failed")
		}
	}()
	s.logger.With(map[string]any{
		"port": s.config.Port,
		"path": s.config.Path,
	}).Info("mic server listening")
	return nil
}

func (s *Source) handleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.With(map[string]any{"error": err}).Warn("mic upgrade failed")
		return
	}

	s.mu.Lock()
	if s.conn != nil {
		// One microphone per engine; a second client replaces the first.
		s.conn.Close()
	}
	s.conn = conn
	s.connected = true
	s.mu.Unlock()

	s.logger.With(map[string]any{"remote": r.RemoteAddr}).Info("mic client connected")
	go s.readLoop(conn)
}

func (s *Source) readLoop(conn *websocket.Conn) {
	defer func() {
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
			s.connected = false
		}
		s.mu.Unlock()
	}()

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			s.logger.With(map[string]any{"error": err}).Info("mic client disconnected")
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		samples, err := s.decode(msg)
		if err != nil {
			s.logger.With(map[string]any{"error": err}).Warn("bad mic frame dropped")
			continue
		}

		frame := core.AudioFrame{
			Samples:    samples,
			SampleRate: s.config.SampleRate,
			Timestamp:  time.Now(),
		}
		select {
		case s.frames <- frame:
		default:
			// Consumer stalled past the buffer's worst-case allowance.
			// Drop the oldest frame to stay current, but never silently:
			// audio lost mid-utterance corrupts the capture.
			select {
			case <-s.frames:
			default:
			}
			select {
			case s.frames <- frame:
			default:
			}
			s.mu.Lock()
			s.dropped++
			total := s.dropped
			s.mu.Unlock()
			s.logger.With(map[string]any{"dropped_total": total}).Warn("mic frame buffer overflow, oldest frame dropped")
		}
	}
}

func (s *Source) decode(msg []byte) ([]int16, error) {
	switch s.config.Encoding {
	case "ulaw":
		return audio.ULawToSamples(msg), nil
	default:
		return audio.BytesToSamples(msg)
	}
}

// ReadFrame returns the next buffered frame without blocking.
func (s *Source) ReadFrame() (core.AudioFrame, error) {
	s.mu.Lock()
	closed := s.closed
	connected := s.connected
	s.mu.Unlock()
	if closed {
		return core.AudioFrame{}, core.ErrDeviceUnavailable
	}

	select {
	case frame := <-s.frames:
		return frame, nil
	default:
		if !connected {
			return core.AudioFrame{}, core.ErrDeviceUnavailable
		}
		return core.AudioFrame{}, device.ErrNoFrame
	}
}

// Connected reports whether a microphone client is currently attached.
func (s *Source) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Dropped reports how many frames were lost to buffer overflow.
func (s *Source) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Source) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.connected = false
	server := s.server
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if server != nil {
		return server.Close()
	}
	return nil
}
