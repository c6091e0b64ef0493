package recording

import (
	"context"
	"sync"
	"time"

	"voiceturn/core"
	audioev "voiceturn/events/audio"
	recordingev "voiceturn/events/recording"
	vadev "voiceturn/events/vad"
)

type Config struct {
	// MaxUtterance bounds the capture buffer; anything longer is truncated
	// and handed off as-is.
	MaxUtterance time.Duration
}

func DefaultConfig() Config {
	return Config{MaxUtterance: 60 * time.Second}
}

// RecordingHandler captures one bounded utterance at a time. Capture starts
// on SpeechStarted, buffers passing frames, and on SpeechStopped assembles
// them into an Utterance for the orchestrator. The buffer is cleared on
// every exit path, whether or not downstream processing succeeds.
type RecordingHandler struct {
	core.BaseHandler
	config Config

	mu         sync.Mutex
	available  bool // recording resource usable (mic permission held)
	active     bool
	frames     []core.AudioFrame
	buffered   time.Duration
	startedAt  time.Time
	generation uint64 // user turn this capture was started for
}

func NewRecordingHandler(config Config, logger *core.Logger) *RecordingHandler {
	if config.MaxUtterance == 0 {
		config.MaxUtterance = DefaultConfig().MaxUtterance
	}
	return &RecordingHandler{
		BaseHandler: *core.NewBaseHandler("recording", logger),
		config:      config,
	}
}

func (h *RecordingHandler) Initialize(
	inputChan <-chan *core.EventPacket,
	outputNextChan chan<- *core.EventPacket,
	outputTopChan chan<- *core.EventPacket,
	ctx context.Context,
) error {
	if err := h.BaseHandler.Initialize(inputChan, outputNextChan, outputTopChan, ctx); err != nil {
		return err
	}
	h.SetHandleEventFunc(h.HandleEvent)
	return nil
}

// SetAvailable marks whether the recording resource can be acquired. The
// lifecycle flips this when the microphone is granted or revoked.
func (h *RecordingHandler) SetAvailable(ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.available = ok
	if !ok && h.active {
		// Half-open capture is worse than a dropped one.
		h.active = false
		h.frames = nil
		h.buffered = 0
	}
}

func (h *RecordingHandler) Active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

func (h *RecordingHandler) HandleEvent(packet *core.EventPacket) error {
	switch event := packet.Event.(type) {
	case *vadev.SpeechStartedEvent:
		if err := h.start(event.At, event.Generation); err != nil {
			h.Logger.With(map[string]any{"error": err}).Error("recording unavailable")
			// Top so the coordinator and state machine both return to idle.
			h.SendPacket(core.NewEventPacket(
				&recordingev.RecordingFailedEvent{Error: err.Error()},
				core.EventRelayDestinationTopService,
				h.Name,
			))
		}

	case *audioev.FrameInputEvent:
		h.buffer(event.Frame)

	case *vadev.SpeechStoppedEvent:
		if utt, gen := h.stop(event.SpeechEndedAt); utt != nil && len(utt.Frames) > 0 {
			h.Logger.With(map[string]any{
				"utterance_id": utt.ID,
				"duration_s":   utt.Duration().Seconds(),
				"frames":       len(utt.Frames),
				"generation":   gen,
			}).Info("utterance captured")
			h.SendPacket(core.NewEventPacket(
				&recordingev.UtteranceCapturedEvent{Utterance: utt, Generation: gen},
				core.EventRelayDestinationNextService,
				h.Name,
			))
		}
	}

	h.SendPacket(packet)
	return nil
}

func (h *RecordingHandler) start(at time.Time, gen uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.available {
		return core.ErrDeviceUnavailable
	}
	if h.active {
		return nil // already capturing; barge-in restarts arrive as fresh starts
	}
	h.active = true
	h.frames = nil
	h.buffered = 0
	h.startedAt = at
	h.generation = gen
	return nil
}

func (h *RecordingHandler) buffer(frame core.AudioFrame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.active {
		return
	}
	if h.buffered >= h.config.MaxUtterance {
		return
	}
	h.frames = append(h.frames, frame)
	h.buffered += frame.Duration()
}

// stop assembles the capture and returns it with the generation it was
// started for. Frames recorded after speechEndedAt are the confirmation
// silence tail and are trimmed. The buffer is cleared unconditionally.
func (h *RecordingHandler) stop(speechEndedAt time.Time) (*core.Utterance, uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.active {
		return nil, 0
	}
	frames := h.frames
	startedAt := h.startedAt
	gen := h.generation
	h.active = false
	h.frames = nil
	h.buffered = 0

	if !speechEndedAt.IsZero() {
		kept := frames[:0]
		for _, f := range frames {
			if f.Timestamp.Before(speechEndedAt) {
				kept = append(kept, f)
			}
		}
		frames = kept
	}
	if len(frames) == 0 {
		return nil, 0
	}
	return core.NewUtterance(frames, startedAt), gen
}

// Cancel discards any in-progress capture without emitting an utterance.
func (h *RecordingHandler) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active = false
	h.frames = nil
	h.buffered = 0
}

// Cleanup releases the capture buffer on teardown; stop-and-free is
// guaranteed on every exit path.
func (h *RecordingHandler) Cleanup() error {
	h.Cancel()
	return nil
}

func (h *RecordingHandler) Reset() error {
	h.Cancel()
	return nil
}
