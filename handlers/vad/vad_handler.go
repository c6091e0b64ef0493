package vad

import (
	"context"
	"fmt"
	"sync"

	"voiceturn/core"
	audioev "voiceturn/events/audio"
	vadev "voiceturn/events/vad"
)

// VADService classifies a single frame. Implementations must be O(frame)
// and must not block: the handler sits on the session's fixed-rate tick
// path and a slow call here stalls every tick behind it.
type VADService interface {
	ProcessFrame(frame core.AudioFrame) (core.VADResult, error)
	Reset()
}

// VADHandler turns the raw frame stream into speech started/stopped events.
// Frames pass through unchanged so the recorder downstream can buffer them.
type VADHandler struct {
	core.BaseHandler
	service VADService

	mu        sync.Mutex
	enabled   bool
	hasSource bool
}

func NewVADHandler(service VADService, logger *core.Logger) *VADHandler {
	return &VADHandler{
		BaseHandler: *core.NewBaseHandler("vad", logger),
		service:     service,
	}
}

func (h *VADHandler) Initialize(
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

// AttachSource tells the handler a live capture source exists. Enable is
// rejected until this has been called.
func (h *VADHandler) AttachSource() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hasSource = true
}

// DetachSource marks the capture source gone (device lost mid-session).
func (h *VADHandler) DetachSource() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hasSource = false
	h.enabled = false
}

// Enable starts classifying frames. Without an active microphone source the
// call fails with ErrDeviceUnavailable instead of silently no-opping.
func (h *VADHandler) Enable() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.hasSource {
		return fmt.Errorf("vad: enable without active microphone source: %w", core.ErrDeviceUnavailable)
	}
	h.enabled = true
	return nil
}

func (h *VADHandler) Disable() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.enabled = false
}

func (h *VADHandler) Enabled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.enabled
}

func (h *VADHandler) HandleEvent(packet *core.EventPacket) error {
	event, ok := packet.Event.(*audioev.FrameInputEvent)
	if !ok {
		h.SendPacket(packet)
		return nil
	}

	if !h.Enabled() {
		h.SendPacket(packet)
		return nil
	}

	res, err := h.service.ProcessFrame(event.Frame)
	if err != nil {
		h.SendPacket(packet)
		return fmt.Errorf("vad: process frame: %w", err)
	}

	// Started precedes the frame so the recorder is capturing before it
	// buffers this frame; Stopped precedes it so the silence tail is not
	// appended to a capture that just closed.
	if res.Started {
		h.Logger.With(map[string]any{"rms": res.RMS}).Debug("speech started")
		h.SendPacket(core.NewEventPacket(&vadev.SpeechStartedEvent{
			At:  event.Frame.Timestamp,
			RMS: res.RMS,
		}, core.EventRelayDestinationNextService, h.Name))
	}
	if res.Stopped {
		h.Logger.Debug("speech stopped")
		h.SendPacket(core.NewEventPacket(&vadev.SpeechStoppedEvent{
			At:            event.Frame.Timestamp,
			SpeechEndedAt: res.SpeechEndedAt,
		}, core.EventRelayDestinationNextService, h.Name))
	}

	h.SendPacket(packet)
	return nil
}

func (h *VADHandler) Reset() error {
	h.service.Reset()
	return nil
}
