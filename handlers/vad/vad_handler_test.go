package vad

import (
	"context"
	"errors"
	"testing"
	"time"

	"voiceturn/core"
	audioev "voiceturn/events/audio"
)

type fakeDetector struct {
	processed int
}

func (f *fakeDetector) ProcessFrame(frame core.AudioFrame) (core.VADResult, error) {
	f.processed++
	return core.VADResult{}, nil
}

func (f *fakeDetector) Reset() {}

func newTestVADHandler(t *testing.T) (*VADHandler, *fakeDetector) {
	t.Helper()
	detector := &fakeDetector{}
	h := NewVADHandler(detector, core.GetLogger())
	in := make(chan *core.EventPacket, 16)
	next := make(chan *core.EventPacket, 16)
	top := make(chan *core.EventPacket, 16)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := h.Initialize(in, next, top, ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return h, detector
}

func TestEnableWithoutSourceIsDeviceUnavailable(t *testing.T) {
	h, _ := newTestVADHandler(t)

	if err := h.Enable(); !errors.Is(err, core.ErrDeviceUnavailable) {
		t.Fatalf("Enable without source = %v, want ErrDeviceUnavailable", err)
	}
	if h.Enabled() {
		t.Error("handler enabled despite rejected Enable")
	}

	h.AttachSource()
	if err := h.Enable(); err != nil {
		t.Fatalf("Enable with source: %v", err)
	}
	if !h.Enabled() {
		t.Error("handler not enabled after successful Enable")
	}
}

func TestDetachSourceDisablesDetection(t *testing.T) {
	h, detector := newTestVADHandler(t)
	h.AttachSource()
	if err := h.Enable(); err != nil {
		t.Fatalf("enable: %v", err)
	}

	h.DetachSource()
	if h.Enabled() {
		t.Error("handler still enabled after source detach")
	}
	if err := h.Enable(); !errors.Is(err, core.ErrDeviceUnavailable) {
		t.Fatalf("Enable after detach = %v, want ErrDeviceUnavailable", err)
	}

	// Frames still pass through but are no longer classified.
	frame := core.AudioFrame{Samples: make([]int16, 320), SampleRate: 16000, Timestamp: time.Now()}
	h.HandleEvent(core.NewEventPacket(&audioev.FrameInputEvent{Frame: frame}, core.EventRelayDestinationNextService, "test"))
	if detector.processed != 0 {
		t.Errorf("detector processed %d frames while disabled, want 0", detector.processed)
	}
}
