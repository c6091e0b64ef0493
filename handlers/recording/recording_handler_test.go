package recording

import (
	"context"
	"math"
	"testing"
	"time"

	"voiceturn/core"
	audioev "voiceturn/events/audio"
	recordingev "voiceturn/events/recording"
	vadev "voiceturn/events/vad"
)

func newTestRecorder(t *testing.T) (*RecordingHandler, chan *core.EventPacket, chan *core.EventPacket) {
	t.Helper()
	h := NewRecordingHandler(DefaultConfig(), core.GetLogger())
	in := make(chan *core.EventPacket, 256)
	next := make(chan *core.EventPacket, 256)
	top := make(chan *core.EventPacket, 256)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := h.Initialize(in, next, top, ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	h.SetAvailable(true)
	return h, next, top
}

func pcmFrame(ts time.Time) core.AudioFrame {
	return core.AudioFrame{
		Samples:    make([]int16, 320), // 20ms at 16kHz
		SampleRate: 16000,
		Timestamp:  ts,
	}
}

func drainCaptured(next chan *core.EventPacket) []*core.Utterance {
	var out []*core.Utterance
	for len(next) > 0 {
		pkt := <-next
		if ev, ok := pkt.Event.(*recordingev.UtteranceCapturedEvent); ok {
			out = append(out, ev.Utterance)
		}
	}
	return out
}

func TestCaptureAssemblesOneUtterance(t *testing.T) {
	h, next, _ := newTestRecorder(t)
	t0 := time.Now()
	step := 20 * time.Millisecond

	h.HandleEvent(core.NewEventPacket(&vadev.SpeechStartedEvent{At: t0}, core.EventRelayDestinationNextService, "test"))

	// 1.2s of speech frames, then the 700ms silence tail the detector
	// needed to confirm the stop.
	ts := t0
	for i := 0; i < 60; i++ {
		h.HandleEvent(core.NewEventPacket(&audioev.FrameInputEvent{Frame: pcmFrame(ts)}, core.EventRelayDestinationNextService, "test"))
		ts = ts.Add(step)
	}
	speechEnded := ts
	for i := 0; i < 35; i++ {
		h.HandleEvent(core.NewEventPacket(&audioev.FrameInputEvent{Frame: pcmFrame(ts)}, core.EventRelayDestinationNextService, "test"))
		ts = ts.Add(step)
	}
	h.HandleEvent(core.NewEventPacket(&vadev.SpeechStoppedEvent{At: ts, SpeechEndedAt: speechEnded}, core.EventRelayDestinationNextService, "test"))

	utts := drainCaptured(next)
	if len(utts) != 1 {
		t.Fatalf("captured %d utterances, want exactly 1", len(utts))
	}
	got := utts[0].Duration().Seconds()
	if math.Abs(got-1.2) > 0.05 {
		t.Errorf("utterance duration = %.3fs, want ~1.2s (silence tail trimmed)", got)
	}
	if h.Active() {
		t.Error("recorder still active after stop")
	}
}

// The capture must carry the generation of the turn it was started for, not
// whatever generation is current when it is later dequeued.
func TestCaptureCarriesStartingGeneration(t *testing.T) {
	h, next, _ := newTestRecorder(t)
	t0 := time.Now()

	h.HandleEvent(core.NewEventPacket(&vadev.SpeechStartedEvent{At: t0, Generation: 7}, core.EventRelayDestinationNextService, "test"))
	h.HandleEvent(core.NewEventPacket(&audioev.FrameInputEvent{Frame: pcmFrame(t0)}, core.EventRelayDestinationNextService, "test"))
	h.HandleEvent(core.NewEventPacket(&vadev.SpeechStoppedEvent{At: t0.Add(time.Second)}, core.EventRelayDestinationNextService, "test"))

	for len(next) > 0 {
		pkt := <-next
		if ev, ok := pkt.Event.(*recordingev.UtteranceCapturedEvent); ok {
			if ev.Generation != 7 {
				t.Errorf("capture generation = %d, want 7", ev.Generation)
			}
			return
		}
	}
	t.Fatal("no capture emitted")
}

func TestStopClearsBufferEvenWithoutFrames(t *testing.T) {
	h, next, _ := newTestRecorder(t)
	t0 := time.Now()

	h.HandleEvent(core.NewEventPacket(&vadev.SpeechStartedEvent{At: t0}, core.EventRelayDestinationNextService, "test"))
	h.HandleEvent(core.NewEventPacket(&vadev.SpeechStoppedEvent{At: t0, SpeechEndedAt: t0}, core.EventRelayDestinationNextService, "test"))

	if utts := drainCaptured(next); len(utts) != 0 {
		t.Fatalf("empty capture emitted an utterance: %v", utts)
	}
	if h.Active() {
		t.Error("recorder still active")
	}
}

func TestStartWhileUnavailableSignalsFailure(t *testing.T) {
	h, _, top := newTestRecorder(t)
	h.SetAvailable(false)

	h.HandleEvent(core.NewEventPacket(&vadev.SpeechStartedEvent{At: time.Now()}, core.EventRelayDestinationNextService, "test"))

	var failed *recordingev.RecordingFailedEvent
	for len(top) > 0 {
		pkt := <-top
		if ev, ok := pkt.Event.(*recordingev.RecordingFailedEvent); ok {
			failed = ev
		}
	}
	if failed == nil {
		t.Fatal("expected RecordingFailedEvent on the top channel")
	}
	if h.Active() {
		t.Error("recorder must not be left half-open")
	}
}

func TestPermissionRevokedMidCapture(t *testing.T) {
	h, next, _ := newTestRecorder(t)
	t0 := time.Now()

	h.HandleEvent(core.NewEventPacket(&vadev.SpeechStartedEvent{At: t0}, core.EventRelayDestinationNextService, "test"))
	h.HandleEvent(core.NewEventPacket(&audioev.FrameInputEvent{Frame: pcmFrame(t0)}, core.EventRelayDestinationNextService, "test"))

	h.SetAvailable(false)
	if h.Active() {
		t.Fatal("capture must be dropped when the device is revoked")
	}

	// A late stop must not resurrect the dropped capture.
	h.HandleEvent(core.NewEventPacket(&vadev.SpeechStoppedEvent{At: t0, SpeechEndedAt: t0}, core.EventRelayDestinationNextService, "test"))
	if utts := drainCaptured(next); len(utts) != 0 {
		t.Fatalf("dropped capture still produced %d utterances", len(utts))
	}
}

func TestCancelDiscardsCapture(t *testing.T) {
	h, next, _ := newTestRecorder(t)
	t0 := time.Now()

	h.HandleEvent(core.NewEventPacket(&vadev.SpeechStartedEvent{At: t0}, core.EventRelayDestinationNextService, "test"))
	h.HandleEvent(core.NewEventPacket(&audioev.FrameInputEvent{Frame: pcmFrame(t0)}, core.EventRelayDestinationNextService, "test"))
	h.Cancel()

	h.HandleEvent(core.NewEventPacket(&vadev.SpeechStoppedEvent{At: t0.Add(time.Second), SpeechEndedAt: t0.Add(time.Second)}, core.EventRelayDestinationNextService, "test"))
	if utts := drainCaptured(next); len(utts) != 0 {
		t.Fatalf("cancelled capture produced %d utterances", len(utts))
	}
}
