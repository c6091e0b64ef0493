package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"voiceturn/core"
	conversationev "voiceturn/events/conversation"
	recordingev "voiceturn/events/recording"
	vadev "voiceturn/events/vad"
	"voiceturn/handlers/turn"
)

// callRecorder tracks external calls in invocation order.
type callRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *callRecorder) record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
}

func (r *callRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

type fakeServices struct {
	rec        *callRecorder
	transcript string
	transErr   error
	reply      string
	replyErr   error
	speakErr   error

	// beforeComplete runs inside Complete, before it returns; used to
	// simulate a barge-in racing the model call.
	beforeComplete func()

	// holdComplete, when set, blocks Complete until closed or the call's
	// context is cancelled.
	holdComplete chan struct{}

	spoken chan string
}

func newFakeServices() *fakeServices {
	return &fakeServices{
		rec:        &callRecorder{},
		transcript: "hello there",
		reply:      "hi, nice to meet you",
		spoken:     make(chan string, 8),
	}
}

func (f *fakeServices) Transcribe(ctx context.Context, utt *core.Utterance) (string, error) {
	f.rec.record("transcribe")
	return f.transcript, f.transErr
}

func (f *fakeServices) Complete(ctx context.Context, history []core.ConversationMessage) (string, error) {
	f.rec.record("complete")
	if f.beforeComplete != nil {
		f.beforeComplete()
	}
	if f.holdComplete != nil {
		select {
		case <-f.holdComplete:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.replyErr
}

func (f *fakeServices) Speak(ctx context.Context, text string) error {
	f.rec.record("speak")
	if f.speakErr == nil {
		f.spoken <- text
	}
	return f.speakErr
}

func newTestOrchestrator(t *testing.T, f *fakeServices) (*ConversationHandler, *turn.Coordinator, *core.History, chan *core.EventPacket, chan *core.EventPacket) {
	t.Helper()
	coord := turn.NewCoordinator()
	history := core.NewHistory()
	h := NewConversationHandler(f, f, f, coord, history, DefaultConfig(), core.GetLogger())

	in := make(chan *core.EventPacket, 64)
	next := make(chan *core.EventPacket, 64)
	top := make(chan *core.EventPacket, 64)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := h.Initialize(in, next, top, ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return h, coord, history, next, top
}

func captureEvent(t *testing.T, gen uint64) *recordingev.UtteranceCapturedEvent {
	t.Helper()
	frame := core.AudioFrame{Samples: make([]int16, 320), SampleRate: 16000, Timestamp: time.Now()}
	return &recordingev.UtteranceCapturedEvent{
		Utterance:  core.NewUtterance([]core.AudioFrame{frame}, frame.Timestamp),
		Generation: gen,
	}
}

func waitCalls(t *testing.T, rec *callRecorder, name string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		count := 0
		for _, c := range rec.snapshot() {
			if c == name {
				count++
			}
		}
		if count >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("never saw %d %q call(s)", n, name)
}

func waitSpoken(t *testing.T, f *fakeServices) string {
	t.Helper()
	select {
	case text := <-f.spoken:
		return text
	case <-time.After(2 * time.Second):
		t.Fatal("reply was never dispatched")
		return ""
	}
}

func waitTurnFailed(t *testing.T, top chan *core.EventPacket) *conversationev.TurnFailedEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case pkt := <-top:
			if ev, ok := pkt.Event.(*conversationev.TurnFailedEvent); ok {
				return ev
			}
		case <-deadline:
			t.Fatal("no TurnFailedEvent observed")
			return nil
		}
	}
}

func TestPipelineRunsStagesInOrder(t *testing.T) {
	f := newFakeServices()
	h, coord, history, _, _ := newTestOrchestrator(t, f)

	// User spoke and stopped; token is idle, generation current.
	gen, _ := coord.OnUserSpeechStarted()
	coord.OnUserSpeechStopped()

	h.HandleEvent(core.NewEventPacket(captureEvent(t, gen), core.EventRelayDestinationNextService, "test"))

	if got := waitSpoken(t, f); got != f.reply {
		t.Errorf("spoken text = %q, want %q", got, f.reply)
	}

	calls := f.rec.snapshot()
	want := []string{"transcribe", "complete", "speak"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("call %d = %q, want %q (strict pipeline order)", i, calls[i], want[i])
		}
	}

	msgs := history.Messages()
	if len(msgs) != 2 {
		t.Fatalf("history length = %d, want 2", len(msgs))
	}
	if msgs[0].Role != core.RoleUser || msgs[0].Content != f.transcript {
		t.Errorf("first message = %+v, want user transcript", msgs[0])
	}
	if msgs[1].Role != core.RoleAssistant || msgs[1].Content != f.reply {
		t.Errorf("second message = %+v, want assistant reply", msgs[1])
	}
	if msgs[0].Sequence >= msgs[1].Sequence {
		t.Error("history sequence not increasing")
	}
	if coord.Token() != core.TurnAgent {
		t.Errorf("token = %v, want agent after dispatch", coord.Token())
	}
}

func TestEmptyTranscriptFailsTurnWithoutPartialState(t *testing.T) {
	f := newFakeServices()
	f.transcript = "   "
	h, coord, history, _, top := newTestOrchestrator(t, f)

	gen, _ := coord.OnUserSpeechStarted()
	coord.OnUserSpeechStopped()

	h.HandleEvent(core.NewEventPacket(captureEvent(t, gen), core.EventRelayDestinationNextService, "test"))

	ev := waitTurnFailed(t, top)
	if ev.Stage != string(core.ServiceTranscription) {
		t.Errorf("failed stage = %q, want transcription", ev.Stage)
	}
	if history.Len() != 0 {
		t.Errorf("history length = %d, want 0 (no partial state)", history.Len())
	}
	for _, call := range f.rec.snapshot() {
		if call == "complete" || call == "speak" {
			t.Fatalf("downstream call %q after failed transcription", call)
		}
	}
	if coord.Token() != core.TurnIdle {
		t.Errorf("token = %v, want idle (never stuck)", coord.Token())
	}
}

func TestModelErrorRecoversLocally(t *testing.T) {
	f := newFakeServices()
	f.replyErr = core.NewServiceError(core.ServiceConversation, errors.New("upstream 500"))
	h, coord, _, _, top := newTestOrchestrator(t, f)

	gen, _ := coord.OnUserSpeechStarted()
	coord.OnUserSpeechStopped()

	h.HandleEvent(core.NewEventPacket(captureEvent(t, gen), core.EventRelayDestinationNextService, "test"))

	ev := waitTurnFailed(t, top)
	if ev.Stage != string(core.ServiceConversation) {
		t.Errorf("failed stage = %q, want conversation", ev.Stage)
	}
	if coord.Token() != core.TurnIdle {
		t.Errorf("token = %v, want idle", coord.Token())
	}
	for _, call := range f.rec.snapshot() {
		if call == "speak" {
			t.Fatal("speak invoked after model failure")
		}
	}
}

func TestStaleReplyDiscardedAfterBargeIn(t *testing.T) {
	f := newFakeServices()
	h, coord, history, next, _ := newTestOrchestrator(t, f)

	gen, _ := coord.OnUserSpeechStarted()
	coord.OnUserSpeechStopped()

	// Barge-in arrives while the model call is in flight.
	f.beforeComplete = func() {
		coord.OnUserSpeechStarted()
		coord.OnUserSpeechStopped()
	}

	h.HandleEvent(core.NewEventPacket(captureEvent(t, gen), core.EventRelayDestinationNextService, "test"))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case pkt := <-next:
			if _, ok := pkt.Event.(*conversationev.ReplyDiscardedEvent); ok {
				goto discarded
			}
			if _, ok := pkt.Event.(*conversationev.ReplyDispatchedEvent); ok {
				t.Fatal("stale reply was dispatched")
			}
		case <-deadline:
			t.Fatal("stale reply was neither discarded nor dispatched")
		}
	}

discarded:
	select {
	case text := <-f.spoken:
		t.Fatalf("stale reply %q was spoken", text)
	case <-time.After(50 * time.Millisecond):
	}
	msgs := history.Messages()
	for _, m := range msgs {
		if m.Role == core.RoleAssistant {
			t.Fatalf("discarded reply recorded in history: %+v", m)
		}
	}
}

// The user can finish an utterance and start speaking again before the
// captured utterance is dequeued. The capture carries the turn it was
// started for, so its reply must be discarded even though the orchestrator
// only sees it after the newer turn began.
func TestQuickReSpeakInvalidatesPendingCapture(t *testing.T) {
	f := newFakeServices()
	h, coord, history, next, _ := newTestOrchestrator(t, f)

	gen, _ := coord.OnUserSpeechStarted()
	coord.OnUserSpeechStopped()

	// Second turn begins before the first capture reaches the orchestrator.
	coord.OnUserSpeechStarted()
	coord.OnUserSpeechStopped()

	h.HandleEvent(core.NewEventPacket(captureEvent(t, gen), core.EventRelayDestinationNextService, "test"))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case pkt := <-next:
			if _, ok := pkt.Event.(*conversationev.ReplyDiscardedEvent); ok {
				goto discarded
			}
			if _, ok := pkt.Event.(*conversationev.ReplyDispatchedEvent); ok {
				t.Fatal("superseded utterance's reply was dispatched")
			}
		case <-deadline:
			t.Fatal("superseded reply was neither discarded nor dispatched")
		}
	}

discarded:
	select {
	case text := <-f.spoken:
		t.Fatalf("superseded utterance's reply %q was spoken", text)
	case <-time.After(50 * time.Millisecond):
	}
	for _, m := range history.Messages() {
		if m.Role == core.RoleAssistant {
			t.Fatalf("superseded reply recorded in history: %+v", m)
		}
	}
}

// Two captures in quick succession must not run pipelines in parallel: the
// newer one cancels the older, and only the newer reply is spoken.
func TestNewerCaptureSupersedesInFlightPipeline(t *testing.T) {
	f := newFakeServices()
	f.holdComplete = make(chan struct{})
	h, coord, history, _, top := newTestOrchestrator(t, f)

	gen1, _ := coord.OnUserSpeechStarted()
	coord.OnUserSpeechStopped()
	h.HandleEvent(core.NewEventPacket(captureEvent(t, gen1), core.EventRelayDestinationNextService, "test"))
	waitCalls(t, f.rec, "complete", 1)

	// The next turn's speech start supersedes the blocked pipeline before
	// its capture even arrives.
	gen2, _ := coord.OnUserSpeechStarted()
	h.HandleEvent(core.NewEventPacket(&vadev.SpeechStartedEvent{At: time.Now(), Generation: gen2}, core.EventRelayDestinationNextService, "test"))
	coord.OnUserSpeechStopped()
	h.HandleEvent(core.NewEventPacket(captureEvent(t, gen2), core.EventRelayDestinationNextService, "test"))

	close(f.holdComplete)

	if got := waitSpoken(t, f); got != f.reply {
		t.Errorf("spoken text = %q, want %q", got, f.reply)
	}
	select {
	case text := <-f.spoken:
		t.Fatalf("second reply %q spoken; pipelines ran in parallel", text)
	case <-time.After(100 * time.Millisecond):
	}

	assistant := 0
	for _, m := range history.Messages() {
		if m.Role == core.RoleAssistant {
			assistant++
		}
	}
	if assistant != 1 {
		t.Errorf("assistant messages = %d, want 1", assistant)
	}

	// A superseded pipeline is discarded quietly, never reported as a
	// failed turn.
	select {
	case pkt := <-top:
		if ev, ok := pkt.Event.(*conversationev.TurnFailedEvent); ok {
			t.Fatalf("superseded pipeline reported TurnFailed: %+v", ev)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSpeakFailureReleasesToken(t *testing.T) {
	f := newFakeServices()
	f.speakErr = core.NewServiceError(core.ServiceSpeech, errors.New("session gone"))
	h, coord, _, _, top := newTestOrchestrator(t, f)

	gen, _ := coord.OnUserSpeechStarted()
	coord.OnUserSpeechStopped()

	h.HandleEvent(core.NewEventPacket(captureEvent(t, gen), core.EventRelayDestinationNextService, "test"))

	ev := waitTurnFailed(t, top)
	if ev.Stage != string(core.ServiceSpeech) {
		t.Errorf("failed stage = %q, want speech", ev.Stage)
	}
	if coord.Token() != core.TurnIdle {
		t.Errorf("token = %v, want idle after speak failure", coord.Token())
	}
}
