package conversation

import (
	"context"
	"strings"
	"sync"
	"time"

	"voiceturn/core"
	conversationev "voiceturn/events/conversation"
	recordingev "voiceturn/events/recording"
	vadev "voiceturn/events/vad"
	"voiceturn/handlers/turn"
)

// TranscriptionService converts one captured utterance into text.
type TranscriptionService interface {
	Transcribe(ctx context.Context, utt *core.Utterance) (string, error)
}

// ConversationService produces the assistant reply for the full ordered
// history.
type ConversationService interface {
	Complete(ctx context.Context, history []core.ConversationMessage) (string, error)
}

// SpeechService delivers reply text to the avatar renderer.
type SpeechService interface {
	Speak(ctx context.Context, text string) error
}

type Config struct {
	TranscribeTimeout time.Duration
	CompleteTimeout   time.Duration
	SpeakTimeout      time.Duration
}

func DefaultConfig() Config {
	return Config{
		TranscribeTimeout: 15 * time.Second,
		CompleteTimeout:   30 * time.Second,
		SpeakTimeout:      10 * time.Second,
	}
}

// ConversationHandler runs the utterance pipeline: transcription, then the
// conversational model over the full history, then speech dispatch,
// strictly in that order. One utterance is in flight per session; a
// barge-in bumps the coordinator generation, and a reply whose generation
// is no longer current is discarded instead of spoken.
type ConversationHandler struct {
	core.BaseHandler
	config      Config
	transcriber TranscriptionService
	llm         ConversationService
	speech      SpeechService
	coord       *turn.Coordinator
	history     *core.History

	mu           sync.Mutex
	cancelActive context.CancelFunc // cancels the pipeline currently in flight
}

func NewConversationHandler(
	transcriber TranscriptionService,
	llm ConversationService,
	speech SpeechService,
	coord *turn.Coordinator,
	history *core.History,
	config Config,
	logger *core.Logger,
) *ConversationHandler {
	def := DefaultConfig()
	if config.TranscribeTimeout == 0 {
		config.TranscribeTimeout = def.TranscribeTimeout
	}
	if config.CompleteTimeout == 0 {
		config.CompleteTimeout = def.CompleteTimeout
	}
	if config.SpeakTimeout == 0 {
		config.SpeakTimeout = def.SpeakTimeout
	}
	return &ConversationHandler{
		BaseHandler: *core.NewBaseHandler("conversation", logger),
		config:      config,
		transcriber: transcriber,
		llm:         llm,
		speech:      speech,
		coord:       coord,
		history:     history,
	}
}

func (h *ConversationHandler) Initialize(
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

func (h *ConversationHandler) HandleEvent(packet *core.EventPacket) error {
	switch event := packet.Event.(type) {
	case *vadev.SpeechStartedEvent:
		// A new user turn supersedes whatever pipeline is still in flight;
		// its eventual output must not be spoken.
		h.supersede()

	case *recordingev.UtteranceCapturedEvent:
		// One pipeline at a time: a newer capture replaces, never parallels,
		// the one in flight. The event carries the generation the capture
		// was started for, so a turn that has already been superseded by the
		// time it is dequeued is still detected.
		h.mu.Lock()
		if h.cancelActive != nil {
			h.cancelActive()
		}
		pctx, cancel := context.WithCancel(h.Ctx)
		h.cancelActive = cancel
		h.mu.Unlock()
		go h.runPipeline(pctx, event.Generation, event.Utterance)
	}
	h.SendPacket(packet)
	return nil
}

// supersede cancels the in-flight pipeline, if any.
func (h *ConversationHandler) supersede() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelActive != nil {
		h.cancelActive()
		h.cancelActive = nil
	}
}

func (h *ConversationHandler) runPipeline(pctx context.Context, gen uint64, utt *core.Utterance) {
	logger := h.Logger.With(map[string]any{
		"utterance_id": utt.ID,
		"generation":   gen,
	})

	ctx, cancel := context.WithTimeout(pctx, h.config.TranscribeTimeout)
	transcript, err := h.transcriber.Transcribe(ctx, utt)
	cancel()
	if err != nil {
		if pctx.Err() != nil {
			logger.Info("pipeline superseded by new user turn")
			return
		}
		h.failTurn(logger, string(core.ServiceTranscription), err)
		return
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		// Nothing intelligible; no partial state is committed.
		h.failTurn(logger, string(core.ServiceTranscription), core.NewServiceError(core.ServiceTranscription, errEmptyTranscript))
		return
	}
	if pctx.Err() != nil {
		// Superseded while transcribing; commit nothing.
		logger.Info("pipeline superseded by new user turn")
		return
	}

	h.history.Append(core.RoleUser, transcript)
	h.SendPacket(core.NewEventPacket(
		&conversationev.UserTranscriptEvent{Text: transcript},
		core.EventRelayDestinationNextService,
		h.Name,
	))
	logger.With(map[string]any{"transcript": transcript}).Info("utterance transcribed")

	ctx, cancel = context.WithTimeout(pctx, h.config.CompleteTimeout)
	reply, err := h.llm.Complete(ctx, h.history.Messages())
	cancel()
	if err != nil {
		if pctx.Err() != nil {
			logger.Info("pipeline superseded by new user turn")
			return
		}
		h.failTurn(logger, string(core.ServiceConversation), err)
		return
	}

	// Token grant is atomic with dispatch: a reply that lost its turn to a
	// barge-in is dropped here, never spoken, never recorded in history.
	if !h.coord.BeginAgentTurn(gen) {
		logger.Info("stale reply discarded after barge-in")
		h.SendPacket(core.NewEventPacket(
			&conversationev.ReplyDiscardedEvent{Text: reply},
			core.EventRelayDestinationNextService,
			h.Name,
		))
		return
	}

	h.history.Append(core.RoleAssistant, reply)
	h.SendPacket(core.NewEventPacket(
		&conversationev.ReplyDispatchedEvent{Text: reply},
		core.EventRelayDestinationNextService,
		h.Name,
	))

	// The turn is granted: dispatch runs to completion on the handler's own
	// context. A barge-in from here on is handled by the interrupt, not by
	// cancelling the task call midway.
	ctx, cancel = context.WithTimeout(h.Ctx, h.config.SpeakTimeout)
	err = h.speech.Speak(ctx, reply)
	cancel()
	if err != nil {
		h.coord.EndAgentTurn()
		h.failTurn(logger, string(core.ServiceSpeech), err)
		return
	}
	logger.Info("reply dispatched to avatar")
}

// failTurn recovers a per-utterance failure locally: log, drop the
// pipeline, let the state machine return to ready. The token must never be
// left stuck.
func (h *ConversationHandler) Reset() error {
	h.supersede()
	return nil
}

func (h *ConversationHandler) failTurn(logger *core.Logger, stage string, err error) {
	logger.With(map[string]any{"stage": stage, "error": err}).Error("turn failed")
	h.SendPacket(core.NewEventPacket(
		&conversationev.TurnFailedEvent{Stage: stage, Error: err.Error()},
		core.EventRelayDestinationTopService,
		h.Name,
	))
}
