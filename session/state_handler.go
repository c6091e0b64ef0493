package session

import (
	"context"
	"errors"

	"voiceturn/core"
	conversationev "voiceturn/events/conversation"
	recordingev "voiceturn/events/recording"
	remoteev "voiceturn/events/remote"
	vadev "voiceturn/events/vad"
)

// StateHandler sits at the tail of the pipeline and projects the event
// stream onto the session state machine. Per-utterance failures return the
// session to ready; transport loss and critical errors are fatal and are
// reported to the lifecycle through the fatal channel.
type StateHandler struct {
	core.BaseHandler
	machine *StateMachine
	fatal   chan error
}

func NewStateHandler(machine *StateMachine, logger *core.Logger) *StateHandler {
	return &StateHandler{
		BaseHandler: *core.NewBaseHandler("state", logger),
		machine:     machine,
		fatal:       make(chan error, 4),
	}
}

// Fatal delivers unrecoverable session errors. The lifecycle selects on it
// and closes the session when one arrives.
func (h *StateHandler) Fatal() <-chan error {
	return h.fatal
}

func (h *StateHandler) Initialize(
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

func (h *StateHandler) HandleEvent(packet *core.EventPacket) error {
	switch event := packet.Event.(type) {
	case *vadev.SpeechStartedEvent:
		h.apply(StateUserSpeaking)

	case *vadev.SpeechStoppedEvent:
		h.apply(StateProcessing)

	case *conversationev.ReplyDispatchedEvent:
		h.apply(StateAgentSpeaking)

	case *conversationev.TurnFailedEvent:
		// Per-utterance failure; the session itself survives.
		h.apply(StateReady)

	case *recordingev.RecordingFailedEvent:
		h.apply(StateReady)

	case *remoteev.AgentTalkingStartedEvent:
		h.apply(StateAgentSpeaking)

	case *remoteev.AgentTalkingStoppedEvent:
		h.apply(StateReady)

	case *remoteev.TransportClosedEvent:
		if h.machine.Current() != StateClosed {
			h.reportFatal(errors.New("signaling transport closed: " + event.Error))
		}

	case *core.CriticalErrorEvent:
		h.reportFatal(errors.New(event.Error))
	}

	h.SendPacket(packet)
	return nil
}

func (h *StateHandler) apply(to State) {
	if err := h.machine.Apply(to); err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			h.Logger.With(map[string]any{
				"from": conflict.From.String(),
				"to":   conflict.To.String(),
			}).Debug("state transition skipped")
			return
		}
		h.Logger.With(map[string]any{"error": err}).Warn("state transition rejected")
	}
}

func (h *StateHandler) reportFatal(err error) {
	h.Logger.With(map[string]any{"error": err}).Error("fatal session error")
	select {
	case h.fatal <- err:
	default:
	}
}
