package turn

import (
	"context"
	"time"

	"voiceturn/core"
	recordingev "voiceturn/events/recording"
	remoteev "voiceturn/events/remote"
	turnev "voiceturn/events/turn"
	vadev "voiceturn/events/vad"
)

// Interrupter cuts off the avatar's current delivery. Implemented by the
// avatar speech service; must be safe to call from any goroutine.
type Interrupter interface {
	Interrupt(ctx context.Context) error
}

type Config struct {
	// InterruptTimeout bounds the fire-and-forget interrupt call.
	InterruptTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{InterruptTimeout: 5 * time.Second}
}

// TurnHandler applies speech and remote-talking events to the Coordinator
// and fires the barge-in interrupt. It sits between the VAD and the
// recorder so the interrupt command is issued before capture begins;
// otherwise the avatar's own audio would be re-captured as user speech.
type TurnHandler struct {
	core.BaseHandler
	coord       *Coordinator
	interrupter Interrupter
	config      Config
}

func NewTurnHandler(coord *Coordinator, interrupter Interrupter, config Config, logger *core.Logger) *TurnHandler {
	if config.InterruptTimeout == 0 {
		config.InterruptTimeout = DefaultConfig().InterruptTimeout
	}
	return &TurnHandler{
		BaseHandler: *core.NewBaseHandler("turn", logger),
		coord:       coord,
		interrupter: interrupter,
		config:      config,
	}
}

func (h *TurnHandler) Initialize(
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

func (h *TurnHandler) HandleEvent(packet *core.EventPacket) error {
	switch event := packet.Event.(type) {
	case *vadev.SpeechStartedEvent:
		gen, interrupt := h.coord.OnUserSpeechStarted()
		// Stamp the packet before it reaches the recorder: the capture it
		// brackets belongs to this turn, not to whatever turn is current
		// when the orchestrator eventually dequeues it.
		event.Generation = gen
		if interrupt {
			h.fireInterrupt(gen)
		}
		h.announceToken()

	case *vadev.SpeechStoppedEvent:
		h.coord.OnUserSpeechStopped()
		h.announceToken()

	case *recordingev.RecordingFailedEvent:
		// Capture never happened; do not leave the user turn dangling.
		h.coord.OnUserSpeechStopped()
		h.announceToken()

	case *remoteev.AgentTalkingStartedEvent:
		h.coord.OnAgentTalkingStarted()
		h.announceToken()

	case *remoteev.AgentTalkingStoppedEvent:
		h.coord.OnAgentTalkingStopped()
		h.announceToken()

	default:
		_ = event
	}

	h.SendPacket(packet)
	return nil
}

// fireInterrupt dispatches the interrupt command, fire-and-forget. The
// coordinator already guaranteed at-most-once for this agent turn; the
// event is emitted before the speech-started packet is forwarded so the
// recorder starts only after the interrupt is on its way.
func (h *TurnHandler) fireInterrupt(gen uint64) {
	h.Logger.With(map[string]any{"generation": gen}).Info("barge-in: interrupting agent")
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.config.InterruptTimeout)
		defer cancel()
		if err := h.interrupter.Interrupt(ctx); err != nil {
			h.Logger.With(map[string]any{"error": err}).Warn("interrupt command failed")
		}
	}()
	h.SendPacket(core.NewEventPacket(
		&turnev.InterruptIssuedEvent{Generation: gen},
		core.EventRelayDestinationNextService,
		h.Name,
	))
}

func (h *TurnHandler) announceToken() {
	h.SendPacket(core.NewEventPacket(
		&turnev.TokenChangedEvent{Token: h.coord.Token()},
		core.EventRelayDestinationNextService,
		h.Name,
	))
}

func (h *TurnHandler) Reset() error {
	h.coord.Reset()
	return nil
}
