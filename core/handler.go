package core

import (
	"context"
)

type IHandler interface {
	Initialize(
		inputChan <-chan *EventPacket,
		outputNextChan chan<- *EventPacket,
		outputTopChan chan<- *EventPacket,
		ctx context.Context,
	) error
	Start() error // Starts the handler's event loop.
	HandleEvent(packet *EventPacket) error

	Cleanup() error // Cleans up resources used by the handler.
	Reset() error   // Resets the handler to its initial state.
}

// BaseHandler carries the channel plumbing shared by every pipeline handler.
// Concrete handlers embed it and override HandleEvent.
type BaseHandler struct {
	Name      string
	Ctx       context.Context
	Logger    *Logger
	InputChan <-chan *EventPacket

	outputNextChan chan<- *EventPacket
	outputTopChan  chan<- *EventPacket

	handleEventFunc func(packet *EventPacket) error
}

func NewBaseHandler(name string, logger *Logger) *BaseHandler {
	if logger == nil {
		logger = GetLogger()
	}
	return &BaseHandler{
		Name:   name,
		Logger: logger.With(map[string]any{"handler": name}),
	}
}

func (h *BaseHandler) Initialize(
	inputChan <-chan *EventPacket,
	outputNextChan chan<- *EventPacket,
	outputTopChan chan<- *EventPacket,
	ctx context.Context,
) error {
	h.InputChan = inputChan
	h.outputNextChan = outputNextChan
	h.outputTopChan = outputTopChan
	h.Ctx = ctx
	return nil
}

// SetHandleEventFunc registers the concrete handler's HandleEvent so the
// shared event loop dispatches to it instead of the embedded default.
func (h *BaseHandler) SetHandleEventFunc(fn func(packet *EventPacket) error) {
	h.handleEventFunc = fn
}

// Start runs the shared event loop: drain InputChan, dispatch each packet,
// exit on context cancellation.
func (h *BaseHandler) Start() error {
	go h.eventLoop()
	return nil
}

func (h *BaseHandler) eventLoop() {
	for {
		select {
		case packet := <-h.InputChan:
			fn := h.handleEventFunc
			if fn == nil {
				fn = h.HandleEvent
			}
			if err := fn(packet); err != nil {
				h.Logger.With(map[string]any{"error": err, "event": packet.Event.GetId()}).Error("handler error")
			}
		case <-h.Ctx.Done():
			return
		}
	}
}

// HandleEvent is the pass-through default.
func (h *BaseHandler) HandleEvent(packet *EventPacket) error {
	h.SendPacket(packet)
	return nil
}

func (h *BaseHandler) SendPacket(packet *EventPacket) {
	var out chan<- *EventPacket
	switch packet.Destination {
	case EventRelayDestinationTopService:
		out = h.outputTopChan
	default:
		// Default to the next handler if the destination is unrecognized.
		out = h.outputNextChan
	}
	select {
	case out <- packet:
	case <-h.Ctx.Done():
	}
}

// SendError reports a non-recoverable condition by broadcasting a
// CriticalErrorEvent to the pipeline top.
func (h *BaseHandler) SendError(err error) {
	h.SendPacket(NewEventPacket(
		&CriticalErrorEvent{Error: err.Error()},
		EventRelayDestinationTopService,
		h.Name,
	))
}

func (h *BaseHandler) Cleanup() error { return nil }
func (h *BaseHandler) Reset() error   { return nil }
