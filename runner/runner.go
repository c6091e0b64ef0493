package runner

import (
	"context"
	"fmt"

	"voiceturn/core"
)

// Runner wires the handlers into an ordered chain: each handler's next
// channel feeds the following handler's input, and top-destined packets
// re-enter at the head so every handler observes them. External inputs
// (capture frames, remote signals) are injected with Push.
type Runner struct {
	Handlers []core.IHandler
	logger   *core.Logger

	ctx            context.Context
	cancel         context.CancelFunc
	headInputChan  chan *core.EventPacket
	topOutputChan  chan *core.EventPacket
	lastOutputChan chan *core.EventPacket
}

func NewRunner(handlers []core.IHandler, logger *core.Logger) *Runner {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Runner{
		Handlers: handlers,
		logger:   logger.With(map[string]any{"component": "runner"}),
	}
}

func (r *Runner) Start(parent context.Context) error {
	if len(r.Handlers) == 0 {
		return fmt.Errorf("runner: no handlers")
	}

	r.ctx, r.cancel = context.WithCancel(parent)
	r.topOutputChan = make(chan *core.EventPacket, 100)
	r.lastOutputChan = make(chan *core.EventPacket, 100)

	inputChans := make([]chan *core.EventPacket, len(r.Handlers))
	for i := range inputChans {
		inputChans[i] = make(chan *core.EventPacket, 100)
	}
	r.headInputChan = inputChans[0]

	for i, handler := range r.Handlers {
		var outputNextChan chan<- *core.EventPacket
		if i < len(r.Handlers)-1 {
			outputNextChan = inputChans[i+1]
		} else {
			outputNextChan = r.lastOutputChan
		}

		if err := handler.Initialize(inputChans[i], outputNextChan, r.topOutputChan, r.ctx); err != nil {
			r.cancel()
			return fmt.Errorf("runner: initialize handler %d: %w", i, err)
		}
		if err := handler.Start(); err != nil {
			r.cancel()
			return fmt.Errorf("runner: start handler %d: %w", i, err)
		}
	}

	go r.listenToOutputs()
	return nil
}

// Push injects an external event at the head of the chain.
func (r *Runner) Push(event core.IEvent) {
	packet := core.NewEventPacket(event, core.EventRelayDestinationNextService, "external")
	select {
	case r.headInputChan <- packet:
	case <-r.ctx.Done():
	}
}

func (r *Runner) listenToOutputs() {
	for {
		select {
		case packet := <-r.topOutputChan:
			// Re-enter at the head as a normal downstream packet so the
			// whole chain sees it exactly once more.
			packet.Destination = core.EventRelayDestinationNextService
			select {
			case r.headInputChan <- packet:
			case <-r.ctx.Done():
				return
			}
		case <-r.lastOutputChan:
			// Tail of the chain; packets end here.
		case <-r.ctx.Done():
			return
		}
	}
}

// Stop cancels the event loops and cleans the handlers up in order.
func (r *Runner) Stop() error {
	if r.cancel != nil {
		r.cancel()
	}

	var firstErr error
	for _, handler := range r.Handlers {
		if err := handler.Cleanup(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Reset returns every handler to its initial state without tearing the
// chain down.
func (r *Runner) Reset() error {
	var firstErr error
	for _, handler := range r.Handlers {
		if err := handler.Reset(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
