package core

type IEvent interface {
	GetId() string // Returns the unique identifier of the event.
}

// IExternalInputEvent is implemented by events that originate outside the
// pipeline (remote session signals, transport notifications). They are
// injected at the pipeline top so every handler in the chain observes them
// in arrival order.
type IExternalInputEvent interface {
	IEvent
}
