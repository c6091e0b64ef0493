package core

// CriticalErrorEvent is broadcast when a handler hits a non-recoverable
// failure. The session lifecycle reacts by closing the session.
type CriticalErrorEvent struct {
	Error string
}

func (e *CriticalErrorEvent) GetId() string {
	return "shared.critical_error"
}

type WarningEvent struct {
	Error string
}

func (e *WarningEvent) GetId() string {
	return "shared.warning"
}
