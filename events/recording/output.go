package recording

import "voiceturn/core"

// UtteranceCapturedEvent hands a completed capture to the orchestrator.
// Generation identifies the user turn the capture was started for; the
// orchestrator uses it to detect that a newer turn has superseded this one.
type UtteranceCapturedEvent struct {
	Utterance  *core.Utterance
	Generation uint64
}

func (e *UtteranceCapturedEvent) GetId() string {
	return "recording.utterance_captured"
}

// RecordingFailedEvent fires when capture could not start or was lost
// mid-utterance (permission revoked). Routed to the pipeline top so the
// coordinator and state machine both return to idle.
type RecordingFailedEvent struct {
	Error string
}

func (e *RecordingFailedEvent) GetId() string {
	return "recording.failed"
}
