package vad

import "time"

// SpeechStartedEvent fires when frame energy crosses the activation
// threshold while the detector is in silence. Generation is stamped by the
// turn handler as the packet passes through, so downstream consumers know
// which user turn the speech belongs to.
type SpeechStartedEvent struct {
	At         time.Time
	RMS        float64
	Generation uint64
}

func (e *SpeechStartedEvent) GetId() string {
	return "vad.speech_started"
}

// SpeechStoppedEvent fires once silence has been sustained past the
// configured timeout. SpeechEndedAt is the instant the terminal silence
// began, so consumers can trim the silence tail from the capture.
type SpeechStoppedEvent struct {
	At            time.Time
	SpeechEndedAt time.Time
}

func (e *SpeechStoppedEvent) GetId() string {
	return "vad.speech_stopped"
}
