package core

import "time"

// VADResult is the per-frame output of the activity detector.
type VADResult struct {
	RMS      float64
	Speaking bool // detector state after this frame

	Started bool // this frame crossed the activation threshold from silence
	Stopped bool // silence has been sustained past the timeout

	// SpeechEndedAt is the instant the terminal silence began. Set only when
	// Stopped is true; the recorder uses it to trim the silence tail.
	SpeechEndedAt time.Time
}
