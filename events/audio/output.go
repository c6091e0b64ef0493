package audio

import "voiceturn/core"

// FrameInputEvent carries one microphone frame into the pipeline. Injected
// by the session's tick loop, never produced inside a handler.
type FrameInputEvent struct {
	Frame core.AudioFrame
}

func (e *FrameInputEvent) GetId() string {
	return "audio.frame_input"
}
