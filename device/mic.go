package device

import (
	"errors"

	"voiceturn/core"
)

// ErrNoFrame is returned by ReadFrame when no frame is buffered right now.
// The caller polls again on its next tick.
var ErrNoFrame = errors.New("no frame available")

// MicSource produces capture frames from a microphone device. ReadFrame is
// non-blocking: it returns the next buffered frame, ErrNoFrame when the
// buffer is empty, or core.ErrDeviceUnavailable once the device is gone.
type MicSource interface {
	ReadFrame() (core.AudioFrame, error)
	Close() error
}
