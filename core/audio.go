package core

import (
	"time"

	"github.com/google/uuid"
)

// AudioFrame is one fixed-size window of 16-bit PCM samples from the capture
// device, stamped with a monotonic capture time. Frames are ephemeral: they
// feed the activity detector and, while a capture is active, the utterance
// buffer. They are never persisted.
type AudioFrame struct {
	Samples    []int16
	SampleRate int
	Timestamp  time.Time
}

func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate == 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// Utterance is the ordered run of frames captured between a detected speech
// start and a confirmed stop. It is consumed exactly once by transcription
// and then discarded.
type Utterance struct {
	ID        string
	Frames    []AudioFrame
	StartedAt time.Time
}

func NewUtterance(frames []AudioFrame, startedAt time.Time) *Utterance {
	return &Utterance{
		ID:        uuid.New().String(),
		Frames:    frames,
		StartedAt: startedAt,
	}
}

func (u *Utterance) Duration() time.Duration {
	var d time.Duration
	for _, f := range u.Frames {
		d += f.Duration()
	}
	return d
}

func (u *Utterance) SampleRate() int {
	if len(u.Frames) == 0 {
		return 0
	}
	return u.Frames[0].SampleRate
}

// PCM16 concatenates the frames into a single sample slice in capture order.
func (u *Utterance) PCM16() []int16 {
	n := 0
	for _, f := range u.Frames {
		n += len(f.Samples)
	}
	out := make([]int16, 0, n)
	for _, f := range u.Frames {
		out = append(out, f.Samples...)
	}
	return out
}
