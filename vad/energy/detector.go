package energy

import (
	"math"
	"time"

	"voiceturn/core"
)

// Config tunes the detector. The threshold and timeout defaults are
// empirical; deployments should treat them as tunable, not as derived
// constants.
type Config struct {
	ActivationThreshold float64       // RMS level (0..1) that activates speech
	SilenceTimeout      time.Duration // sustained silence required to confirm a stop
	HumFilterHz         float64       // notch center frequency; 0 disables the filter
	NotchQ              float64       // filter quality factor
	SampleRate          int
}

func DefaultConfig() Config {
	return Config{
		ActivationThreshold: 0.05,
		SilenceTimeout:      700 * time.Millisecond,
		HumFilterHz:         60,
		NotchQ:              1.5,
		SampleRate:          16000,
	}
}

type State int

const (
	StateSilence State = iota
	StateSpeech
)

// Detector classifies fixed-size PCM frames as speech or silence using
// notch-filtered RMS energy with a sustained-silence timeout. It is a pure
// function of the frame stream: time comes from frame timestamps, there is
// no I/O, and each call is O(frame).
type Detector struct {
	cfg   Config
	notch *Notch

	state        State
	silenceSince time.Time
}

func NewDetector(cfg Config) *Detector {
	if cfg.ActivationThreshold <= 0 {
		cfg.ActivationThreshold = DefaultConfig().ActivationThreshold
	}
	if cfg.SilenceTimeout <= 0 {
		cfg.SilenceTimeout = DefaultConfig().SilenceTimeout
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultConfig().SampleRate
	}
	if cfg.NotchQ <= 0 {
		cfg.NotchQ = DefaultConfig().NotchQ
	}

	d := &Detector{cfg: cfg}
	if cfg.HumFilterHz > 0 {
		d.notch = NewNotch(cfg.HumFilterHz, cfg.NotchQ, cfg.SampleRate)
	}
	return d
}

// ProcessFrame classifies one frame and advances the state machine.
//
// Silence -> Speech when rms >= ActivationThreshold (Started).
// Speech -> Silence only after silence sustained >= SilenceTimeout
// (Stopped); the timeout is a hard boundary, elapsed must reach it exactly.
func (d *Detector) ProcessFrame(frame core.AudioFrame) (core.VADResult, error) {
	rms := d.rms(frame.Samples)
	res := core.VADResult{RMS: rms}

	switch d.state {
	case StateSilence:
		if rms >= d.cfg.ActivationThreshold {
			d.state = StateSpeech
			d.silenceSince = time.Time{}
			res.Started = true
		}
	case StateSpeech:
		if rms >= d.cfg.ActivationThreshold {
			d.silenceSince = time.Time{}
		} else {
			if d.silenceSince.IsZero() {
				d.silenceSince = frame.Timestamp
			} else if frame.Timestamp.Sub(d.silenceSince) >= d.cfg.SilenceTimeout {
				d.state = StateSilence
				res.Stopped = true
				res.SpeechEndedAt = d.silenceSince
				d.silenceSince = time.Time{}
			}
		}
	}

	res.Speaking = d.state == StateSpeech
	return res, nil
}

func (d *Detector) State() State {
	return d.state
}

// Reset returns the detector to silence and clears filter state.
func (d *Detector) Reset() {
	d.state = StateSilence
	d.silenceSince = time.Time{}
	if d.notch != nil {
		d.notch.Reset()
	}
}

// rms computes root-mean-square energy over the notch-filtered frame,
// normalized to 0..1.
func (d *Detector) rms(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		if d.notch != nil {
			v = d.notch.Apply(v)
		}
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
