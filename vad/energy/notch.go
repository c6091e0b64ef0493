package energy

import "math"

// Notch is a biquad notch filter that suppresses a fixed-frequency hum
// (mains interference) before energy measurement. Standard RBJ cookbook
// coefficients, normalized by a0.
type Notch struct {
	b0, b1, b2 float64
	a1, a2     float64

	x1, x2 float64
	y1, y2 float64
}

// NewNotch creates a notch centered on centerHz. A q around 1-2 gives a
// narrow band that leaves speech energy intact.
func NewNotch(centerHz, q float64, sampleRate int) *Notch {
	w0 := 2 * math.Pi * centerHz / float64(sampleRate)
	alpha := math.Sin(w0) / (2 * q)
	cosW0 := math.Cos(w0)

	a0 := 1 + alpha
	return &Notch{
		b0: 1 / a0,
		b1: -2 * cosW0 / a0,
		b2: 1 / a0,
		a1: -2 * cosW0 / a0,
		a2: (1 - alpha) / a0,
	}
}

// Apply filters one sample, carrying state across calls.
func (n *Notch) Apply(x float64) float64 {
	y := n.b0*x + n.b1*n.x1 + n.b2*n.x2 - n.a1*n.y1 - n.a2*n.y2
	n.x2, n.x1 = n.x1, x
	n.y2, n.y1 = n.y1, y
	return y
}

// Reset clears the filter state.
func (n *Notch) Reset() {
	n.x1, n.x2, n.y1, n.y2 = 0, 0, 0, 0
}
