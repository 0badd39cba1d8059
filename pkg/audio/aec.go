package audio

import (
	"errors"
	"math"
)

var ErrAECLengthMismatch = errors.New("audio: aec frame length mismatch")

var errAECDiverged = errors.New("audio: aec filter diverged")

const (
	aecDefaultTaps = 256
	aecStepSize    = 0.05
	aecRegularizer = 1e-6
)

// AEC is a streaming NLMS linear echo canceller: the speaker reference is
// filtered through an adaptive FIR estimate of the echo path and subtracted
// from the microphone signal.
type AEC struct {
	taps    int
	weights []float64
	history []float64 // most recent reference samples, newest first
	energy  float64   // running ||history||^2
}

func NewAEC() *AEC {
	return &AEC{
		taps:    aecDefaultTaps,
		weights: make([]float64, aecDefaultTaps),
		history: make([]float64, aecDefaultTaps),
	}
}

func (a *AEC) Reset() {
	for i := range a.weights {
		a.weights[i] = 0
	}
	for i := range a.history {
		a.history[i] = 0
	}
	a.energy = 0
}

// ProcessStreaming cancels the reference frame from the mic frame and returns
// the cleaned mic samples. On length mismatch or filter divergence it returns
// a copy of the raw mic frame together with the error; the pair is never
// dropped.
func (a *AEC) ProcessStreaming(mic, ref []float32) ([]float32, error) {
	if len(mic) != len(ref) {
		return append([]float32(nil), mic...), ErrAECLengthMismatch
	}

	out := make([]float32, len(mic))
	for i := range mic {
		a.pushReference(float64(ref[i]))

		est := 0.0
		for t := 0; t < a.taps; t++ {
			est += a.weights[t] * a.history[t]
		}

		e := float64(mic[i]) - est
		if math.IsNaN(e) || math.IsInf(e, 0) {
			a.Reset()
			return append([]float32(nil), mic...), errAECDiverged
		}

		norm := aecStepSize / (aecRegularizer + a.energy)
		for t := 0; t < a.taps; t++ {
			a.weights[t] += norm * e * a.history[t]
		}

		out[i] = float32(e)
	}
	return out, nil
}

func (a *AEC) pushReference(sample float64) {
	oldest := a.history[a.taps-1]
	a.energy += sample*sample - oldest*oldest
	if a.energy < 0 {
		a.energy = 0
	}
	copy(a.history[1:], a.history[:a.taps-1])
	a.history[0] = sample
}
