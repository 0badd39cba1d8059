package audio

import "math"

const (
	agcDefaultTargetRMS  = 0.03
	agcDefaultDistortion = 0.0001
	agcMinGain           = 1e-3
	agcMaxGain           = 1e4
)

// MonoAGC adjusts input amplitude toward a target RMS with a per-sample
// adaptive gain. The integrator can be frozen so non-speech does not drag the
// gain upward.
type MonoAGC struct {
	targetRMS  float64
	distortion float64
	gain       float64
	frozen     bool
}

func NewMonoAGC(targetRMS, distortionFactor float64) *MonoAGC {
	if targetRMS <= 0 {
		targetRMS = agcDefaultTargetRMS
	}
	if distortionFactor <= 0 {
		distortionFactor = agcDefaultDistortion
	}
	return &MonoAGC{
		targetRMS:  targetRMS,
		distortion: distortionFactor,
		gain:       1.0,
	}
}

func (a *MonoAGC) Gain() float32 { return float32(a.gain) }

func (a *MonoAGC) FreezeGain(freeze bool) { a.frozen = freeze }

// Process normalises the frame in place.
func (a *MonoAGC) Process(frame []float32) {
	for i, s := range frame {
		x := float64(s)
		if math.IsNaN(x) || math.IsInf(x, 0) {
			frame[i] = 0
			continue
		}

		z := x * a.gain

		if !a.frozen {
			err := a.targetRMS*a.targetRMS - z*z
			a.gain += a.distortion * err * a.gain
			if a.gain < agcMinGain {
				a.gain = agcMinGain
			} else if a.gain > agcMaxGain {
				a.gain = agcMaxGain
			}
		}

		if z > 0.999 {
			z = 0.999
		} else if z < -0.999 {
			z = -0.999
		}
		frame[i] = float32(z)
	}
}

// VadAGC gates a MonoAGC with a streaming voice-activity detector: the gain
// integrator pauses during non-speech, and the mic path can mask non-speech
// frames to zero.
type VadAGC struct {
	agc           *MonoAGC
	vad           *StreamingVAD
	vadCfg        VADConfig
	maskNonSpeech bool
}

func NewVadAGC(targetRMS, distortionFactor float64) *VadAGC {
	return &VadAGC{
		agc:    NewMonoAGC(targetRMS, distortionFactor),
		vadCfg: DefaultVADConfig(),
	}
}

func DefaultVadAGC() *VadAGC {
	return NewVadAGC(agcDefaultTargetRMS, agcDefaultDistortion)
}

func (v *VadAGC) WithMasking(mask bool) *VadAGC {
	v.maskNonSpeech = mask
	return v
}

func (v *VadAGC) WithVADConfig(cfg VADConfig) *VadAGC {
	v.vadCfg = cfg
	return v
}

func (v *VadAGC) Gain() float32 { return v.agc.Gain() }

// Process classifies and normalises the buffer in place; length is unchanged.
func (v *VadAGC) Process(samples []float32) {
	if len(samples) == 0 {
		return
	}

	if v.vad == nil {
		v.vad = NewStreamingVADWithConfig(len(samples), v.vadCfg)
	}

	v.vad.ProcessInPlace(samples, func(frame []float32, isSpeech bool) {
		v.agc.FreezeGain(!isSpeech)
		if !isSpeech && v.maskNonSpeech {
			for i := range frame {
				frame[i] = 0
			}
		}
		v.agc.Process(frame)
	})
}
