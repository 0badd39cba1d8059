package audio

import "math"

// VADModel classifies a single 16 kHz frame as speech or non-speech. The
// energy model below is always available; the Silero model needs an ONNX
// runtime and is wired in only when configured.
type VADModel interface {
	Predict16kHz(frame []int16) (bool, error)
}

// vadFrameSizes are the frame lengths the models accept (10/20/30 ms at 16 kHz).
var vadFrameSizes = []int{160, 320, 480}

// ChooseOptimalVADFrameSize picks the supported frame size closest to the
// hint. Hints larger than the biggest size get a smaller frame that divides
// the chunk evenly where possible.
func ChooseOptimalVADFrameSize(hint int) int {
	if hint <= 0 {
		return 320
	}

	for _, size := range vadFrameSizes {
		if hint == size {
			return size
		}
	}

	if hint > 480 {
		// Prefer an even divisor so chunks split without a ragged tail.
		for _, size := range []int{480, 320, 160} {
			if hint%size == 0 {
				return size
			}
		}
		return 320
	}

	best := vadFrameSizes[0]
	bestDist := hint - best
	if bestDist < 0 {
		bestDist = -bestDist
	}
	for _, size := range vadFrameSizes[1:] {
		dist := hint - size
		if dist < 0 {
			dist = -dist
		}
		if dist < bestDist {
			best, bestDist = size, dist
		}
	}
	return best
}

type VADConfig struct {
	HangoverFrames int
	AmplitudeFloor float32
	StartInSpeech  bool
	Model          VADModel
}

func DefaultVADConfig() VADConfig {
	return VADConfig{
		HangoverFrames: 6,
		AmplitudeFloor: 0.0005,
		StartInSpeech:  true,
	}
}

// StreamingVAD chops arbitrary sample buffers into model-sized frames and
// smooths the raw decisions with a hangover counter.
type StreamingVAD struct {
	model             VADModel
	cfg               VADConfig
	frameSize         int
	inSpeech          bool
	trailingNonSpeech int
	scratch           []float32
}

func NewStreamingVAD(frameHint int) *StreamingVAD {
	return NewStreamingVADWithConfig(frameHint, DefaultVADConfig())
}

func NewStreamingVADWithConfig(frameHint int, cfg VADConfig) *StreamingVAD {
	model := cfg.Model
	if model == nil {
		model = NewEnergyVAD()
	}
	return &StreamingVAD{
		model:     model,
		cfg:       cfg,
		frameSize: ChooseOptimalVADFrameSize(frameHint),
		inSpeech:  cfg.StartInSpeech,
	}
}

func (v *StreamingVAD) FrameSize() int { return v.frameSize }

func (v *StreamingVAD) smoothDecision(rawIsSpeech bool) bool {
	if rawIsSpeech {
		v.inSpeech = true
		v.trailingNonSpeech = 0
		return true
	}
	if v.inSpeech && v.trailingNonSpeech < v.cfg.HangoverFrames {
		v.trailingNonSpeech++
		return true
	}
	v.inSpeech = false
	v.trailingNonSpeech = 0
	return false
}

func (v *StreamingVAD) classifyFrame(frame []float32) bool {
	if len(frame) == 0 {
		return false
	}

	// Very quiet frames bypass the model entirely.
	if RMS(frame) < float64(v.cfg.AmplitudeFloor) {
		return v.smoothDecision(false)
	}

	var i16 []int16
	if len(frame) == v.frameSize {
		i16 = F32ToI16(frame)
	} else {
		v.scratch = v.scratch[:0]
		v.scratch = append(v.scratch, frame...)
		for len(v.scratch) < v.frameSize {
			v.scratch = append(v.scratch, 0)
		}
		i16 = F32ToI16(v.scratch)
	}

	raw, err := v.model.Predict16kHz(i16)
	if err != nil {
		raw = true
	}
	return v.smoothDecision(raw)
}

// ProcessInPlace invokes fn for every frame with its speech decision; fn may
// modify the frame. Total length never changes.
func (v *StreamingVAD) ProcessInPlace(samples []float32, fn func(frame []float32, isSpeech bool)) {
	if len(samples) == 0 {
		return
	}

	for start := 0; start < len(samples); start += v.frameSize {
		end := start + v.frameSize
		if end > len(samples) {
			end = len(samples)
		}
		frame := samples[start:end]
		fn(frame, v.classifyFrame(frame))
	}
}

// EnergyVAD is the dependency-free model: adaptive RMS threshold with a
// minimum-confirmed-frames hysteresis.
type EnergyVAD struct {
	threshold         float64
	minConfirmed      int
	consecutiveFrames int
	speaking          bool
	noiseFloor        float64
}

func NewEnergyVAD() *EnergyVAD {
	return &EnergyVAD{
		threshold:    0.015,
		minConfirmed: 2,
		noiseFloor:   0.002,
	}
}

func (e *EnergyVAD) SetThreshold(threshold float64) {
	if threshold > 0 && threshold < 1 {
		e.threshold = threshold
	}
}

func (e *EnergyVAD) Predict16kHz(frame []int16) (bool, error) {
	var sum float64
	for _, s := range frame {
		f := float64(s) / 32768.0
		sum += f * f
	}
	rms := 0.0
	if len(frame) > 0 {
		rms = math.Sqrt(sum / float64(len(frame)))
	}

	// Track a slow noise floor so the threshold adapts to the room.
	if rms < e.noiseFloor {
		e.noiseFloor = e.noiseFloor*0.9 + rms*0.1
	} else {
		e.noiseFloor = e.noiseFloor*0.999 + rms*0.001
	}

	effective := e.threshold
	if adaptive := e.noiseFloor * 3; adaptive > effective {
		effective = adaptive
	}

	if rms > effective {
		e.consecutiveFrames++
		if !e.speaking && e.consecutiveFrames >= e.minConfirmed {
			e.speaking = true
		}
		return e.speaking || e.consecutiveFrames >= e.minConfirmed, nil
	}

	e.consecutiveFrames = 0
	e.speaking = false
	return false, nil
}
