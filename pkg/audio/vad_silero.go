package audio

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	// Silero VAD v5 at 16 kHz infers over 512-sample windows (32 ms).
	sileroWindowSize = 512

	// Combined hidden state tensor shape is [2, 1, 128].
	sileroStateSize = 128

	sileroSampleRate = 16000
)

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// SileroVAD runs the Silero model through ONNX Runtime. Frames shorter than
// the inference window are accumulated; the decision of the last completed
// window is carried in between.
type SileroVAD struct {
	mu      sync.Mutex
	session *ort.AdvancedSession

	inputTensor  *ort.Tensor[float32]
	stateTensor  *ort.Tensor[float32]
	srTensor     *ort.Tensor[int64]
	outputTensor *ort.Tensor[float32]
	stateNTensor *ort.Tensor[float32]

	pcmBuf     []float32
	threshold  float32
	lastSpeech bool
}

// NewSileroVAD loads the model from modelPath. The ONNX Runtime shared
// library must be resolvable; callers fall back to the energy model when this
// fails.
func NewSileroVAD(modelPath string, threshold float32) (*SileroVAD, error) {
	ortInitOnce.Do(func() {
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, fmt.Errorf("silero: init onnxruntime: %w", ortInitErr)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, sileroWindowSize))
	if err != nil {
		return nil, fmt.Errorf("silero: create input tensor: %w", err)
	}
	stateTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, sileroStateSize))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("silero: create state tensor: %w", err)
	}
	srTensor, err := ort.NewTensor(ort.NewShape(1), []int64{sileroSampleRate})
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		return nil, fmt.Errorf("silero: create sr tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		return nil, fmt.Errorf("silero: create output tensor: %w", err)
	}
	stateNTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, sileroStateSize))
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("silero: create stateN tensor: %w", err)
	}

	clearFloat32Slice(stateTensor.GetData())
	clearFloat32Slice(stateNTensor.GetData())

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		[]ort.Value{inputTensor, stateTensor, srTensor},
		[]ort.Value{outputTensor, stateNTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		outputTensor.Destroy()
		stateNTensor.Destroy()
		return nil, fmt.Errorf("silero: create session: %w", err)
	}

	if threshold <= 0 || threshold >= 1 {
		threshold = 0.5
	}
	return &SileroVAD{
		session:      session,
		inputTensor:  inputTensor,
		stateTensor:  stateTensor,
		srTensor:     srTensor,
		outputTensor: outputTensor,
		stateNTensor: stateNTensor,
		threshold:    threshold,
	}, nil
}

func (s *SileroVAD) Predict16kHz(frame []int16) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range frame {
		s.pcmBuf = append(s.pcmBuf, float32(v)/32768.0)
	}

	for len(s.pcmBuf) >= sileroWindowSize {
		copy(s.inputTensor.GetData(), s.pcmBuf[:sileroWindowSize])
		s.pcmBuf = append(s.pcmBuf[:0], s.pcmBuf[sileroWindowSize:]...)

		if err := s.session.Run(); err != nil {
			return s.lastSpeech, fmt.Errorf("silero: run: %w", err)
		}

		// Carry the recurrent state into the next window.
		copy(s.stateTensor.GetData(), s.stateNTensor.GetData())

		s.lastSpeech = s.outputTensor.GetData()[0] >= s.threshold
	}

	return s.lastSpeech, nil
}

// Reset clears the recurrent state and the sample buffer.
func (s *SileroVAD) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clearFloat32Slice(s.stateTensor.GetData())
	clearFloat32Slice(s.stateNTensor.GetData())
	s.pcmBuf = s.pcmBuf[:0]
	s.lastSpeech = false
}

// Close releases the session and tensors.
func (s *SileroVAD) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
	for _, t := range []*ort.Tensor[float32]{s.inputTensor, s.stateTensor, s.outputTensor, s.stateNTensor} {
		if t != nil {
			t.Destroy()
		}
	}
	if s.srTensor != nil {
		s.srTensor.Destroy()
	}
}

func clearFloat32Slice(data []float32) {
	for i := range data {
		data[i] = 0
	}
}

var _ VADModel = (*SileroVAD)(nil)
