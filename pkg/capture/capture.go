package capture

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gen2brain/malgo"
)

// Frame is one callback's worth of mono f32 samples tagged with the rate the
// device delivered them at.
type Frame struct {
	Data []float32
	Rate int
}

const (
	frameChannelCap = 32
	defaultMicRate  = 44100
	defaultLoopRate = 48000
)

// Engine owns the malgo context shared by every source.
type Engine struct {
	ctx    *malgo.AllocatedContext
	logger *log.Logger
}

func NewEngine(logger *log.Logger) (*Engine, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("malgo", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return &Engine{ctx: mctx, logger: logger}, nil
}

func (e *Engine) Close() {
	_ = e.ctx.Uninit()
	e.ctx.Free()
}

// DeviceSource captures one direction (mic or loopback) and fans frames out
// over a bounded channel. The OS callback never blocks: when the consumer
// lags, the oldest frame is dropped.
type DeviceSource struct {
	device *malgo.Device
	frames chan Frame
	rate   int
	logger *log.Logger

	mu      sync.Mutex
	stopped bool
	dropped uint64
}

// NewMicSource opens the capture device. An empty deviceID means the default
// microphone.
func (e *Engine) NewMicSource(deviceID *malgo.DeviceID, sampleRate int) (*DeviceSource, error) {
	if sampleRate <= 0 {
		sampleRate = defaultMicRate
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(sampleRate)
	cfg.Alsa.NoMMap = 1
	if deviceID != nil {
		cfg.Capture.DeviceID = deviceID.Pointer()
	}

	return e.newSource(cfg, sampleRate)
}

// NewLoopbackSource opens the system-audio (speaker) capture.
func (e *Engine) NewLoopbackSource(sampleRate int) (*DeviceSource, error) {
	if sampleRate <= 0 {
		sampleRate = defaultLoopRate
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Loopback)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(sampleRate)
	cfg.Alsa.NoMMap = 1

	return e.newSource(cfg, sampleRate)
}

func (e *Engine) newSource(cfg malgo.DeviceConfig, sampleRate int) (*DeviceSource, error) {
	s := &DeviceSource{
		frames: make(chan Frame, frameChannelCap),
		rate:   sampleRate,
		logger: e.logger,
	}

	onRecv := func(_, pInput []byte, frameCount uint32) {
		if pInput == nil || frameCount == 0 {
			return
		}
		s.push(bytesToF32LE(pInput, int(frameCount)))
	}

	device, err := malgo.InitDevice(e.ctx.Context, cfg, malgo.DeviceCallbacks{Data: onRecv})
	if err != nil {
		return nil, fmt.Errorf("init capture device: %w", err)
	}
	s.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("start capture device: %w", err)
	}
	return s, nil
}

// push hands a frame to the consumer, dropping the oldest on overflow so the
// real-time callback never blocks.
func (s *DeviceSource) push(data []float32) {
	frame := Frame{Data: data, Rate: s.rate}
	select {
	case s.frames <- frame:
		return
	default:
	}

	select {
	case <-s.frames:
	default:
	}
	select {
	case s.frames <- frame:
	default:
	}

	s.mu.Lock()
	s.dropped++
	dropped := s.dropped
	s.mu.Unlock()
	if dropped%100 == 1 {
		s.logger.Warn("capture frames dropped", "total", dropped)
	}
}

func (s *DeviceSource) Frames() <-chan Frame { return s.frames }

func (s *DeviceSource) SampleRate() int { return s.rate }

// Stop uninitialises the device and closes the frame channel.
func (s *DeviceSource) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.device.Uninit()
	close(s.frames)
}

// bytesToF32LE reinterprets the callback buffer as little-endian float32.
func bytesToF32LE(data []byte, frames int) []float32 {
	n := frames
	if max := len(data) / 4; n > max {
		n = max
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
		out[i] = f32frombits(bits)
	}
	return out
}
