package session

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/echonote-ai/echonote/pkg/audio"
	"github.com/echonote-ai/echonote/pkg/capture"
)

// chunkSize is the pipeline's working chunk (32 ms at 16 kHz).
const chunkSize = 512

// frameSource adapts a capture frame channel to the resampler's pull
// interface. The reported rate is the rate of the next sample, so hot-plug
// rate changes flow straight into the dynamic resampler.
type frameSource struct {
	ctx    context.Context
	frames <-chan capture.Frame
	cur    []float32
	pos    int
	rate   int
}

func newFrameSource(ctx context.Context, frames <-chan capture.Frame, initialRate int) *frameSource {
	return &frameSource{ctx: ctx, frames: frames, rate: initialRate}
}

func (s *frameSource) ReadSample() (float32, error) {
	for s.pos >= len(s.cur) {
		select {
		case <-s.ctx.Done():
			return 0, io.EOF
		case frame, ok := <-s.frames:
			if !ok {
				return 0, io.EOF
			}
			s.cur = frame.Data
			s.pos = 0
			if frame.Rate > 0 {
				s.rate = frame.Rate
			}
		}
	}

	v := s.cur[s.pos]
	s.pos++
	return v, nil
}

func (s *frameSource) SampleRate() int { return s.rate }

// sourceChild owns the capture devices and the pipeline: frames are
// resampled to the session rate, gain-controlled, joined, echo-cancelled,
// and dispatched to the recorder and listener.
type sourceChild struct {
	sctx     Context
	mode     ChannelMode
	engine   *capture.Engine
	pipeline *pipeline
	logger   *log.Logger
}

func newSourceChild(sctx Context, mode ChannelMode, engine *capture.Engine, pipe *pipeline, logger *log.Logger) *sourceChild {
	return &sourceChild{
		sctx:     sctx,
		mode:     mode,
		engine:   engine,
		pipeline: pipe,
		logger:   logger,
	}
}

func (s *sourceChild) name() string { return "source" }

func (s *sourceChild) run(ctx context.Context) error {
	// A restarted source begins from clean pipeline state.
	s.pipeline.reset()

	chunks := make(chan sourceChunk, 32)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var stops []func()
	defer func() {
		for _, stop := range stops {
			stop()
		}
	}()

	if s.mode.UsesMic() {
		mic, err := s.engine.NewMicSource(nil, 0)
		if err != nil {
			return fmt.Errorf("open microphone: %w", err)
		}
		stops = append(stops, mic.Stop)
		go s.pump(runCtx, mic, chunks, false)
	}

	if s.mode.UsesSpeaker() {
		spk, err := s.engine.NewLoopbackSource(0)
		if err != nil {
			return fmt.Errorf("open loopback: %w", err)
		}
		stops = append(stops, spk.Stop)
		go s.pump(runCtx, spk, chunks, true)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-chunks:
			if c.err != nil {
				return c.err
			}
			if c.speaker {
				s.pipeline.ingestSpeaker(c.data)
			} else {
				s.pipeline.ingestMic(c.data)
			}
		}
	}
}

type sourceChunk struct {
	data    []float32
	speaker bool
	err     error
}

// pump drives one capture channel through a dynamic resampler and delivers
// session-rate chunks. Resampler errors end the source child; the supervisor
// decides on a restart.
func (s *sourceChild) pump(ctx context.Context, dev *capture.DeviceSource, out chan<- sourceChunk, speaker bool) {
	src := newFrameSource(ctx, dev.Frames(), dev.SampleRate())
	resampler, err := audio.NewDynamicResampler(src, SampleRate, chunkSize)
	if err != nil {
		sendChunk(ctx, out, sourceChunk{err: fmt.Errorf("create resampler: %w", err)})
		return
	}

	for {
		chunk, err := resampler.NextChunk()
		if err == io.EOF {
			return
		}
		if err != nil {
			sendChunk(ctx, out, sourceChunk{err: fmt.Errorf("resample: %w", err), speaker: speaker})
			return
		}
		sendChunk(ctx, out, sourceChunk{data: chunk, speaker: speaker})
	}
}

func sendChunk(ctx context.Context, out chan<- sourceChunk, c sourceChunk) {
	select {
	case out <- c:
	case <-ctx.Done():
	}
}
