package audio

import (
	"fmt"
	"io"
)

func errEOF() error { return io.EOF }

func isEOF(err error) bool { return err == io.EOF }

// dynamicBackend is either a passthrough buffer (source rate == target rate)
// or an interpolator.
type dynamicBackend struct {
	passthrough bool
	buf         []float32
	interp      *interpolator
	pending     []float32
	blockSize   int
}

func newDynamicBackend(sourceRate, targetRate, blockSize int) (*dynamicBackend, error) {
	if sourceRate == targetRate {
		return &dynamicBackend{passthrough: true, blockSize: blockSize}, nil
	}
	interp, err := newInterpolator(sourceRate, targetRate)
	if err != nil {
		return nil, err
	}
	return &dynamicBackend{interp: interp, blockSize: blockSize}, nil
}

func (b *dynamicBackend) push(sample float32) []float32 {
	if b.passthrough {
		b.buf = append(b.buf, sample)
		if len(b.buf) >= b.blockSize {
			out := b.buf
			b.buf = nil
			return out
		}
		return nil
	}
	b.pending = append(b.pending, sample)
	if len(b.pending) >= b.blockSize {
		out := b.interp.Process(b.pending)
		b.pending = b.pending[:0]
		return out
	}
	return nil
}

// drain flushes everything still held inside the backend.
func (b *dynamicBackend) drain() []float32 {
	if b.passthrough {
		out := b.buf
		b.buf = nil
		return out
	}

	var out []float32
	if len(b.pending) > 0 {
		out = append(out, b.interp.Process(b.pending)...)
		b.pending = b.pending[:0]
	}
	out = append(out, b.interp.Flush()...)
	return out
}

// DynamicResampler converts a variable-rate source into fixed-size chunks at
// the target rate. On a rate change the first new-rate sample is stashed, the
// current backend is drained (yielding a partial chunk if needed), the
// backend is rebuilt for the new ratio, and the stashed sample resumes the
// stream. No sample is dropped.
type DynamicResampler struct {
	source     Source
	targetRate int
	chunkSize  int

	backend  *dynamicBackend
	lastRate int
	out      []float32
	draining bool
}

func NewDynamicResampler(source Source, targetRate, chunkSize int) (*DynamicResampler, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("audio: chunk size must be positive")
	}
	sourceRate := source.SampleRate()
	backend, err := newDynamicBackend(sourceRate, targetRate, chunkSize)
	if err != nil {
		return nil, err
	}
	return &DynamicResampler{
		source:     source,
		targetRate: targetRate,
		chunkSize:  chunkSize,
		backend:    backend,
		lastRate:   sourceRate,
	}, nil
}

func (r *DynamicResampler) takeChunk(allowPartial bool) ([]float32, bool) {
	if len(r.out) >= r.chunkSize {
		chunk := append([]float32(nil), r.out[:r.chunkSize]...)
		r.out = append(r.out[:0], r.out[r.chunkSize:]...)
		return chunk, true
	}
	if allowPartial && len(r.out) > 0 {
		chunk := append([]float32(nil), r.out...)
		r.out = nil
		return chunk, true
	}
	return nil, false
}

func (r *DynamicResampler) rebuild(newRate int) error {
	backend, err := newDynamicBackend(newRate, r.targetRate, r.chunkSize)
	if err != nil {
		return err
	}
	r.backend = backend
	r.lastRate = newRate
	return nil
}

// NextChunk blocks on the source until a chunk is ready. Partial chunks are
// yielded at rate-change boundaries and at end of stream; afterwards the
// error is io.EOF.
func (r *DynamicResampler) NextChunk() ([]float32, error) {
	for {
		if chunk, ok := r.takeChunk(r.draining); ok {
			return chunk, nil
		}
		if r.draining {
			return nil, io.EOF
		}

		sample, err := r.source.ReadSample()
		if err != nil {
			if isEOF(err) {
				r.out = append(r.out, r.backend.drain()...)
				r.draining = true
				continue
			}
			return nil, err
		}

		if rate := r.source.SampleRate(); rate != r.lastRate {
			// Drain the old ratio completely, then resume with the stashed
			// sample at the new one.
			r.out = append(r.out, r.backend.drain()...)
			if chunk, ok := r.takeChunk(true); ok {
				if err := r.rebuild(rate); err != nil {
					return nil, err
				}
				r.out = append(r.out, r.backend.push(sample)...)
				return chunk, nil
			}
			if err := r.rebuild(rate); err != nil {
				return nil, err
			}
		}

		r.out = append(r.out, r.backend.push(sample)...)
	}
}
