package audio

import (
	"errors"
	"fmt"
	"math"
)

// Source supplies mono float32 samples. SampleRate reports the rate of the
// next sample and may change between reads (USB hot-plug); ReadSample returns
// io.EOF once the stream is exhausted.
type Source interface {
	ReadSample() (float32, error)
	SampleRate() int
}

var errBadRate = errors.New("audio: sample rate must be positive")

// interpolator is a streaming sample-rate converter using six-point quintic
// polynomial interpolation over a sliding window, in the manner of a
// fixed-input polynomial resampler.
type interpolator struct {
	ratio  float64 // output rate / input rate
	buf    []float32
	pos    float64 // fractional read position into buf
	primed bool
}

const interpLeftHistory = 2

func newInterpolator(inRate, outRate int) (*interpolator, error) {
	if inRate <= 0 || outRate <= 0 {
		return nil, errBadRate
	}
	ratio := float64(outRate) / float64(inRate)
	if !isFiniteF64(ratio) || ratio <= 0 {
		return nil, errBadRate
	}
	return &interpolator{ratio: ratio, pos: interpLeftHistory}, nil
}

// Process consumes a block of input and returns whatever output positions are
// now computable. The last few samples stay buffered as history.
func (ip *interpolator) Process(input []float32) []float32 {
	if len(input) == 0 {
		return nil
	}

	if !ip.primed {
		// Replicate the first sample as left history to avoid an onset ramp.
		for i := 0; i < interpLeftHistory; i++ {
			ip.buf = append(ip.buf, input[0])
		}
		ip.primed = true
	}
	ip.buf = append(ip.buf, input...)

	return ip.produce()
}

// Flush pads the tail with the final sample so every input position becomes
// computable, then resets the window.
func (ip *interpolator) Flush() []float32 {
	if !ip.primed || len(ip.buf) == 0 {
		return nil
	}

	last := ip.buf[len(ip.buf)-1]
	for i := 0; i < 3; i++ {
		ip.buf = append(ip.buf, last)
	}
	out := ip.produce()

	ip.buf = nil
	ip.pos = interpLeftHistory
	ip.primed = false
	return out
}

func (ip *interpolator) produce() []float32 {
	var out []float32

	step := 1.0 / ip.ratio
	for {
		base := int(ip.pos)
		if base-interpLeftHistory < 0 || base+3 >= len(ip.buf) {
			break
		}
		frac := ip.pos - float64(base)

		var window [6]float32
		copy(window[:], ip.buf[base-2:base+4])
		out = append(out, quinticInterp(window, frac))

		ip.pos += step
	}

	// Trim consumed input, keeping the history margin.
	keepFrom := int(ip.pos) - interpLeftHistory
	if keepFrom > 0 {
		if keepFrom > len(ip.buf) {
			keepFrom = len(ip.buf)
		}
		ip.buf = append(ip.buf[:0], ip.buf[keepFrom:]...)
		ip.pos -= float64(keepFrom)
	}

	return out
}

// quinticInterp evaluates the degree-5 Lagrange polynomial through six
// equally spaced points at x = 2 + frac.
func quinticInterp(w [6]float32, frac float64) float32 {
	x := 2.0 + frac

	var acc float64
	for i := 0; i < 6; i++ {
		num := 1.0
		den := 1.0
		for j := 0; j < 6; j++ {
			if j == i {
				continue
			}
			num *= x - float64(j)
			den *= float64(i - j)
		}
		acc += float64(w[i]) * num / den
	}

	if math.IsNaN(acc) || math.IsInf(acc, 0) {
		return 0
	}
	return float32(acc)
}

func isFiniteF64(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// StaticResampler converts a constant-rate source into fixed-size chunks at
// the target rate. The final chunk may be shorter.
type StaticResampler struct {
	source    Source
	interp    *interpolator
	chunkSize int
	blockSize int
	pending   []float32
	out       []float32
	finished  bool
}

func NewStaticResampler(source Source, targetRate, chunkSize int) (*StaticResampler, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("audio: chunk size must be positive")
	}
	interp, err := newInterpolator(source.SampleRate(), targetRate)
	if err != nil {
		return nil, err
	}
	return &StaticResampler{
		source:    source,
		interp:    interp,
		chunkSize: chunkSize,
		blockSize: chunkSize,
	}, nil
}

// NextChunk blocks on the source until a full chunk is ready, and returns
// io.EOF after the flushed tail has been drained.
func (r *StaticResampler) NextChunk() ([]float32, error) {
	for {
		if len(r.out) >= r.chunkSize {
			chunk := append([]float32(nil), r.out[:r.chunkSize]...)
			r.out = append(r.out[:0], r.out[r.chunkSize:]...)
			return chunk, nil
		}

		if r.finished {
			if len(r.out) > 0 {
				chunk := append([]float32(nil), r.out...)
				r.out = nil
				return chunk, nil
			}
			return nil, errEOF()
		}

		sample, err := r.source.ReadSample()
		if err != nil {
			if isEOF(err) {
				if len(r.pending) > 0 {
					r.out = append(r.out, r.interp.Process(r.pending)...)
					r.pending = r.pending[:0]
				}
				r.out = append(r.out, r.interp.Flush()...)
				r.finished = true
				continue
			}
			return nil, err
		}

		r.pending = append(r.pending, sample)
		if len(r.pending) >= r.blockSize {
			r.out = append(r.out, r.interp.Process(r.pending)...)
			r.pending = r.pending[:0]
		}
	}
}
