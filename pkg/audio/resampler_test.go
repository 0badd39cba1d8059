package audio

import (
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// segmentSource feeds fixed sample segments, each with its own rate.
type segmentSource struct {
	segments [][]float32
	rates    []int
	seg      int
	pos      int
}

func newSegmentSource(segments [][]float32, rates []int) *segmentSource {
	return &segmentSource{segments: segments, rates: rates}
}

func (s *segmentSource) ReadSample() (float32, error) {
	for s.seg < len(s.segments) {
		if s.pos < len(s.segments[s.seg]) {
			v := s.segments[s.seg][s.pos]
			s.pos++
			return v, nil
		}
		s.seg++
		s.pos = 0
	}
	return 0, io.EOF
}

func (s *segmentSource) SampleRate() int {
	if s.seg < len(s.rates) {
		return s.rates[s.seg]
	}
	return 16000
}

func sineWave(seconds float64, rate int, freq float64) []float32 {
	n := int(seconds * float64(rate))
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func collectChunks(t *testing.T, next func() ([]float32, error)) [][]float32 {
	t.Helper()
	var chunks [][]float32
	for {
		chunk, err := next()
		if err == io.EOF {
			return chunks
		}
		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}
}

func flatten(chunks [][]float32) []float32 {
	var out []float32
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

func TestDynamicResamplerPassthroughIdentity(t *testing.T) {
	input := sineWave(2.0, 16000, 440)
	source := newSegmentSource([][]float32{input}, []int{16000})

	r, err := NewDynamicResampler(source, 16000, 1920)
	require.NoError(t, err)

	out := flatten(collectChunks(t, r.NextChunk))
	assert.Equal(t, input, out, "passthrough must be bit-identical")
}

func TestDynamicResamplerUpsamplePlaytime(t *testing.T) {
	// 30 s at 8 kHz resampled to 16 kHz: total playtime is preserved.
	input := sineWave(30.0, 8000, 200)
	source := newSegmentSource([][]float32{input}, []int{8000})

	r, err := NewDynamicResampler(source, 16000, 1920)
	require.NoError(t, err)

	out := flatten(collectChunks(t, r.NextChunk))
	expected := len(input) * 2
	assert.InDelta(t, float64(expected), float64(len(out)), 2000)
	assert.True(t, AllFinite(out))
}

func TestDynamicResamplerMultiRateSegments(t *testing.T) {
	rates := []int{8000, 16000, 22050, 32000, 44100, 48000}
	var segments [][]float32
	expectedTotal := 0
	for _, rate := range rates {
		segments = append(segments, sineWave(5.0, rate, 300))
		expectedTotal += 5 * 16000
	}

	source := newSegmentSource(segments, rates)
	r, err := NewDynamicResampler(source, 16000, 1920)
	require.NoError(t, err)

	out := flatten(collectChunks(t, r.NextChunk))
	assert.InDelta(t, float64(expectedTotal), float64(len(out)), 5000)
	assert.True(t, AllFinite(out))
}

func TestDynamicResamplerRateChangeBoundary(t *testing.T) {
	segments := [][]float32{
		{1.0, 2.0, 3.0, 4.0},
		{5.0, 6.0, 7.0, 8.0},
	}
	source := newSegmentSource(segments, []int{8000, 16000})

	r, err := NewDynamicResampler(source, 16000, 4)
	require.NoError(t, err)

	out := flatten(collectChunks(t, r.NextChunk))
	require.GreaterOrEqual(t, len(out), 4)

	// The new-rate segment is passthrough and must appear unchanged at the tail.
	assert.Equal(t, []float32{5.0, 6.0, 7.0, 8.0}, out[len(out)-4:])
}

func TestStaticResampler(t *testing.T) {
	input := sineWave(1.0, 8000, 200)
	source := newSegmentSource([][]float32{input}, []int{8000})

	r, err := NewStaticResampler(source, 16000, 1920)
	require.NoError(t, err)

	chunks := collectChunks(t, r.NextChunk)
	require.NotEmpty(t, chunks)

	for _, chunk := range chunks[:len(chunks)-1] {
		assert.Len(t, chunk, 1920)
	}
	total := len(flatten(chunks))
	assert.InDelta(t, float64(len(input)*2), float64(total), 1000)
}

func TestStaticResamplerDownsample(t *testing.T) {
	input := sineWave(1.0, 48000, 440)
	source := newSegmentSource([][]float32{input}, []int{48000})

	r, err := NewStaticResampler(source, 16000, 512)
	require.NoError(t, err)

	out := flatten(collectChunks(t, r.NextChunk))
	assert.InDelta(t, float64(16000), float64(len(out)), 1000)
	assert.True(t, AllFinite(out))
}

func TestResamplerRejectsBadRates(t *testing.T) {
	source := newSegmentSource([][]float32{{1}}, []int{0})
	_, err := NewDynamicResampler(source, 16000, 512)
	assert.Error(t, err)

	source = newSegmentSource([][]float32{{1}}, []int{16000})
	_, err = NewDynamicResampler(source, 16000, 0)
	assert.Error(t, err)
}

func TestQuinticInterpLinearSignal(t *testing.T) {
	// A degree-5 polynomial through a straight line reproduces the line.
	w := [6]float32{0, 1, 2, 3, 4, 5}
	assert.InDelta(t, 2.5, float64(quinticInterp(w, 0.5)), 1e-4)
	assert.InDelta(t, 2.0, float64(quinticInterp(w, 0.0)), 1e-4)
}
