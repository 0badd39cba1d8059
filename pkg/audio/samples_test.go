package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBytesToF32RoundTrip(t *testing.T) {
	samples := []float32{0, 0.25, -0.25, 0.9, -0.9}
	bytes := F32ToI16Bytes(samples)
	back := BytesToF32(bytes)

	require.Len(t, back, len(samples))
	for i := range samples {
		assert.InDelta(t, float64(samples[i]), float64(back[i]), 0.001)
	}
}

func TestF32ToI16Clamps(t *testing.T) {
	out := F32ToI16([]float32{2.0, -2.0})
	assert.Equal(t, int16(32767), out[0])
	assert.Equal(t, int16(-32767), out[1])
}

func TestInterleaveDeinterleave(t *testing.T) {
	mic := F32ToI16Bytes([]float32{0.1, 0.2, 0.3})
	spk := F32ToI16Bytes([]float32{-0.1, -0.2, -0.3})

	stereo := Interleave(mic, spk)
	assert.Len(t, stereo, 12)

	left, right := Deinterleave(stereo)
	require.Len(t, left, 3)
	require.Len(t, right, 3)
	assert.InDelta(t, 0.1, float64(left[0]), 0.001)
	assert.InDelta(t, -0.1, float64(right[0]), 0.001)
}

func TestInterleavePadsShorterChannel(t *testing.T) {
	mic := F32ToI16Bytes([]float32{0.5, 0.5})
	spk := F32ToI16Bytes([]float32{0.5})

	stereo := Interleave(mic, spk)
	_, right := Deinterleave(stereo)
	require.Len(t, right, 2)
	assert.Zero(t, right[1])
}

func TestMix(t *testing.T) {
	out := Mix([]float32{1, 1}, []float32{0, 0, 1})
	require.Len(t, out, 3)
	assert.Equal(t, float32(0.5), out[0])
	assert.Equal(t, float32(0.5), out[2])
}

func TestRMSAndPeak(t *testing.T) {
	assert.Zero(t, RMS(nil))
	assert.InDelta(t, 0.5, RMS([]float32{0.5, -0.5}), 1e-9)
	assert.Equal(t, float32(0.75), PeakAmplitude([]float32{0.1, -0.75, 0.3}))

	// Non-finite samples are ignored by the peak.
	assert.Equal(t, float32(0.1), PeakAmplitude([]float32{0.1, float32(math.NaN())}))
}

func TestAllFinite(t *testing.T) {
	assert.True(t, AllFinite([]float32{0, 1, -1}))
	assert.False(t, AllFinite([]float32{float32(math.Inf(1))}))
	assert.False(t, AllFinite([]float32{float32(math.NaN())}))
}
