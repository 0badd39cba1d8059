package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAECReducesEchoEnergy(t *testing.T) {
	aec := NewAEC()

	// Mic picks up a delayed, attenuated copy of the speaker reference.
	const frame = 512
	const delay = 8
	var rawEnergy, cleanEnergy float64

	var refTail []float32
	for block := 0; block < 60; block++ {
		ref := make([]float32, frame)
		for i := range ref {
			ref[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(block*frame+i)/16000))
		}

		mic := make([]float32, frame)
		combined := append(refTail, ref...)
		for i := range mic {
			mic[i] = 0.6 * combined[i]
		}
		if len(combined) > delay {
			refTail = append([]float32(nil), combined[len(combined)-delay:]...)
		}

		out, err := aec.ProcessStreaming(mic, ref)
		require.NoError(t, err)
		require.Len(t, out, frame)

		// Judge only the tail blocks, after the filter has adapted.
		if block >= 40 {
			for i := range mic {
				rawEnergy += float64(mic[i]) * float64(mic[i])
				cleanEnergy += float64(out[i]) * float64(out[i])
			}
		}
	}

	assert.Less(t, cleanEnergy, rawEnergy, "echo energy must not grow")
}

func TestAECLengthMismatchReturnsRawMic(t *testing.T) {
	aec := NewAEC()

	mic := []float32{0.1, 0.2, 0.3}
	ref := []float32{0.1, 0.2}

	out, err := aec.ProcessStreaming(mic, ref)
	assert.ErrorIs(t, err, ErrAECLengthMismatch)
	assert.Equal(t, mic, out)
}

func TestAECSilencePassesThrough(t *testing.T) {
	aec := NewAEC()

	mic := make([]float32, 512)
	ref := make([]float32, 512)
	out, err := aec.ProcessStreaming(mic, ref)
	require.NoError(t, err)
	assert.Equal(t, mic, out)
}

func TestAECOutputFinite(t *testing.T) {
	aec := NewAEC()

	for block := 0; block < 10; block++ {
		mic := make([]float32, 256)
		ref := make([]float32, 256)
		for i := range mic {
			mic[i] = float32(math.Sin(float64(block*256+i) / 7))
			ref[i] = float32(math.Cos(float64(block*256+i) / 5))
		}
		out, err := aec.ProcessStreaming(mic, ref)
		require.NoError(t, err)
		assert.True(t, AllFinite(out))
	}
}
