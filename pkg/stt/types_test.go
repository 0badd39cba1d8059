package stt

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echonote-ai/echonote/pkg/language"
)

func TestListenParamsQueryRoundTrip(t *testing.T) {
	params := ListenParams{
		Model:      "nova-3",
		Languages:  langs("en", "es"),
		SampleRate: 16000,
		Keywords:   []string{"EchoNote", "transcription"},
	}

	q := url.Values{}
	params.EncodeQuery(q)
	q.Set("unknown_field", "ignored")

	decoded := ParamsFromQuery(q)
	assert.Equal(t, params.Model, decoded.Model)
	assert.Equal(t, language.Codes(params.Languages), language.Codes(decoded.Languages))
	assert.Equal(t, params.SampleRate, decoded.SampleRate)
	assert.Equal(t, params.Keywords, decoded.Keywords)
}

func TestStreamResponseRoundTrip(t *testing.T) {
	speaker := 1
	tr := NewTranscript()
	tr.IsFinal = true
	tr.SpeechFinal = true
	tr.FromFinalize = true
	tr.Start = 2.25
	tr.Duration = 1.5
	tr.ChannelIndex = []int{1, 2}
	tr.Extra = Extra{StartedUnixMillis: 1700000000000}
	tr.Channel = Channel{Alternatives: []Alternative{{
		Transcript: "hello world",
		Confidence: 0.97,
		Words: []Word{
			{Word: "hello", Start: 2.25, End: 2.9, Confidence: 0.95, Speaker: &speaker},
			{Word: "world", Start: 3.0, End: 3.75, Confidence: 0.99},
		},
	}}}

	data, err := MarshalResponse(tr)
	require.NoError(t, err)

	decoded, err := UnmarshalResponse(data)
	require.NoError(t, err)
	assert.Equal(t, tr, decoded)
}

func TestTerminalAndErrorRoundTrip(t *testing.T) {
	term := NewTerminal("req-1", 12.5, 2)
	data, err := MarshalResponse(term)
	require.NoError(t, err)
	decoded, err := UnmarshalResponse(data)
	require.NoError(t, err)
	assert.Equal(t, term, decoded)

	code := 500
	se := NewStreamError("deepgram", "boom", &code)
	data, err = MarshalResponse(se)
	require.NoError(t, err)
	decoded, err = UnmarshalResponse(data)
	require.NoError(t, err)
	assert.Equal(t, se, decoded)
}

func TestUnmarshalResponseUnknownType(t *testing.T) {
	_, err := UnmarshalResponse([]byte(`{"type":"Bogus"}`))
	assert.Error(t, err)
	_, err = UnmarshalResponse([]byte(`not json`))
	assert.Error(t, err)
}

func TestApplyOffsetShiftsWords(t *testing.T) {
	tr := NewTranscript()
	tr.Start = 1.0
	tr.Channel = Channel{Alternatives: []Alternative{{
		Words: []Word{{Word: "a", Start: 1.0, End: 1.5}},
	}}}

	tr.ApplyOffset(10.0)
	assert.Equal(t, 11.0, tr.Start)
	assert.Equal(t, 11.0, tr.Channel.Alternatives[0].Words[0].Start)
	assert.Equal(t, 11.5, tr.Channel.Alternatives[0].Words[0].End)
}

func TestRemapChannelIndex(t *testing.T) {
	tr := NewTranscript()
	RemapChannelIndex(tr, 1, 2)
	assert.Equal(t, []int{1, 2}, tr.ChannelIndex)

	// Non-transcript variants are untouched.
	term := NewTerminal("x", 0, 1)
	RemapChannelIndex(term, 1, 2)
	assert.Equal(t, 1, term.Channels)
}

func TestMixedMessage(t *testing.T) {
	audio := Audio([]byte{1, 2, 3})
	assert.False(t, audio.IsControl())

	ctrl := Control[[]byte](Finalize())
	assert.True(t, ctrl.IsControl())
	assert.Equal(t, ControlFinalize, ctrl.Control.Type)
}

func TestExtensionForContentType(t *testing.T) {
	assert.Equal(t, "wav", ExtensionForContentType("audio/wav"))
	assert.Equal(t, "mp3", ExtensionForContentType("audio/mpeg; charset=binary"))
	assert.Equal(t, "ogg", ExtensionForContentType("audio/ogg"))
	assert.Equal(t, "m4a", ExtensionForContentType("audio/mp4"))
	assert.Equal(t, "wav", ExtensionForContentType("application/octet-stream"))
}
