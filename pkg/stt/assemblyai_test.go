package stt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildAssemblyAIURL(t *testing.T, params ListenParams) string {
	t.Helper()
	u, err := AssemblyAIAdapter{}.BuildWSURL("https://api.assemblyai.com", params, 1)
	require.NoError(t, err)
	return u.String()
}

func TestAssemblyAIEnglishURL(t *testing.T) {
	params := DefaultListenParams()
	params.Languages = langs("en")

	got := buildAssemblyAIURL(t, params)
	assert.Contains(t, got, "speech_model=universal-streaming-english")
	assert.Contains(t, got, "language=en")
	assert.Contains(t, got, "encoding=pcm_s16le")
	assert.Contains(t, got, "format_turns=true")
	assert.NotContains(t, got, "language_detection")
}

func TestAssemblyAIMultilingualURL(t *testing.T) {
	for _, params := range []ListenParams{
		{SampleRate: 16000, Languages: langs("es")},
		{SampleRate: 16000, Languages: langs("en", "es")},
		{SampleRate: 16000, Languages: langs("en"), Model: "universal-streaming-multilingual"},
	} {
		got := buildAssemblyAIURL(t, params)
		assert.Contains(t, got, "speech_model=universal-streaming-multilingual")
		assert.Contains(t, got, "language=multi")
		assert.Contains(t, got, "language_detection=true")
	}
}

func TestAssemblyAIStreamingWSURL(t *testing.T) {
	u, _, err := assemblyaiStreamingWSURL("https://api.assemblyai.com")
	require.NoError(t, err)
	assert.Equal(t, "wss://api.assemblyai.com/v3/ws", u.String())

	u, _, err = assemblyaiStreamingWSURL("")
	require.NoError(t, err)
	assert.Equal(t, "wss://streaming.assemblyai.com/v3/ws", u.String())

	u, _, err = assemblyaiStreamingWSURL("https://api.eu.assemblyai.com")
	require.NoError(t, err)
	assert.Equal(t, "wss://streaming.eu.assemblyai.com/v3/ws", u.String())

	u, params, err := assemblyaiStreamingWSURL("https://api.hyprnote.com?provider=assemblyai")
	require.NoError(t, err)
	assert.Equal(t, "wss://api.hyprnote.com/listen", u.String())
	assert.Equal(t, [][2]string{{"provider", "assemblyai"}}, params)
}

func TestAssemblyAIParseTurn(t *testing.T) {
	raw := `{"type":"Turn","turn_order":1,"turn_is_formatted":true,"end_of_turn":true,` +
		`"transcript":"Hello world.","end_of_turn_confidence":0.95,` +
		`"words":[{"text":"Hello","start":100,"end":400,"confidence":0.9},` +
		`{"text":"world.","start":450,"end":800,"confidence":0.92}]}`

	responses := AssemblyAIAdapter{}.ParseResponse(raw)
	require.Len(t, responses, 1)

	tr := responses[0].(*Transcript)
	assert.True(t, tr.IsFinal)
	assert.True(t, tr.SpeechFinal)
	assert.False(t, tr.FromFinalize)
	assert.Equal(t, "Hello world.", tr.Channel.Alternatives[0].Transcript)
	assert.InDelta(t, 0.1, tr.Start, 1e-9)
	assert.InDelta(t, 0.7, tr.Duration, 1e-9)
}

func TestAssemblyAIParseUnformattedPrefersUtterance(t *testing.T) {
	raw := `{"type":"Turn","turn_is_formatted":false,"end_of_turn":false,` +
		`"transcript":"hello wor","utterance":"hello world",` +
		`"words":[{"text":"hello","start":0,"end":300,"confidence":0.8}]}`

	responses := AssemblyAIAdapter{}.ParseResponse(raw)
	require.Len(t, responses, 1)
	assert.Equal(t, "hello world", responses[0].(*Transcript).Channel.Alternatives[0].Transcript)
}

func TestAssemblyAIParseTermination(t *testing.T) {
	responses := AssemblyAIAdapter{}.ParseResponse(`{"type":"Termination","audio_duration_seconds":42,"session_duration_seconds":50}`)
	require.Len(t, responses, 1)

	term := responses[0].(*Terminal)
	assert.Equal(t, 42.0, term.Duration)
	assert.Equal(t, 1, term.Channels)
}

func TestAssemblyAIParseIgnoresBeginAndUnknown(t *testing.T) {
	assert.Empty(t, AssemblyAIAdapter{}.ParseResponse(`{"type":"Begin","id":"x","expires_at":1}`))
	assert.Empty(t, AssemblyAIAdapter{}.ParseResponse(`{"type":"SomethingNew"}`))
}
