package stt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSonioxWSURLFromBase(t *testing.T) {
	cases := []struct {
		in       string
		expected string
	}{
		{"", "wss://stt-rt.soniox.com/transcribe-websocket"},
		{"https://api.soniox.com", "wss://stt-rt.soniox.com/transcribe-websocket"},
		{"https://api.hyprnote.com?provider=soniox", "wss://api.hyprnote.com/listen?provider=soniox"},
		{"http://localhost:8787/listen?provider=soniox", "ws://localhost:8787/listen?provider=soniox"},
	}

	for _, c := range cases {
		u, err := SonioxAdapter{}.BuildWSURL(c.in, DefaultListenParams(), 1)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.expected, u.String(), c.in)
	}
}

func sonioxInitialJSON(t *testing.T, params ListenParams) map[string]interface{} {
	t.Helper()
	msg, ok := SonioxAdapter{}.InitialMessage("test_key", params, 1)
	require.True(t, ok)
	require.True(t, msg.Text)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Data, &decoded))
	return decoded
}

func TestSonioxInitialMessage(t *testing.T) {
	params := DefaultListenParams()
	params.Languages = langs("en", "ko")

	decoded := sonioxInitialJSON(t, params)
	assert.Equal(t, "test_key", decoded["api_key"])
	assert.Equal(t, "pcm_s16le", decoded["audio_format"])
	assert.Equal(t, float64(16000), decoded["sample_rate"])
	assert.Equal(t, []interface{}{"en", "ko"}, decoded["language_hints"])
	assert.Equal(t, true, decoded["language_hints_strict"])
}

func TestSonioxInitialMessageEmptyLanguages(t *testing.T) {
	decoded := sonioxInitialJSON(t, DefaultListenParams())
	_, hasHints := decoded["language_hints"]
	assert.False(t, hasHints)
	_, hasStrict := decoded["language_hints_strict"]
	assert.False(t, hasStrict)
}

func TestSonioxParseSplitsFinalAndNonFinal(t *testing.T) {
	raw := `{"tokens":[` +
		`{"text":"hello","start_ms":100,"end_ms":400,"confidence":0.9,"is_final":true},` +
		`{"text":" wor","start_ms":450,"end_ms":600,"confidence":0.5,"is_final":false}` +
		`]}`

	responses := SonioxAdapter{}.ParseResponse(raw)
	require.Len(t, responses, 2)

	final := responses[0].(*Transcript)
	assert.True(t, final.IsFinal)
	assert.Equal(t, "hello", final.Channel.Alternatives[0].Transcript)
	assert.InDelta(t, 0.1, final.Start, 1e-9)

	partial := responses[1].(*Transcript)
	assert.False(t, partial.IsFinal)
	assert.Equal(t, " wor", partial.Channel.Alternatives[0].Transcript)
}

func TestSonioxParseFinMarker(t *testing.T) {
	raw := `{"tokens":[` +
		`{"text":"done","start_ms":0,"end_ms":300,"is_final":true},` +
		`{"text":"<fin>","is_final":true}` +
		`]}`

	responses := SonioxAdapter{}.ParseResponse(raw)
	require.Len(t, responses, 1)

	final := responses[0].(*Transcript)
	assert.True(t, final.IsFinal)
	assert.True(t, final.SpeechFinal)
	assert.True(t, final.FromFinalize)
	assert.Equal(t, "done", final.Channel.Alternatives[0].Transcript)
}

func TestSonioxParseError(t *testing.T) {
	responses := SonioxAdapter{}.ParseResponse(`{"error_code":429,"error_message":"rate limited"}`)
	require.Len(t, responses, 1)

	e := responses[0].(*StreamError)
	assert.Equal(t, "soniox", e.Provider)
	assert.Equal(t, "rate limited", e.ErrorMessage)
	require.NotNil(t, e.ErrorCode)
	assert.Equal(t, 429, *e.ErrorCode)
}

func TestSonioxParseSpeakerVariants(t *testing.T) {
	raw := `{"tokens":[` +
		`{"text":"a","is_final":true,"speaker":2},` +
		`{"text":"b","is_final":true,"speaker":"spk3"}` +
		`]}`

	responses := SonioxAdapter{}.ParseResponse(raw)
	require.Len(t, responses, 1)

	words := responses[0].(*Transcript).Channel.Alternatives[0].Words
	require.Len(t, words, 2)
	require.NotNil(t, words[0].Speaker)
	assert.Equal(t, 2, *words[0].Speaker)
	require.NotNil(t, words[1].Speaker)
	assert.Equal(t, 3, *words[1].Speaker)
}

func TestSonioxParseGarbage(t *testing.T) {
	assert.Empty(t, SonioxAdapter{}.ParseResponse("not json"))
	assert.Empty(t, SonioxAdapter{}.ParseResponse(`{"tokens":[]}`))
}
