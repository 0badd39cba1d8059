package stt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGladiaWSURLFromBase(t *testing.T) {
	cases := []struct {
		in       string
		expected string
	}{
		{"", "wss://api.gladia.io/v2/live"},
		{"https://api.gladia.io", "wss://api.gladia.io/v2/live"},
		{"https://api.gladia.io:8443", "wss://api.gladia.io:8443/v2/live"},
		{"https://api.hyprnote.com?provider=gladia", "wss://api.hyprnote.com/listen?provider=gladia"},
		{"http://localhost:8787/listen?provider=gladia", "ws://localhost:8787/listen?provider=gladia"},
	}

	for _, c := range cases {
		u, err := GladiaAdapter{}.BuildWSURL(c.in, DefaultListenParams(), 2)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.expected, u.String(), c.in)
	}
}

func TestGladiaParseTranscriptUsesSessionChannels(t *testing.T) {
	sessionChannels.insert("sess-1", 2)
	defer sessionChannels.remove("sess-1")

	raw := `{"type":"transcript","session_id":"sess-1","data":{"is_final":true,` +
		`"utterance":{"text":"hi there","start":1.0,"end":2.0,"confidence":0.9,"channel":1,"language":"en",` +
		`"words":[{"word":"hi","start":1.0,"end":1.4,"confidence":0.9},{"word":"there","start":1.5,"end":2.0,"confidence":0.88}]}}}`

	responses := GladiaAdapter{}.ParseResponse(raw)
	require.Len(t, responses, 1)

	tr := responses[0].(*Transcript)
	assert.True(t, tr.IsFinal)
	assert.Equal(t, []int{1, 2}, tr.ChannelIndex)
	assert.Equal(t, "hi there", tr.Channel.Alternatives[0].Transcript)
	assert.Equal(t, []string{"en"}, tr.Channel.Alternatives[0].Languages)
}

func TestGladiaParseEndSessionConsumesChannels(t *testing.T) {
	sessionChannels.insert("sess-2", 2)

	responses := GladiaAdapter{}.ParseResponse(`{"type":"end_session","id":"sess-2"}`)
	require.Len(t, responses, 1)

	term := responses[0].(*Terminal)
	assert.Equal(t, "sess-2", term.RequestID)
	assert.Equal(t, 2, term.Channels)

	// Entry is consumed: a second terminal falls back to 1.
	responses = GladiaAdapter{}.ParseResponse(`{"type":"end_session","id":"sess-2"}`)
	require.Len(t, responses, 1)
	assert.Equal(t, 1, responses[0].(*Terminal).Channels)
}

func TestGladiaParseError(t *testing.T) {
	responses := GladiaAdapter{}.ParseResponse(`{"type":"error","message":"bad frame","code":400}`)
	require.Len(t, responses, 1)

	e := responses[0].(*StreamError)
	assert.Equal(t, "gladia", e.Provider)
	assert.Equal(t, "bad frame", e.ErrorMessage)
}

func TestGladiaParseIgnoresLifecycle(t *testing.T) {
	for _, raw := range []string{
		`{"type":"start_session","id":"x"}`,
		`{"type":"speech_start"}`,
		`{"type":"speech_end"}`,
		`{"type":"start_recording"}`,
		`{"type":"end_recording"}`,
	} {
		assert.Empty(t, GladiaAdapter{}.ParseResponse(raw), raw)
	}
}

func TestSessionChannelStoreCap(t *testing.T) {
	store := &sessionChannelStore{entries: make(map[string]int)}
	for i := 0; i < sessionChannelCap+10; i++ {
		store.insert(string(rune('a'+i%26))+string(rune('0'+i%10))+string(rune(i)), 2)
	}
	assert.LessOrEqual(t, len(store.entries), sessionChannelCap)
}
