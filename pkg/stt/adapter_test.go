package stt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echonote-ai/echonote/pkg/language"
)

func langs(codes ...string) []language.Language {
	out := make([]language.Language, len(codes))
	for i, c := range codes {
		out[i] = language.MustParse(c)
	}
	return out
}

func TestIsTranscribeProxy(t *testing.T) {
	assert.True(t, IsTranscribeProxy("https://api.hyprnote.com/stt"))
	assert.True(t, IsTranscribeProxy("https://api.hyprnote.com"))
	assert.True(t, IsTranscribeProxy("http://localhost:3001/stt"))
	assert.True(t, IsTranscribeProxy("http://127.0.0.1:3001/stt"))

	assert.False(t, IsTranscribeProxy("https://api.deepgram.com"))
	assert.False(t, IsTranscribeProxy("http://localhost:50060/v1"))
}

func TestIsLocalArgmax(t *testing.T) {
	assert.True(t, isLocalArgmax("http://localhost:50060/v1"))
	assert.True(t, isLocalArgmax("http://127.0.0.1:50060/v1"))

	assert.False(t, isLocalArgmax("https://api.hyprnote.com/stt"))
	assert.False(t, isLocalArgmax("http://localhost:3001/stt"))
	assert.False(t, isLocalArgmax("https://api.deepgram.com"))
}

func TestKindFromURLAndLanguages(t *testing.T) {
	cases := []struct {
		url      string
		langs    []language.Language
		expected AdapterKind
	}{
		{"https://api.hyprnote.com/stt", langs("en"), KindDeepgram},
		{"https://api.hyprnote.com/stt", langs("ja"), KindDeepgram},
		{"https://api.hyprnote.com/stt", langs("ar"), KindSoniox},
		{"https://api.hyprnote.com/stt", langs("en", "es"), KindDeepgram},
		{"https://api.hyprnote.com/stt", langs("en", "ko"), KindSoniox},
		{"https://api.hyprnote.com/stt", langs("ko", "en"), KindSoniox},
		{"http://localhost:3001/stt", langs("en"), KindDeepgram},
		{"http://localhost:3001/stt", langs("ar"), KindSoniox},
		{"http://localhost:50060/v1", langs("en"), KindArgmax},
		{"https://api.assemblyai.com", langs("en"), KindAssemblyAI},
		{"https://api.gladia.io", langs("en"), KindGladia},
		{"https://unknown.example.com", langs("en"), KindDeepgram},
	}

	for _, c := range cases {
		got := KindFromURLAndLanguages(c.url, c.langs, "")
		assert.Equal(t, c.expected, got, "url=%s langs=%v", c.url, c.langs)
	}
}

func TestBuildProxyWSURL(t *testing.T) {
	cases := []struct {
		in       string
		expected string
		params   [][2]string
		ok       bool
	}{
		{"", "", nil, false},
		{"https://api.deepgram.com", "", nil, false},
		{"https://api.hyprnote.com/stt?provider=soniox", "wss://api.hyprnote.com/stt/listen", [][2]string{{"provider", "soniox"}}, true},
		{"https://api.hyprnote.com/stt/listen?provider=deepgram", "wss://api.hyprnote.com/stt/listen", [][2]string{{"provider", "deepgram"}}, true},
		{"http://localhost:8787/stt?provider=soniox", "ws://localhost:8787/stt/listen", [][2]string{{"provider", "soniox"}}, true},
		{"http://127.0.0.1:8787/stt?provider=assemblyai", "ws://127.0.0.1:8787/stt/listen", [][2]string{{"provider", "assemblyai"}}, true},
	}

	for _, c := range cases {
		u, params, ok := BuildProxyWSURL(c.in)
		assert.Equal(t, c.ok, ok, c.in)
		if !ok {
			continue
		}
		assert.Equal(t, c.expected, u.String(), c.in)
		assert.Equal(t, c.params, params, c.in)
	}
}

func TestNormalizeLanguages(t *testing.T) {
	en := language.New("en")
	enGB := language.WithRegion("en", "GB")
	es := language.New("es")

	result := NormalizeLanguages([]language.Language{en, enGB, es})
	require.Len(t, result, 2)
	assert.Equal(t, "en", result[0].ISO639())
	assert.False(t, result[0].HasRegion())
	assert.Equal(t, "es", result[1].ISO639())

	// Bare code wins over regional regardless of order.
	result = NormalizeLanguages([]language.Language{enGB, en})
	require.Len(t, result, 1)
	assert.False(t, result[0].HasRegion())

	// Regional survives when no bare variant appears.
	result = NormalizeLanguages([]language.Language{enGB, es})
	require.Len(t, result, 2)
	assert.Equal(t, "GB", result[0].Region())
}

func TestAppendProviderParam(t *testing.T) {
	out := AppendProviderParam("https://api.hyprnote.com/stt", "soniox")
	assert.Contains(t, out, "provider=soniox")
}

func TestBatchRegistry(t *testing.T) {
	for _, kind := range []AdapterKind{KindDeepgram, KindSoniox, KindAssemblyAI, KindGladia, KindOpenAI, KindElevenLabs, KindFireworks, KindArgmax} {
		_, ok := kind.Batch()
		assert.True(t, ok, kind)
	}
}
