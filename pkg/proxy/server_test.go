package proxy

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echonote-ai/echonote/pkg/stt"
)

func testServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = stt.ProviderDeepgram
	}
	if cfg.APIKeys == nil {
		cfg.APIKeys = map[stt.Provider]string{}
	}
	if cfg.BaseURLs == nil {
		cfg.BaseURLs = map[stt.Provider]string{}
	}
	s, err := NewServer(cfg, log.Default())
	require.NoError(t, err)
	return s
}

func TestHealthEndpoint(t *testing.T) {
	s := testServer(t, Config{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestBatchEmptyBodyIs400(t *testing.T) {
	s := testServer(t, Config{APIKeys: map[stt.Provider]string{stt.ProviderDeepgram: "key"}})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/listen", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing_audio_data")
}

func TestBatchUnknownProviderIs400(t *testing.T) {
	s := testServer(t, Config{})

	req := httptest.NewRequest(http.MethodPost, "/listen?provider=nonsense", strings.NewReader("audio"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown_provider")
}

func TestBatchMissingKeyIs400(t *testing.T) {
	s := testServer(t, Config{})

	req := httptest.NewRequest(http.MethodPost, "/listen", strings.NewReader("audio"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "provider_not_configured")
}

func TestBatchUpstreamFailureIs502(t *testing.T) {
	// An unreachable vendor base makes the adapter fail fast.
	s := testServer(t, Config{
		APIKeys:  map[stt.Provider]string{stt.ProviderDeepgram: "key"},
		BaseURLs: map[stt.Provider]string{stt.ProviderDeepgram: "http://127.0.0.1:1"},
	})

	req := httptest.NewRequest(http.MethodPost, "/listen?model=nova-3&language=en", strings.NewReader("RIFFdata"))
	req.Header.Set("Content-Type", "audio/wav")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "transcription_failed")
}

func TestResolveProviderOrder(t *testing.T) {
	cfg := Config{DefaultProvider: stt.ProviderSoniox}

	p, err := cfg.ResolveProvider("gladia")
	require.NoError(t, err)
	assert.Equal(t, stt.ProviderGladia, p)

	p, err = cfg.ResolveProvider("")
	require.NoError(t, err)
	assert.Equal(t, stt.ProviderSoniox, p)

	_, err = cfg.ResolveProvider("bogus")
	assert.Error(t, err)

	p, err = Config{}.ResolveProvider("")
	require.NoError(t, err)
	assert.Equal(t, stt.ProviderDeepgram, p)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("DEFAULT_STT_PROVIDER", "soniox")
	t.Setenv("DEEPGRAM_API_KEY", "dg-key")
	t.Setenv("SONIOX_API_KEY", "sx-key")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, stt.ProviderSoniox, cfg.DefaultProvider)
	assert.Equal(t, "dg-key", cfg.APIKeys[stt.ProviderDeepgram])
	assert.Equal(t, "sx-key", cfg.APIKeys[stt.ProviderSoniox])
}

func TestConfigFromEnvRejectsBadPort(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	_, err := ConfigFromEnv()
	assert.Error(t, err)
}

func TestMetricsEndpointServes(t *testing.T) {
	s := testServer(t, Config{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
