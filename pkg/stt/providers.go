package stt

import (
	"net/url"
	"strings"
)

// Provider identifies a cloud STT vendor. Argmax is absent on purpose: it is
// a local engine reachable only through AdapterKind.
type Provider string

const (
	ProviderDeepgram   Provider = "deepgram"
	ProviderSoniox     Provider = "soniox"
	ProviderAssemblyAI Provider = "assemblyai"
	ProviderGladia     Provider = "gladia"
	ProviderFireworks  Provider = "fireworks"
	ProviderOpenAI     Provider = "openai"
	ProviderElevenLabs Provider = "elevenlabs"
)

var AllProviders = []Provider{
	ProviderDeepgram, ProviderSoniox, ProviderAssemblyAI, ProviderGladia,
	ProviderFireworks, ProviderOpenAI, ProviderElevenLabs,
}

func ParseProvider(s string) (Provider, bool) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllProviders {
		if p == known {
			return known, true
		}
	}
	return "", false
}

func (p Provider) DefaultAPIHost() string {
	switch p {
	case ProviderDeepgram:
		return "api.deepgram.com"
	case ProviderSoniox:
		return "api.soniox.com"
	case ProviderAssemblyAI:
		return "api.assemblyai.com"
	case ProviderGladia:
		return "api.gladia.io"
	case ProviderFireworks:
		return "api.fireworks.ai"
	case ProviderOpenAI:
		return "api.openai.com"
	case ProviderElevenLabs:
		return "api.elevenlabs.io"
	}
	return ""
}

func (p Provider) DefaultAPIBase() string {
	switch p {
	case ProviderDeepgram:
		return "https://api.deepgram.com/v1"
	default:
		return "https://" + p.DefaultAPIHost()
	}
}

func (p Provider) WSPath() string {
	switch p {
	case ProviderDeepgram:
		return "/listen"
	case ProviderSoniox:
		return "/transcribe-websocket"
	case ProviderAssemblyAI:
		return "/v3/ws"
	case ProviderGladia:
		return "/v2/live"
	case ProviderFireworks:
		return "/v1/audio/transcriptions/streaming"
	case ProviderOpenAI:
		return "/v1/realtime"
	case ProviderElevenLabs:
		return "/v1/speech-to-text/realtime"
	}
	return ""
}

func (p Provider) DefaultWSURL() string {
	switch p {
	case ProviderDeepgram:
		return "wss://api.deepgram.com/v1/listen"
	case ProviderSoniox:
		return "wss://stt-rt.soniox.com/transcribe-websocket"
	case ProviderAssemblyAI:
		return "wss://streaming.assemblyai.com/v3/ws"
	case ProviderGladia:
		return "wss://api.gladia.io/v2/live"
	case ProviderFireworks:
		return "wss://audio-streaming-v2.fireworks.ai/v1/audio/transcriptions/streaming"
	case ProviderOpenAI:
		return "wss://api.openai.com/v1/realtime?intent=transcription"
	case ProviderElevenLabs:
		return "wss://api.elevenlabs.io/v1/speech-to-text/realtime"
	}
	return ""
}

func (p Provider) DefaultLiveModel() string {
	switch p {
	case ProviderDeepgram:
		return "nova-3"
	case ProviderSoniox:
		return "stt-rt-preview"
	case ProviderAssemblyAI:
		return "universal-streaming-english"
	case ProviderGladia:
		return "solaria-1"
	case ProviderFireworks:
		return "whisper-v3-turbo"
	case ProviderOpenAI:
		return "gpt-4o-transcribe"
	case ProviderElevenLabs:
		return "scribe_v1"
	}
	return ""
}

func (p Provider) DefaultBatchModel() string {
	switch p {
	case ProviderSoniox:
		return "stt-async-preview"
	case ProviderOpenAI:
		return "whisper-1"
	default:
		return p.DefaultLiveModel()
	}
}

// EnvKeyName is the environment variable the adapter key is read from.
func (p Provider) EnvKeyName() string {
	return strings.ToUpper(string(p)) + "_API_KEY"
}

// BuildAuthHeader returns the provider's auth header, or ok=false for Soniox,
// which authenticates in-band through its initial config frame. Gladia's
// header is the one its session-init POST carries.
func (p Provider) BuildAuthHeader(apiKey string) (name, value string, ok bool) {
	if apiKey == "" {
		return "", "", false
	}
	switch p {
	case ProviderDeepgram:
		return "Authorization", "Token " + apiKey, true
	case ProviderAssemblyAI:
		return "Authorization", apiKey, true
	case ProviderFireworks, ProviderOpenAI:
		return "Authorization", "Bearer " + apiKey, true
	case ProviderElevenLabs:
		return "xi-api-key", apiKey, true
	case ProviderGladia:
		return "x-gladia-key", apiKey, true
	}
	return "", "", false
}

// MatchesURL reports whether the base URL points at this provider's host.
func (p Provider) MatchesURL(baseURL string) bool {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return false
	}
	host := u.Hostname()

	switch p {
	case ProviderDeepgram:
		return strings.HasSuffix(host, "deepgram.com")
	case ProviderSoniox:
		return strings.HasSuffix(host, "soniox.com")
	case ProviderAssemblyAI:
		return strings.HasSuffix(host, "assemblyai.com")
	case ProviderGladia:
		return strings.HasSuffix(host, "gladia.io")
	case ProviderFireworks:
		return strings.HasSuffix(host, "fireworks.ai")
	case ProviderOpenAI:
		return strings.HasSuffix(host, "openai.com")
	case ProviderElevenLabs:
		return strings.HasSuffix(host, "elevenlabs.io")
	}
	return false
}

// ProviderFromURL matches a base URL against the known vendor hosts.
func ProviderFromURL(baseURL string) (Provider, bool) {
	for _, p := range AllProviders {
		if p.MatchesURL(baseURL) {
			return p, true
		}
	}
	return "", false
}

// isMetaModel reports whether the model name is a placeholder the UI uses
// ("cloud", "auto") rather than a vendor model id.
func isMetaModel(model string) bool {
	switch model {
	case "cloud", "auto", "default":
		return true
	}
	return false
}

// resolveProviderModel maps meta models and empty strings to the provider default.
func resolveProviderModel(model string, def string) string {
	if model == "" || isMetaModel(model) {
		return def
	}
	return model
}
