package stt

import (
	"context"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/echonote-ai/echonote/pkg/language"
)

// Message is a WebSocket frame to send upstream. Most vendors take raw binary
// PCM; OpenAI and ElevenLabs wrap audio in base64 JSON text frames.
type Message struct {
	Text bool
	Data []byte
}

func TextMessage(s string) Message { return Message{Text: true, Data: []byte(s)} }

func BinaryMessage(b []byte) Message { return Message{Data: b} }

// RealtimeAdapter normalises one vendor's streaming protocol. Adapters are
// stateless values; a session holds at most two of them (split-dual).
type RealtimeAdapter interface {
	ProviderName() string
	SupportsNativeMultichannel() bool
	IsSupportedLanguages(langs []language.Language, model string) bool

	BuildWSURL(apiBase string, params ListenParams, channels int) (*url.URL, error)
	// BuildWSURLWithAPIKey exists for vendors that need a handshake before the
	// socket URL is known (Gladia's two-phase session init). Everyone else
	// delegates to BuildWSURL.
	BuildWSURLWithAPIKey(ctx context.Context, apiBase string, params ListenParams, channels int, apiKey string) (*url.URL, error)
	BuildAuthHeader(apiKey string) (name, value string, ok bool)

	// InitialMessage is the config frame sent right after connect, if any.
	InitialMessage(apiKey string, params ListenParams, channels int) (Message, bool)
	AudioToMessage(audio []byte) Message
	KeepAliveMessage() (Message, bool)
	FinalizeMessage() Message

	// ParseResponse may yield zero, one, or two responses (Soniox splits one
	// upstream message into a final and a non-final transcript).
	ParseResponse(raw string) []StreamResponse
}

// BatchAdapter normalises one vendor's prerecorded-file API.
type BatchAdapter interface {
	IsSupportedLanguagesBatch(langs []language.Language, model string) bool
	TranscribeFile(ctx context.Context, client *resty.Client, apiBase, apiKey string, params ListenParams, filePath string) (*BatchResponse, error)
}

// baseAdapter supplies the defaults shared by most vendors.
type baseAdapter struct{}

func (baseAdapter) AudioToMessage(audio []byte) Message { return BinaryMessage(audio) }

func (baseAdapter) InitialMessage(string, ListenParams, int) (Message, bool) {
	return Message{}, false
}

func (baseAdapter) KeepAliveMessage() (Message, bool) { return Message{}, false }

// AdapterKind is the closed set of adapters, the seven cloud vendors plus the
// local Argmax engine.
type AdapterKind string

const (
	KindArgmax     AdapterKind = "argmax"
	KindSoniox     AdapterKind = "soniox"
	KindFireworks  AdapterKind = "fireworks"
	KindDeepgram   AdapterKind = "deepgram"
	KindAssemblyAI AdapterKind = "assemblyai"
	KindOpenAI     AdapterKind = "openai"
	KindGladia     AdapterKind = "gladia"
	KindElevenLabs AdapterKind = "elevenlabs"
)

func (k AdapterKind) Realtime() RealtimeAdapter {
	switch k {
	case KindArgmax:
		return ArgmaxAdapter{}
	case KindSoniox:
		return SonioxAdapter{}
	case KindFireworks:
		return FireworksAdapter{}
	case KindAssemblyAI:
		return AssemblyAIAdapter{}
	case KindOpenAI:
		return OpenAIAdapter{}
	case KindGladia:
		return GladiaAdapter{}
	case KindElevenLabs:
		return ElevenLabsAdapter{}
	default:
		return DeepgramAdapter{}
	}
}

func (k AdapterKind) Batch() (BatchAdapter, bool) {
	switch k {
	case KindDeepgram:
		return DeepgramAdapter{}, true
	case KindSoniox:
		return SonioxAdapter{}, true
	case KindAssemblyAI:
		return AssemblyAIAdapter{}, true
	case KindGladia:
		return GladiaAdapter{}, true
	case KindOpenAI:
		return OpenAIAdapter{}, true
	case KindElevenLabs:
		return ElevenLabsAdapter{}, true
	case KindFireworks:
		return FireworksAdapter{}, true
	case KindArgmax:
		return ArgmaxAdapter{}, true
	default:
		return nil, false
	}
}

func KindForProvider(p Provider) AdapterKind {
	switch p {
	case ProviderSoniox:
		return KindSoniox
	case ProviderAssemblyAI:
		return KindAssemblyAI
	case ProviderGladia:
		return KindGladia
	case ProviderFireworks:
		return KindFireworks
	case ProviderOpenAI:
		return KindOpenAI
	case ProviderElevenLabs:
		return KindElevenLabs
	default:
		return KindDeepgram
	}
}

// KindFromURLAndLanguages picks the adapter for a base URL: proxy bases get
// Deepgram when it can serve the language set and Soniox otherwise; local
// non-proxy bases get Argmax; known vendor hosts match directly; anything
// else defaults to Deepgram.
func KindFromURLAndLanguages(baseURL string, langs []language.Language, model string) AdapterKind {
	if IsTranscribeProxy(baseURL) {
		if (DeepgramAdapter{}).IsSupportedLanguages(langs, model) {
			return KindDeepgram
		}
		return KindSoniox
	}

	if isLocalArgmax(baseURL) {
		return KindArgmax
	}

	if p, ok := ProviderFromURL(baseURL); ok {
		return KindForProvider(p)
	}
	return KindDeepgram
}

func isLocalHost(host string) bool {
	return host == "127.0.0.1" || host == "localhost" || host == "0.0.0.0" || host == "::1"
}

func isTranscribeProxyCloud(baseURL string) bool {
	u, err := url.Parse(baseURL)
	if err != nil {
		return false
	}
	return strings.Contains(u.Hostname(), "hyprnote.com")
}

func isTranscribeProxyLocal(baseURL string) bool {
	u, err := url.Parse(baseURL)
	if err != nil {
		return false
	}
	return isLocalHost(u.Hostname()) && strings.Contains(u.Path, "/stt")
}

// IsTranscribeProxy reports whether the base URL points at the vendor-neutral
// proxy rather than a vendor host.
func IsTranscribeProxy(baseURL string) bool {
	return isTranscribeProxyCloud(baseURL) || isTranscribeProxyLocal(baseURL)
}

func isLocalArgmax(baseURL string) bool {
	u, err := url.Parse(baseURL)
	if err != nil {
		return false
	}
	return isLocalHost(u.Hostname()) && !isTranscribeProxyLocal(baseURL)
}

func setSchemeFromHost(u *url.URL) {
	if isLocalHost(u.Hostname()) {
		u.Scheme = "ws"
	} else {
		u.Scheme = "wss"
	}
}

func extractQueryParams(u *url.URL) [][2]string {
	var out [][2]string
	for _, pair := range strings.Split(u.RawQuery, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		ku, err := url.QueryUnescape(k)
		if err != nil {
			continue
		}
		vu, err := url.QueryUnescape(v)
		if err != nil {
			continue
		}
		out = append(out, [2]string{ku, vu})
	}
	return out
}

func appendPathIfMissing(u *url.URL, suffix string) {
	path := u.Path
	trimmed := strings.TrimPrefix(suffix, "/")
	if strings.HasSuffix(path, suffix) || strings.HasSuffix(path, suffix+"/") {
		return
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	u.Path = path + trimmed
}

// BuildProxyWSURL collapses a proxy base into ws(s)://{host}{path}/listen and
// returns the existing query pairs (notably ?provider=) for re-appending.
func BuildProxyWSURL(apiBase string) (*url.URL, [][2]string, bool) {
	if apiBase == "" {
		return nil, nil, false
	}

	u, err := url.Parse(apiBase)
	if err != nil || u.Host == "" {
		return nil, nil, false
	}

	host := u.Hostname()
	if !strings.Contains(host, "hyprnote.com") && !isLocalHost(host) {
		return nil, nil, false
	}

	existing := extractQueryParams(u)
	u.RawQuery = ""
	appendPathIfMissing(u, "/listen")
	setSchemeFromHost(u)
	return u, existing, true
}

// AppendProviderParam appends ?provider= to a base URL, returning the input
// unchanged when it does not parse.
func AppendProviderParam(baseURL, provider string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return baseURL
	}
	q := u.Query()
	q.Set("provider", provider)
	u.RawQuery = q.Encode()
	return u.String()
}

func appendQueryPairs(u *url.URL, pairs [][2]string) {
	if len(pairs) == 0 {
		return
	}
	q := u.Query()
	for _, kv := range pairs {
		q.Add(kv[0], kv[1])
	}
	u.RawQuery = q.Encode()
}

// NormalizeLanguages deduplicates by ISO-639 code, preferring the bare code
// over a regional variant when both appear.
func NormalizeLanguages(langs []language.Language) []language.Language {
	seen := make(map[string]int)
	result := make([]language.Language, 0, len(langs))

	for _, lang := range langs {
		code := lang.ISO639()
		if pos, ok := seen[code]; ok {
			if !lang.HasRegion() {
				result[pos] = lang
			}
			continue
		}
		seen[code] = len(result)
		result = append(result, lang)
	}
	return result
}

func primaryLanguage(langs []language.Language) string {
	if len(langs) == 0 {
		return "en"
	}
	return langs[0].ISO639()
}

func containsCode(set []string, code string) bool {
	for _, c := range set {
		if c == code {
			return true
		}
	}
	return false
}
