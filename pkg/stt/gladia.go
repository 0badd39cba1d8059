package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/go-resty/resty/v2"

	"github.com/echonote-ai/echonote/pkg/language"
)

// https://docs.gladia.io/chapters/language/supported-languages
var gladiaSupportedLanguages = []string{
	"af", "sq", "am", "ar", "hy", "as", "az", "ba", "eu", "be", "bn", "bs",
	"br", "bg", "ca", "zh", "hr", "cs", "da", "nl", "en", "et", "fo", "fi",
	"fr", "gl", "ka", "de", "el", "gu", "ht", "ha", "he", "hi", "hu", "is",
	"id", "it", "ja", "jw", "kn", "kk", "km", "ko", "lo", "la", "lv", "ln",
	"lt", "lb", "mk", "mg", "ms", "ml", "mt", "mi", "mr", "mn", "my", "ne",
	"no", "nn", "oc", "ps", "fa", "pl", "pt", "pa", "ro", "ru", "sa", "sr",
	"sn", "sd", "si", "sk", "sl", "so", "es", "su", "sw", "sv", "tl", "tg",
	"ta", "tt", "te", "th", "bo", "tr", "tk", "uk", "ur", "uz", "vi", "cy",
	"wo", "yi", "yo",
}

// sessionChannels is the process-wide session_id → channel count map. Entries
// are written at session init and consumed at end_session; the cap guards
// against mis-sequenced terminals leaking entries forever.
type sessionChannelStore struct {
	mu      sync.Mutex
	entries map[string]int
}

const sessionChannelCap = 1024

var sessionChannels = &sessionChannelStore{entries: make(map[string]int)}

func (s *sessionChannelStore) insert(sessionID string, channels int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) >= sessionChannelCap {
		for k := range s.entries {
			delete(s.entries, k)
			break
		}
	}
	s.entries[sessionID] = channels
}

func (s *sessionChannelStore) remove(sessionID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.entries[sessionID]
	if ok {
		delete(s.entries, sessionID)
	}
	return n, ok
}

type GladiaAdapter struct {
	baseAdapter
}

func (GladiaAdapter) ProviderName() string { return "gladia" }

func (GladiaAdapter) SupportsNativeMultichannel() bool { return true }

func (GladiaAdapter) IsSupportedLanguages(langs []language.Language, _ string) bool {
	return containsCode(gladiaSupportedLanguages, primaryLanguage(langs))
}

func (a GladiaAdapter) IsSupportedLanguagesBatch(langs []language.Language, model string) bool {
	return a.IsSupportedLanguages(langs, model)
}

func gladiaURLWithScheme(parsed *url.URL, path string, useWS bool) (*url.URL, error) {
	host := parsed.Hostname()
	if host == "" {
		host = ProviderGladia.DefaultAPIHost()
	}
	local := isLocalHost(host)

	var scheme string
	switch {
	case useWS && local:
		scheme = "ws"
	case useWS:
		scheme = "wss"
	case local:
		scheme = "http"
	default:
		scheme = "https"
	}

	hostWithPort := host
	if port := parsed.Port(); port != "" {
		hostWithPort = host + ":" + port
	}
	return url.Parse(fmt.Sprintf("%s://%s%s", scheme, hostWithPort, path))
}

func gladiaWSURLFromBase(apiBase string) (*url.URL, [][2]string, error) {
	if apiBase == "" {
		u, err := url.Parse(ProviderGladia.DefaultWSURL())
		return u, nil, err
	}

	if proxyURL, pairs, ok := BuildProxyWSURL(apiBase); ok {
		return proxyURL, pairs, nil
	}

	parsed, err := url.Parse(apiBase)
	if err != nil {
		return nil, nil, err
	}
	existing := extractQueryParams(parsed)
	u, err := gladiaURLWithScheme(parsed, ProviderGladia.WSPath(), true)
	if err != nil {
		return nil, nil, err
	}
	return u, existing, nil
}

func gladiaHTTPURL(apiBase string) (*url.URL, error) {
	if apiBase == "" {
		return url.Parse("https://" + ProviderGladia.DefaultAPIHost() + ProviderGladia.WSPath())
	}
	parsed, err := url.Parse(apiBase)
	if err != nil {
		return nil, err
	}
	return gladiaURLWithScheme(parsed, ProviderGladia.WSPath(), false)
}

func (GladiaAdapter) BuildWSURL(apiBase string, _ ListenParams, _ int) (*url.URL, error) {
	u, existing, err := gladiaWSURLFromBase(apiBase)
	if err != nil {
		return nil, err
	}
	appendQueryPairs(u, existing)
	return u, nil
}

type gladiaLanguageConfig struct {
	Languages     []string `json:"languages"`
	CodeSwitching bool     `json:"code_switching"`
}

type gladiaInitRequest struct {
	Encoding       string                `json:"encoding"`
	SampleRate     int                   `json:"sample_rate"`
	BitDepth       int                   `json:"bit_depth"`
	Channels       int                   `json:"channels"`
	Model          string                `json:"model,omitempty"`
	LanguageConfig *gladiaLanguageConfig `json:"language_config,omitempty"`
	MessagesConfig *struct {
		ReceivePartialTranscripts bool `json:"receive_partial_transcripts"`
		ReceiveFinalTranscripts   bool `json:"receive_final_transcripts"`
	} `json:"messages_config,omitempty"`
	PreProcessing *struct {
		AudioEnhancer bool `json:"audio_enhancer"`
	} `json:"pre_processing,omitempty"`
	RealtimeProcessing *gladiaRealtimeProcessing `json:"realtime_processing,omitempty"`
}

type gladiaRealtimeProcessing struct {
	WordsAccurateTimestamps bool `json:"words_accurate_timestamps"`
	CustomVocabulary        bool `json:"custom_vocabulary,omitempty"`
	CustomVocabularyConfig  *struct {
		Vocabulary []string `json:"vocabulary"`
	} `json:"custom_vocabulary_config,omitempty"`
}

// BuildWSURLWithAPIKey runs Gladia's two-phase handshake: POST the session
// config, receive the per-session socket URL. Proxy bases skip the handshake,
// the proxy runs it upstream.
// https://docs.gladia.io/api-reference/v2/live/init
func (a GladiaAdapter) BuildWSURLWithAPIKey(ctx context.Context, apiBase string, params ListenParams, channels int, apiKey string) (*url.URL, error) {
	if proxyURL, pairs, ok := BuildProxyWSURL(apiBase); ok {
		appendQueryPairs(proxyURL, pairs)
		return proxyURL, nil
	}

	if apiKey == "" {
		return nil, fmt.Errorf("gladia requires an api key for session init")
	}

	postURL, err := gladiaHTTPURL(apiBase)
	if err != nil {
		return nil, err
	}

	req := gladiaInitRequest{
		Encoding:   "wav/pcm",
		SampleRate: params.SampleRate,
		BitDepth:   16,
		Channels:   channels,
	}
	if model := params.Model; model != "" && !isMetaModel(model) {
		req.Model = model
	}
	if codes := language.Codes(params.Languages); len(codes) > 0 {
		req.LanguageConfig = &gladiaLanguageConfig{
			Languages:     codes,
			CodeSwitching: len(codes) > 1,
		}
	}
	req.MessagesConfig = &struct {
		ReceivePartialTranscripts bool `json:"receive_partial_transcripts"`
		ReceiveFinalTranscripts   bool `json:"receive_final_transcripts"`
	}{true, true}
	req.PreProcessing = &struct {
		AudioEnhancer bool `json:"audio_enhancer"`
	}{true}
	rt := &gladiaRealtimeProcessing{WordsAccurateTimestamps: true}
	if len(params.Keywords) > 0 {
		rt.CustomVocabulary = true
		rt.CustomVocabularyConfig = &struct {
			Vocabulary []string `json:"vocabulary"`
		}{Vocabulary: params.Keywords}
	}
	req.RealtimeProcessing = rt

	var init struct {
		ID  string `json:"id"`
		URL string `json:"url"`

		Message string `json:"message"`
	}
	resp, err := resty.New().R().
		SetContext(ctx).
		SetHeader("x-gladia-key", apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&init).
		Post(postURL.String())
	if err != nil {
		return nil, fmt.Errorf("gladia session init: %w", err)
	}
	if resp.IsError() || init.URL == "" {
		if init.Message != "" {
			return nil, fmt.Errorf("gladia session init failed: %s", init.Message)
		}
		return nil, fmt.Errorf("gladia session init failed (status %d): %s", resp.StatusCode(), resp.String())
	}

	sessionChannels.insert(init.ID, channels)

	return url.Parse(init.URL)
}

// Gladia authenticates through the init POST; the socket URL is pre-signed.
func (GladiaAdapter) BuildAuthHeader(string) (string, string, bool) { return "", "", false }

func (GladiaAdapter) FinalizeMessage() Message {
	return TextMessage(`{"type":"stop_recording"}`)
}

type gladiaWord struct {
	Word       string  `json:"word"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

type gladiaUtterance struct {
	Text       string       `json:"text"`
	Start      float64      `json:"start"`
	End        float64      `json:"end"`
	Confidence float64      `json:"confidence"`
	Channel    *int         `json:"channel"`
	Language   string       `json:"language"`
	Speaker    *int         `json:"speaker"`
	Words      []gladiaWord `json:"words"`
}

func (GladiaAdapter) ParseResponse(raw string) []StreamResponse {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return nil
	}

	switch probe.Type {
	case "transcript":
		var msg struct {
			SessionID string `json:"session_id"`
			Data      struct {
				IsFinal   bool            `json:"is_final"`
				Utterance gladiaUtterance `json:"utterance"`
			} `json:"data"`
		}
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil
		}
		return parseGladiaUtterance(msg.SessionID, msg.Data.IsFinal, msg.Data.Utterance)

	case "end_session":
		var msg struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil
		}
		channels, ok := sessionChannels.remove(msg.ID)
		if !ok {
			channels = 1
		}
		return []StreamResponse{NewTerminal(msg.ID, 0, channels)}

	case "error":
		var msg struct {
			Message string `json:"message"`
			Code    *int   `json:"code"`
		}
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil
		}
		return []StreamResponse{NewStreamError("gladia", msg.Message, msg.Code)}

	default:
		// start_session, speech_start, speech_end, start/end_recording.
		return nil
	}
}

func parseGladiaUtterance(sessionID string, isFinal bool, utt gladiaUtterance) []StreamResponse {
	if utt.Text == "" && len(utt.Words) == 0 {
		return nil
	}

	words := make([]Word, 0, len(utt.Words))
	for _, w := range utt.Words {
		words = append(words, Word{
			Word:       w.Word,
			Start:      w.Start,
			End:        w.End,
			Confidence: w.Confidence,
			Speaker:    utt.Speaker,
			Language:   utt.Language,
		})
	}

	var languages []string
	if utt.Language != "" {
		languages = []string{utt.Language}
	}

	t := NewTranscript()
	t.IsFinal = isFinal
	t.SpeechFinal = isFinal
	t.Start = utt.Start
	t.Duration = utt.End - utt.Start
	t.Channel = Channel{Alternatives: []Alternative{{
		Transcript: utt.Text,
		Confidence: utt.Confidence,
		Languages:  languages,
		Words:      words,
	}}}
	if utt.Channel != nil {
		total := *utt.Channel + 1
		if n, ok := func() (int, bool) {
			sessionChannels.mu.Lock()
			defer sessionChannels.mu.Unlock()
			n, ok := sessionChannels.entries[sessionID]
			return n, ok
		}(); ok {
			total = n
		}
		if total < 1 {
			total = 1
		}
		t.ChannelIndex = []int{*utt.Channel, total}
	}
	return []StreamResponse{t}
}

var _ RealtimeAdapter = GladiaAdapter{}
