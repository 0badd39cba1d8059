package stt

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/echonote-ai/echonote/pkg/language"
)

// https://soniox.com/docs/stt/concepts/supported-languages
var sonioxSupportedLanguages = []string{
	"af", "sq", "ar", "az", "eu", "be", "bn", "bs", "bg", "ca", "zh", "hr",
	"cs", "da", "nl", "en", "et", "fi", "fr", "gl", "de", "el", "gu", "he",
	"hi", "hu", "id", "it", "ja", "kn", "kk", "ko", "lv", "lt", "mk", "ms",
	"ml", "mr", "no", "fa", "pl", "pt", "pa", "ro", "ru", "sr", "sk", "sl",
	"es", "sw", "sv", "tl", "ta", "te", "th", "tr", "uk", "ur", "vi", "cy",
}

type SonioxAdapter struct {
	baseAdapter
}

func (SonioxAdapter) ProviderName() string { return "soniox" }

func (SonioxAdapter) SupportsNativeMultichannel() bool { return false }

func (SonioxAdapter) IsSupportedLanguages(langs []language.Language, _ string) bool {
	return containsCode(sonioxSupportedLanguages, primaryLanguage(langs))
}

func (a SonioxAdapter) IsSupportedLanguagesBatch(langs []language.Language, model string) bool {
	return a.IsSupportedLanguages(langs, model)
}

func sonioxAPIHost(apiBase string) string {
	if apiBase == "" {
		return ProviderSoniox.DefaultAPIHost()
	}
	u, err := url.Parse(apiBase)
	if err != nil || u.Hostname() == "" {
		return ProviderSoniox.DefaultAPIHost()
	}
	return u.Hostname()
}

// sonioxWSHost maps api.{domain} to stt-rt.{domain}.
func sonioxWSHost(apiBase string) string {
	host := sonioxAPIHost(apiBase)
	if rest, ok := strings.CutPrefix(host, "api."); ok {
		return "stt-rt." + rest
	}
	return "stt-rt.soniox.com"
}

func sonioxWSURLFromBase(apiBase string) (*url.URL, [][2]string, error) {
	if apiBase == "" {
		u, err := url.Parse(ProviderSoniox.DefaultWSURL())
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

	u, err := url.Parse("wss://" + sonioxWSHost(apiBase) + ProviderSoniox.WSPath())
	if err != nil {
		return nil, nil, err
	}
	return u, existing, nil
}

func (SonioxAdapter) BuildWSURL(apiBase string, _ ListenParams, _ int) (*url.URL, error) {
	u, existing, err := sonioxWSURLFromBase(apiBase)
	if err != nil {
		return nil, err
	}
	appendQueryPairs(u, existing)
	return u, nil
}

func (a SonioxAdapter) BuildWSURLWithAPIKey(_ context.Context, apiBase string, params ListenParams, channels int, _ string) (*url.URL, error) {
	return a.BuildWSURL(apiBase, params, channels)
}

// Soniox authenticates through the initial config frame, not a header.
func (SonioxAdapter) BuildAuthHeader(string) (string, string, bool) { return "", "", false }

// https://soniox.com/docs/stt/rt/connection-keepalive
func (SonioxAdapter) KeepAliveMessage() (Message, bool) {
	return TextMessage(`{"type":"keepalive"}`), true
}

// https://soniox.com/docs/stt/rt/manual-finalization
func (SonioxAdapter) FinalizeMessage() Message {
	return TextMessage(`{"type":"finalize"}`)
}

type sonioxContext struct {
	Terms []string `json:"terms,omitempty"`
}

type sonioxConfig struct {
	APIKey                   string         `json:"api_key"`
	Model                    string         `json:"model"`
	AudioFormat              string         `json:"audio_format"`
	NumChannels              int            `json:"num_channels"`
	SampleRate               int            `json:"sample_rate"`
	LanguageHints            []string       `json:"language_hints,omitempty"`
	LanguageHintsStrict      bool           `json:"language_hints_strict,omitempty"`
	EnableEndpointDetection  bool           `json:"enable_endpoint_detection"`
	EnableSpeakerDiarization bool           `json:"enable_speaker_diarization"`
	Context                  *sonioxContext `json:"context,omitempty"`
}

func (SonioxAdapter) InitialMessage(apiKey string, params ListenParams, channels int) (Message, bool) {
	model := resolveProviderModel(params.Model, ProviderSoniox.DefaultLiveModel())
	if model == "stt-v3" {
		model = ProviderSoniox.DefaultLiveModel()
	}

	var sctx *sonioxContext
	if len(params.Keywords) > 0 {
		sctx = &sonioxContext{Terms: params.Keywords}
	}

	hints := language.Codes(params.Languages)
	cfg := sonioxConfig{
		APIKey:                   apiKey,
		Model:                    model,
		AudioFormat:              "pcm_s16le",
		NumChannels:              channels,
		SampleRate:               params.SampleRate,
		LanguageHints:            hints,
		LanguageHintsStrict:      len(hints) > 0,
		EnableEndpointDetection:  true,
		EnableSpeakerDiarization: true,
		Context:                  sctx,
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return Message{}, false
	}
	return TextMessage(string(data)), true
}

type sonioxToken struct {
	Text       string          `json:"text"`
	StartMS    *uint64         `json:"start_ms"`
	EndMS      *uint64         `json:"end_ms"`
	Confidence *float64        `json:"confidence"`
	IsFinal    *bool           `json:"is_final"`
	Speaker    json.RawMessage `json:"speaker"`
}

func (t sonioxToken) final() bool {
	return t.IsFinal == nil || *t.IsFinal
}

// https://soniox.com/docs/stt/rt/manual-finalization
func (t sonioxToken) isFinMarker() bool {
	return t.Text == "<fin>" && t.IsFinal != nil && *t.IsFinal
}

// speakerID tolerates both numeric and "spk1"-style string speakers.
func (t sonioxToken) speakerID() *int {
	if len(t.Speaker) == 0 {
		return nil
	}
	var n int
	if err := json.Unmarshal(t.Speaker, &n); err == nil {
		return &n
	}
	var s string
	if err := json.Unmarshal(t.Speaker, &s); err == nil {
		digits := strings.TrimLeftFunc(s, func(r rune) bool { return r < '0' || r > '9' })
		if v, err := strconv.Atoi(digits); err == nil {
			return &v
		}
	}
	return nil
}

type sonioxMessage struct {
	Tokens       []sonioxToken `json:"tokens"`
	Finished     *bool         `json:"finished"`
	ErrorCode    *int          `json:"error_code"`
	ErrorMessage string        `json:"error_message"`
}

// ParseResponse splits one upstream message into a final and a non-final
// transcript when both token kinds are present.
func (SonioxAdapter) ParseResponse(raw string) []StreamResponse {
	var msg sonioxMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil
	}

	if msg.ErrorMessage != "" {
		return []StreamResponse{NewStreamError("soniox", msg.ErrorMessage, msg.ErrorCode)}
	}

	hasFin := false
	hasEnd := false
	var content []sonioxToken
	for _, t := range msg.Tokens {
		if t.isFinMarker() {
			hasFin = true
		}
		if t.Text == "<end>" {
			hasEnd = true
		}
		if t.Text != "<fin>" && t.Text != "<end>" {
			content = append(content, t)
		}
	}
	finished := (msg.Finished != nil && *msg.Finished) || hasFin || hasEnd

	if len(content) == 0 && !finished {
		return nil
	}

	var finals, nonFinals []sonioxToken
	for _, t := range content {
		if t.final() {
			finals = append(finals, t)
		} else {
			nonFinals = append(nonFinals, t)
		}
	}

	var responses []StreamResponse
	if len(finals) > 0 {
		responses = append(responses, buildSonioxResponse(finals, true, finished, hasFin))
	}
	if len(nonFinals) > 0 {
		responses = append(responses, buildSonioxResponse(nonFinals, false, false, false))
	}
	return responses
}

func buildSonioxResponse(tokens []sonioxToken, isFinal, speechFinal, fromFinalize bool) StreamResponse {
	words := make([]Word, 0, len(tokens))
	transcript := strings.Builder{}

	for _, t := range tokens {
		transcript.WriteString(t.Text)
		if strings.TrimSpace(t.Text) == "" {
			continue
		}

		confidence := 1.0
		if t.Confidence != nil {
			confidence = *t.Confidence
		}
		words = append(words, Word{
			Word:       t.Text,
			Start:      msToSecsPtr(t.StartMS),
			End:        msToSecsPtr(t.EndMS),
			Confidence: confidence,
			Speaker:    t.speakerID(),
		})
	}

	start, duration := 0.0, 0.0
	if len(tokens) > 0 {
		start = msToSecsPtr(tokens[0].StartMS)
		end := msToSecsPtr(tokens[len(tokens)-1].EndMS)
		if end > start {
			duration = end - start
		}
	}

	t := NewTranscript()
	t.IsFinal = isFinal
	t.SpeechFinal = speechFinal
	t.FromFinalize = fromFinalize
	t.Start = start
	t.Duration = duration
	t.Channel = Channel{Alternatives: []Alternative{{
		Transcript: transcript.String(),
		Confidence: 1.0,
		Words:      words,
	}}}
	return t
}
