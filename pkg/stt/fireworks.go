package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/echonote-ai/echonote/pkg/language"
)

type FireworksAdapter struct {
	baseAdapter
}

func (FireworksAdapter) ProviderName() string { return "fireworks" }

func (FireworksAdapter) SupportsNativeMultichannel() bool { return false }

// Fireworks runs Whisper-family models; every language passes through.
func (FireworksAdapter) IsSupportedLanguages([]language.Language, string) bool { return true }

func (FireworksAdapter) IsSupportedLanguagesBatch([]language.Language, string) bool { return true }

func fireworksAPIHost(apiBase string) string {
	if apiBase == "" {
		return ProviderFireworks.DefaultAPIHost()
	}
	u, err := url.Parse(apiBase)
	if err != nil || u.Hostname() == "" {
		return ProviderFireworks.DefaultAPIHost()
	}
	return u.Hostname()
}

func fireworksWSURLFromBase(apiBase string) (*url.URL, [][2]string, error) {
	if apiBase == "" {
		u, err := url.Parse(ProviderFireworks.DefaultWSURL())
		return u, nil, err
	}

	if proxyURL, pairs, ok := BuildProxyWSURL(apiBase); ok {
		return proxyURL, pairs, nil
	}

	parsed, err := url.Parse(apiBase)
	if err != nil {
		u, uerr := url.Parse(ProviderFireworks.DefaultWSURL())
		return u, nil, uerr
	}
	existing := extractQueryParams(parsed)

	domain := strings.TrimPrefix(fireworksAPIHost(apiBase), "api.")
	u, err := url.Parse(fmt.Sprintf("wss://audio-streaming-v2.%s%s", domain, ProviderFireworks.WSPath()))
	if err != nil {
		return nil, nil, err
	}
	return u, existing, nil
}

// https://docs.fireworks.ai/api-reference/audio-streaming-transcriptions
func (FireworksAdapter) BuildWSURL(apiBase string, params ListenParams, _ int) (*url.URL, error) {
	u, existing, err := fireworksWSURLFromBase(apiBase)
	if err != nil {
		return nil, err
	}

	b := &queryBuilder{}
	for _, kv := range existing {
		b.add(kv[0], kv[1])
	}
	b.add("response_format", "verbose_json")
	b.add("timestamp_granularities", "word,segment")
	if len(params.Languages) > 0 {
		b.add("language", params.Languages[0].ISO639())
	}
	b.applyTo(u)
	return u, nil
}

func (a FireworksAdapter) BuildWSURLWithAPIKey(_ context.Context, apiBase string, params ListenParams, channels int, _ string) (*url.URL, error) {
	return a.BuildWSURL(apiBase, params, channels)
}

func (FireworksAdapter) BuildAuthHeader(apiKey string) (string, string, bool) {
	return ProviderFireworks.BuildAuthHeader(apiKey)
}

func (FireworksAdapter) FinalizeMessage() Message {
	return TextMessage(`{"checkpoint_id":"final"}`)
}

type fireworksWord struct {
	Word        string   `json:"word"`
	Start       *float64 `json:"start"`
	End         *float64 `json:"end"`
	Probability *float64 `json:"probability"`
	IsFinal     bool     `json:"is_final"`
	Language    string   `json:"language"`
}

type fireworksSegment struct {
	Text  string          `json:"text"`
	Start *float64        `json:"start"`
	End   *float64        `json:"end"`
	Words []fireworksWord `json:"words"`
}

type fireworksMessage struct {
	Text         string             `json:"text"`
	Words        []fireworksWord    `json:"words"`
	Segments     []fireworksSegment `json:"segments"`
	CheckpointID *string            `json:"checkpoint_id"`
	Error        *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (FireworksAdapter) ParseResponse(raw string) []StreamResponse {
	var msg fireworksMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil
	}

	if msg.Error != nil {
		return []StreamResponse{NewStreamError("fireworks", msg.Error.Message, nil)}
	}
	if msg.CheckpointID != nil {
		return nil
	}

	var responses []StreamResponse
	if len(msg.Segments) > 0 {
		for _, segment := range msg.Segments {
			wordsToUse := segment.Words
			if len(wordsToUse) == 0 {
				wordsToUse = msg.Words
			}
			responses = append(responses, buildFireworksResponse(segment.Text, wordsToUse, segment.Start, segment.End))
		}
	} else if msg.Text != "" {
		responses = append(responses, buildFireworksResponse(msg.Text, msg.Words, nil, nil))
	}
	return responses
}

func buildFireworksResponse(text string, raw []fireworksWord, segStart, segEnd *float64) StreamResponse {
	isFinal := true
	words := make([]Word, 0, len(raw))
	for _, w := range raw {
		if !w.IsFinal {
			isFinal = false
		}
		confidence := 1.0
		if w.Probability != nil {
			confidence = *w.Probability
		}
		words = append(words, Word{
			Word:       w.Word,
			Start:      floatOrZero(w.Start),
			End:        floatOrZero(w.End),
			Confidence: confidence,
			Language:   w.Language,
		})
	}

	start, duration := 0.0, 0.0
	if len(words) > 0 {
		start, duration = calculateTimeSpan(words)
	} else if segStart != nil && segEnd != nil {
		start, duration = *segStart, *segEnd-*segStart
	}

	t := NewTranscript()
	t.IsFinal = isFinal
	t.SpeechFinal = isFinal
	t.Start = start
	t.Duration = duration
	t.Channel = Channel{Alternatives: []Alternative{{
		Transcript: text,
		Confidence: 1.0,
		Words:      words,
	}}}
	return t
}

func floatOrZero(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

// TranscribeFile uses the prerecorded Whisper endpoint on the audio-turbo host.
func (a FireworksAdapter) TranscribeFile(ctx context.Context, client *resty.Client, apiBase, apiKey string, params ListenParams, filePath string) (*BatchResponse, error) {
	endpoint := fmt.Sprintf("https://audio-turbo.%s/v1/audio/transcriptions", fireworksAPIHost(apiBase))

	form := map[string]string{
		"response_format":         "verbose_json",
		"timestamp_granularities": "word,segment",
	}
	if model := params.Model; model != "" && !isMetaModel(model) {
		form["model"] = model
	}
	if len(params.Languages) > 0 {
		form["language"] = params.Languages[0].ISO639()
	}

	var result struct {
		Text  string `json:"text"`
		Words []struct {
			Word  string  `json:"word"`
			Start float64 `json:"start"`
			End   float64 `json:"end"`
		} `json:"words"`
	}
	resp, err := client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+apiKey).
		SetFile("file", filePath).
		SetFormData(form).
		SetResult(&result).
		Post(endpoint)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fireworks batch failed (status %d): %s", resp.StatusCode(), resp.String())
	}

	words := make([]Word, 0, len(result.Words))
	for _, w := range result.Words {
		words = append(words, Word{Word: w.Word, Start: w.Start, End: w.End, Confidence: 1.0})
	}

	return &BatchResponse{
		Results: BatchResults{Channels: []Channel{{
			Alternatives: []Alternative{{Transcript: result.Text, Confidence: 1.0, Words: words}},
		}}},
	}, nil
}

var _ RealtimeAdapter = FireworksAdapter{}
var _ BatchAdapter = FireworksAdapter{}
