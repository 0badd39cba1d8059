package stt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/go-resty/resty/v2"

	"github.com/echonote-ai/echonote/pkg/language"
)

// Scribe covers the Whisper language set.
var elevenlabsSupportedLanguages = gladiaSupportedLanguages

type ElevenLabsAdapter struct {
	baseAdapter
}

func (ElevenLabsAdapter) ProviderName() string { return "elevenlabs" }

func (ElevenLabsAdapter) SupportsNativeMultichannel() bool { return false }

func (ElevenLabsAdapter) IsSupportedLanguages(langs []language.Language, _ string) bool {
	return containsCode(elevenlabsSupportedLanguages, primaryLanguage(langs))
}

func (a ElevenLabsAdapter) IsSupportedLanguagesBatch(langs []language.Language, model string) bool {
	return a.IsSupportedLanguages(langs, model)
}

func elevenlabsURLWithScheme(parsed *url.URL, path string, useWS bool) (*url.URL, error) {
	host := parsed.Hostname()
	if host == "" {
		host = ProviderElevenLabs.DefaultAPIHost()
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

func elevenlabsWSURLFromBase(apiBase string) (*url.URL, [][2]string, error) {
	if apiBase == "" {
		u, err := url.Parse(ProviderElevenLabs.DefaultWSURL())
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
	u, err := elevenlabsURLWithScheme(parsed, ProviderElevenLabs.WSPath(), true)
	if err != nil {
		return nil, nil, err
	}
	return u, existing, nil
}

func (ElevenLabsAdapter) BuildWSURL(apiBase string, params ListenParams, _ int) (*url.URL, error) {
	u, existing, err := elevenlabsWSURLFromBase(apiBase)
	if err != nil {
		return nil, err
	}

	b := &queryBuilder{}
	for _, kv := range existing {
		b.add(kv[0], kv[1])
	}

	model := resolveProviderModel(params.Model, ProviderElevenLabs.DefaultLiveModel())
	if model == "scribe_v2" {
		model = ProviderElevenLabs.DefaultLiveModel()
	}
	b.add("model_id", model)
	b.add("audio_format", fmt.Sprintf("pcm_%d", params.SampleRate))
	b.addBool("include_timestamps", true)
	b.add("commit_strategy", "vad")
	if len(params.Languages) > 0 {
		b.add("language_code", params.Languages[0].ISO639())
	}

	b.applyTo(u)
	return u, nil
}

func (a ElevenLabsAdapter) BuildWSURLWithAPIKey(_ context.Context, apiBase string, params ListenParams, channels int, _ string) (*url.URL, error) {
	return a.BuildWSURL(apiBase, params, channels)
}

func (ElevenLabsAdapter) BuildAuthHeader(apiKey string) (string, string, bool) {
	return ProviderElevenLabs.BuildAuthHeader(apiKey)
}

// AudioToMessage wraps PCM in a base64 text frame.
func (ElevenLabsAdapter) AudioToMessage(audio []byte) Message {
	chunk := struct {
		MessageType string `json:"message_type"`
		AudioBase64 string `json:"audio_base_64"`
	}{"input_audio_chunk", base64.StdEncoding.EncodeToString(audio)}
	data, _ := json.Marshal(chunk)
	return TextMessage(string(data))
}

func (ElevenLabsAdapter) FinalizeMessage() Message {
	return TextMessage(`{"message_type":"commit"}`)
}

type elevenlabsWord struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Type  string  `json:"type"`
}

func (ElevenLabsAdapter) ParseResponse(raw string) []StreamResponse {
	var probe struct {
		MessageType string `json:"message_type"`
	}
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return nil
	}

	switch probe.MessageType {
	case "session_started":
		return nil
	case "partial_transcript":
		var msg struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(raw), &msg); err != nil || msg.Text == "" {
			return nil
		}
		return []StreamResponse{buildElevenLabsResponse(msg.Text, nil, false)}
	case "committed_transcript":
		var msg struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(raw), &msg); err != nil || msg.Text == "" {
			return nil
		}
		return []StreamResponse{buildElevenLabsResponse(msg.Text, nil, true)}
	case "committed_transcript_with_timestamps":
		var msg struct {
			Text  string           `json:"text"`
			Words []elevenlabsWord `json:"words"`
		}
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil
		}
		if msg.Text == "" && len(msg.Words) == 0 {
			return nil
		}
		return []StreamResponse{buildElevenLabsResponse(msg.Text, msg.Words, true)}
	case "error":
		var msg struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil
		}
		return []StreamResponse{NewStreamError("elevenlabs", fmt.Sprintf("%s: %s", msg.Type, msg.Message), nil)}
	default:
		return nil
	}
}

func buildElevenLabsResponse(text string, rawWords []elevenlabsWord, isFinal bool) StreamResponse {
	var words []Word
	for _, w := range rawWords {
		if w.Type != "word" {
			continue
		}
		words = append(words, Word{Word: w.Text, Start: w.Start, End: w.End, Confidence: 1.0})
	}
	start, duration := calculateTimeSpan(words)

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

func (a ElevenLabsAdapter) TranscribeFile(ctx context.Context, client *resty.Client, apiBase, apiKey string, params ListenParams, filePath string) (*BatchResponse, error) {
	endpoint := "https://" + ProviderElevenLabs.DefaultAPIHost() + "/v1/speech-to-text"
	if apiBase != "" {
		parsed, err := url.Parse(apiBase)
		if err == nil && parsed.Host != "" {
			u, err := elevenlabsURLWithScheme(parsed, "/v1/speech-to-text", false)
			if err == nil {
				endpoint = u.String()
			}
		}
	}

	form := map[string]string{
		"model_id": "scribe_v1",
		"diarize":  "true",
	}
	if len(params.Languages) > 0 {
		form["language_code"] = params.Languages[0].ISO639()
	}

	var result struct {
		Text         string `json:"text"`
		LanguageCode string `json:"language_code"`
		Words        []struct {
			Text      string  `json:"text"`
			Start     float64 `json:"start"`
			End       float64 `json:"end"`
			Type      string  `json:"type"`
			SpeakerID string  `json:"speaker_id"`
		} `json:"words"`
	}
	resp, err := client.R().
		SetContext(ctx).
		SetHeader("xi-api-key", apiKey).
		SetFile("file", filePath).
		SetFormData(form).
		SetResult(&result).
		Post(endpoint)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("elevenlabs batch failed (status %d): %s", resp.StatusCode(), resp.String())
	}

	var words []Word
	for _, w := range result.Words {
		if w.Type != "word" {
			continue
		}
		words = append(words, Word{Word: w.Text, Start: w.Start, End: w.End, Confidence: 1.0})
	}

	var languages []string
	if result.LanguageCode != "" {
		languages = []string{result.LanguageCode}
	}

	return &BatchResponse{
		Results: BatchResults{Channels: []Channel{{
			Alternatives: []Alternative{{
				Transcript: result.Text,
				Confidence: 1.0,
				Languages:  languages,
				Words:      words,
			}},
		}}},
	}, nil
}

var _ RealtimeAdapter = ElevenLabsAdapter{}
var _ BatchAdapter = ElevenLabsAdapter{}
