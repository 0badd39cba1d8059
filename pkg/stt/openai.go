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

const (
	openaiVADDetectionType     = "server_vad"
	openaiVADThreshold         = 0.5
	openaiVADPrefixPaddingMS   = 300
	openaiVADSilenceDurationMS = 500
)

type OpenAIAdapter struct {
	baseAdapter
}

func (OpenAIAdapter) ProviderName() string { return "openai" }

func (OpenAIAdapter) SupportsNativeMultichannel() bool { return false }

// Whisper-family models accept any language hint.
func (OpenAIAdapter) IsSupportedLanguages([]language.Language, string) bool { return true }

func (OpenAIAdapter) IsSupportedLanguagesBatch([]language.Language, string) bool { return true }

func openaiWSURLFromBase(apiBase string) (*url.URL, [][2]string, error) {
	if apiBase == "" {
		u, err := url.Parse(ProviderOpenAI.DefaultWSURL())
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

	host := parsed.Hostname()
	if host == "" {
		host = ProviderOpenAI.DefaultAPIHost()
	}
	if port := parsed.Port(); port != "" {
		host = host + ":" + port
	}
	u, err := url.Parse(fmt.Sprintf("wss://%s/v1/realtime?intent=transcription", host))
	if err != nil {
		return nil, nil, err
	}
	return u, existing, nil
}

func (OpenAIAdapter) BuildWSURL(apiBase string, _ ListenParams, _ int) (*url.URL, error) {
	u, existing, err := openaiWSURLFromBase(apiBase)
	if err != nil {
		return nil, err
	}
	appendQueryPairs(u, existing)
	return u, nil
}

func (a OpenAIAdapter) BuildWSURLWithAPIKey(_ context.Context, apiBase string, params ListenParams, channels int, _ string) (*url.URL, error) {
	return a.BuildWSURL(apiBase, params, channels)
}

func (OpenAIAdapter) BuildAuthHeader(apiKey string) (string, string, bool) {
	return ProviderOpenAI.BuildAuthHeader(apiKey)
}

// AudioToMessage wraps PCM in a base64 input_audio_buffer.append event.
func (OpenAIAdapter) AudioToMessage(audio []byte) Message {
	event := struct {
		Type  string `json:"type"`
		Audio string `json:"audio"`
	}{"input_audio_buffer.append", base64.StdEncoding.EncodeToString(audio)}
	data, _ := json.Marshal(event)
	return TextMessage(string(data))
}

func (OpenAIAdapter) InitialMessage(_ string, params ListenParams, _ int) (Message, bool) {
	model := resolveProviderModel(params.Model, ProviderOpenAI.DefaultLiveModel())

	transcription := map[string]interface{}{"model": model}
	if len(params.Languages) > 0 {
		transcription["language"] = params.Languages[0].ISO639()
	}

	session := map[string]interface{}{
		"type": "transcription",
		"audio": map[string]interface{}{
			"input": map[string]interface{}{
				"format": map[string]interface{}{
					"type": "audio/pcm",
					"rate": params.SampleRate,
				},
				"transcription": transcription,
				"turn_detection": map[string]interface{}{
					"type":                openaiVADDetectionType,
					"threshold":           openaiVADThreshold,
					"prefix_padding_ms":   openaiVADPrefixPaddingMS,
					"silence_duration_ms": openaiVADSilenceDurationMS,
				},
			},
		},
		"include": []string{"item.input_audio_transcription.logprobs"},
	}

	data, err := json.Marshal(map[string]interface{}{
		"type":    "session.update",
		"session": session,
	})
	if err != nil {
		return Message{}, false
	}
	return TextMessage(string(data)), true
}

func (OpenAIAdapter) FinalizeMessage() Message {
	return TextMessage(`{"type":"input_audio_buffer.commit"}`)
}

func (OpenAIAdapter) ParseResponse(raw string) []StreamResponse {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return nil
	}

	switch probe.Type {
	case "conversation.item.input_audio_transcription.completed":
		var msg struct {
			Transcript string `json:"transcript"`
		}
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil
		}
		return buildOpenAITranscript(msg.Transcript, true)

	case "conversation.item.input_audio_transcription.delta":
		var msg struct {
			Delta string `json:"delta"`
		}
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil
		}
		return buildOpenAITranscript(msg.Delta, false)

	case "conversation.item.input_audio_transcription.failed", "error":
		var msg struct {
			Error struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil
		}
		message := fmt.Sprintf("%s: %s", msg.Error.Type, msg.Error.Message)
		return []StreamResponse{NewStreamError("openai", message, nil)}

	default:
		// session.created, session.updated, buffer lifecycle events.
		return nil
	}
}

func buildOpenAITranscript(transcript string, isFinal bool) []StreamResponse {
	if transcript == "" {
		return nil
	}

	words := splitWhitespaceWords(transcript)
	start, duration := calculateTimeSpan(words)

	t := NewTranscript()
	t.IsFinal = isFinal
	t.SpeechFinal = isFinal
	t.Start = start
	t.Duration = duration
	t.Channel = Channel{Alternatives: []Alternative{{
		Transcript: transcript,
		Confidence: 1.0,
		Words:      words,
	}}}
	return []StreamResponse{t}
}

// TranscribeFile posts to the Whisper transcription endpoint.
func (a OpenAIAdapter) TranscribeFile(ctx context.Context, client *resty.Client, apiBase, apiKey string, params ListenParams, filePath string) (*BatchResponse, error) {
	base := apiBase
	if base == "" {
		base = "https://" + ProviderOpenAI.DefaultAPIHost()
	}

	form := map[string]string{
		"model":           resolveProviderModel(params.Model, ProviderOpenAI.DefaultBatchModel()),
		"response_format": "verbose_json",
	}
	if len(params.Languages) > 0 {
		form["language"] = params.Languages[0].ISO639()
	}

	var result struct {
		Text     string  `json:"text"`
		Language string  `json:"language"`
		Duration float64 `json:"duration"`
		Words    []struct {
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
		Post(base + "/v1/audio/transcriptions")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("openai batch failed (status %d): %s", resp.StatusCode(), resp.String())
	}

	words := make([]Word, 0, len(result.Words))
	for _, w := range result.Words {
		words = append(words, Word{Word: w.Word, Start: w.Start, End: w.End, Confidence: 1.0})
	}

	var languages []string
	if result.Language != "" {
		languages = []string{result.Language}
	}

	return &BatchResponse{
		Metadata: BatchMetadata{Duration: result.Duration, Channels: 1},
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

var _ RealtimeAdapter = OpenAIAdapter{}
var _ BatchAdapter = OpenAIAdapter{}
