package stt

import (
	"context"
	"fmt"
	"os"

	"github.com/go-resty/resty/v2"
)

func assemblyaiAPIURL(apiBase string) string {
	if apiBase == "" {
		return ProviderAssemblyAI.DefaultAPIBase()
	}
	return apiBase
}

func (a AssemblyAIAdapter) TranscribeFile(ctx context.Context, client *resty.Client, apiBase, apiKey string, params ListenParams, filePath string) (*BatchResponse, error) {
	base := assemblyaiAPIURL(apiBase)

	audio, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read audio file: %w", err)
	}

	var uploaded struct {
		UploadURL string `json:"upload_url"`
	}
	resp, err := client.R().
		SetContext(ctx).
		SetHeader("Authorization", apiKey).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(audio).
		SetResult(&uploaded).
		Post(base + "/v2/upload")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("assemblyai upload failed (status %d): %s", resp.StatusCode(), resp.String())
	}

	body := map[string]interface{}{
		"audio_url":      uploaded.UploadURL,
		"speaker_labels": true,
		"punctuate":      true,
		"format_text":    true,
	}
	switch {
	case len(params.Languages) == 1:
		body["language_code"] = params.Languages[0].ISO639()
	default:
		body["language_detection"] = true
	}
	if len(params.Keywords) > 0 {
		body["word_boost"] = params.Keywords
	}

	var created struct {
		ID string `json:"id"`
	}
	resp, err = client.R().
		SetContext(ctx).
		SetHeader("Authorization", apiKey).
		SetBody(body).
		SetResult(&created).
		Post(base + "/v2/transcript")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("assemblyai transcript create failed (status %d): %s", resp.StatusCode(), resp.String())
	}

	var result struct {
		Status       string  `json:"status"`
		Error        string  `json:"error"`
		Text         string  `json:"text"`
		Confidence   float64 `json:"confidence"`
		LanguageCode string  `json:"language_code"`
		Words        []struct {
			Text       string  `json:"text"`
			Start      uint64  `json:"start"`
			End        uint64  `json:"end"`
			Confidence float64 `json:"confidence"`
			Speaker    string  `json:"speaker"`
		} `json:"words"`
	}

	endpoint := fmt.Sprintf("%s/v2/transcript/%s", base, created.ID)
	err = pollUntil(ctx, defaultPollingConfig("assemblyai transcript"), func(ctx context.Context) (pollResult, error) {
		resp, err := client.R().
			SetContext(ctx).
			SetHeader("Authorization", apiKey).
			SetResult(&result).
			Get(endpoint)
		if err != nil {
			return pollPending, err
		}
		if resp.IsError() {
			return pollPending, fmt.Errorf("assemblyai poll failed (status %d): %s", resp.StatusCode(), resp.String())
		}

		switch result.Status {
		case "completed":
			return pollDone, nil
		case "error":
			return pollPending, fmt.Errorf("assemblyai transcription failed: %s", result.Error)
		default:
			return pollPending, nil
		}
	})
	if err != nil {
		return nil, err
	}

	words := make([]Word, 0, len(result.Words))
	for _, w := range result.Words {
		word := Word{
			Word:       w.Text,
			Start:      msToSecs(w.Start),
			End:        msToSecs(w.End),
			Confidence: w.Confidence,
		}
		// Speakers come back as "A", "B", ...; map to stable indexes.
		if len(w.Speaker) == 1 && w.Speaker[0] >= 'A' && w.Speaker[0] <= 'Z' {
			idx := int(w.Speaker[0] - 'A')
			word.Speaker = &idx
		}
		words = append(words, word)
	}

	var languages []string
	if result.LanguageCode != "" {
		languages = []string{result.LanguageCode}
	}

	return &BatchResponse{
		Results: BatchResults{Channels: []Channel{{
			Alternatives: []Alternative{{
				Transcript: result.Text,
				Confidence: result.Confidence,
				Languages:  languages,
				Words:      words,
			}},
		}}},
	}, nil
}

var _ BatchAdapter = AssemblyAIAdapter{}
var _ RealtimeAdapter = AssemblyAIAdapter{}
