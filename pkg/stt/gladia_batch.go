package stt

import (
	"context"
	"fmt"
	"net/url"

	"github.com/go-resty/resty/v2"

	"github.com/echonote-ai/echonote/pkg/language"
)

func gladiaBatchAPIURL(apiBase string) string {
	if apiBase == "" {
		return "https://api.gladia.io/v2"
	}
	if u, err := url.Parse(apiBase); err == nil && u.Host != "" {
		return apiBase
	}
	return "https://api.gladia.io/v2"
}

// https://docs.gladia.io/api-reference/v2/pre-recorded/init
func (a GladiaAdapter) TranscribeFile(ctx context.Context, client *resty.Client, apiBase, apiKey string, params ListenParams, filePath string) (*BatchResponse, error) {
	base := gladiaBatchAPIURL(apiBase)

	var uploaded struct {
		AudioURL string `json:"audio_url"`
	}
	resp, err := client.R().
		SetContext(ctx).
		SetHeader("x-gladia-key", apiKey).
		SetFile("audio", filePath).
		SetResult(&uploaded).
		Post(base + "/upload")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("gladia upload failed (status %d): %s", resp.StatusCode(), resp.String())
	}

	body := map[string]interface{}{
		"audio_url":   uploaded.AudioURL,
		"diarization": true,
	}
	if codes := language.Codes(params.Languages); len(codes) > 0 {
		body["language_config"] = gladiaLanguageConfig{
			Languages:     codes,
			CodeSwitching: len(codes) > 1,
		}
	} else {
		body["detect_language"] = true
	}
	if len(params.Keywords) > 0 {
		body["custom_vocabulary"] = true
		body["custom_vocabulary_config"] = map[string]interface{}{
			"vocabulary": params.Keywords,
		}
	}

	var created struct {
		ID        string `json:"id"`
		ResultURL string `json:"result_url"`
	}
	resp, err = client.R().
		SetContext(ctx).
		SetHeader("x-gladia-key", apiKey).
		SetBody(body).
		SetResult(&created).
		Post(base + "/pre-recorded")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("gladia transcription create failed (status %d): %s", resp.StatusCode(), resp.String())
	}

	resultURL := created.ResultURL
	if resultURL == "" {
		resultURL = fmt.Sprintf("%s/pre-recorded/%s", base, created.ID)
	}

	var result struct {
		Status string `json:"status"`
		Error  struct {
			Message string `json:"message"`
		} `json:"error"`
		Result struct {
			Transcription struct {
				FullTranscript string            `json:"full_transcript"`
				Utterances     []gladiaUtterance `json:"utterances"`
			} `json:"transcription"`
		} `json:"result"`
	}
	err = pollUntil(ctx, defaultPollingConfig("gladia transcription"), func(ctx context.Context) (pollResult, error) {
		resp, err := client.R().
			SetContext(ctx).
			SetHeader("x-gladia-key", apiKey).
			SetResult(&result).
			Get(resultURL)
		if err != nil {
			return pollPending, err
		}
		if resp.IsError() {
			return pollPending, fmt.Errorf("gladia poll failed (status %d): %s", resp.StatusCode(), resp.String())
		}

		switch result.Status {
		case "done":
			return pollDone, nil
		case "error":
			return pollPending, fmt.Errorf("gladia transcription failed: %s", result.Error.Message)
		default:
			return pollPending, nil
		}
	})
	if err != nil {
		return nil, err
	}

	var words []Word
	confidence := 0.0
	for _, utt := range result.Result.Transcription.Utterances {
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
		if utt.Confidence > confidence {
			confidence = utt.Confidence
		}
	}

	return &BatchResponse{
		Results: BatchResults{Channels: []Channel{{
			Alternatives: []Alternative{{
				Transcript: result.Result.Transcription.FullTranscript,
				Confidence: confidence,
				Words:      words,
			}},
		}}},
	}, nil
}

var _ BatchAdapter = GladiaAdapter{}
