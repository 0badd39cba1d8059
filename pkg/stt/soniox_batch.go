package stt

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/go-resty/resty/v2"

	"github.com/echonote-ai/echonote/pkg/language"
)

func (a SonioxAdapter) uploadFile(ctx context.Context, client *resty.Client, apiBase, apiKey, filePath string) (string, error) {
	var uploaded struct {
		ID string `json:"id"`
	}

	resp, err := client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+apiKey).
		SetFile("file", filePath).
		SetResult(&uploaded).
		Post(fmt.Sprintf("https://%s/v1/files", sonioxAPIHost(apiBase)))
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("soniox upload failed (status %d): %s", resp.StatusCode(), resp.String())
	}
	return uploaded.ID, nil
}

func (a SonioxAdapter) deleteFile(ctx context.Context, client *resty.Client, apiBase, apiKey, fileID string) {
	_, _ = client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+apiKey).
		Delete(fmt.Sprintf("https://%s/v1/files/%s", sonioxAPIHost(apiBase), fileID))
}

func (a SonioxAdapter) createTranscription(ctx context.Context, client *resty.Client, apiBase, apiKey string, params ListenParams, fileID string) (string, error) {
	hints := language.Codes(params.Languages)

	var sctx *sonioxContext
	if len(params.Keywords) > 0 {
		sctx = &sonioxContext{Terms: params.Keywords}
	}

	model := resolveProviderModel(params.Model, ProviderSoniox.DefaultBatchModel())
	if model == "stt-v3" || model == ProviderSoniox.DefaultLiveModel() {
		model = ProviderSoniox.DefaultBatchModel()
	}

	body := map[string]interface{}{
		"model":                          model,
		"file_id":                        fileID,
		"enable_speaker_diarization":     true,
		"enable_language_identification": true,
	}
	if len(hints) > 0 {
		body["language_hints"] = hints
		body["language_hints_strict"] = true
	}
	if sctx != nil {
		body["context"] = sctx
	}

	var created struct {
		ID string `json:"id"`
	}
	resp, err := client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+apiKey).
		SetBody(body).
		SetResult(&created).
		Post(fmt.Sprintf("https://%s/v1/transcriptions", sonioxAPIHost(apiBase)))
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("soniox transcription create failed (status %d): %s", resp.StatusCode(), resp.String())
	}
	return created.ID, nil
}

func (a SonioxAdapter) pollTranscription(ctx context.Context, client *resty.Client, apiBase, apiKey, transcriptionID string) error {
	endpoint := fmt.Sprintf("https://%s/v1/transcriptions/%s", sonioxAPIHost(apiBase), transcriptionID)

	return pollUntil(ctx, defaultPollingConfig("soniox transcription"), func(ctx context.Context) (pollResult, error) {
		var status struct {
			Status       string `json:"status"`
			ErrorMessage string `json:"error_message"`
		}
		resp, err := client.R().
			SetContext(ctx).
			SetHeader("Authorization", "Bearer "+apiKey).
			SetResult(&status).
			Get(endpoint)
		if err != nil {
			return pollPending, err
		}
		if resp.IsError() {
			return pollPending, fmt.Errorf("soniox poll failed (status %d): %s", resp.StatusCode(), resp.String())
		}

		switch status.Status {
		case "completed":
			return pollDone, nil
		case "error":
			return pollPending, fmt.Errorf("soniox transcription failed: %s", status.ErrorMessage)
		default:
			return pollPending, nil
		}
	})
}

func (a SonioxAdapter) TranscribeFile(ctx context.Context, client *resty.Client, apiBase, apiKey string, params ListenParams, filePath string) (*BatchResponse, error) {
	fileID, err := a.uploadFile(ctx, client, apiBase, apiKey, filepath.Clean(filePath))
	if err != nil {
		return nil, err
	}
	defer a.deleteFile(ctx, client, apiBase, apiKey, fileID)

	transcriptionID, err := a.createTranscription(ctx, client, apiBase, apiKey, params, fileID)
	if err != nil {
		return nil, err
	}

	if err := a.pollTranscription(ctx, client, apiBase, apiKey, transcriptionID); err != nil {
		return nil, err
	}

	var result struct {
		Text   string `json:"text"`
		Tokens []struct {
			Text       string   `json:"text"`
			StartMS    *uint64  `json:"start_ms"`
			EndMS      *uint64  `json:"end_ms"`
			Confidence *float64 `json:"confidence"`
			Speaker    *int     `json:"speaker"`
		} `json:"tokens"`
	}
	resp, err := client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+apiKey).
		SetResult(&result).
		Get(fmt.Sprintf("https://%s/v1/transcriptions/%s/transcript", sonioxAPIHost(apiBase), transcriptionID))
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("soniox transcript fetch failed (status %d): %s", resp.StatusCode(), resp.String())
	}

	words := make([]Word, 0, len(result.Tokens))
	for _, t := range result.Tokens {
		if t.Text == "" || t.Text == "<fin>" || t.Text == "<end>" {
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
			Speaker:    t.Speaker,
		})
	}

	return &BatchResponse{
		Results: BatchResults{Channels: []Channel{{
			Alternatives: []Alternative{{
				Transcript: result.Text,
				Confidence: 1.0,
				Words:      words,
			}},
		}}},
	}, nil
}
