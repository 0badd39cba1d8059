package stt

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-resty/resty/v2"
)

func (DeepgramAdapter) buildBatchURL(apiBase string, params ListenParams) (*url.URL, error) {
	base := apiBase
	if base == "" {
		base = ProviderDeepgram.DefaultAPIBase()
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	appendPathIfMissing(u, "/listen")

	b := &queryBuilder{}
	model := resolveModelForLanguages(params.Model, params.Languages, ProviderDeepgram.DefaultLiveModel())
	b.add("model", model).
		addBool("diarize", true).
		addBool("punctuate", true).
		addBool("smart_format", true).
		addBool("numerals", true).
		addBool("filler_words", false).
		addBool("mip_opt_out", true)
	deepgramLanguageQuery(b, params, modeBatch)
	deepgramKeywordQuery(b, params)
	b.applyTo(u)
	return u, nil
}

func (a DeepgramAdapter) TranscribeFile(ctx context.Context, client *resty.Client, apiBase, apiKey string, params ListenParams, filePath string) (*BatchResponse, error) {
	u, err := a.buildBatchURL(apiBase, params)
	if err != nil {
		return nil, err
	}

	audio, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read audio file: %w", err)
	}

	var result struct {
		Metadata struct {
			RequestID string  `json:"request_id"`
			Created   string  `json:"created"`
			Duration  float64 `json:"duration"`
			Channels  int     `json:"channels"`
		} `json:"metadata"`
		Results BatchResults `json:"results"`
	}

	resp, err := client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Token "+apiKey).
		SetHeader("Content-Type", contentTypeForExtension(filepath.Ext(filePath))).
		SetBody(audio).
		SetResult(&result).
		Post(u.String())
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("deepgram batch failed (status %d): %s", resp.StatusCode(), resp.String())
	}

	return &BatchResponse{
		Metadata: BatchMetadata{
			RequestID: result.Metadata.RequestID,
			Created:   result.Metadata.Created,
			Duration:  result.Metadata.Duration,
			Channels:  result.Metadata.Channels,
		},
		Results: result.Results,
	}, nil
}

// contentTypeForExtension maps a file extension to the upload content type.
func contentTypeForExtension(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "wav":
		return "audio/wav"
	case "mp3":
		return "audio/mpeg"
	case "ogg":
		return "audio/ogg"
	case "flac":
		return "audio/flac"
	case "m4a", "mp4":
		return "audio/mp4"
	case "webm":
		return "audio/webm"
	case "aac":
		return "audio/aac"
	default:
		return "application/octet-stream"
	}
}

// ExtensionForContentType is the inverse mapping the proxy uses when it spools
// an upload to disk.
func ExtensionForContentType(contentType string) string {
	mime := strings.TrimSpace(strings.Split(contentType, ";")[0])
	switch mime {
	case "audio/wav", "audio/wave", "audio/x-wav":
		return "wav"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/ogg":
		return "ogg"
	case "audio/flac":
		return "flac"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return "m4a"
	case "audio/webm":
		return "webm"
	case "audio/aac":
		return "aac"
	default:
		return "wav"
	}
}
