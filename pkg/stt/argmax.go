package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/echonote-ai/echonote/pkg/language"
)

// Parakeet-v3 language list; v2 is English-only.
var parakeetV3Languages = []string{
	"bg", "hr", "cs", "da", "nl", "en", "et", "fi", "fr", "de", "el", "hu",
	"it", "lv", "lt", "mt", "pl", "pt", "ro", "sk", "sl", "es", "sv", "ru",
	"uk",
}

func isParakeetV2(model string) bool { return strings.Contains(model, "parakeet-v2") }

func isParakeetV3(model string) bool { return strings.Contains(model, "parakeet-v3") }

// ArgmaxAdapter drives the local on-device engine, which exposes a
// Deepgram-compatible realtime surface.
type ArgmaxAdapter struct {
	baseAdapter
}

func (ArgmaxAdapter) ProviderName() string { return "argmax" }

func (ArgmaxAdapter) SupportsNativeMultichannel() bool { return false }

func (ArgmaxAdapter) IsSupportedLanguages(langs []language.Language, model string) bool {
	switch {
	case isParakeetV2(model):
		return primaryLanguage(langs) == "en"
	case isParakeetV3(model):
		return containsCode(parakeetV3Languages, primaryLanguage(langs))
	default:
		// Whisper-family local models accept anything.
		return true
	}
}

func (a ArgmaxAdapter) IsSupportedLanguagesBatch(langs []language.Language, model string) bool {
	return a.IsSupportedLanguages(langs, model)
}

// argmaxLanguageQuery picks the first language the model supports, falling
// back to English on mismatch.
func argmaxLanguageQuery(b *queryBuilder, params ListenParams, _ transcriptionMode) {
	model := params.Model

	pick := func() string {
		if isParakeetV2(model) {
			return "en"
		}
		for _, lang := range params.Languages {
			if !isParakeetV3(model) || containsCode(parakeetV3Languages, lang.ISO639()) {
				return lang.ISO639()
			}
		}
		return "en"
	}
	b.add("language", pick())
}

func argmaxKeywordQuery(b *queryBuilder, params ListenParams) {
	for _, kw := range params.Keywords {
		b.add("keywords", kw)
	}
}

func (ArgmaxAdapter) BuildWSURL(apiBase string, params ListenParams, channels int) (*url.URL, error) {
	return buildListenWSURL(apiBase, params, channels, argmaxLanguageQuery, argmaxKeywordQuery)
}

func (a ArgmaxAdapter) BuildWSURLWithAPIKey(_ context.Context, apiBase string, params ListenParams, channels int, _ string) (*url.URL, error) {
	return a.BuildWSURL(apiBase, params, channels)
}

func (ArgmaxAdapter) BuildAuthHeader(apiKey string) (string, string, bool) {
	if apiKey == "" {
		return "", "", false
	}
	return "Authorization", "Token " + apiKey, true
}

func (ArgmaxAdapter) KeepAliveMessage() (Message, bool) {
	data, _ := json.Marshal(KeepAlive())
	return TextMessage(string(data)), true
}

func (ArgmaxAdapter) FinalizeMessage() Message {
	data, _ := json.Marshal(Finalize())
	return TextMessage(string(data))
}

func (ArgmaxAdapter) ParseResponse(raw string) []StreamResponse {
	if resp, err := UnmarshalResponse([]byte(raw)); err == nil {
		return []StreamResponse{resp}
	}

	var e struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(raw), &e); err == nil && e.Message != "" {
		return []StreamResponse{NewStreamError("argmax", e.Type+": "+e.Message, nil)}
	}
	return nil
}

// TranscribeFile posts to the local engine's Deepgram-compatible batch
// endpoint.
func (a ArgmaxAdapter) TranscribeFile(ctx context.Context, client *resty.Client, apiBase, apiKey string, params ListenParams, filePath string) (*BatchResponse, error) {
	base := apiBase
	if base == "" {
		base = "http://127.0.0.1:50060/v1"
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	appendPathIfMissing(u, "/listen")

	b := &queryBuilder{}
	if model := params.Model; model != "" && !isMetaModel(model) {
		b.add("model", model)
	}
	argmaxLanguageQuery(b, params, modeBatch)
	argmaxKeywordQuery(b, params)
	b.applyTo(u)

	audio, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read audio file: %w", err)
	}

	var result struct {
		Results BatchResults `json:"results"`
	}
	req := client.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentTypeForExtension(filepath.Ext(filePath))).
		SetBody(audio).
		SetResult(&result)
	if name, value, ok := a.BuildAuthHeader(apiKey); ok {
		req.SetHeader(name, value)
	}
	resp, err := req.Post(u.String())
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("argmax batch failed (status %d): %s", resp.StatusCode(), resp.String())
	}

	return &BatchResponse{Results: result.Results}, nil
}

var _ RealtimeAdapter = ArgmaxAdapter{}
var _ BatchAdapter = ArgmaxAdapter{}
var _ RealtimeAdapter = DeepgramAdapter{}
var _ BatchAdapter = DeepgramAdapter{}
var _ RealtimeAdapter = SonioxAdapter{}
var _ BatchAdapter = SonioxAdapter{}
