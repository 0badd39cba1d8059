package stt

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/echonote-ai/echonote/pkg/language"
)

// https://developers.deepgram.com/docs/models-languages-overview
var nova3GeneralLanguages = []string{
	"bg", "ca", "cs", "da", "de", "el", "en", "es", "et", "fi", "fr", "hi",
	"hu", "id", "it", "ja", "ko", "lt", "lv", "ms", "nl", "no", "pl", "pt",
	"ro", "ru", "sk", "sv", "tr", "uk", "vi",
}

var nova2GeneralLanguages = []string{
	"bg", "ca", "cs", "da", "de", "el", "en", "es", "et", "fi", "fr", "hi",
	"hu", "id", "it", "ja", "ko", "lt", "lv", "ms", "nl", "no", "pl", "pt",
	"ro", "ru", "sk", "sv", "th", "tr", "uk", "vi", "zh",
}

var nova2MultiLanguages = []string{"en", "es"}

var nova3MultiLanguages = []string{"en", "es", "fr", "de", "hi", "ru", "pt", "ja", "it", "nl"}

func bestDeepgramModelFor(langs []language.Language) (string, bool) {
	primary := primaryLanguage(langs)
	if containsCode(nova3GeneralLanguages, primary) {
		return "nova-3", true
	}
	if containsCode(nova2GeneralLanguages, primary) {
		return "nova-2", true
	}
	return "", false
}

// canUseMulti reports whether the model's code-switching mode covers every
// requested language. Nova-3 supports ten languages in multi, Nova-2 two.
func canUseMulti(model string, langs []language.Language) bool {
	if len(langs) < 2 {
		return false
	}

	var multi []string
	switch {
	case strings.Contains(model, "nova-3"):
		multi = nova3MultiLanguages
	case strings.Contains(model, "nova-2"):
		multi = nova2MultiLanguages
	default:
		return false
	}

	for _, lang := range langs {
		if !containsCode(multi, lang.ISO639()) {
			return false
		}
	}
	return true
}

func deepgramLanguageQuery(b *queryBuilder, params ListenParams, mode transcriptionMode) {
	model := params.Model

	switch len(params.Languages) {
	case 0:
		if mode == modeBatch {
			b.addBool("detect_language", true)
		} else {
			b.add("language", "en")
		}
	case 1:
		b.add("language", params.Languages[0].BCP47())
	default:
		if canUseMulti(model, params.Languages) {
			b.add("language", "multi")
		} else if mode == modeBatch {
			b.addBool("detect_language", true)
		} else {
			b.add("language", params.Languages[0].BCP47())
		}
	}
}

func deepgramKeywordQuery(b *queryBuilder, params ListenParams) {
	if len(params.Keywords) == 0 {
		return
	}
	// Nova-3 renamed the boost parameter.
	key := "keywords"
	if strings.Contains(params.Model, "nova-3") {
		key = "keyterm"
	}
	for _, kw := range params.Keywords {
		b.add(key, kw)
	}
}

type DeepgramAdapter struct {
	baseAdapter
}

func (DeepgramAdapter) ProviderName() string { return "deepgram" }

func (DeepgramAdapter) SupportsNativeMultichannel() bool { return true }

func (DeepgramAdapter) IsSupportedLanguages(langs []language.Language, model string) bool {
	if len(langs) == 0 {
		return false
	}
	if len(langs) >= 2 {
		return canUseMulti("nova-3", langs) || canUseMulti("nova-2", langs)
	}
	_, ok := bestDeepgramModelFor(langs)
	return ok
}

func (a DeepgramAdapter) IsSupportedLanguagesBatch(langs []language.Language, model string) bool {
	return a.IsSupportedLanguages(langs, model)
}

func (DeepgramAdapter) BuildWSURL(apiBase string, params ListenParams, channels int) (*url.URL, error) {
	return buildListenWSURL(apiBase, params, channels, deepgramLanguageQuery, deepgramKeywordQuery)
}

func (a DeepgramAdapter) BuildWSURLWithAPIKey(_ context.Context, apiBase string, params ListenParams, channels int, _ string) (*url.URL, error) {
	return a.BuildWSURL(apiBase, params, channels)
}

func (DeepgramAdapter) BuildAuthHeader(apiKey string) (string, string, bool) {
	return ProviderDeepgram.BuildAuthHeader(apiKey)
}

func (DeepgramAdapter) KeepAliveMessage() (Message, bool) {
	data, _ := json.Marshal(KeepAlive())
	return TextMessage(string(data)), true
}

func (DeepgramAdapter) FinalizeMessage() Message {
	data, _ := json.Marshal(Finalize())
	return TextMessage(string(data))
}

// ParseResponse decodes the upstream message directly: Deepgram already
// speaks the unified shape.
func (DeepgramAdapter) ParseResponse(raw string) []StreamResponse {
	resp, err := UnmarshalResponse([]byte(raw))
	if err != nil {
		return nil
	}
	return []StreamResponse{resp}
}
