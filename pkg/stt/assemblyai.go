package stt

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/echonote-ai/echonote/pkg/language"
)

// https://www.assemblyai.com/docs/universal-streaming/multilingual-transcription
var assemblyaiStreamingLanguages = []string{"en", "es", "fr", "de", "it", "pt"}

// Batch supports the full Universal model list; this is the documented subset.
var assemblyaiBatchLanguages = []string{
	"en", "es", "fr", "de", "it", "pt", "nl", "hi", "ja", "zh", "fi", "ko",
	"pl", "ru", "tr", "uk", "vi",
}

type AssemblyAIAdapter struct {
	baseAdapter
}

func (AssemblyAIAdapter) ProviderName() string { return "assemblyai" }

// https://www.assemblyai.com/docs/universal-streaming/multichannel-streams.md
func (AssemblyAIAdapter) SupportsNativeMultichannel() bool { return false }

func (AssemblyAIAdapter) IsSupportedLanguages(langs []language.Language, _ string) bool {
	return containsCode(assemblyaiStreamingLanguages, primaryLanguage(langs))
}

func (AssemblyAIAdapter) IsSupportedLanguagesBatch(langs []language.Language, _ string) bool {
	return containsCode(assemblyaiBatchLanguages, primaryLanguage(langs))
}

func assemblyaiStreamingWSURL(apiBase string) (*url.URL, [][2]string, error) {
	if apiBase == "" {
		u, err := url.Parse(ProviderAssemblyAI.DefaultWSURL())
		return u, nil, err
	}

	if proxyURL, pairs, ok := BuildProxyWSURL(apiBase); ok {
		return proxyURL, pairs, nil
	}

	if strings.Contains(apiBase, ".eu.") || strings.HasSuffix(apiBase, "-eu") {
		u, err := url.Parse("wss://streaming.eu.assemblyai.com/v3/ws")
		return u, nil, err
	}

	u, err := url.Parse(apiBase)
	if err != nil {
		return nil, nil, err
	}
	existing := extractQueryParams(u)
	u.RawQuery = ""
	appendPathIfMissing(u, ProviderAssemblyAI.WSPath())
	setSchemeFromHost(u)
	return u, existing, nil
}

// resolveAssemblyAILanguageConfig picks the streaming speech model: English
// traffic takes the english model, everything else the multilingual one with
// detection enabled.
func resolveAssemblyAILanguageConfig(model string, params ListenParams) (speechModel, lang string, detection bool) {
	isMultilingualModel := model == "multilingual" || model == "universal-streaming-multilingual"

	needsMultilingual := isMultilingualModel ||
		len(params.Languages) > 1 ||
		(len(params.Languages) == 1 && params.Languages[0].ISO639() != "en")

	if needsMultilingual {
		return "universal-streaming-multilingual", "multi", true
	}
	return "universal-streaming-english", "en", false
}

// https://www.assemblyai.com/docs/api-reference/streaming-api/streaming-api.md
func (AssemblyAIAdapter) BuildWSURL(apiBase string, params ListenParams, _ int) (*url.URL, error) {
	u, existing, err := assemblyaiStreamingWSURL(apiBase)
	if err != nil {
		return nil, err
	}

	b := &queryBuilder{}
	for _, kv := range existing {
		b.add(kv[0], kv[1])
	}

	b.addInt("sample_rate", params.SampleRate)
	b.add("encoding", "pcm_s16le")
	b.addBool("format_turns", true)

	model := resolveProviderModel(params.Model, ProviderAssemblyAI.DefaultLiveModel())
	speechModel, lang, detection := resolveAssemblyAILanguageConfig(model, params)
	b.add("speech_model", speechModel)
	b.add("language", lang)
	if detection {
		b.addBool("language_detection", true)
	}

	if maxSilence, ok := params.CustomQuery["max_turn_silence"]; ok {
		b.add("max_turn_silence", maxSilence)
	}

	if len(params.Keywords) > 0 {
		if keyterms, err := json.Marshal(params.Keywords); err == nil {
			b.add("keyterms_prompt", string(keyterms))
		}
	}

	b.applyTo(u)
	return u, nil
}

func (a AssemblyAIAdapter) BuildWSURLWithAPIKey(_ context.Context, apiBase string, params ListenParams, channels int, _ string) (*url.URL, error) {
	return a.BuildWSURL(apiBase, params, channels)
}

func (AssemblyAIAdapter) BuildAuthHeader(apiKey string) (string, string, bool) {
	return ProviderAssemblyAI.BuildAuthHeader(apiKey)
}

func (AssemblyAIAdapter) FinalizeMessage() Message {
	return TextMessage(`{"type":"Terminate"}`)
}

type assemblyaiWord struct {
	Text       string  `json:"text"`
	Start      uint64  `json:"start"`
	End        uint64  `json:"end"`
	Confidence float64 `json:"confidence"`
}

type assemblyaiTurn struct {
	TurnIsFormatted     bool             `json:"turn_is_formatted"`
	EndOfTurn           bool             `json:"end_of_turn"`
	Transcript          string           `json:"transcript"`
	Utterance           string           `json:"utterance"`
	LanguageCode        string           `json:"language_code"`
	EndOfTurnConfidence float64          `json:"end_of_turn_confidence"`
	Words               []assemblyaiWord `json:"words"`
}

func (AssemblyAIAdapter) ParseResponse(raw string) []StreamResponse {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return nil
	}

	switch probe.Type {
	case "Begin":
		return nil
	case "Turn":
		var turn assemblyaiTurn
		if err := json.Unmarshal([]byte(raw), &turn); err != nil {
			return nil
		}
		return parseAssemblyAITurn(turn)
	case "Termination":
		var term struct {
			AudioDurationSeconds float64 `json:"audio_duration_seconds"`
		}
		if err := json.Unmarshal([]byte(raw), &term); err != nil {
			return nil
		}
		return []StreamResponse{NewTerminal("", term.AudioDurationSeconds, 1)}
	case "Error":
		var e struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil
		}
		return []StreamResponse{NewStreamError("assemblyai", e.Error, nil)}
	default:
		return nil
	}
}

func parseAssemblyAITurn(turn assemblyaiTurn) []StreamResponse {
	if turn.Transcript == "" && len(turn.Words) == 0 {
		return nil
	}

	words := make([]Word, 0, len(turn.Words))
	for _, w := range turn.Words {
		words = append(words, Word{
			Word:       w.Text,
			Start:      msToSecs(w.Start),
			End:        msToSecs(w.End),
			Confidence: w.Confidence,
			Language:   turn.LanguageCode,
		})
	}
	start, duration := calculateTimeSpan(words)

	// Formatted turns carry the best transcript; otherwise prefer the
	// utterance, then the raw transcript, then join the words.
	transcript := turn.Transcript
	if !turn.TurnIsFormatted {
		switch {
		case turn.Utterance != "":
			transcript = turn.Utterance
		case turn.Transcript != "":
			transcript = turn.Transcript
		default:
			parts := make([]string, len(words))
			for i, w := range words {
				parts[i] = w.Word
			}
			transcript = strings.Join(parts, " ")
		}
	}

	var languages []string
	if turn.LanguageCode != "" {
		languages = []string{turn.LanguageCode}
	}

	t := NewTranscript()
	t.IsFinal = turn.TurnIsFormatted || turn.EndOfTurn
	t.SpeechFinal = turn.EndOfTurn
	t.Start = start
	t.Duration = duration
	t.Channel = Channel{Alternatives: []Alternative{{
		Transcript: transcript,
		Confidence: turn.EndOfTurnConfidence,
		Languages:  languages,
		Words:      words,
	}}}
	return []StreamResponse{t}
}
