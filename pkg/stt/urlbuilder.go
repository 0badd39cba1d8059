package stt

import (
	"net/url"
	"sort"
	"strconv"

	"github.com/echonote-ai/echonote/pkg/language"
)

type transcriptionMode int

const (
	modeLive transcriptionMode = iota
	modeBatch
)

// queryBuilder keeps query pairs ordered so built URLs are deterministic.
type queryBuilder struct {
	pairs [][2]string
}

func (b *queryBuilder) add(key, value string) *queryBuilder {
	b.pairs = append(b.pairs, [2]string{key, value})
	return b
}

func (b *queryBuilder) addBool(key string, value bool) *queryBuilder {
	return b.add(key, strconv.FormatBool(value))
}

func (b *queryBuilder) addInt(key string, value int) *queryBuilder {
	return b.add(key, strconv.Itoa(value))
}

// addCommonListenParams appends the Deepgram-dialect parameter set shared by
// the compat adapters.
func (b *queryBuilder) addCommonListenParams(params ListenParams, channels int) *queryBuilder {
	model := resolveModelForLanguages(params.Model, params.Languages, ProviderDeepgram.DefaultLiveModel())
	return b.add("model", model).
		addInt("channels", channels).
		addInt("sample_rate", params.SampleRate).
		add("encoding", "linear16").
		addBool("diarize", true).
		addBool("punctuate", true).
		addBool("smart_format", true).
		addBool("numerals", true).
		addBool("filler_words", false).
		addBool("mip_opt_out", true)
}

func (b *queryBuilder) addCustomQuery(params ListenParams) *queryBuilder {
	if len(params.CustomQuery) == 0 {
		return b
	}
	keys := make([]string, 0, len(params.CustomQuery))
	for k := range params.CustomQuery {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.add(k, params.CustomQuery[k])
	}
	return b
}

func (b *queryBuilder) applyTo(u *url.URL) {
	q := u.Query()
	for _, kv := range b.pairs {
		q.Add(kv[0], kv[1])
	}
	u.RawQuery = q.Encode()
}

// resolveModelForLanguages maps meta models to the Deepgram model best able
// to serve the primary language, falling back to def.
func resolveModelForLanguages(model string, langs []language.Language, def string) string {
	if model != "" && !isMetaModel(model) {
		return model
	}
	if best, ok := bestDeepgramModelFor(langs); ok {
		return best
	}
	return def
}

type languageStrategy func(b *queryBuilder, params ListenParams, mode transcriptionMode)

type keywordStrategy func(b *queryBuilder, params ListenParams)

// buildListenWSURL is the shared URL construction for Deepgram-shaped vendors
// (Deepgram itself and the Argmax local server).
func buildListenWSURL(apiBase string, params ListenParams, channels int, langs languageStrategy, keywords keywordStrategy) (*url.URL, error) {
	var u *url.URL
	var existing [][2]string

	if proxyURL, pairs, ok := BuildProxyWSURL(apiBase); ok {
		u, existing = proxyURL, pairs
	} else {
		base := apiBase
		if base == "" {
			base = ProviderDeepgram.DefaultAPIBase()
		}
		parsed, err := url.Parse(base)
		if err != nil {
			return nil, err
		}
		existing = extractQueryParams(parsed)
		parsed.RawQuery = ""
		appendPathIfMissing(parsed, "/listen")
		setSchemeFromHost(parsed)
		u = parsed
	}

	b := &queryBuilder{}
	for _, kv := range existing {
		b.add(kv[0], kv[1])
	}
	b.addCommonListenParams(params, channels)
	langs(b, params, modeLive)
	keywords(b, params)
	b.addCustomQuery(params)
	b.applyTo(u)
	return u, nil
}
