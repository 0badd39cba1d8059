package language

import (
	"fmt"
	"strings"
)

// Language is an ISO-639-1 code with an optional region subtag ("en", "en-GB").
type Language struct {
	code   string
	region string
}

func New(code string) Language {
	return Language{code: strings.ToLower(code)}
}

func WithRegion(code, region string) Language {
	return Language{code: strings.ToLower(code), region: strings.ToUpper(region)}
}

// Parse accepts "en", "en-GB" or "en_GB". The code is lowered, the region uppered.
func Parse(s string) (Language, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Language{}, fmt.Errorf("empty language tag")
	}

	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '-' || r == '_' })
	code := strings.ToLower(parts[0])
	if len(code) < 2 || len(code) > 3 {
		return Language{}, fmt.Errorf("invalid language tag %q", s)
	}
	for _, r := range code {
		if r < 'a' || r > 'z' {
			return Language{}, fmt.Errorf("invalid language tag %q", s)
		}
	}

	if len(parts) > 1 {
		return Language{code: code, region: strings.ToUpper(parts[1])}, nil
	}
	return Language{code: code}, nil
}

func MustParse(s string) Language {
	l, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return l
}

// ParseList parses a comma-separated list, skipping invalid entries.
func ParseList(s string) []Language {
	var out []Language
	for _, part := range strings.Split(s, ",") {
		if l, err := Parse(part); err == nil {
			out = append(out, l)
		}
	}
	return out
}

func (l Language) ISO639() string { return l.code }

func (l Language) Region() string { return l.region }

func (l Language) HasRegion() bool { return l.region != "" }

func (l Language) IsZero() bool { return l.code == "" }

// BCP47 returns "en" or "en-GB".
func (l Language) BCP47() string {
	if l.region == "" {
		return l.code
	}
	return l.code + "-" + l.region
}

func (l Language) String() string { return l.BCP47() }

// Codes returns the bare ISO-639 codes of langs, in order.
func Codes(langs []Language) []string {
	out := make([]string, len(langs))
	for i, l := range langs {
		out[i] = l.ISO639()
	}
	return out
}
