package language

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in     string
		code   string
		region string
	}{
		{"en", "en", ""},
		{"EN", "en", ""},
		{"en-GB", "en", "GB"},
		{"en_gb", "en", "GB"},
		{"pt-BR", "pt", "BR"},
		{" ko ", "ko", ""},
	}

	for _, c := range cases {
		l, err := Parse(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.code, l.ISO639())
		assert.Equal(t, c.region, l.Region())
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{"", "x", "123", "en glish", "toolong"} {
		_, err := Parse(in)
		assert.Error(t, err, in)
	}
}

func TestBCP47(t *testing.T) {
	assert.Equal(t, "en", New("en").BCP47())
	assert.Equal(t, "en-GB", WithRegion("en", "gb").BCP47())
}

func TestParseList(t *testing.T) {
	langs := ParseList("en, es ,,zz!,ko")
	assert.Equal(t, []string{"en", "es", "ko"}, Codes(langs))
}
