package settings

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeLegacyUpgrade(t *testing.T) {
	s, err := Decode([]byte(`{"sites":["a.com"],"grayscaleTime":10,"blockTime":30}`))
	require.NoError(t, err)

	require.Len(t, s.Sites, 1)
	assert.Equal(t, SiteConfig{Domain: "a.com", GrayscaleMinutes: 10, BlockMinutes: 30}, s.Sites[0])
	assert.Equal(t, 10, s.DefaultGrayscaleMinutes)
	assert.Equal(t, 30, s.DefaultBlockMinutes)

	out, err := Encode(s, FormatJSON)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sites":[{"domain":"a.com","grayscaleTime":10,"blockTime":30}],"grayscaleTime":10,"blockTime":30}`, string(out))
}

func TestDecodeCurrentShape(t *testing.T) {
	doc := `{
		"sites": [
			{"domain": "Reddit.com", "grayscaleTime": 5, "blockTime": 20},
			{"domain": "https://www.youtube.com/", "grayscaleTime": 30, "blockTime": 90}
		],
		"grayscaleTime": 15,
		"blockTime": 45
	}`

	s, err := Decode([]byte(doc))
	require.NoError(t, err)
	require.Len(t, s.Sites, 2)
	assert.Equal(t, "reddit.com", s.Sites[0].Domain)
	assert.Equal(t, "youtube.com", s.Sites[1].Domain)
	assert.Equal(t, 90, s.Sites[1].BlockMinutes)
}

func TestDecodeYAML(t *testing.T) {
	doc := `
sites:
  - domain: reddit.com
    grayscaleTime: 5
    blockTime: 20
  - news.ycombinator.com
grayscaleTime: 10
blockTime: 25
`
	s, err := Decode([]byte(doc))
	require.NoError(t, err)
	require.Len(t, s.Sites, 2)
	assert.Equal(t, SiteConfig{Domain: "reddit.com", GrayscaleMinutes: 5, BlockMinutes: 20}, s.Sites[0])
	assert.Equal(t, SiteConfig{Domain: "news.ycombinator.com", GrayscaleMinutes: 10, BlockMinutes: 25}, s.Sites[1])
}

func TestDecodeRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", ""},
		{"garbage json", `{"sites": [`},
		{"out of range", `{"sites":[{"domain":"a.com","grayscaleTime":0,"blockTime":30}],"grayscaleTime":10,"blockTime":30}`},
		{"block below grayscale", `{"sites":["a.com"],"grayscaleTime":30,"blockTime":10}`},
		{"duplicate", `{"sites":["a.com","a.com"],"grayscaleTime":10,"blockTime":30}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.doc))
			require.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestEncodeYAMLRoundTripsThroughDecode(t *testing.T) {
	out, err := Encode(Defaults(), FormatYAML)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(out), "grayscaleTime: 15"))

	s, err := Decode(out)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), s)
}

func TestEncodeUnknownFormat(t *testing.T) {
	_, err := Encode(Defaults(), "toml")
	require.Error(t, err)
}
