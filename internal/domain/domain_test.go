package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonical(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"www prefix", "https://www.facebook.com/feed", "facebook.com"},
		{"deep subdomain", "https://m.web.instagram.com/p/123", "instagram.com"},
		{"bare domain", "https://tiktok.com", "tiktok.com"},
		{"uppercase host", "HTTPS://WWW.LinkedIn.COM/in/someone", "linkedin.com"},
		{"port is dropped", "http://twitter.com:8080/home", "twitter.com"},
		{"single label", "http://localhost:3000/", "localhost"},
		{"multi-label suffix is not special-cased", "https://www.bbc.co.uk/news", "co.uk"},
		{"trailing dot", "https://www.reddit.com./r/golang", "reddit.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonical(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanonicalRejectsUnparsable(t *testing.T) {
	for _, raw := range []string{"", "not a url", "://missing-scheme", "mailto:someone@example.com"} {
		_, err := Canonical(raw)
		assert.ErrorIs(t, err, ErrInvalidURL, "url %q", raw)
	}
}

func TestMatchFirstWins(t *testing.T) {
	configured := []string{"x.com", "box.com", "facebook.com"}

	assert.Equal(t, 2, Match("facebook.com", configured))
	// "box.com" contains "x.com", which is listed first.
	assert.Equal(t, 0, Match("box.com", configured))
	assert.Equal(t, -1, Match("youtube.com", configured))
	assert.Equal(t, -1, Match("", configured))
}

func TestMatchSkipsEmptyEntries(t *testing.T) {
	assert.Equal(t, 1, Match("tiktok.com", []string{"", "tiktok.com"}))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "facebook.com", Normalize("  https://www.Facebook.com/home "))
	assert.Equal(t, "twitter.com", Normalize("twitter.com/explore"))
	assert.Equal(t, "instagram.com", Normalize("www.instagram.com"))
}

func TestResolve(t *testing.T) {
	d, err := Resolve("www.facebook.com")
	require.NoError(t, err)
	assert.Equal(t, "facebook.com", d)

	d, err = Resolve("https://m.twitter.com/home")
	require.NoError(t, err)
	assert.Equal(t, "twitter.com", d)

	_, err = Resolve("")
	assert.ErrorIs(t, err, ErrInvalidURL)
}
