// Package domain reduces URLs to the registrable domain used as the unit of
// tracking and matches them against configured site entries.
package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidURL is returned when a URL has no usable hostname.
var ErrInvalidURL = errors.New("domain: invalid url")

// Canonical returns the registrable domain of rawURL by keeping the last two
// dot-separated labels of its hostname.
//
// This is a naive eTLD+1 approximation: "www.bbc.co.uk" becomes "co.uk".
// Multi-label public suffixes are deliberately not special-cased because the
// stored ledger keys depend on this exact reduction.
func Canonical(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return "", fmt.Errorf("%w: %q has no hostname", ErrInvalidURL, rawURL)
	}

	labels := strings.Split(host, ".")
	if len(labels) > 2 {
		labels = labels[len(labels)-2:]
	}
	return strings.Join(labels, "."), nil
}

// Match returns the index of the first configured domain that is a substring
// of candidate, or -1.
//
// Substring matching is ambiguous when one configured domain contains
// another ("x.com" also matches "box.com"); first match wins, so entry order
// in the settings document decides which thresholds apply.
func Match(candidate string, configured []string) int {
	if candidate == "" {
		return -1
	}
	for i, site := range configured {
		if site != "" && strings.Contains(candidate, site) {
			return i
		}
	}
	return -1
}

// Normalize lowercases a configured site entry and strips a scheme, path or
// leading "www." so it can be compared with Canonical output.
func Normalize(site string) string {
	site = strings.ToLower(strings.TrimSpace(site))
	if strings.Contains(site, "://") {
		if u, err := url.Parse(site); err == nil && u.Hostname() != "" {
			site = u.Hostname()
		}
	}
	if i := strings.IndexAny(site, "/?#"); i >= 0 {
		site = site[:i]
	}
	return strings.TrimPrefix(site, "www.")
}

// Resolve canonicalizes either a full URL or a bare hostname such as the
// page-side "www.facebook.com".
func Resolve(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	return Canonical(s)
}
