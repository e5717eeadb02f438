// Package settings holds the monitored-site list and its thresholds.
package settings

import (
	"errors"
	"fmt"

	"github.com/goodtune/snsdetox/internal/domain"
	"github.com/goodtune/snsdetox/internal/restriction"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("settings: invalid")

// Threshold bounds accepted for site entries and defaults.
const (
	MinGrayscaleMinutes = 1
	MaxGrayscaleMinutes = 180
	MinBlockMinutes     = 5
	MaxBlockMinutes     = 240
)

// SiteConfig is one monitored site with its own thresholds.
type SiteConfig struct {
	Domain           string `json:"domain" yaml:"domain"`
	GrayscaleMinutes int    `json:"grayscaleTime" yaml:"grayscaleTime"`
	BlockMinutes     int    `json:"blockTime" yaml:"blockTime"`
}

// Thresholds converts the site's minute values.
func (s SiteConfig) Thresholds() restriction.Thresholds {
	return restriction.ThresholdsFromMinutes(s.GrayscaleMinutes, s.BlockMinutes)
}

// Settings is the document stored under the synced "settings" key. The
// top-level thresholds are the global defaults.
type Settings struct {
	Sites                   []SiteConfig `json:"sites" yaml:"sites"`
	DefaultGrayscaleMinutes int          `json:"grayscaleTime" yaml:"grayscaleTime"`
	DefaultBlockMinutes     int          `json:"blockTime" yaml:"blockTime"`
}

// Defaults returns the built-in settings used on first run.
func Defaults() Settings {
	sites := []string{"facebook.com", "twitter.com", "instagram.com", "tiktok.com", "linkedin.com"}
	s := Settings{
		DefaultGrayscaleMinutes: 15,
		DefaultBlockMinutes:     45,
	}
	for _, d := range sites {
		s.Sites = append(s.Sites, SiteConfig{Domain: d, GrayscaleMinutes: 15, BlockMinutes: 45})
	}
	return s
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	out := s
	out.Sites = append([]SiteConfig(nil), s.Sites...)
	return out
}

// Domains returns the configured site domains in order.
func (s Settings) Domains() []string {
	out := make([]string, len(s.Sites))
	for i, site := range s.Sites {
		out[i] = site.Domain
	}
	return out
}

// MatchSite returns the first site whose domain is a substring of d.
func (s Settings) MatchSite(d string) (SiteConfig, bool) {
	i := domain.Match(d, s.Domains())
	if i < 0 {
		return SiteConfig{}, false
	}
	return s.Sites[i], true
}

// DefaultThresholds converts the global defaults.
func (s Settings) DefaultThresholds() restriction.Thresholds {
	return restriction.ThresholdsFromMinutes(s.DefaultGrayscaleMinutes, s.DefaultBlockMinutes)
}

// ThresholdsFor resolves the thresholds for d, falling back to the defaults.
func (s Settings) ThresholdsFor(d string) restriction.Thresholds {
	if site, ok := s.MatchSite(d); ok {
		return site.Thresholds()
	}
	return s.DefaultThresholds()
}

// Validate checks ranges and domain uniqueness.
func Validate(s Settings) error {
	if err := validatePair("defaults", s.DefaultGrayscaleMinutes, s.DefaultBlockMinutes); err != nil {
		return err
	}

	seen := make(map[string]bool, len(s.Sites))
	for i, site := range s.Sites {
		if site.Domain == "" {
			return fmt.Errorf("%w: site %d has no domain", ErrInvalid, i)
		}
		if seen[site.Domain] {
			return fmt.Errorf("%w: duplicate site %s", ErrInvalid, site.Domain)
		}
		seen[site.Domain] = true

		if err := validatePair(site.Domain, site.GrayscaleMinutes, site.BlockMinutes); err != nil {
			return err
		}
	}
	return nil
}

func validatePair(name string, grayscale, block int) error {
	if grayscale < MinGrayscaleMinutes || grayscale > MaxGrayscaleMinutes {
		return fmt.Errorf("%w: %s: grayscale time %d outside %d-%d minutes",
			ErrInvalid, name, grayscale, MinGrayscaleMinutes, MaxGrayscaleMinutes)
	}
	if block < MinBlockMinutes || block > MaxBlockMinutes {
		return fmt.Errorf("%w: %s: block time %d outside %d-%d minutes",
			ErrInvalid, name, block, MinBlockMinutes, MaxBlockMinutes)
	}
	if block <= grayscale {
		return fmt.Errorf("%w: %s: block time must exceed grayscale time", ErrInvalid, name)
	}
	return nil
}
