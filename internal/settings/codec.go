package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goodtune/snsdetox/internal/domain"
	"gopkg.in/yaml.v3"
)

// Format names accepted by Encode.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// rawDocument accepts both document shapes. Sites are decoded lazily so an
// entry may be either a bare domain string (legacy) or a site object.
type rawDocument struct {
	Sites     []rawSite `json:"sites" yaml:"sites"`
	Grayscale *int      `json:"grayscaleTime" yaml:"grayscaleTime"`
	Block     *int      `json:"blockTime" yaml:"blockTime"`
}

type rawSite struct {
	legacy string
	site   SiteConfig
}

func (r *rawSite) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &r.legacy); err == nil {
		return nil
	}
	r.legacy = ""
	return json.Unmarshal(data, &r.site)
}

func (r *rawSite) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&r.legacy)
	}
	return node.Decode(&r.site)
}

// Decode parses a settings document in JSON or YAML, current or legacy
// shape, and returns the validated current form. Legacy string entries take
// the document's flat thresholds.
func Decode(data []byte) (Settings, error) {
	var raw rawDocument
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Settings{}, fmt.Errorf("%w: empty document", ErrInvalid)
	}

	var err error
	if trimmed[0] == '{' {
		err = json.Unmarshal(trimmed, &raw)
	} else {
		err = yaml.Unmarshal(trimmed, &raw)
	}
	if err != nil {
		return Settings{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	defaults := Defaults()
	s := Settings{
		DefaultGrayscaleMinutes: defaults.DefaultGrayscaleMinutes,
		DefaultBlockMinutes:     defaults.DefaultBlockMinutes,
	}
	if raw.Grayscale != nil {
		s.DefaultGrayscaleMinutes = *raw.Grayscale
	}
	if raw.Block != nil {
		s.DefaultBlockMinutes = *raw.Block
	}

	for _, rs := range raw.Sites {
		site := rs.site
		if rs.legacy != "" {
			site = SiteConfig{
				Domain:           rs.legacy,
				GrayscaleMinutes: s.DefaultGrayscaleMinutes,
				BlockMinutes:     s.DefaultBlockMinutes,
			}
		}
		site.Domain = domain.Normalize(site.Domain)
		s.Sites = append(s.Sites, site)
	}
	if s.Sites == nil {
		s.Sites = []SiteConfig{}
	}

	if err := Validate(s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Encode serializes s in the current shape.
func Encode(s Settings, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", FormatJSON:
		return json.MarshalIndent(s, "", "  ")
	case FormatYAML, "yml":
		return yaml.Marshal(s)
	default:
		return nil, fmt.Errorf("unsupported format: %s (must be json or yaml)", format)
	}
}
