package service

import (
	"errors"
	"fmt"
	"strings"
)

// Spec is human-readable information about a service.
//
// A Spec is metadata for people looking at the dashboard, not behavioural
// configuration. URL and Group are optional; empty means absent.
type Spec struct {
	// Description says what the service is.
	Description string `json:"description"`

	// URL is where the service lives, if applicable.
	URL string `json:"url,omitempty"`

	// Group is an optional label used to group services in the dashboard.
	Group string `json:"group,omitempty"`
}

// String returns the compact form <description>[@<url>][#<group>].
func (s Spec) String() string {
	var b strings.Builder
	b.WriteString(s.Description)
	if s.URL != "" {
		b.WriteByte('@')
		b.WriteString(s.URL)
	}
	if s.Group != "" {
		b.WriteByte('#')
		b.WriteString(s.Group)
	}
	return b.String()
}

// ParseSpec parses the compact spec form accepted on the command line.
//
// Accepted formats are <description>[@<url>][#<group>] and
// <description>[#<group>][@<url>]. At most one '@' and one '#' may appear.
//
// Example:
//
//	spec, err := service.ParseSpec("Public API@https://api.example.com#edge")
func ParseSpec(s string) (Spec, error) {
	if strings.Count(s, "@") > 1 || strings.Count(s, "#") > 1 {
		return Spec{}, fmt.Errorf("invalid spec %q: expected <description>[@<url>][#<group>]", s)
	}

	end := strings.IndexAny(s, "@#")
	if end == -1 {
		return Spec{Description: s}, nil
	}

	spec := Spec{Description: s[:end]}
	spec.URL = field(s, '@', '#')
	spec.Group = field(s, '#', '@')
	return spec, nil
}

// field returns the text after marker and before stop, or "" if marker is absent.
func field(s string, marker, stop byte) string {
	idx := strings.IndexByte(s, marker)
	if idx == -1 {
		return ""
	}
	rest := s[idx+1:]
	if end := strings.IndexByte(rest, stop); end != -1 {
		rest = rest[:end]
	}
	return rest
}

// Validate reports whether the spec can be stored.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.Description) == "" {
		return errors.New("description is required")
	}
	return nil
}
