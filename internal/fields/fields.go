// Package fields validates vendor request parameters against a per-endpoint
// schema of required and optional fields.
package fields

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Mode controls how parameters outside the schema are treated.
type Mode string

const (
	// Permissive ignores parameters the schema does not name.
	Permissive Mode = "permissive"
	// Strict rejects them.
	Strict Mode = "strict"
)

// ParseMode maps a configured mode name, defaulting to Permissive.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", Permissive:
		return Permissive, nil
	case Strict:
		return Strict, nil
	default:
		return "", fmt.Errorf("unknown validation mode %q", s)
	}
}

var (
	ErrMissingFields    = errors.New("fields: missing required parameters")
	ErrUnexpectedFields = errors.New("fields: unexpected parameters")
)

// ValidationError lists every offending parameter, not just the first.
type ValidationError struct {
	Missing    []string
	Unexpected []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unexpected) > 0 {
		parts = append(parts, "unexpected "+strings.Join(e.Unexpected, ", "))
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

// Is matches ErrMissingFields or ErrUnexpectedFields depending on content.
func (e *ValidationError) Is(target error) bool {
	switch target {
	case ErrMissingFields:
		return len(e.Missing) > 0
	case ErrUnexpectedFields:
		return len(e.Unexpected) > 0
	}
	return false
}

// Body renders the error the way vendors expect it in a 400 response.
// Missing fields take precedence over unexpected ones.
func (e *ValidationError) Body() map[string][]string {
	if len(e.Missing) > 0 {
		return map[string][]string{"missing_parameter": e.Missing}
	}
	return map[string][]string{"unexpected_parameter": e.Unexpected}
}

// Schema describes one endpoint. Optional maps a field to its default.
type Schema struct {
	Required []string
	Optional map[string]string
}

// Extend returns a copy of s with extra optional fields.
func (s Schema) Extend(optional map[string]string) Schema {
	out := Schema{
		Required: append([]string(nil), s.Required...),
		Optional: make(map[string]string, len(s.Optional)+len(optional)),
	}
	for k, v := range s.Optional {
		out.Optional[k] = v
	}
	for k, v := range optional {
		out.Optional[k] = v
	}
	return out
}

func (s Schema) known(key string) bool {
	if _, ok := s.Optional[key]; ok {
		return true
	}
	for _, r := range s.Required {
		if r == key {
			return true
		}
	}
	return false
}

// Parse extracts the schema's fields from values. The first value of a repeated
// key wins. Parameters with an empty key are always ignored.
func (s Schema) Parse(values url.Values, mode Mode) (map[string]string, error) {
	out := make(map[string]string, len(s.Required)+len(s.Optional))
	verr := &ValidationError{}

	for _, key := range s.Required {
		v, ok := values[key]
		if !ok || len(v) == 0 {
			verr.Missing = append(verr.Missing, key)
			continue
		}
		out[key] = v[0]
	}
	for key, def := range s.Optional {
		if v, ok := values[key]; ok && len(v) > 0 {
			out[key] = v[0]
		} else {
			out[key] = def
		}
	}

	if mode == Strict {
		for key := range values {
			if key == "" || s.known(key) {
				continue
			}
			verr.Unexpected = append(verr.Unexpected, key)
		}
		sort.Strings(verr.Unexpected)
	}

	if len(verr.Missing) > 0 || len(verr.Unexpected) > 0 {
		return nil, verr
	}
	return out, nil
}
