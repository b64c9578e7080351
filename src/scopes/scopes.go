// Package scopes implements hierarchical permission scope matching.
// A scope is a colon-delimited pattern such as "admin:keys:read"; a
// segment of "*" matches any literal segment, and a trailing ":*"
// absorbs any remaining depth, so "admin:*" grants "admin:keys:create".
package scopes

import (
	"strings"
)

const wildcard = "*"

// Scope is a permission pattern parsed once at grant time. The
// colon-delimited string remains the wire form; matching works on the
// lowercased segment list.
type Scope struct {
	raw      string
	segments []string
	// trailing reports a trailing ":*" that absorbs any suffix
	trailing bool
}

// Parse builds a Scope from its wire form. Matching is case-insensitive,
// so segments are lowercased here once.
func Parse(raw string) Scope {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	s := Scope{raw: lowered}
	if lowered == "" {
		return s
	}
	s.segments = strings.Split(lowered, ":")
	last := len(s.segments) - 1
	if last >= 1 && s.segments[last] == wildcard {
		s.trailing = true
		s.segments = s.segments[:last]
	}
	return s
}

// ParseAll parses a granted scope list
func ParseAll(raw []string) []Scope {
	parsed := make([]Scope, 0, len(raw))
	for _, r := range raw {
		parsed = append(parsed, Parse(r))
	}
	return parsed
}

// String returns the wire form (lowercased)
func (s Scope) String() string {
	return s.raw
}

// IsZero reports an empty pattern
func (s Scope) IsZero() bool {
	return s.raw == ""
}

// Namespace returns the first segment, or "" for an empty scope
func (s Scope) Namespace() string {
	if len(s.segments) == 0 {
		return ""
	}
	return s.segments[0]
}

// grants reports whether this granted pattern satisfies the required
// scope. The required side is matched literally; wildcards only have
// meaning on the granted side.
func (s Scope) grants(required Scope) bool {
	if s.IsZero() || required.IsZero() {
		// An empty pattern is never a meaningful permission; deny.
		return false
	}
	if s.raw == required.raw {
		return true
	}
	if s.trailing {
		// "a:b:*" absorbs any strict suffix; the bare prefix "a:b" is
		// not itself granted
		if len(required.segments) <= len(s.segments) {
			return false
		}
		return segmentsMatch(s.segments, required.segments[:len(s.segments)])
	}
	if len(s.segments) != len(required.segments) {
		return false
	}
	return segmentsMatch(s.segments, required.segments)
}

func segmentsMatch(granted, required []string) bool {
	for i, g := range granted {
		if g != wildcard && g != required[i] {
			return false
		}
	}
	return true
}

// Grants reports whether any scope in the granted set satisfies the
// required scope. Pure and deterministic for any inputs.
func Grants(granted []Scope, required Scope) bool {
	for _, g := range granted {
		if g.grants(required) {
			return true
		}
	}
	return false
}

// GrantsAll collects every required scope not satisfied by the granted
// set. No fail-fast: callers get the complete missing list.
func GrantsAll(granted []Scope, required []Scope) (missing []string) {
	for _, r := range required {
		if !Grants(granted, r) {
			missing = append(missing, r.String())
		}
	}
	return missing
}

// HasAdminScope reports whether any granted scope sits in the reserved
// administrative namespace.
func HasAdminScope(granted []string, namespace string) bool {
	for _, g := range granted {
		if Parse(g).Namespace() == namespace {
			return true
		}
	}
	return false
}
