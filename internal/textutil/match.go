package textutil

import (
	"fmt"
	"regexp"
	"strings"
)

// MatchMode selects how Matcher compares a candidate with a pattern.
type MatchMode string

const (
	MatchExact      MatchMode = "exact"
	MatchContains   MatchMode = "contains"
	MatchStartsWith MatchMode = "starts_with"
	MatchEndsWith   MatchMode = "ends_with"
	MatchWildcard   MatchMode = "wildcard"
	MatchRegexp     MatchMode = "regexp"
)

// ParseMatchMode accepts the mode names above; empty means exact.
func ParseMatchMode(value string) (MatchMode, error) {
	mode := MatchMode(strings.ToLower(strings.TrimSpace(value)))
	switch mode {
	case "":
		return MatchExact, nil
	case MatchExact, MatchContains, MatchStartsWith, MatchEndsWith, MatchWildcard, MatchRegexp:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown match mode %q", value)
	}
}

// Matcher is a compiled pattern. Every mode except exact is case-insensitive.
type Matcher struct {
	mode    MatchMode
	pattern string
	re      *regexp.Regexp
}

// NewMatcher compiles pattern for mode.
func NewMatcher(mode MatchMode, pattern string) (*Matcher, error) {
	m := &Matcher{mode: mode, pattern: pattern}
	switch mode {
	case MatchExact:
	case MatchContains, MatchStartsWith, MatchEndsWith:
		m.pattern = strings.ToLower(pattern)
	case MatchWildcard:
		re, err := regexp.Compile("(?is)^" + wildcardToRegexp(pattern) + "$")
		if err != nil {
			return nil, fmt.Errorf("compile wildcard: %w", err)
		}
		m.re = re
	case MatchRegexp:
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("compile regexp: %w", err)
		}
		m.re = re
	default:
		return nil, fmt.Errorf("unknown match mode %q", mode)
	}
	return m, nil
}

func (m *Matcher) Match(candidate string) bool {
	switch m.mode {
	case MatchExact:
		return candidate == m.pattern
	case MatchContains:
		return strings.Contains(strings.ToLower(candidate), m.pattern)
	case MatchStartsWith:
		return strings.HasPrefix(strings.ToLower(candidate), m.pattern)
	case MatchEndsWith:
		return strings.HasSuffix(strings.ToLower(candidate), m.pattern)
	default:
		return m.re.MatchString(candidate)
	}
}

func wildcardToRegexp(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteByte('.')
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return b.String()
}
