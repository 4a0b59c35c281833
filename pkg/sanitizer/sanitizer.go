package sanitizer

import (
	"regexp"
	"strings"
	"unicode"
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

var reIdentifier = regexp.MustCompile(`[^A-Za-z0-9_\-.:]+`)

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

func truncate(limit int) Strategy {
	return func(s string) string {
		runes := []rune(s)
		if len(runes) <= limit {
			return s
		}
		return strings.TrimSpace(string(runes[:limit]))
	}
}

// SanitizeNotes keeps line structure but drops control characters and
// surrounding whitespace.
func SanitizeNotes(input string) string {
	p := Pipeline{
		stripControl,
		strings.TrimSpace,
		truncate(2000),
	}
	return p.Apply(input)
}

// SanitizeReason flattens a decision reason onto one line.
func SanitizeReason(input string) string {
	p := Pipeline{
		stripControl,
		TrimAndNormalize,
		truncate(500),
	}
	return p.Apply(input)
}

func SanitizeDisplayName(input string) string {
	p := Pipeline{
		stripControl,
		TrimAndNormalize,
		truncate(128),
	}
	return p.Apply(input)
}

// SanitizeIdentifier trims an opaque id and rejects anything outside the
// identifier alphabet by returning "".
func SanitizeIdentifier(input string) string {
	s := strings.TrimSpace(input)
	if reIdentifier.MatchString(s) {
		return ""
	}
	return s
}

func SanitizeSlice(values []string, strategy Strategy) []string {
	seen := make(map[string]struct{})
	out := []string{}

	for _, v := range values {
		s := strategy(v)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	return out
}
