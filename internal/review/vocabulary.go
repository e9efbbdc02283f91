package review

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Vocabulary maps one source's severity tokens onto the P0..P3 scale. Each
// source carries its own table; there is no shared global vocabulary.
type Vocabulary struct {
	severities map[string]Severity
	noIssue    map[string]bool
}

var defaultNoIssueTokens = []string{"ok", "no-issue", "no issue", "noissue", "pass", "correct"}

// NewVocabulary builds a vocabulary from token→severity pairs. Canonical
// names P0..P3 always map to themselves. If noIssue is nil the default
// no-issue tokens are used.
func NewVocabulary(table map[string]string, noIssue []string) (Vocabulary, error) {
	v := Vocabulary{
		severities: make(map[string]Severity, len(table)+len(Severities)),
		noIssue:    make(map[string]bool),
	}
	for _, s := range Severities {
		v.severities[strings.ToLower(string(s))] = s
	}
	for token, target := range table {
		sev, err := ParseSeverity(target)
		if err != nil {
			return Vocabulary{}, fmt.Errorf("severity token %q: %w", token, err)
		}
		v.severities[normalizeToken(token)] = sev
	}
	if noIssue == nil {
		noIssue = defaultNoIssueTokens
	}
	for _, token := range noIssue {
		v.noIssue[normalizeToken(token)] = true
	}
	return v, nil
}

// DefaultSeverityTable returns a fresh copy of the default token table.
func DefaultSeverityTable() map[string]string {
	return map[string]string{
		"critical": "P0",
		"high":     "P1",
		"medium":   "P2",
		"low":      "P3",
	}
}

// DefaultVocabulary is critical→P0, high→P1, medium→P2, low→P3.
func DefaultVocabulary() Vocabulary {
	v, _ := NewVocabulary(DefaultSeverityTable(), nil)
	return v
}

// Lookup maps a raw token. ok is false for unmapped tokens.
func (v Vocabulary) Lookup(token string) (Severity, bool) {
	if v.severities == nil {
		return DefaultVocabulary().Lookup(token)
	}
	sev, ok := v.severities[normalizeToken(token)]
	return sev, ok
}

// IsNoIssue reports whether token is an explicit "no issue" marker.
func (v Vocabulary) IsNoIssue(token string) bool {
	if v.noIssue == nil {
		return DefaultVocabulary().IsNoIssue(token)
	}
	return v.noIssue[normalizeToken(token)]
}

// Known reports whether token is either a severity or a no-issue marker.
func (v Vocabulary) Known(token string) bool {
	_, ok := v.Lookup(token)
	return ok || v.IsNoIssue(token)
}

// LeadingPhrase returns the longest multi-word token s starts with, as
// written in s, or "" when none matches at a word boundary.
func (v Vocabulary) LeadingPhrase(s string) string {
	if v.severities == nil {
		return DefaultVocabulary().LeadingPhrase(s)
	}
	best := ""
	try := func(token string) {
		if !strings.Contains(token, " ") || len(token) <= len(best) || len(s) < len(token) {
			return
		}
		if !strings.EqualFold(s[:len(token)], token) {
			return
		}
		if r, _ := utf8.DecodeRuneInString(s[len(token):]); r != utf8.RuneError && isTokenRune(r) {
			return
		}
		best = s[:len(token)]
	}
	for token := range v.severities {
		try(token)
	}
	for token := range v.noIssue {
		try(token)
	}
	return best
}

func isTokenRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-'
}

func normalizeToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), " ")
}
