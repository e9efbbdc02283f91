package review

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"
)

// MatchConfig holds the matching constants. They are fixed per
// configuration, never tuned during a run, so repeated runs over the same
// findings cluster identically.
type MatchConfig struct {
	// Threshold is the score a pair must exceed to be linked.
	Threshold      float64 `json:"threshold"`
	LocationWeight float64 `json:"locationWeight"`
	CategoryWeight float64 `json:"categoryWeight"`
	TextWeight     float64 `json:"textWeight"`
	// ProximityWindow is the largest line gap that still earns a location
	// score for non-overlapping ranges.
	ProximityWindow int `json:"proximityWindow"`
	// ProximityBonus is the location score of adjacent ranges (gap 1); it
	// decays linearly to zero past the window.
	ProximityBonus float64 `json:"proximityBonus"`
	// UnresolvedScore is the location score when either side has no line.
	UnresolvedScore float64 `json:"unresolvedScore"`
	// Synonyms maps extra category spellings to canonical categories.
	Synonyms map[string]string `json:"synonyms,omitempty"`
}

// DefaultMatchConfig returns the calibrated defaults: location dominates,
// category and text share the rest.
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		Threshold:       0.55,
		LocationWeight:  0.5,
		CategoryWeight:  0.25,
		TextWeight:      0.25,
		ProximityWindow: 5,
		ProximityBonus:  0.8,
		UnresolvedScore: 0.5,
	}
}

// Validate checks that weights are usable.
func (c MatchConfig) Validate() error {
	var errs []error
	weights := []struct {
		name string
		w    float64
	}{
		{"locationWeight", c.LocationWeight},
		{"categoryWeight", c.CategoryWeight},
		{"textWeight", c.TextWeight},
	}
	for _, w := range weights {
		if w.w < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", w.name))
		}
	}
	if sum := c.LocationWeight + c.CategoryWeight + c.TextWeight; math.Abs(sum-1) > 1e-6 {
		errs = append(errs, fmt.Errorf("weights must sum to 1, got %.3f", sum))
	}
	if c.LocationWeight < c.CategoryWeight || c.CategoryWeight < c.TextWeight {
		errs = append(errs, errors.New("weights must rank location >= category >= text"))
	}
	if c.Threshold <= 0 || c.Threshold >= 1 {
		errs = append(errs, fmt.Errorf("threshold must be in (0, 1), got %.3f", c.Threshold))
	}
	if c.ProximityWindow < 0 {
		errs = append(errs, errors.New("proximityWindow must not be negative"))
	}
	return errors.Join(errs...)
}

// categorySynonyms maps spellings to canonical categories.
var categorySynonyms = map[string]string{
	"memory":             "memory-safety",
	"memory-safety":      "memory-safety",
	"memory safety":      "memory-safety",
	"buffer-overflow":    "memory-safety",
	"buffer overflow":    "memory-safety",
	"out-of-bounds":      "memory-safety",
	"use-after-free":     "memory-safety",
	"null-pointer":       "memory-safety",
	"stack":              "memory-safety",
	"concurrency":        "concurrency",
	"interrupt":          "concurrency",
	"interrupt-safety":   "concurrency",
	"interrupt safety":   "concurrency",
	"isr":                "concurrency",
	"race":               "concurrency",
	"race-condition":     "concurrency",
	"race condition":     "concurrency",
	"thread-safety":      "concurrency",
	"atomicity":          "concurrency",
	"hardware":           "hardware-interface",
	"hardware-interface": "hardware-interface",
	"hardware interface": "hardware-interface",
	"hw":                 "hardware-interface",
	"peripheral":         "hardware-interface",
	"register":           "hardware-interface",
	"dma":                "hardware-interface",
	"c-pitfalls":         "c-pitfalls",
	"c pitfalls":         "c-pitfalls",
	"undefined-behavior": "c-pitfalls",
	"undefined behavior": "c-pitfalls",
	"ub":                 "c-pitfalls",
	"integer-overflow":   "c-pitfalls",
	"security":           "security",
	"bug":                "correctness",
	"logic":              "correctness",
	"correctness":        "correctness",
	"performance":        "performance",
	"timing":             "performance",
	"maintainability":    "maintainability",
	"style":              "style",
	"testing":            "testing",
	"docs":               "docs",
	"documentation":      "docs",
}

// CanonicalCategory maps a free-form category to its canonical name. Unknown
// categories are returned lowercased; they match only themselves.
func (c MatchConfig) CanonicalCategory(category string) string {
	key := strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(category))), " ")
	if key == "" {
		return ""
	}
	if canon, ok := c.Synonyms[key]; ok {
		return canon
	}
	if canon, ok := categorySynonyms[key]; ok {
		return canon
	}
	if canon, ok := categorySynonyms[strings.ReplaceAll(key, "_", "-")]; ok {
		return canon
	}
	return key
}

// CategoriesCompatible reports exact or synonym agreement. Empty categories
// are compatible with nothing.
func (c MatchConfig) CategoriesCompatible(a, b string) bool {
	ca, cb := c.CanonicalCategory(a), c.CanonicalCategory(b)
	return ca != "" && ca == cb
}

// Score computes the similarity of two findings in [0, 1]. Findings on
// different or unknown paths always score 0.
func (c MatchConfig) Score(a, b Finding) float64 {
	if a.Location.Path == "" || a.Location.Path != b.Location.Path {
		return 0
	}
	score := c.LocationWeight * c.locationScore(a.Location, b.Location)
	if c.categoryMatch(a, b) {
		score += c.CategoryWeight
	}
	score += c.TextWeight * textSimilarity(a, b)
	return score
}

// Matches reports whether the pair's score exceeds the threshold.
func (c MatchConfig) Matches(a, b Finding) bool {
	return c.Score(a, b) > c.Threshold
}

// categoryMatch also credits an uncategorized no-issue assertion, which
// speaks for whatever is reported at its location.
func (c MatchConfig) categoryMatch(a, b Finding) bool {
	if c.CategoriesCompatible(a.Category, b.Category) {
		return true
	}
	return (a.Kind == KindNoIssue && a.Category == "") || (b.Kind == KindNoIssue && b.Category == "")
}

func (c MatchConfig) locationScore(a, b Location) float64 {
	if !a.Resolved() || !b.Resolved() {
		return c.UnresolvedScore
	}
	as, ae := a.Span()
	bs, be := b.Span()

	if as <= be && bs <= ae {
		overlap := min(ae, be) - max(as, bs) + 1
		shorter := min(ae-as, be-bs) + 1
		return float64(overlap) / float64(shorter)
	}

	gap := bs - ae
	if as > be {
		gap = as - be
	}
	if c.ProximityWindow <= 0 || gap > c.ProximityWindow {
		return 0
	}
	return c.ProximityBonus * float64(c.ProximityWindow-gap+1) / float64(c.ProximityWindow)
}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "in": true, "on": true,
	"to": true, "is": true, "and": true, "or": true, "for": true, "at": true,
	"be": true, "by": true, "with": true, "this": true, "that": true, "it": true,
	"may": true, "can": true, "not": true, "no": true,
}

// textSimilarity is the Jaccard index over lowercase word tokens of the
// titles and descriptions.
func textSimilarity(a, b Finding) float64 {
	ta := tokenSet(a.Title + " " + a.Description)
	tb := tokenSet(b.Title + " " + b.Description)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	inter := 0
	for w := range ta {
		if tb[w] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]bool {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	set := make(map[string]bool, len(words))
	for _, w := range words {
		if len(w) < 2 || stopWords[w] {
			continue
		}
		set[w] = true
	}
	return set
}
