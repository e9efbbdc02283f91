package review

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultResidueLimit is the unparsed share of a source's output above which
// its contribution is flagged as a degraded parse.
const DefaultResidueLimit = 0.5

// Normalizer parses one source's raw output into findings.
type Normalizer struct {
	SourceID   string
	Vocabulary Vocabulary
	// ResidueLimit overrides DefaultResidueLimit when > 0.
	ResidueLimit float64
}

// Normalized is the result of normalizing one payload.
type Normalized struct {
	Findings []Finding
	Residue  Residue
	Warnings []string
}

// Degraded reports whether a degraded-parse warning was raised.
func (n Normalized) Degraded() bool {
	return len(n.Warnings) > 0
}

var (
	listMarkerRe  = regexp.MustCompile(`^(?:[-*+]\s+|\d+[.)]\s+|#{1,6}\s+)`)
	leadTokenRe   = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*`)
	wordTokenRe   = regexp.MustCompile(`^[A-Za-z][A-Za-z_-]{2,15}$`)
	locationRe    = regexp.MustCompile("`?([A-Za-z0-9_./\\\\-]+\\.[A-Za-z0-9]+):(\\d+)(?:-(\\d+))?`?:?")
	bareLocRe     = regexp.MustCompile(`^([A-Za-z0-9_./\\-]+):(\d+)(?:-(\d+))?:?$`)
	barePathRe    = regexp.MustCompile(`^` + "`?" + `([A-Za-z0-9_.\\-]*[/\\][A-Za-z0-9_./\\-]+|[A-Za-z0-9_-]+\.(?:c|h|cc|cpp|hpp|s|S|ld|rs|go|py))` + "`?" + `:?$`)
	categoryTagRe = regexp.MustCompile(`\{\s*([A-Za-z][A-Za-z0-9 _/-]*?)\s*\}`)
	unsureRe      = regexp.MustCompile(`(?i)[\[(]\s*(?:unsure|uncertain|\?|low confidence|not sure)\s*[\])]`)
	labelRe       = regexp.MustCompile(`^(?:[-*+]\s+)?(?:\*\*|__)?([A-Za-z][A-Za-z ]{0,24}?)(?:\*\*|__)?\s*:(?:\*\*|__)?\s*(.*)$`)
	ruleRe        = regexp.MustCompile(`^(?:-{3,}|\*{3,}|_{3,})$`)
)

// field is a labeled detail slot of a finding block.
type field int

const (
	fieldDescription field = iota
	fieldRisk
	fieldFix
)

var detailLabels = map[string]field{
	"description":    fieldDescription,
	"desc":           fieldDescription,
	"details":        fieldDescription,
	"detail":         fieldDescription,
	"problem":        fieldDescription,
	"issue":          fieldDescription,
	"risk":           fieldRisk,
	"impact":         fieldRisk,
	"fix":            fieldFix,
	"suggested fix":  fieldFix,
	"suggestion":     fieldFix,
	"recommendation": fieldFix,
	"remediation":    fieldFix,
}

var emptyMarkers = map[string]bool{
	"no findings":     true,
	"no issues":       true,
	"no issues found": true,
	"none":            true,
	"lgtm":            true,
	"[]":              true,
}

// header is a parsed finding header line.
type header struct {
	token     string
	bracketed bool
	uncertain bool
	category  string
	location  Location
	title     string
}

// block accumulates one finding while its detail lines are read.
type block struct {
	h       header
	details [3][]string
	cur     field
}

// Normalize parses raw output. It never fails: unparseable text is counted
// as residue.
func (n Normalizer) Normalize(raw string) Normalized {
	total := countBytes(raw)

	if findings, dropped, ok := n.parseJSON(raw); ok {
		out := Normalized{Findings: findings}
		if dropped > 0 {
			out.Residue = Residue{Lines: dropped, TotalBytes: total}
			out.Residue.Bytes = total * dropped / (dropped + len(findings))
		} else {
			out.Residue = Residue{TotalBytes: total}
		}
		n.checkResidue(&out)
		return out
	}

	out := n.parseText(raw)
	out.Residue.TotalBytes = total
	n.checkResidue(&out)
	return out
}

func (n Normalizer) checkResidue(out *Normalized) {
	limit := n.ResidueLimit
	if limit <= 0 {
		limit = DefaultResidueLimit
	}
	if frac := out.Residue.Fraction(); frac > limit {
		out.Warnings = append(out.Warnings, fmt.Sprintf("%v: %.0f%% of output from %s could not be mapped to findings",
			ErrParseDegraded, frac*100, n.SourceID))
	}
}

func (n Normalizer) parseText(raw string) Normalized {
	var (
		out     Normalized
		cur     *block
		inFence bool
	)

	flush := func() {
		if cur == nil {
			return
		}
		out.Findings = append(out.Findings, n.finish(cur, len(out.Findings)))
		cur = nil
	}
	residue := func(line string) {
		out.Residue.Lines++
		out.Residue.Bytes += len(line)
	}

	for _, rawLine := range strings.Split(raw, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "```") {
			inFence = !inFence
			if cur != nil {
				cur.add(line)
			} else if !isJSONFence(line) {
				residue(line)
			}
			continue
		}
		if inFence {
			if cur != nil {
				cur.add(rawLine)
			} else {
				residue(line)
			}
			continue
		}

		if h, ok := n.parseHeader(line); ok {
			flush()
			if h.title == "" {
				residue(line)
				continue
			}
			cur = &block{h: h}
			continue
		}

		if emptyMarkers[strings.ToLower(strings.TrimRight(line, ".!"))] {
			continue
		}

		if cur == nil {
			residue(line)
			continue
		}

		if ruleRe.MatchString(line) || strings.HasPrefix(line, "#") {
			flush()
			continue
		}

		if m := labelRe.FindStringSubmatch(line); m != nil {
			label := normalizeToken(m[1])
			value := strings.TrimSpace(m[2])
			if f, ok := detailLabels[label]; ok {
				cur.cur = f
				if value != "" {
					cur.add(value)
				}
				continue
			}
			switch label {
			case "category":
				cur.h.category = strings.Trim(value, "`*{} ")
				continue
			case "confidence":
				cur.h.uncertain = isUncertainWord(value)
				continue
			case "location", "file":
				if loc, ok := parseLocationToken(value); ok {
					cur.h.location = loc
					continue
				}
			}
		}

		cur.add(line)
	}
	flush()
	return out
}

func (b *block) add(line string) {
	b.details[b.cur] = append(b.details[b.cur], line)
}

func (n Normalizer) finish(b *block, pos int) Finding {
	f := Finding{
		SourceID:     n.SourceID,
		Location:     b.h.location,
		Category:     b.h.category,
		Title:        b.h.title,
		Description:  joinDetail(b.details[fieldDescription]),
		Risk:         joinDetail(b.details[fieldRisk]),
		SuggestedFix: joinDetail(b.details[fieldFix]),
		Confidence:   ConfidenceCertain,
		Kind:         KindDefect,
		Position:     pos,
	}
	n.applySeverity(&f, b.h.token)
	if b.h.uncertain {
		f.Confidence = ConfidenceUncertain
	}
	return f
}

// applySeverity maps a raw token. Raw severity strings never leave here.
func (n Normalizer) applySeverity(f *Finding, token string) {
	if n.Vocabulary.IsNoIssue(token) {
		f.Kind = KindNoIssue
		f.Severity = SeverityP3
		return
	}
	sev, ok := n.Vocabulary.Lookup(token)
	if !ok {
		f.Severity = SeverityP3
		f.Confidence = ConfidenceUncertain
		return
	}
	f.Severity = sev
}

// parseHeader recognizes "<severity> [markers] [location] title".
func (n Normalizer) parseHeader(line string) (header, bool) {
	var h header
	s := listMarkerRe.ReplaceAllString(line, "")
	bold := false
	if strings.HasPrefix(s, "**") || strings.HasPrefix(s, "__") {
		bold = true
		s = s[2:]
	}

	// Uncertainty marker may precede the severity token.
	if loc := unsureRe.FindStringIndex(s); loc != nil && loc[0] == 0 {
		h.uncertain = true
		s = strings.TrimSpace(s[loc[1]:])
	}

	var rest string
	if strings.HasPrefix(s, "[") {
		end := strings.Index(s, "]")
		if end < 0 {
			return header{}, false
		}
		h.token = strings.TrimSpace(s[1:end])
		h.bracketed = true
		rest = s[end+1:]
	} else {
		tok := n.Vocabulary.LeadingPhrase(s)
		if tok == "" {
			tok = leadTokenRe.FindString(s)
		}
		if tok == "" {
			return header{}, false
		}
		h.token = tok
		rest = s[len(tok):]
	}
	rest = strings.TrimPrefix(strings.TrimPrefix(rest, "**"), "__")

	known := n.Vocabulary.Known(h.token)
	if !known {
		// A bracketed single word in header position is an unmapped
		// severity; anything else is prose.
		if !h.bracketed || !wordTokenRe.MatchString(h.token) || isLink(rest) {
			return header{}, false
		}
	} else if !h.bracketed && !bold && !separated(rest) {
		// Bare words like "Low" or "OK" open a header only when followed
		// by a separator or a location.
		first := firstField(rest)
		if _, ok := parseLocationToken(first); !ok {
			return header{}, false
		}
	}

	rest = h.consumeMarkers(rest)
	rest = trimSeparators(rest)
	if first := firstField(rest); first != "" {
		if loc, ok := parseLocationToken(first); ok {
			h.location = loc
			rest = strings.TrimSpace(rest[strings.Index(rest, first)+len(first):])
		}
	}
	rest = h.consumeMarkers(trimSeparators(rest))

	if h.location.Path == "" {
		if m := locationRe.FindStringSubmatchIndex(rest); m != nil {
			h.location = locationFromMatch(rest, m)
			rest = rest[:m[0]] + rest[m[1]:]
			rest = strings.ReplaceAll(rest, "()", "")
		}
	}

	if unsureRe.MatchString(rest) {
		h.uncertain = true
		rest = unsureRe.ReplaceAllString(rest, "")
	}
	if m := categoryTagRe.FindStringSubmatch(rest); m != nil {
		if h.category == "" {
			h.category = m[1]
		}
		rest = categoryTagRe.ReplaceAllString(rest, "")
	}
	rest = strings.TrimSuffix(strings.TrimSpace(rest), "**")
	h.title = strings.Join(strings.Fields(trimSeparators(rest)), " ")
	return h, true
}

// consumeMarkers strips leading {category} and uncertainty markers.
func (h *header) consumeMarkers(s string) string {
	for {
		s = strings.TrimSpace(s)
		if loc := unsureRe.FindStringIndex(s); loc != nil && loc[0] == 0 {
			h.uncertain = true
			s = s[loc[1]:]
			continue
		}
		if loc := categoryTagRe.FindStringSubmatchIndex(s); loc != nil && loc[0] == 0 {
			h.category = s[loc[2]:loc[3]]
			s = s[loc[1]:]
			continue
		}
		return s
	}
}

func parseLocationToken(tok string) (Location, bool) {
	tok = strings.Trim(tok, "`()")
	if m := bareLocRe.FindStringSubmatch(tok); m != nil && strings.ContainsAny(m[1], "./") {
		start, _ := strconv.Atoi(m[2])
		loc := Location{Path: m[1], LineStart: start}
		if m[3] != "" {
			end, _ := strconv.Atoi(m[3])
			if end > start {
				loc.LineEnd = &end
			}
		}
		return loc, true
	}
	if m := barePathRe.FindStringSubmatch(tok); m != nil {
		return Location{Path: m[1]}, true
	}
	return Location{}, false
}

func locationFromMatch(s string, m []int) Location {
	start, _ := strconv.Atoi(s[m[4]:m[5]])
	loc := Location{Path: s[m[2]:m[3]], LineStart: start}
	if m[6] >= 0 {
		end, _ := strconv.Atoi(s[m[6]:m[7]])
		if end > start {
			loc.LineEnd = &end
		}
	}
	return loc
}

// isLink reports whether rest continues a markdown link "[text](target)".
func isLink(rest string) bool {
	return strings.HasPrefix(rest, "(") && strings.Contains(rest, ")")
}

func separated(rest string) bool {
	r := strings.TrimLeft(rest, " \t")
	return strings.HasPrefix(r, ":") || strings.HasPrefix(r, "-") ||
		strings.HasPrefix(r, "–") || strings.HasPrefix(r, "—") || strings.HasPrefix(r, "|")
}

func trimSeparators(s string) string {
	return strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(s), ":-–—| "))
}

func firstField(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func isUncertainWord(s string) bool {
	switch normalizeToken(strings.Trim(s, "*`. ")) {
	case "uncertain", "unsure", "low", "not sure", "maybe", "possible":
		return true
	}
	return false
}

func isJSONFence(line string) bool {
	lang := strings.TrimSpace(strings.TrimPrefix(line, "```"))
	return lang == "" || lang == "json"
}

func joinDetail(lines []string) string {
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func countBytes(raw string) int {
	total := 0
	for _, line := range strings.Split(raw, "\n") {
		total += len(strings.TrimSpace(line))
	}
	return total
}

// rawFinding is the JSON structure some sources return.
type rawFinding struct {
	Severity    string          `json:"severity"`
	Category    string          `json:"category"`
	Title       string          `json:"title"`
	Message     string          `json:"message"`
	Description string          `json:"description"`
	Risk        string          `json:"risk"`
	Suggestion  string          `json:"suggestion"`
	Fix         string          `json:"fix"`
	Confidence  json.RawMessage `json:"confidence"`
	Path        string          `json:"path"`
	StartLine   int             `json:"startLine"`
	EndLine     int             `json:"endLine"`
	Assertion   string          `json:"assertion"`
}

// parseJSON decodes a (possibly fenced) JSON array of findings. ok is false
// when the payload is not a JSON array, so the text grammar takes over.
func (n Normalizer) parseJSON(raw string) ([]Finding, int, bool) {
	content := stripFences(raw)
	if !strings.HasPrefix(content, "[") {
		return nil, 0, false
	}
	var items []rawFinding
	if err := json.Unmarshal([]byte(content), &items); err != nil {
		return nil, 0, false
	}

	findings := make([]Finding, 0, len(items))
	dropped := 0
	for _, r := range items {
		title := strings.TrimSpace(r.Title)
		if title == "" {
			dropped++
			continue
		}
		f := Finding{
			SourceID:     n.SourceID,
			Location:     Location{Path: r.Path, LineStart: r.StartLine},
			Category:     r.Category,
			Title:        title,
			Description:  firstNonEmpty(r.Description, r.Message),
			Risk:         r.Risk,
			SuggestedFix: firstNonEmpty(r.Fix, r.Suggestion),
			Confidence:   ConfidenceCertain,
			Kind:         KindDefect,
			Position:     len(findings),
		}
		if r.EndLine > r.StartLine && r.StartLine > 0 {
			end := r.EndLine
			f.Location.LineEnd = &end
		}
		token := r.Severity
		if r.Assertion != "" && n.Vocabulary.IsNoIssue(r.Assertion) {
			token = r.Assertion
		}
		n.applySeverity(&f, token)
		if jsonUncertain(r.Confidence) {
			f.Confidence = ConfidenceUncertain
		}
		findings = append(findings, f)
	}
	return findings, dropped, true
}

func jsonUncertain(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return num < 0.5
	}
	var word string
	if err := json.Unmarshal(raw, &word); err == nil {
		return isUncertainWord(word)
	}
	return false
}

func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	lines := strings.Split(content, "\n")
	if len(lines) < 2 {
		return content
	}
	end := len(lines)
	if strings.TrimSpace(lines[end-1]) == "```" {
		end--
	}
	return strings.TrimSpace(strings.Join(lines[1:end], "\n"))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
