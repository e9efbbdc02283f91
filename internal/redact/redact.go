package redact

import (
	"regexp"
	"strings"

	"github.com/ylongwang2782/embedded-review/internal/gitctx"
	"github.com/ylongwang2782/embedded-review/internal/review"
)

const placeholder = "[REDACTED]"

const pathPolicyNote = placeholder + " (file content redacted by path policy)"

// secretPatterns are regex heuristics for common secret types.
var secretPatterns = []*regexp.Regexp{
	// Generic API keys
	regexp.MustCompile(`(?i)(api[_-]?key|apikey|api[_-]?secret)\s*[:=]\s*["']?([A-Za-z0-9/+=_-]{20,})["']?`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	regexp.MustCompile(`(?i)(aws[_-]?secret[_-]?access[_-]?key)\s*[:=]\s*["']?([A-Za-z0-9/+=]{40})["']?`),
	// Assignments in scripts and config files
	regexp.MustCompile(`(?i)(secret|token|password|passwd|credential)\s*[:=]\s*["']([^"']{8,})["']`),
	// C preprocessor credentials: #define WIFI_PASSWORD "..."
	regexp.MustCompile(`(?i)#\s*define\s+\w*(pass(word|wd|phrase)?|psk|secret|token|api_?key)\w*\s+"[^"]{4,}"`),
	// Key material as C byte arrays: uint8_t aes_key[16] = { 0x.., ... }
	regexp.MustCompile(`(?i)\w*(key|secret|psk)\w*\s*\[\s*\w*\s*\]\s*=\s*\{\s*(0x[0-9a-f]{2}\s*,\s*){7,}0x[0-9a-f]{2}\s*,?\s*\}`),
	regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._-]{20,}`),
	// JWTs
	regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`),
	regexp.MustCompile(`-----BEGIN\s+((RSA|EC|OPENSSH)\s+)?PRIVATE KEY-----`),
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,}`),
	regexp.MustCompile(`xox[bporas]-[A-Za-z0-9-]{10,}`),
	regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`),
	regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
	// Long hex strings in an assignment
	regexp.MustCompile(`(?i)(key|secret|token)\s*[:=]\s*["']?[0-9a-f]{32,}["']?`),
}

// Stats counts what a redaction pass removed.
type Stats struct {
	Secrets int
	Files   int
}

// Secrets replaces detected secrets in text with [REDACTED].
func Secrets(text string) string {
	out, _ := secrets(text)
	return out
}

func secrets(text string) (string, int) {
	n := 0
	for _, pat := range secretPatterns {
		text = pat.ReplaceAllStringFunc(text, func(string) string {
			n++
			return placeholder
		})
	}
	return text, n
}

// Content redacts secrets from content, or the whole content when path
// matches a redaction pattern.
func Content(content, path string, redactPaths []string) string {
	if gitctx.MatchesAny(path, redactPaths) {
		return pathPolicyNote + "\n"
	}
	return Secrets(content)
}

// Diff redacts a unified diff file by file. Sections for paths matching
// redactPaths keep their headers but lose every hunk.
func Diff(diff string, redactPaths []string) (string, Stats) {
	var (
		b     strings.Builder
		stats Stats
	)
	for _, section := range sections(diff) {
		if path := sectionPath(section); path != "" && gitctx.MatchesAny(path, redactPaths) {
			b.WriteString(headerOnly(section))
			b.WriteString(pathPolicyNote)
			b.WriteString("\n")
			stats.Files++
			continue
		}
		out, n := secrets(section)
		stats.Secrets += n
		b.WriteString(out)
	}
	return b.String(), stats
}

// Input returns a copy of in with the diff and every reference document
// redacted. Reference documents are only scanned for secrets.
func Input(in review.Input, redactPaths []string) (review.Input, Stats) {
	out := in
	var stats Stats
	out.Diff, stats = Diff(in.Diff, redactPaths)
	if len(in.Reference) > 0 {
		out.Reference = make([]review.ReferenceDoc, len(in.Reference))
		for i, doc := range in.Reference {
			content, n := secrets(doc.Content)
			stats.Secrets += n
			out.Reference[i] = review.ReferenceDoc{Name: doc.Name, Content: content}
		}
	}
	return out, stats
}

func sections(diff string) []string {
	var out []string
	start := 0
	for i := 0; i < len(diff); {
		next := strings.Index(diff[i:], "\ndiff --git ")
		if next < 0 {
			break
		}
		cut := i + next + 1
		if cut > start {
			out = append(out, diff[start:cut])
		}
		start = cut
		i = cut
	}
	if start < len(diff) {
		out = append(out, diff[start:])
	}
	return out
}

func sectionPath(section string) string {
	for line := range strings.SplitSeq(section, "\n") {
		if path, ok := strings.CutPrefix(line, "+++ b/"); ok {
			return path
		}
		if strings.HasPrefix(line, "@@") {
			break
		}
	}
	return ""
}

func headerOnly(section string) string {
	if i := strings.Index(section, "\n@@"); i >= 0 {
		return section[:i+1]
	}
	return section
}
