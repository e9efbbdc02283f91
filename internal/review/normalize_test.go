package review

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_TextBlocks(t *testing.T) {
	raw := `Here is my review of the UART change.

[P1] {memory-safety} src/uart.c:42-48 RX buffer index not bounds-checked
Description: head is incremented without masking.
It can run past the end of rx_buf.
Risk: overwrites adjacent globals.
Fix: mask with (RX_BUF_SIZE - 1).

- **High** src/dma.c:10: DMA descriptor freed while in flight [unsure]
Category: hardware
`

	n := Normalizer{SourceID: "claude"}
	got := n.Normalize(raw)

	require.Len(t, got.Findings, 2)
	assert.Empty(t, got.Warnings)
	assert.Equal(t, 1, got.Residue.Lines)

	first := got.Findings[0]
	assert.Equal(t, "claude", first.SourceID)
	assert.Equal(t, SeverityP1, first.Severity)
	assert.Equal(t, ConfidenceCertain, first.Confidence)
	assert.Equal(t, KindDefect, first.Kind)
	assert.Equal(t, "memory-safety", first.Category)
	assert.Equal(t, "src/uart.c:42-48", first.Location.String())
	assert.Equal(t, "RX buffer index not bounds-checked", first.Title)
	assert.Equal(t, "head is incremented without masking.\nIt can run past the end of rx_buf.", first.Description)
	assert.Equal(t, "overwrites adjacent globals.", first.Risk)
	assert.Equal(t, "mask with (RX_BUF_SIZE - 1).", first.SuggestedFix)
	assert.Equal(t, 0, first.Position)

	second := got.Findings[1]
	assert.Equal(t, SeverityP1, second.Severity)
	assert.Equal(t, ConfidenceUncertain, second.Confidence)
	assert.Equal(t, "src/dma.c:10", second.Location.String())
	assert.Equal(t, "DMA descriptor freed while in flight", second.Title)
	assert.Equal(t, "hardware", second.Category)
	assert.Equal(t, 1, second.Position)
}

func TestNormalize_HeaderVariants(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		severity Severity
		kind     Kind
		certain  bool
		location string
		title    string
	}{
		{"heading", "### P0: src/flash.c:120 Write without unlock", SeverityP0, KindDefect, true, "src/flash.c:120", "Write without unlock"},
		{"bare word with separator", "Critical - drivers/spi.c:7 CS never released", SeverityP0, KindDefect, true, "drivers/spi.c:7", "CS never released"},
		{"leading unsure", "[unsure] [P2] main.c:3 Watchdog fed in ISR", SeverityP2, KindDefect, false, "main.c:3", "Watchdog fed in ISR"},
		{"inline location", "[P3] Magic number in (`board/pins.h:12`) pin map", SeverityP3, KindDefect, true, "board/pins.h:12", "Magic number in pin map"},
		{"no line", "[P2] src/clock.c PLL lock not awaited", SeverityP2, KindDefect, true, "src/clock.c", "PLL lock not awaited"},
		{"unmapped token", "[Severe] src/a.c:3 Stack overflow in ISR", SeverityP3, KindDefect, false, "src/a.c:3", "Stack overflow in ISR"},
		{"no issue", "[OK] src/timer.c:10 Counter update is atomic", SeverityP3, KindNoIssue, true, "src/timer.c:10", "Counter update is atomic"},
		{"bare two-word no issue", "No issue x.c:20: fine", SeverityP3, KindNoIssue, true, "x.c:20", "fine"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalizer{SourceID: "s"}.Normalize(tt.line)
			require.Len(t, got.Findings, 1)
			f := got.Findings[0]
			assert.Equal(t, tt.severity, f.Severity)
			assert.Equal(t, tt.kind, f.Kind)
			assert.Equal(t, tt.certain, f.Certain())
			assert.Equal(t, tt.location, f.Location.String())
			assert.Equal(t, tt.title, f.Title)
		})
	}
}

func TestNormalize_ProseIsResidue(t *testing.T) {
	lines := []string{
		"[see the datasheet](https://example.com/rm0090.pdf) for timing",
		"[1] footnote about the errata",
		"Low power mode is entered after init",
		"[P2] src/a.c:5",
	}
	for _, line := range lines {
		got := Normalizer{SourceID: "s"}.Normalize(line)
		assert.Empty(t, got.Findings, line)
		assert.Equal(t, 1, got.Residue.Lines, line)
	}
}

func TestNormalize_NoFindings(t *testing.T) {
	got := Normalizer{SourceID: "s"}.Normalize("No findings.\n")
	assert.Empty(t, got.Findings)
	assert.Zero(t, got.Residue.Lines)
	assert.False(t, got.Degraded())
}

func TestNormalize_HeadingEndsBlock(t *testing.T) {
	raw := "[P2] src/adc.c:30 Conversion result read before EOC\n\n## Summary\nOverall the change looks reasonable."
	got := Normalizer{SourceID: "s"}.Normalize(raw)
	require.Len(t, got.Findings, 1)
	assert.Empty(t, got.Findings[0].Description)
	assert.Equal(t, 1, got.Residue.Lines)
}

func TestNormalize_DegradedParse(t *testing.T) {
	raw := `I looked through the diff carefully and overall the code seems fine but
there are a few areas where I am not entirely certain what the intent was and
it would help to have more context on the hardware revision in use.
[P3] src/a.c:1 Typo`

	got := Normalizer{SourceID: "gpt"}.Normalize(raw)
	require.Len(t, got.Findings, 1)
	require.True(t, got.Degraded())
	assert.Contains(t, got.Warnings[0], ErrParseDegraded.Error())
	assert.Contains(t, got.Warnings[0], "gpt")
	assert.Greater(t, got.Residue.Fraction(), DefaultResidueLimit)
}

func TestNormalize_ResidueLimitOverride(t *testing.T) {
	raw := "Some preamble text here.\n[P3] src/a.c:1 Typo in comment"
	lenient := Normalizer{SourceID: "s", ResidueLimit: 0.9}.Normalize(raw)
	strict := Normalizer{SourceID: "s", ResidueLimit: 0.1}.Normalize(raw)
	assert.False(t, lenient.Degraded())
	assert.True(t, strict.Degraded())
}

func TestNormalize_CustomVocabulary(t *testing.T) {
	vocab, err := NewVocabulary(map[string]string{"blocker": "P0", "nit": "p3"}, []string{"fine"})
	require.NoError(t, err)

	raw := "[Blocker] src/boot.c:4 Vector table not aligned\n[nit] src/boot.c:9 Comment typo\n[Fine] src/boot.c:20 Stack pointer set correctly\n[Pass] src/boot.c:30 Reset handler order"
	got := Normalizer{SourceID: "s", Vocabulary: vocab}.Normalize(raw)

	require.Len(t, got.Findings, 4)
	assert.Equal(t, SeverityP0, got.Findings[0].Severity)
	assert.True(t, got.Findings[0].Certain())
	assert.Equal(t, SeverityP3, got.Findings[1].Severity)
	assert.Equal(t, KindNoIssue, got.Findings[2].Kind)
	// "pass" is not a no-issue token for this source.
	assert.Equal(t, KindDefect, got.Findings[3].Kind)
	assert.False(t, got.Findings[3].Certain())
}

func TestNormalize_MultiWordTokenOpensBlock(t *testing.T) {
	vocab, err := NewVocabulary(map[string]string{"blocker": "P0", "must fix": "P1"}, nil)
	require.NoError(t, err)

	raw := "[blocker] x.c:4 Vector table not aligned\nNo issue x.c:20: fine\nMust fix - x.c:31 Flash wait states too low"
	got := Normalizer{SourceID: "s", Vocabulary: vocab}.Normalize(raw)

	require.Len(t, got.Findings, 3)
	assert.Empty(t, got.Findings[0].Description)
	assert.Equal(t, KindNoIssue, got.Findings[1].Kind)
	assert.Equal(t, "x.c:20", got.Findings[1].Location.String())
	assert.Equal(t, SeverityP1, got.Findings[2].Severity)
	assert.Equal(t, "Flash wait states too low", got.Findings[2].Title)
	assert.Zero(t, got.Residue.Lines)
}

func TestNormalize_JSON(t *testing.T) {
	raw := "```json\n" + `[
  {"severity": "high", "category": "concurrency", "title": "Race on tick counter", "path": "src/timer.c", "startLine": 10, "endLine": 12, "confidence": 0.3},
  {"severity": "", "assertion": "ok", "title": "Init order is correct", "path": "src/init.c", "startLine": 5},
  {"severity": "critical", "title": "Flash erased twice", "message": "sector erase repeated", "suggestion": "drop second erase", "path": "src/flash.c", "startLine": 8, "confidence": "certain"},
  {"severity": "low", "title": ""}
]` + "\n```"

	got := Normalizer{SourceID: "s"}.Normalize(raw)
	require.Len(t, got.Findings, 3)
	assert.Equal(t, 1, got.Residue.Lines)

	assert.Equal(t, SeverityP1, got.Findings[0].Severity)
	assert.Equal(t, ConfidenceUncertain, got.Findings[0].Confidence)
	assert.Equal(t, "src/timer.c:10-12", got.Findings[0].Location.String())

	assert.Equal(t, KindNoIssue, got.Findings[1].Kind)

	assert.Equal(t, SeverityP0, got.Findings[2].Severity)
	assert.True(t, got.Findings[2].Certain())
	assert.Equal(t, "sector erase repeated", got.Findings[2].Description)
	assert.Equal(t, "drop second erase", got.Findings[2].SuggestedFix)
	assert.Equal(t, 2, got.Findings[2].Position)
}

func TestNormalize_Deterministic(t *testing.T) {
	raw := "[P1] a.c:1 One\n[P2] b.c:2 Two\nstray line"
	n := Normalizer{SourceID: "s"}
	assert.Equal(t, n.Normalize(raw), n.Normalize(raw))
}
