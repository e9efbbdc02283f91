package review

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are a strict, expert reviewer of embedded firmware changes. Review the unified diff you are given and report every issue you find.

Rules:
1. Only review the changes shown in the diff. Do not comment on unchanged code.
2. Focus on memory safety, interrupt and concurrency safety, hardware interface correctness and C pitfalls.
3. Be concise and actionable. Every finding must include a concrete fix.
4. Reference line numbers from the new side of the diff hunks.
5. Rate severity as P0 (critical), P1 (high), P2 (medium) or P3 (low).
6. If you are not sure a finding is real, add the marker [unsure] after the severity.
7. If you checked a change and are confident it is correct, you may say so with an [OK] header.

Write each finding as a header line followed by labeled detail lines:

[P1] {memory-safety} src/uart.c:42-48 RX buffer index not bounds-checked
Description: What is wrong.
Risk: What can happen at runtime.
Fix: How to fix it, with code if helpful.

[OK] {concurrency} src/timer.c:10 Shared counter update is interrupt safe

Do not use any other format. If there are no issues, respond with: No findings.`

// SystemPrompt returns the system prompt sent to LLM-backed sources.
func SystemPrompt() string {
	return systemPrompt
}

// BuildUserPrompt constructs the user prompt from the review input package.
func BuildUserPrompt(in Input) string {
	var b strings.Builder

	b.WriteString("Review the following firmware diff.\n\n")

	if in.Repo.Branch != "" {
		fmt.Fprintf(&b, "Branch: %s\n", in.Repo.Branch)
	}
	if in.Range != "" {
		fmt.Fprintf(&b, "Range: %s\n", in.Range)
	}

	// Language hints from file extensions
	langs := detectLanguages(in.Files)
	if len(langs) > 0 {
		fmt.Fprintf(&b, "Languages: %s\n", strings.Join(langs, ", "))
	}

	if section := buildFocusSection(in); section != "" {
		b.WriteString(section)
	}

	b.WriteString("\n--- BEGIN DIFF ---\n")
	b.WriteString(in.Diff)
	b.WriteString("\n--- END DIFF ---\n")

	return b.String()
}

// BuildPrompt returns the system and user prompts for in.
func BuildPrompt(in Input) (string, string) {
	return SystemPrompt(), BuildUserPrompt(in)
}

var languageByExt = []struct {
	ext  string
	lang string
}{
	{".c", "C"},
	{".h", "C/C++ header"},
	{".cpp", "C++"},
	{".cc", "C++"},
	{".hpp", "C++"},
	{".s", "Assembly"},
	{".S", "Assembly"},
	{".ld", "Linker script"},
	{".rs", "Rust"},
	{".go", "Go"},
	{".py", "Python"},
	{".cmake", "CMake"},
	{".dts", "Devicetree"},
	{".dtsi", "Devicetree"},
	{".yaml", "YAML"},
	{".yml", "YAML"},
}

func detectLanguages(files []string) []string {
	seen := make(map[string]bool)
	var langs []string
	for _, f := range files {
		for _, l := range languageByExt {
			if strings.HasSuffix(f, l.ext) && !seen[l.lang] {
				seen[l.lang] = true
				langs = append(langs, l.lang)
			}
		}
		if strings.HasSuffix(f, "Makefile") && !seen["Make"] {
			seen["Make"] = true
			langs = append(langs, "Make")
		}
	}
	return langs
}
