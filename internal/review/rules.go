package review

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LoadReference reads reference material from files or directories. A
// directory contributes every regular file directly inside it, sorted by
// name. Empty paths are skipped.
func LoadReference(paths []string) ([]ReferenceDoc, error) {
	var docs []ReferenceDoc
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("reading reference %s: %w", p, err)
		}
		if !info.IsDir() {
			doc, err := readReference(p)
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("reading reference directory %s: %w", p, err)
		}
		var names []string
		for _, e := range entries {
			if e.Type().IsRegular() {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		for _, name := range names {
			doc, err := readReference(filepath.Join(p, name))
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func readReference(path string) (ReferenceDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ReferenceDoc{}, fmt.Errorf("reading reference file: %w", err)
	}
	return ReferenceDoc{Name: filepath.Base(path), Content: string(data)}, nil
}

// LoadFocusHints reads one focus hint per non-empty line. Lines starting
// with # are comments. Returns nil and no error if path is empty.
func LoadFocusHints(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading focus file: %w", err)
	}
	var hints []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		hints = append(hints, line)
	}
	return hints, nil
}

// buildFocusSection returns prompt instructions derived from focus hints and
// reference material.
func buildFocusSection(in Input) string {
	var b strings.Builder

	if len(in.FocusHints) > 0 {
		fmt.Fprintf(&b, "\nFocus areas: %s. Prioritize findings in these areas.\n",
			strings.Join(in.FocusHints, ", "))
	}

	for _, doc := range in.Reference {
		fmt.Fprintf(&b, "\n--- BEGIN REFERENCE %s ---\n", doc.Name)
		b.WriteString(strings.TrimRight(doc.Content, "\n"))
		fmt.Fprintf(&b, "\n--- END REFERENCE %s ---\n", doc.Name)
	}

	return b.String()
}
