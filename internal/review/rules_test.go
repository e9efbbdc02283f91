package review

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadReference_Empty(t *testing.T) {
	docs, err := LoadReference(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if docs != nil {
		t.Errorf("expected nil docs, got %v", docs)
	}
}

func TestLoadReference_FileAndDirectory(t *testing.T) {
	dir := t.TempDir()
	single := filepath.Join(dir, "memory.md")
	if err := os.WriteFile(single, []byte("check bounds"), 0o644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(dir, "checklists")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, content := range map[string]string{"b-isr.md": "isr", "a-dma.md": "dma"} {
		if err := os.WriteFile(filepath.Join(sub, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(sub, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}

	docs, err := LoadReference([]string{single, "", sub})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []ReferenceDoc{
		{Name: "memory.md", Content: "check bounds"},
		{Name: "a-dma.md", Content: "dma"},
		{Name: "b-isr.md", Content: "isr"},
	}
	if len(docs) != len(want) {
		t.Fatalf("got %d docs, want %d: %v", len(docs), len(want), docs)
	}
	for i := range want {
		if docs[i] != want[i] {
			t.Errorf("docs[%d] = %+v, want %+v", i, docs[i], want[i])
		}
	}
}

func TestLoadReference_NotFound(t *testing.T) {
	if _, err := LoadReference([]string{"/nonexistent/checklist.md"}); err == nil {
		t.Error("expected error for missing reference")
	}
}

func TestLoadFocusHints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "focus.txt")
	content := "# firmware focus\ninterrupt safety\n\n  DMA buffer ownership  \n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	hints, err := LoadFocusHints(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hints) != 2 || hints[0] != "interrupt safety" || hints[1] != "DMA buffer ownership" {
		t.Errorf("hints = %q", hints)
	}
}

func TestLoadFocusHints_Empty(t *testing.T) {
	hints, err := LoadFocusHints("")
	if err != nil || hints != nil {
		t.Errorf("LoadFocusHints(\"\") = %v, %v", hints, err)
	}
}

func TestBuildFocusSection_Empty(t *testing.T) {
	if s := buildFocusSection(Input{}); s != "" {
		t.Errorf("expected empty section, got %q", s)
	}
}
