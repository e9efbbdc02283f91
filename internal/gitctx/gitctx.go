package gitctx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ylongwang2782/embedded-review/internal/review"
)

// Review modes recorded on the input package.
const (
	ModeUnstaged = "unstaged"
	ModeStaged   = "staged"
	ModeCommit   = "commit"
	ModeRange    = "range"
	ModeSnippet  = "snippet"
)

const truncationMarker = "\n... (diff truncated at max-diff-bytes limit)\n"

// DiffOptions controls how diffs are gathered.
type DiffOptions struct {
	// Dir is the working directory git runs in; empty means the process cwd.
	Dir          string
	ContextLines int
	MaxDiffBytes int
	Include      []string
	Exclude      []string
}

// RepoMetadata collects repository metadata from git. A repository without
// commits yields an empty Head and Branch.
func RepoMetadata(ctx context.Context, dir string) (review.RepoMetadata, error) {
	root, err := git(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return review.RepoMetadata{}, fmt.Errorf("not a git repository: %w", err)
	}
	head, _ := git(ctx, dir, "rev-parse", "HEAD")
	branch, _ := git(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	return review.RepoMetadata{
		Root:   strings.TrimSpace(root),
		Head:   strings.TrimSpace(head),
		Branch: strings.TrimSpace(branch),
	}, nil
}

// Unstaged returns the working tree changes against the index.
func Unstaged(ctx context.Context, opts DiffOptions) (review.Input, error) {
	diff, err := git(ctx, opts.Dir, append([]string{"diff"}, diffArgs(opts)...)...)
	if err != nil {
		return review.Input{}, fmt.Errorf("git diff: %w", err)
	}
	return buildInput(ctx, diff, ModeUnstaged, "", opts), nil
}

// Staged returns the index against HEAD.
func Staged(ctx context.Context, opts DiffOptions) (review.Input, error) {
	diff, err := git(ctx, opts.Dir, append([]string{"diff", "--cached"}, diffArgs(opts)...)...)
	if err != nil {
		return review.Input{}, fmt.Errorf("git diff --cached: %w", err)
	}
	return buildInput(ctx, diff, ModeStaged, "", opts), nil
}

// Commit returns one commit against parent, or against its first parent when
// parent is empty. A root commit is shown whole.
func Commit(ctx context.Context, sha, parent string, opts DiffOptions) (review.Input, error) {
	args := diffArgs(opts)
	base := parent
	if base == "" {
		base = sha + "~1"
	}
	diff, err := git(ctx, opts.Dir, append([]string{"diff", base, sha}, args...)...)
	if err != nil && parent != "" {
		return review.Input{}, fmt.Errorf("git diff %s %s: %w", parent, sha, err)
	}
	if err != nil {
		show := append([]string{"show", "--format=", sha}, args...)
		if diff, err = git(ctx, opts.Dir, show...); err != nil {
			return review.Input{}, fmt.Errorf("git show %s: %w", sha, err)
		}
	}
	return buildInput(ctx, diff, ModeCommit, sha, opts), nil
}

// Range returns the combined diff of a revision range. With mergeBase set,
// "a..b" is compared from the merge base of a and b.
func Range(ctx context.Context, revRange string, mergeBase bool, opts DiffOptions) (review.Input, error) {
	diffRange := revRange
	if mergeBase && strings.Contains(revRange, "..") && !strings.Contains(revRange, "...") {
		diffRange = strings.Replace(revRange, "..", "...", 1)
	}
	diff, err := git(ctx, opts.Dir, append([]string{"diff", diffRange}, diffArgs(opts)...)...)
	if err != nil {
		return review.Input{}, fmt.Errorf("git diff %s: %w", revRange, err)
	}
	return buildInput(ctx, diff, ModeRange, revRange, opts), nil
}

// Snippet wraps content as a new-file diff at path. When base is non-empty
// the diff is computed against it instead. No repository is required.
func Snippet(ctx context.Context, content, path, base string) (review.Input, error) {
	if path == "" {
		path = "snippet"
	}
	var diff string
	if base != "" {
		var err error
		if diff, err = noIndexDiff(ctx, path, base, content); err != nil {
			return review.Input{}, err
		}
	} else {
		diff = newFileDiff(path, content)
	}
	return review.Input{
		Mode:  ModeSnippet,
		Diff:  diff,
		Files: []string{path},
	}, nil
}

func noIndexDiff(ctx context.Context, path, before, after string) (string, error) {
	tmp, err := os.MkdirTemp("", "embedded-review-snippet-*")
	if err != nil {
		return "", fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	name := filepath.Base(path)
	a := filepath.Join(tmp, "a", name)
	b := filepath.Join(tmp, "b", name)
	for file, body := range map[string]string{a: before, b: after} {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return "", err
		}
		if err := os.WriteFile(file, []byte(body), 0o644); err != nil {
			return "", err
		}
	}

	// --no-index exits 1 when the files differ. With --no-prefix the a/ and
	// b/ directories become the usual diff prefixes.
	diff, err := git(ctx, tmp, "diff", "--no-index", "--no-prefix", "a/"+name, "b/"+name)
	if err != nil && diff == "" {
		return "", fmt.Errorf("git diff --no-index: %w", err)
	}
	if name != path {
		diff = strings.ReplaceAll(diff, "a/"+name, "a/"+path)
		diff = strings.ReplaceAll(diff, "b/"+name, "b/"+path)
	}
	return diff, nil
}

func newFileDiff(path, content string) string {
	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	var b strings.Builder
	fmt.Fprintf(&b, "diff --git a/%s b/%s\n", path, path)
	b.WriteString("new file mode 100644\n")
	b.WriteString("--- /dev/null\n")
	fmt.Fprintf(&b, "+++ b/%s\n", path)
	fmt.Fprintf(&b, "@@ -0,0 +1,%d @@\n", len(lines))
	for _, line := range lines {
		b.WriteString("+")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func diffArgs(opts DiffOptions) []string {
	var args []string
	if opts.ContextLines > 0 {
		args = append(args, fmt.Sprintf("-U%d", opts.ContextLines))
	}
	args = append(args, "--")
	for _, p := range opts.Include {
		if p != "**/*" {
			args = append(args, p)
		}
	}
	return args
}

// buildInput filters excluded files before truncating so they never consume
// the byte budget.
func buildInput(ctx context.Context, diff, mode, rangeStr string, opts DiffOptions) review.Input {
	meta, _ := RepoMetadata(ctx, opts.Dir)
	files := changedFiles(diff)
	if len(opts.Exclude) > 0 {
		diff = dropExcluded(diff, opts.Exclude)
		files = keepUnmatched(files, opts.Exclude)
	}
	if opts.MaxDiffBytes > 0 && len(diff) > opts.MaxDiffBytes {
		diff = diff[:opts.MaxDiffBytes] + truncationMarker
	}
	return review.Input{
		Repo:  meta,
		Mode:  mode,
		Range: rangeStr,
		Diff:  diff,
		Files: files,
	}
}

func changedFiles(diff string) []string {
	var files []string
	seen := make(map[string]bool)
	for line := range strings.SplitSeq(diff, "\n") {
		f, ok := strings.CutPrefix(line, "+++ b/")
		if ok && !seen[f] {
			seen[f] = true
			files = append(files, f)
		}
	}
	return files
}

func dropExcluded(diff string, excludes []string) string {
	var kept []string
	for _, section := range fileSections(diff) {
		path := sectionPath(section)
		if path == "" || !MatchesAny(path, excludes) {
			kept = append(kept, section)
		}
	}
	return strings.Join(kept, "")
}

// fileSections splits a unified diff at each "diff --git" header.
func fileSections(diff string) []string {
	var (
		sections []string
		current  strings.Builder
	)
	for _, line := range strings.Split(diff, "\n") {
		if strings.HasPrefix(line, "diff --git") && current.Len() > 0 {
			sections = append(sections, current.String())
			current.Reset()
		}
		current.WriteString(line)
		current.WriteString("\n")
	}
	if current.Len() > 0 {
		sections = append(sections, current.String())
	}
	return sections
}

func sectionPath(section string) string {
	for line := range strings.SplitSeq(section, "\n") {
		if path, ok := strings.CutPrefix(line, "+++ b/"); ok {
			return path
		}
	}
	return ""
}

func keepUnmatched(files, patterns []string) []string {
	var out []string
	for _, f := range files {
		if !MatchesAny(f, patterns) {
			out = append(out, f)
		}
	}
	return out
}

// MatchesAny reports whether path matches any glob. A leading "**/" also
// matches at any depth.
func MatchesAny(path string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, path); ok {
			return true
		}
		rest, deep := strings.CutPrefix(pattern, "**/")
		if !deep {
			continue
		}
		if ok, _ := filepath.Match(rest, filepath.Base(path)); ok {
			return true
		}
		if ok, _ := filepath.Match(rest, path); ok {
			return true
		}
		if dir, ok := strings.CutSuffix(rest, "/**"); ok {
			if strings.HasPrefix(path, dir+"/") || strings.Contains(path, "/"+dir+"/") {
				return true
			}
		}
	}
	return false
}

func git(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return string(out), fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return "", err
	}
	return string(out), nil
}
