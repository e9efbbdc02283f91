package audit

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ylongwang2782/embedded-review/internal/review"
)

// ErrNotFound is returned by Show when no record matches.
var ErrNotFound = errors.New("audit record not found")

const ext = ".json"

// SourceRecord is one source's outcome within a run.
type SourceRecord struct {
	ID         string         `json:"id"`
	Outcome    review.Outcome `json:"outcome"`
	Findings   int            `json:"findings"`
	DurationMs int64          `json:"durationMs"`
	Error      string         `json:"error,omitempty"`
}

// Record describes one review run.
type Record struct {
	RunID      string              `json:"runId"`
	CreatedAt  time.Time           `json:"createdAt"`
	Tool       string              `json:"tool"`
	Version    string              `json:"version"`
	Repo       review.RepoMetadata `json:"repo"`
	Inputs     review.InputInfo    `json:"inputs"`
	Sources    []SourceRecord      `json:"sources"`
	Summary    review.Summary      `json:"summary"`
	DurationMs int64               `json:"durationMs"`

	// Error is set when the run produced no usable findings.
	Error string `json:"error,omitempty"`
}

// FromReport builds a record from an assembled report. runErr, when non-nil,
// is the error the run ended with.
func FromReport(r *review.Report, runErr error) Record {
	rec := Record{
		RunID:      r.RunID,
		CreatedAt:  time.Now().UTC(),
		Tool:       r.Tool,
		Version:    r.Version,
		Repo:       r.Repo,
		Inputs:     r.Inputs,
		Summary:    r.Summary,
		DurationMs: r.Timing.TotalMs,
	}
	reasons := make(map[string]string, len(r.Summary.Unavailable))
	for _, u := range r.Summary.Unavailable {
		reasons[u.ID] = u.Reason
	}
	for _, s := range r.Sources {
		rec.Sources = append(rec.Sources, SourceRecord{
			ID:         s.ID,
			Outcome:    s.Outcome,
			Findings:   s.Findings,
			DurationMs: s.DurationMs,
			Error:      reasons[s.ID],
		})
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	return rec
}

// Log is a directory of run records.
type Log struct {
	dir       string
	retention time.Duration
	enabled   bool
	now       func() time.Time
}

// New opens the audit log. If dir is empty, uses the default audit directory.
// A retentionDays of zero keeps records forever.
func New(enabled bool, dir string, retentionDays int) (*Log, error) {
	if !enabled {
		return &Log{enabled: false, now: time.Now}, nil
	}
	if dir == "" {
		d, err := defaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}
	return &Log{
		dir:       dir,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		enabled:   true,
		now:       time.Now,
	}, nil
}

// Append writes rec and prunes expired records. A record without a run id
// gets a fresh one.
func (l *Log) Append(rec Record) (string, error) {
	if !l.enabled {
		return "", nil
	}
	if rec.RunID == "" {
		rec.RunID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = l.now().UTC()
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling audit record: %w", err)
	}

	name := rec.CreatedAt.UTC().Format("20060102T150405Z") + "-" + rec.RunID + ext
	path := filepath.Join(l.dir, name)
	tmp, err := os.CreateTemp(l.dir, ".record-*")
	if err != nil {
		return "", fmt.Errorf("writing audit record: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing audit record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing audit record: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing audit record: %w", err)
	}

	if _, err := l.Prune(); err != nil {
		return path, err
	}
	return path, nil
}

// List returns every readable record, newest first.
func (l *Log) List() ([]Record, error) {
	files, err := l.files()
	if err != nil {
		return nil, err
	}
	var records []Record
	for _, f := range files {
		rec, err := readRecord(f)
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	slices.SortFunc(records, func(a, b Record) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(a.RunID, b.RunID))
	})
	return records, nil
}

// Show returns the record whose run id starts with prefix. An ambiguous
// prefix is an error.
func (l *Log) Show(prefix string) (Record, error) {
	if prefix == "" {
		return Record{}, ErrNotFound
	}
	records, err := l.List()
	if err != nil {
		return Record{}, err
	}
	var match []Record
	for _, r := range records {
		if r.RunID == prefix {
			return r, nil
		}
		if strings.HasPrefix(r.RunID, prefix) {
			match = append(match, r)
		}
	}
	switch len(match) {
	case 0:
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, prefix)
	case 1:
		return match[0], nil
	default:
		return Record{}, fmt.Errorf("run id prefix %q is ambiguous (%d records)", prefix, len(match))
	}
}

// Prune removes records older than the retention window.
func (l *Log) Prune() (int, error) {
	if l.retention <= 0 {
		return 0, nil
	}
	files, err := l.files()
	if err != nil {
		return 0, err
	}
	cutoff := l.now().Add(-l.retention)
	removed := 0
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		created := info.ModTime()
		if rec, err := readRecord(f); err == nil && !rec.CreatedAt.IsZero() {
			created = rec.CreatedAt
		}
		if created.Before(cutoff) {
			if err := os.Remove(f); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// Clear removes all records and returns how many were deleted.
func (l *Log) Clear() (int, error) {
	files, err := l.files()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, f := range files {
		if err := os.Remove(f); err == nil {
			removed++
		}
	}
	return removed, nil
}

// Stats describes the audit directory.
type Stats struct {
	Dir           string `json:"dir"`
	Records       int    `json:"records"`
	TotalBytes    int64  `json:"totalBytes"`
	RetentionDays int    `json:"retentionDays"`
}

// Stats returns information about the log.
func (l *Log) Stats() (Stats, error) {
	stats := Stats{Dir: l.dir, RetentionDays: int(l.retention / (24 * time.Hour))}
	files, err := l.files()
	if err != nil {
		return stats, err
	}
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		stats.Records++
		stats.TotalBytes += info.Size()
	}
	return stats, nil
}

// Dir returns the audit directory path.
func (l *Log) Dir() string {
	return l.dir
}

// Enabled returns whether audit logging is enabled.
func (l *Log) Enabled() bool {
	return l.enabled
}

func (l *Log) files() ([]string, error) {
	if !l.enabled || l.dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading audit directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ext || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		files = append(files, filepath.Join(l.dir, e.Name()))
	}
	return files, nil
}

func readRecord(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return rec, nil
}

func defaultDir() (string, error) {
	const app = "embedded-review"
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, app, "audit"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Caches", app, "audit"), nil
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, app, "audit"), nil
		}
		return filepath.Join(home, "AppData", "Local", app, "audit"), nil
	default:
		return filepath.Join(home, ".cache", app, "audit"), nil
	}
}
