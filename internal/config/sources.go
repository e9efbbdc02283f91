package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Source kinds.
const (
	KindProvider = "provider"
	KindCommand  = "command"
)

// Command input modes.
const (
	InputPrompt = "prompt"
	InputJSON   = "json"
)

// SourceProfile describes one analysis source.
type SourceProfile struct {
	ID       string `yaml:"id"`
	Kind     string `yaml:"kind"`
	Disabled bool   `yaml:"disabled,omitempty"`

	// provider sources
	Provider  string `yaml:"provider,omitempty"`
	Model     string `yaml:"model,omitempty"`
	BaseURL   string `yaml:"baseURL,omitempty"`
	APIKeyEnv string `yaml:"apiKeyEnv,omitempty"`
	MaxTokens int    `yaml:"maxTokens,omitempty"`

	// command sources
	Command string            `yaml:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty"`
	Input   string            `yaml:"input,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	Dir     string            `yaml:"dir,omitempty"`

	Timeout      Duration          `yaml:"timeout,omitempty"`
	Severity     map[string]string `yaml:"severity,omitempty"`
	NoIssue      []string          `yaml:"noIssue,omitempty"`
	ResidueLimit float64           `yaml:"residueLimit,omitempty"`
}

// SourcesFile is the YAML document holding source profiles.
type SourcesFile struct {
	Sources []SourceProfile `yaml:"sources"`
}

// Duration accepts "90s"-style strings or a bare number of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	s := strings.TrimSpace(value.Value)
	if s == "" {
		*d = 0
		return nil
	}
	if secs, err := strconv.Atoi(s); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", value.Line, s)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	if d == 0 {
		return nil, nil
	}
	return time.Duration(d).String(), nil
}

// DefaultSources returns the profiles used when no sources file exists: two
// independent hosted models.
func DefaultSources() []SourceProfile {
	return []SourceProfile{
		{ID: "claude", Kind: KindProvider, Provider: "anthropic", Model: "claude-sonnet-4-20250514"},
		{ID: "gpt", Kind: KindProvider, Provider: "openai", Model: "gpt-4o"},
	}
}

// SourcesPath resolves the sources file: the explicit path if given,
// otherwise sources.yaml in the config directory.
func SourcesPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "sources.yaml"), nil
}

// LoadSources reads and validates source profiles. A missing default file
// yields DefaultSources; a missing explicit file is an error. Disabled
// profiles are dropped.
func LoadSources(explicit string) ([]SourceProfile, error) {
	path, err := SourcesPath(explicit)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && explicit == "" {
			return DefaultSources(), nil
		}
		return nil, fmt.Errorf("reading sources file: %w", err)
	}
	return ParseSources(data)
}

// ParseSources decodes and validates a sources document.
func ParseSources(data []byte) ([]SourceProfile, error) {
	var file SourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing sources file: %w", err)
	}

	var (
		out  []SourceProfile
		errs []error
		seen = make(map[string]bool)
	)
	for i, p := range file.Sources {
		if p.Disabled {
			continue
		}
		if p.Kind == "" {
			p.Kind = KindProvider
			if p.Command != "" {
				p.Kind = KindCommand
			}
		}
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("source %d: %w", i+1, err))
			continue
		}
		if seen[p.ID] {
			errs = append(errs, fmt.Errorf("source %d: duplicate id %q", i+1, p.ID))
			continue
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("sources file enables no sources")
	}
	return out, nil
}

// Validate checks a single profile.
func (p SourceProfile) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("id is required")
	}
	switch p.Kind {
	case KindProvider:
		if p.Provider == "" {
			return fmt.Errorf("%s: provider is required", p.ID)
		}
	case KindCommand:
		if p.Command == "" {
			return fmt.Errorf("%s: command is required", p.ID)
		}
		switch p.Input {
		case "", InputPrompt, InputJSON:
		default:
			return fmt.Errorf("%s: input must be %q or %q", p.ID, InputPrompt, InputJSON)
		}
	default:
		return fmt.Errorf("%s: unknown kind %q", p.ID, p.Kind)
	}
	if p.Timeout < 0 {
		return fmt.Errorf("%s: timeout must not be negative", p.ID)
	}
	if p.ResidueLimit < 0 || p.ResidueLimit > 1 {
		return fmt.Errorf("%s: residueLimit must be in [0, 1]", p.ID)
	}
	return nil
}

// Describe renders a one-line summary of the profile.
func (p SourceProfile) Describe() string {
	var target string
	if p.Kind == KindCommand {
		target = strings.TrimSpace(p.Command + " " + strings.Join(p.Args, " "))
		input := p.Input
		if input == "" {
			input = InputPrompt
		}
		target += " (stdin: " + input + ")"
	} else {
		target = p.Provider
		if p.Model != "" {
			target += "/" + p.Model
		}
	}
	if p.Timeout > 0 {
		target += ", timeout " + time.Duration(p.Timeout).String()
	}
	return fmt.Sprintf("%s [%s] %s", p.ID, p.Kind, target)
}

// WriteSources writes profiles as a YAML sources file.
func WriteSources(path string, profiles []SourceProfile) error {
	data, err := yaml.Marshal(SourcesFile{Sources: profiles})
	if err != nil {
		return fmt.Errorf("marshaling sources: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
