package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/ylongwang2782/embedded-review/internal/review"
)

const appName = "embedded-review"

// Config represents the embedded-review configuration.
type Config struct {
	Format               string             `json:"format"`
	FailOn               string             `json:"failOn"`
	ContextLines         int                `json:"contextLines"`
	Include              []string           `json:"include"`
	Exclude              []string           `json:"exclude"`
	MaxDiffBytes         int                `json:"maxDiffBytes"`
	SourcesFile          string             `json:"sourcesFile,omitempty"`
	Reference            []string           `json:"reference,omitempty"`
	FocusFile            string             `json:"focusFile,omitempty"`
	SourceTimeoutSeconds int                `json:"sourceTimeoutSeconds"`
	ResidueLimit         float64            `json:"residueLimit"`
	Matching             review.MatchConfig `json:"matching"`
	Audit                AuditConfig        `json:"audit"`
	Privacy              PrivacyConfig      `json:"privacy"`
	Log                  LogConfig          `json:"log"`
}

// AuditConfig controls the run audit log.
type AuditConfig struct {
	Enabled       bool   `json:"enabled"`
	Dir           string `json:"dir,omitempty"`
	RetentionDays int    `json:"retentionDays"`
}

// PrivacyConfig controls privacy/redaction behavior.
type PrivacyConfig struct {
	RedactSecrets bool     `json:"redactSecrets"`
	RedactPaths   []string `json:"redactPaths,omitempty"`
}

// LogConfig controls diagnostic logging on stderr.
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Format:               "text",
		FailOn:               "none",
		ContextLines:         3,
		Include:              []string{"**/*"},
		Exclude:              []string{"build/**", "**/*.o", "**/*.elf", "**/*.bin", "**/*.hex", "**/*.map"},
		MaxDiffBytes:         500000,
		SourceTimeoutSeconds: 600,
		ResidueLimit:         review.DefaultResidueLimit,
		Matching:             review.DefaultMatchConfig(),
		Audit: AuditConfig{
			Enabled:       true,
			RetentionDays: 30,
		},
		Privacy: PrivacyConfig{
			RedactSecrets: true,
			RedactPaths:   []string{"**/.env", "**/*secrets*", "**/*.pem", "**/*.key"},
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// Validate checks values the CLI cannot recover from.
func (c Config) Validate() error {
	switch c.Format {
	case "text", "json", "markdown", "md", "sarif":
	default:
		return fmt.Errorf("invalid format %q: expected text, json, markdown or sarif", c.Format)
	}
	if c.FailOn != "none" {
		if _, err := review.ParseSeverity(c.FailOn); err != nil {
			return fmt.Errorf("invalid failOn: %w", err)
		}
	}
	if c.ResidueLimit <= 0 || c.ResidueLimit > 1 {
		return fmt.Errorf("residueLimit must be in (0, 1], got %v", c.ResidueLimit)
	}
	if err := c.Matching.Validate(); err != nil {
		return fmt.Errorf("invalid matching settings: %w", err)
	}
	return nil
}

// ConfigDir returns the platform-appropriate config directory.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appName), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, appName), nil
		}
		return filepath.Join(home, "AppData", "Roaming", appName), nil
	default:
		return filepath.Join(home, ".config", appName), nil
	}
}

// ConfigPath returns the full path to the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// explicitBools records booleans the file actually set, since false is also
// the JSON zero value.
type explicitBools struct {
	Audit struct {
		Enabled *bool `json:"enabled"`
	} `json:"audit"`
	Privacy struct {
		RedactSecrets *bool `json:"redactSecrets"`
	} `json:"privacy"`
}

// LoadFile loads config from the config file. Returns zero Config and nil
// error if the file doesn't exist.
func LoadFile() (Config, error) {
	cfg, _, err := loadFile()
	return cfg, err
}

func loadFile() (Config, explicitBools, error) {
	var bools explicitBools
	path, err := ConfigPath()
	if err != nil {
		return Config{}, bools, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, bools, nil
		}
		return Config{}, bools, fmt.Errorf("reading config file: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, bools, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &bools); err != nil {
		return Config{}, bools, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, bools, nil
}

// Save writes the config to the config file.
func Save(cfg Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Load builds the effective config by merging: defaults <- file <- env <- overrides.
// The overrides map comes from CLI flags (only non-zero values should be set).
func Load(overrides map[string]string) (Config, error) {
	cfg := Default()

	fileCfg, bools, err := loadFile()
	if err != nil {
		return Config{}, err
	}
	mergeFile(&cfg, fileCfg, bools)
	if err := mergeEnv(&cfg); err != nil {
		return Config{}, err
	}
	for key, value := range overrides {
		if value == "" {
			continue
		}
		if err := SetField(&cfg, key, value); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func mergeFile(dst *Config, src Config, bools explicitBools) {
	if src.Format != "" {
		dst.Format = src.Format
	}
	if src.FailOn != "" {
		dst.FailOn = src.FailOn
	}
	if src.ContextLines > 0 {
		dst.ContextLines = src.ContextLines
	}
	if len(src.Include) > 0 {
		dst.Include = src.Include
	}
	if len(src.Exclude) > 0 {
		dst.Exclude = src.Exclude
	}
	if src.MaxDiffBytes > 0 {
		dst.MaxDiffBytes = src.MaxDiffBytes
	}
	if src.SourcesFile != "" {
		dst.SourcesFile = src.SourcesFile
	}
	if len(src.Reference) > 0 {
		dst.Reference = src.Reference
	}
	if src.FocusFile != "" {
		dst.FocusFile = src.FocusFile
	}
	if src.SourceTimeoutSeconds > 0 {
		dst.SourceTimeoutSeconds = src.SourceTimeoutSeconds
	}
	if src.ResidueLimit > 0 {
		dst.ResidueLimit = src.ResidueLimit
	}
	mergeMatching(&dst.Matching, src.Matching)
	if src.Audit.Dir != "" {
		dst.Audit.Dir = src.Audit.Dir
	}
	if src.Audit.RetentionDays > 0 {
		dst.Audit.RetentionDays = src.Audit.RetentionDays
	}
	if bools.Audit.Enabled != nil {
		dst.Audit.Enabled = *bools.Audit.Enabled
	}
	if bools.Privacy.RedactSecrets != nil {
		dst.Privacy.RedactSecrets = *bools.Privacy.RedactSecrets
	}
	if len(src.Privacy.RedactPaths) > 0 {
		dst.Privacy.RedactPaths = src.Privacy.RedactPaths
	}
	if src.Log.Level != "" {
		dst.Log.Level = src.Log.Level
	}
	if src.Log.Format != "" {
		dst.Log.Format = src.Log.Format
	}
}

// mergeMatching takes the weights as a unit so a partial file cannot leave
// them summing to something other than one.
func mergeMatching(dst *review.MatchConfig, src review.MatchConfig) {
	if src.Threshold > 0 {
		dst.Threshold = src.Threshold
	}
	if src.LocationWeight+src.CategoryWeight+src.TextWeight > 0 {
		dst.LocationWeight = src.LocationWeight
		dst.CategoryWeight = src.CategoryWeight
		dst.TextWeight = src.TextWeight
	}
	if src.ProximityWindow > 0 {
		dst.ProximityWindow = src.ProximityWindow
	}
	if src.ProximityBonus > 0 {
		dst.ProximityBonus = src.ProximityBonus
	}
	if src.UnresolvedScore > 0 {
		dst.UnresolvedScore = src.UnresolvedScore
	}
	if len(src.Synonyms) > 0 {
		dst.Synonyms = src.Synonyms
	}
}

// envKeys maps environment variables to config keys understood by SetField.
var envKeys = []struct {
	env string
	key string
}{
	{"EMBREVIEW_FORMAT", "format"},
	{"EMBREVIEW_FAIL_ON", "failOn"},
	{"EMBREVIEW_CONTEXT_LINES", "contextLines"},
	{"EMBREVIEW_MAX_DIFF_BYTES", "maxDiffBytes"},
	{"EMBREVIEW_SOURCES_FILE", "sourcesFile"},
	{"EMBREVIEW_SOURCE_TIMEOUT", "sourceTimeoutSeconds"},
	{"EMBREVIEW_RESIDUE_LIMIT", "residueLimit"},
	{"EMBREVIEW_MATCH_THRESHOLD", "matching.threshold"},
	{"EMBREVIEW_AUDIT", "audit.enabled"},
	{"EMBREVIEW_REDACT", "privacy.redactSecrets"},
	{"EMBREVIEW_LOG_LEVEL", "log.level"},
	{"EMBREVIEW_LOG_FORMAT", "log.format"},
}

func mergeEnv(cfg *Config) error {
	for _, e := range envKeys {
		v := os.Getenv(e.env)
		if v == "" {
			continue
		}
		if err := SetField(cfg, e.key, v); err != nil {
			return fmt.Errorf("%s: %w", e.env, err)
		}
	}
	return nil
}

// Keys lists the keys accepted by SetField.
func Keys() []string {
	return []string{
		"format", "failOn", "contextLines", "maxDiffBytes", "sourcesFile",
		"reference", "focusFile", "sourceTimeoutSeconds", "residueLimit",
		"matching.threshold", "audit.enabled", "audit.dir", "audit.retentionDays",
		"privacy.redactSecrets", "log.level", "log.format",
	}
}

// SetField sets a single config field by key name. Returns error if key is unknown.
func SetField(cfg *Config, key, value string) error {
	var err error
	switch key {
	case "format":
		cfg.Format = value
	case "failOn":
		cfg.FailOn = strings.ToUpper(value)
		if strings.EqualFold(value, "none") {
			cfg.FailOn = "none"
		}
	case "contextLines":
		cfg.ContextLines, err = atoi(key, value)
	case "maxDiffBytes":
		cfg.MaxDiffBytes, err = atoi(key, value)
	case "sourcesFile":
		cfg.SourcesFile = value
	case "reference":
		cfg.Reference = strings.Split(value, ",")
	case "focusFile":
		cfg.FocusFile = value
	case "sourceTimeoutSeconds":
		cfg.SourceTimeoutSeconds, err = atoi(key, value)
	case "residueLimit":
		cfg.ResidueLimit, err = parseFloat(key, value)
	case "matching.threshold":
		cfg.Matching.Threshold, err = parseFloat(key, value)
	case "audit.enabled":
		cfg.Audit.Enabled, err = parseBool(key, value)
	case "audit.dir":
		cfg.Audit.Dir = value
	case "audit.retentionDays":
		cfg.Audit.RetentionDays, err = atoi(key, value)
	case "privacy.redactSecrets":
		cfg.Privacy.RedactSecrets, err = parseBool(key, value)
	case "log.level":
		cfg.Log.Level = value
	case "log.format":
		cfg.Log.Format = value
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return err
}

func atoi(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func parseFloat(key, value string) (float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return f, nil
}

func parseBool(key, value string) (bool, error) {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s must be true or false: %w", key, err)
	}
	return b, nil
}
