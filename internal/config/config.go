package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkDir    string `toml:"work_dir"`
	OutputDir  string `toml:"output_dir"`
	GalleryDir string `toml:"gallery_dir"`
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
}

// Remote describes the asset CDN and the HTTP retry budget.
type Remote struct {
	BaseURL          string `toml:"base_url"`
	IndexType        string `toml:"index_type"`
	UserAgent        string `toml:"user_agent"`
	RequestTimeout   int    `toml:"request_timeout"`
	RetryAttempts    int    `toml:"retry_attempts"`
	RetryBaseDelayMS int    `toml:"retry_base_delay_ms"`
	RetryMaxDelayMS  int    `toml:"retry_max_delay_ms"`
	SkipExisting     bool   `toml:"skip_existing"`
	VerifyMagic      bool   `toml:"verify_magic"`
}

// Extractor configures the external AssetStudio CLI.
type Extractor struct {
	Binary      string   `toml:"binary"`
	Game        string   `toml:"game"`
	ExportType  string   `toml:"export_type"`
	GroupAssets string   `toml:"group_assets"`
	ExtraArgs   []string `toml:"extra_args"`
	Timeout     int      `toml:"timeout"`
}

// Index configures how the raw catalog index is turned into a snapshot.
type Index struct {
	IDPattern string `toml:"id_pattern"`
}

// Targets holds the per-category bundle-name templates.
type Targets struct {
	Categories    []string `toml:"categories"`
	Image         []string `toml:"image"`
	Audio         []string `toml:"audio"`
	Model         []string `toml:"model"`
	AudioSequence int      `toml:"audio_sequence"`
	ForceDefaults bool     `toml:"force_defaults"`
}

// Bust configures the preview-image extraction.
type Bust struct {
	Template     string   `toml:"template"`
	KeyRegex     string   `toml:"key_regex"`
	TypeAttempts []string `toml:"type_attempts"`
}

// Workflow contains pipeline scheduling settings.
type Workflow struct {
	ConcurrencyLimit int  `toml:"concurrency_limit"`
	CommitPartial    bool `toml:"commit_partial"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Config encapsulates all configuration values for assetsync.
//
// Configuration sections by subsystem:
//   - Paths: work, output, gallery, state, and log directories
//   - Remote: asset CDN location and HTTP retry budget
//   - Extractor: AssetStudio CLI invocation
//   - Index: raw catalog index ingestion
//   - Targets: bundle-name templates per category
//   - Bust: preview-image template and key pattern
//   - Workflow: worker pool size and commit policy
//   - Logging: log format, level, and retention
//   - Notifications: ntfy push notification settings
type Config struct {
	Paths         Paths         `toml:"paths"`
	Remote        Remote        `toml:"remote"`
	Extractor     Extractor     `toml:"extractor"`
	Index         Index         `toml:"index"`
	Targets       Targets       `toml:"targets"`
	Bust          Bust          `toml:"bust"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/assetsync/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("assetsync.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a run writes to.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.OutputDir, c.Paths.GalleryDir, c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// IndexStoreDir is where snapshots and diff artifacts live.
func (c *Config) IndexStoreDir() string {
	return filepath.Join(c.Paths.WorkDir, "index_store")
}

// DownloadDir is where fetched bundles are cached between runs.
func (c *Config) DownloadDir() string {
	return filepath.Join(c.Paths.WorkDir, "downloads")
}

// ExportDir is the scratch area the extractor writes into.
func (c *Config) ExportDir() string {
	return filepath.Join(c.Paths.WorkDir, "exports")
}

// RunStorePath is the SQLite run ledger location.
func (c *Config) RunStorePath() string {
	return filepath.Join(c.Paths.StateDir, "runs.db")
}

// LockPath is the advisory lock held for the duration of a run.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "assetsync.lock")
}

// Warnings returns non-fatal configuration problems the operator should see.
func (c *Config) Warnings() []string {
	var warnings []string
	if !strings.EqualFold(strings.TrimSpace(c.Extractor.GroupAssets), GroupBySource) {
		value := strings.TrimSpace(c.Extractor.GroupAssets)
		if value == "" {
			value = "(unset)"
		}
		warnings = append(warnings, fmt.Sprintf(
			"extractor.group_assets is %s; set it to %q so exports are grouped per bundle, otherwise classification falls back to type directories",
			value, GroupBySource))
	}
	return warnings
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
