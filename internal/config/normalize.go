package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeRemote()
	c.normalizeExtractor()
	c.normalizeTargets()
	c.normalizeBust()
	c.normalizeLogging()
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
	c.Index.IDPattern = strings.TrimSpace(c.Index.IDPattern)
	if c.Index.IDPattern == "" {
		c.Index.IDPattern = defaultIndexIDPattern
	}
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		name     string
		value    *string
		fallback string
	}{
		{"paths.work_dir", &c.Paths.WorkDir, defaultWorkDir},
		{"paths.output_dir", &c.Paths.OutputDir, defaultOutputDir},
		{"paths.gallery_dir", &c.Paths.GalleryDir, defaultGalleryDir},
		{"paths.state_dir", &c.Paths.StateDir, defaultStateDir},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
	}
	for _, field := range fields {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = field.fallback
		}
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.value = expanded
	}
	return nil
}

func (c *Config) normalizeRemote() {
	if value, ok := os.LookupEnv("ASSETSYNC_BASE_URL"); ok && strings.TrimSpace(value) != "" {
		c.Remote.BaseURL = value
	}
	c.Remote.BaseURL = strings.TrimSpace(c.Remote.BaseURL)
	if c.Remote.BaseURL == "" {
		c.Remote.BaseURL = defaultBaseURL
	}
	if !strings.HasSuffix(c.Remote.BaseURL, "/") {
		c.Remote.BaseURL += "/"
	}
	c.Remote.IndexType = strings.TrimSpace(c.Remote.IndexType)
	if c.Remote.IndexType == "" {
		c.Remote.IndexType = defaultIndexType
	}
	c.Remote.UserAgent = strings.TrimSpace(c.Remote.UserAgent)
	if c.Remote.UserAgent == "" {
		c.Remote.UserAgent = defaultUserAgent
	}
	if c.Remote.RequestTimeout <= 0 {
		c.Remote.RequestTimeout = defaultRequestTimeout
	}
	if c.Remote.RetryAttempts <= 0 {
		c.Remote.RetryAttempts = defaultRetryAttempts
	}
	if c.Remote.RetryBaseDelayMS <= 0 {
		c.Remote.RetryBaseDelayMS = defaultRetryBaseDelayMS
	}
	if c.Remote.RetryMaxDelayMS <= 0 {
		c.Remote.RetryMaxDelayMS = defaultRetryMaxDelayMS
	}
}

func (c *Config) normalizeExtractor() {
	if value, ok := os.LookupEnv("ASSETSYNC_EXTRACTOR"); ok && strings.TrimSpace(value) != "" {
		c.Extractor.Binary = value
	}
	c.Extractor.Binary = strings.TrimSpace(c.Extractor.Binary)
	if c.Extractor.Binary == "" {
		c.Extractor.Binary = defaultExtractorBinary
	}
	if strings.HasPrefix(c.Extractor.Binary, "~") || strings.ContainsRune(c.Extractor.Binary, '/') {
		if expanded, err := expandPath(c.Extractor.Binary); err == nil {
			c.Extractor.Binary = expanded
		}
	}
	c.Extractor.Game = strings.TrimSpace(c.Extractor.Game)
	if c.Extractor.Game == "" {
		c.Extractor.Game = defaultExtractorGame
	}
	c.Extractor.ExportType = strings.TrimSpace(c.Extractor.ExportType)
	if c.Extractor.ExportType == "" {
		c.Extractor.ExportType = defaultExtractorExportType
	}
	// An empty mode is kept so Warnings can report it.
	c.Extractor.GroupAssets = strings.TrimSpace(c.Extractor.GroupAssets)
	if c.Extractor.Timeout <= 0 {
		c.Extractor.Timeout = defaultExtractorTimeout
	}
	args := make([]string, 0, len(c.Extractor.ExtraArgs))
	for _, arg := range c.Extractor.ExtraArgs {
		if trimmed := strings.TrimSpace(arg); trimmed != "" {
			args = append(args, trimmed)
		}
	}
	c.Extractor.ExtraArgs = args
}

func (c *Config) normalizeTargets() {
	c.Targets.Categories = normalizeList(c.Targets.Categories, strings.ToLower)
	c.Targets.Image = normalizeList(c.Targets.Image, nil)
	c.Targets.Audio = normalizeList(c.Targets.Audio, nil)
	c.Targets.Model = normalizeList(c.Targets.Model, nil)
	if c.Targets.AudioSequence < 0 {
		c.Targets.AudioSequence = 0
	}
}

func (c *Config) normalizeBust() {
	c.Bust.Template = strings.TrimSpace(c.Bust.Template)
	if c.Bust.Template == "" {
		c.Bust.Template = defaultBustTemplate
	}
	c.Bust.KeyRegex = strings.TrimSpace(c.Bust.KeyRegex)
	if c.Bust.KeyRegex == "" {
		c.Bust.KeyRegex = defaultBustKeyRegex
	}
	if len(c.Bust.TypeAttempts) == 0 {
		c.Bust.TypeAttempts = DefaultTypeAttempts()
	}
	for i, attempt := range c.Bust.TypeAttempts {
		c.Bust.TypeAttempts[i] = strings.TrimSpace(attempt)
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

// normalizeList trims entries, drops empties and duplicates, and preserves order.
func normalizeList(values []string, transform func(string) string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if transform != nil {
			value = transform(value)
		}
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
