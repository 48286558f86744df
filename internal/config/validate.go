package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateRemote(); err != nil {
		return err
	}
	if err := c.validateExtractor(); err != nil {
		return err
	}
	if err := c.validateIndex(); err != nil {
		return err
	}
	if err := c.validateTargets(); err != nil {
		return err
	}
	if err := c.validateBust(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.OutputDir == c.Paths.WorkDir {
		return errors.New("paths.output_dir must differ from paths.work_dir")
	}
	return nil
}

func (c *Config) validateRemote() error {
	parsed, err := url.Parse(c.Remote.BaseURL)
	if err != nil {
		return fmt.Errorf("remote.base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("remote.base_url must be an http(s) URL, got %q", c.Remote.BaseURL)
	}
	if strings.ContainsAny(c.Remote.IndexType, `/\`) {
		return fmt.Errorf("remote.index_type must be a bare name, got %q", c.Remote.IndexType)
	}
	if c.Remote.RetryMaxDelayMS < c.Remote.RetryBaseDelayMS {
		return errors.New("remote.retry_max_delay_ms must be >= remote.retry_base_delay_ms")
	}
	return nil
}

func (c *Config) validateExtractor() error {
	switch c.Extractor.GroupAssets {
	case "", GroupBySource, GroupByType, "None":
	default:
		return fmt.Errorf("extractor.group_assets: unsupported mode %q", c.Extractor.GroupAssets)
	}
	return nil
}

func (c *Config) validateIndex() error {
	if err := requireIDGroup("index.id_pattern", c.Index.IDPattern); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateTargets() error {
	if len(c.Targets.Categories) == 0 {
		return errors.New("targets.categories must list at least one category")
	}
	for _, category := range c.Targets.Categories {
		switch category {
		case "image", "audio", "model":
		default:
			return fmt.Errorf("targets.categories: unknown category %q", category)
		}
	}
	for name, templates := range map[string][]string{
		"targets.image": c.Targets.Image,
		"targets.audio": c.Targets.Audio,
		"targets.model": c.Targets.Model,
	} {
		for _, template := range templates {
			if !strings.Contains(template, "{id}") {
				return fmt.Errorf("%s: template %q has no {id} placeholder", name, template)
			}
			if strings.Contains(template, "{seq}") && c.Targets.AudioSequence == 0 && name == "targets.audio" {
				return fmt.Errorf("%s: template %q uses {seq} but targets.audio_sequence is 0", name, template)
			}
		}
	}
	return nil
}

func (c *Config) validateBust() error {
	if strings.Count(c.Bust.Template, "{id}") != 1 {
		return fmt.Errorf("bust.template must contain exactly one {id} placeholder, got %q", c.Bust.Template)
	}
	return requireIDGroup("bust.key_regex", c.Bust.KeyRegex)
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.ConcurrencyLimit <= 0 {
		return errors.New("workflow.concurrency_limit must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

// requireIDGroup checks that pattern compiles with exactly one named group, "id".
func requireIDGroup(field, pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	var named []string
	for _, name := range re.SubexpNames() {
		if name != "" {
			named = append(named, name)
		}
	}
	if len(named) != 1 || named[0] != "id" {
		return fmt.Errorf("%s must have exactly one named capture group \"id\", got %v", field, named)
	}
	return nil
}
