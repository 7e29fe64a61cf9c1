package config

import (
	"errors"
	"fmt"

	"github.com/kerbaras/comicdl/pkg/data"
	"github.com/kerbaras/comicdl/pkg/title"
)

// Validate ensures the configuration is usable and caches the parsed
// format, tier and rename rule.
func (c *Config) Validate() error {
	if err := c.validateDownload(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDownload() error {
	format, err := data.ParseOutputFormat(c.Download.OutputFormat)
	if err != nil {
		return fmt.Errorf("download.output_format: %w", err)
	}
	tier, err := data.ParseImageTier(c.Download.ImageTier)
	if err != nil {
		return fmt.Errorf("download.image_tier: %w", err)
	}
	rule, err := title.ParseRule(c.Download.RenameRule)
	if err != nil {
		return fmt.Errorf("download.rename_rule: %w", err)
	}
	if c.Download.Workers < 1 {
		return errors.New("download.workers must be at least 1")
	}
	if c.Download.RequestsPerSecond < 0 {
		return errors.New("download.requests_per_second must not be negative")
	}
	c.format, c.tier, c.rule = format, tier, rule
	return nil
}

func (c *Config) validateRetry() error {
	r := c.Retry
	if r.NetworkMaxElapsed < 0 || r.ImageMaxElapsed < 0 || r.InitialInterval < 0 || r.MaxInterval < 0 {
		return errors.New("retry durations must not be negative")
	}
	if r.RequestTimeout <= 0 || r.ImageTimeout <= 0 {
		return errors.New("retry.request_timeout and retry.image_timeout must be positive")
	}
	if r.LocalIOAttempts < 1 {
		return errors.New("retry.local_io_attempts must be at least 1")
	}
	if r.IntegrityRetries < 0 {
		return errors.New("retry.integrity_retries must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}
