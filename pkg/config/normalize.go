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
	c.normalizeSession()
	c.normalizeDownload()
	c.normalizeEndpoints()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if strings.TrimSpace(c.Paths.SaveRoot) == "" {
		c.Paths.SaveRoot = defaultSaveRoot
	}
	var err error
	if c.Paths.SaveRoot, err = expandPath(strings.TrimSpace(c.Paths.SaveRoot)); err != nil {
		return fmt.Errorf("paths.save_root: %w", err)
	}
	return nil
}

func (c *Config) normalizeSession() {
	c.Session.Cookie = strings.TrimSpace(c.Session.Cookie)
	if c.Session.Cookie == "" {
		if value, ok := os.LookupEnv("COMICDL_COOKIE"); ok {
			c.Session.Cookie = strings.TrimSpace(value)
		}
	}
	c.Session.UserAgent = strings.TrimSpace(c.Session.UserAgent)
}

func (c *Config) normalizeDownload() {
	c.Download.OutputFormat = strings.ToLower(strings.TrimSpace(c.Download.OutputFormat))
	if c.Download.OutputFormat == "" {
		c.Download.OutputFormat = defaultOutputFormat
	}
	c.Download.ImageTier = strings.ToLower(strings.TrimSpace(c.Download.ImageTier))
	if c.Download.ImageTier == "" {
		c.Download.ImageTier = defaultImageTier
	}
	c.Download.RenameRule = strings.TrimSpace(c.Download.RenameRule)
	if c.Download.RenameRule == "" {
		c.Download.RenameRule = defaultRenameRule
	}
}

func (c *Config) normalizeEndpoints() {
	c.Endpoints.APIBase = strings.TrimRight(strings.TrimSpace(c.Endpoints.APIBase), "/")
	if c.Endpoints.APIBase == "" {
		c.Endpoints.APIBase = Default().Endpoints.APIBase
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
}
