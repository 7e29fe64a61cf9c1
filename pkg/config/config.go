package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kerbaras/comicdl/pkg/data"
	"github.com/kerbaras/comicdl/pkg/retry"
	"github.com/kerbaras/comicdl/pkg/title"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains output locations.
type Paths struct {
	SaveRoot string `toml:"save_root"`
}

// Session contains the account credentials sent with every request.
type Session struct {
	Cookie    string `toml:"cookie"`
	UserAgent string `toml:"user_agent"`
}

// Download contains per-chapter download and assembly settings.
type Download struct {
	OutputFormat      string  `toml:"output_format"`
	ImageTier         string  `toml:"image_tier"`
	EmbedMetadata     bool    `toml:"embed_metadata"`
	IntegrityCheck    bool    `toml:"integrity_check"`
	RenameRule        string  `toml:"rename_rule"`
	Workers           int     `toml:"workers"`
	RequestsPerSecond float64 `toml:"requests_per_second"` // 0 disables pacing
}

// Retry contains retry budgets. Durations are in seconds.
type Retry struct {
	NetworkMaxElapsed float64 `toml:"network_max_elapsed"`
	ImageMaxElapsed   float64 `toml:"image_max_elapsed"`
	InitialInterval   float64 `toml:"initial_interval"`
	MaxInterval       float64 `toml:"max_interval"`
	LocalIOAttempts   int     `toml:"local_io_attempts"`
	IntegrityRetries  int     `toml:"integrity_retries"`
	RequestTimeout    float64 `toml:"request_timeout"`
	ImageTimeout      float64 `toml:"image_timeout"`
}

// Archive contains container tooling settings.
type Archive struct {
	SevenZipBinary string `toml:"seven_zip_binary"` // empty searches PATH
}

// Endpoints contains the remote API location.
type Endpoints struct {
	APIBase string `toml:"api_base"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for comicdl.
type Config struct {
	Paths     Paths     `toml:"paths"`
	Session   Session   `toml:"session"`
	Download  Download  `toml:"download"`
	Retry     Retry     `toml:"retry"`
	Archive   Archive   `toml:"archive"`
	Endpoints Endpoints `toml:"endpoints"`
	Logging   Logging   `toml:"logging"`

	format data.OutputFormat
	tier   data.ImageTier
	rule   title.Rule
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/comicdl/config.toml")
}

// Load locates, parses, and validates a configuration file. A missing file
// yields the defaults. It returns the resolved path and whether it existed.
func Load(path string) (*Config, string, bool, error) {
	if path == "" {
		var err error
		if path, err = DefaultConfigPath(); err != nil {
			return nil, "", false, err
		}
	}
	resolved, err := expandPath(path)
	if err != nil {
		return nil, "", false, err
	}

	raw, err := os.ReadFile(resolved)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		cfg, err := Parse(nil)
		return cfg, resolved, false, err
	case err != nil:
		return nil, "", false, fmt.Errorf("open config: %w", err)
	}

	cfg, err := Parse(raw)
	if err != nil {
		return nil, "", false, err
	}
	return cfg, resolved, true, nil
}

// Parse decodes TOML over the defaults, then normalizes and validates.
// Unknown keys are rejected.
func Parse(raw []byte) (*Config, error) {
	cfg := Default()
	if len(raw) > 0 {
		dec := toml.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, fmt.Errorf("parse config: %s", strict.String())
			}
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Sample returns the commented sample configuration.
func Sample() string {
	return sampleConfig
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

// Encode renders the effective configuration as TOML.
func (c *Config) Encode() (string, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(c); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (c *Config) OutputFormat() data.OutputFormat { return c.format }

func (c *Config) ImageTier() data.ImageTier { return c.tier }

func (c *Config) RenameRule() title.Rule { return c.rule }

// NetworkPolicy governs the manifest and token endpoints.
func (c *Config) NetworkPolicy() retry.Policy {
	return retry.Network(seconds(c.Retry.InitialInterval), seconds(c.Retry.MaxInterval), seconds(c.Retry.NetworkMaxElapsed))
}

// ImagePolicy governs one image download cycle.
func (c *Config) ImagePolicy() retry.Policy {
	return retry.Network(seconds(c.Retry.InitialInterval), seconds(c.Retry.MaxInterval), seconds(c.Retry.ImageMaxElapsed))
}

// LocalIOPolicy governs staging writes, moves and archive writes.
func (c *Config) LocalIOPolicy() retry.Policy {
	return retry.LocalIO(c.Retry.LocalIOAttempts, 200*time.Millisecond)
}

// CleanupPolicy governs deletion of staged files after a successful save.
func (c *Config) CleanupPolicy() retry.Policy {
	return retry.LocalIO(min(c.Retry.LocalIOAttempts, 3), 200*time.Millisecond)
}

func (c *Config) RequestTimeout() time.Duration { return seconds(c.Retry.RequestTimeout) }

func (c *Config) ImageTimeout() time.Duration { return seconds(c.Retry.ImageTimeout) }

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
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
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
