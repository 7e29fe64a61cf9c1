package config

import "github.com/kerbaras/comicdl/pkg/sources"

const (
	defaultSaveRoot          = "~/Downloads/comicdl"
	defaultOutputFormat      = "folder"
	defaultImageTier         = "default"
	defaultRenameRule        = "default"
	defaultWorkers           = 4
	defaultRequestsPerSecond = 8
	defaultNetworkMaxElapsed = 10
	defaultImageMaxElapsed   = 30
	defaultInitialInterval   = 0.5
	defaultMaxInterval       = 8
	defaultLocalIOAttempts   = 5
	defaultIntegrityRetries  = 1
	defaultRequestTimeout    = 10
	defaultImageTimeout      = 60
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultSevenZipBinary    = ""
	defaultEmbedMetadata     = true
	defaultIntegrityCheck    = true
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			SaveRoot: defaultSaveRoot,
		},
		Download: Download{
			OutputFormat:      defaultOutputFormat,
			ImageTier:         defaultImageTier,
			EmbedMetadata:     defaultEmbedMetadata,
			IntegrityCheck:    defaultIntegrityCheck,
			RenameRule:        defaultRenameRule,
			Workers:           defaultWorkers,
			RequestsPerSecond: defaultRequestsPerSecond,
		},
		Retry: Retry{
			NetworkMaxElapsed: defaultNetworkMaxElapsed,
			ImageMaxElapsed:   defaultImageMaxElapsed,
			InitialInterval:   defaultInitialInterval,
			MaxInterval:       defaultMaxInterval,
			LocalIOAttempts:   defaultLocalIOAttempts,
			IntegrityRetries:  defaultIntegrityRetries,
			RequestTimeout:    defaultRequestTimeout,
			ImageTimeout:      defaultImageTimeout,
		},
		Archive: Archive{
			SevenZipBinary: defaultSevenZipBinary,
		},
		Endpoints: Endpoints{
			APIBase: sources.DefaultAPIBase,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
