package cmd

import (
	"fmt"

	"github.com/kerbaras/comicdl/pkg/config"
	"github.com/kerbaras/comicdl/pkg/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

const appName = "comicdl"

func producer() string {
	return appName + " " + Version
}

type options struct {
	configPath string
	logLevel   string
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           appName,
		Short:         "Download comic chapters into folders, PDFs or archives",
		Long:          "Resolve, download, decode and package comic chapters one at a time",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Configuration file (default ~/.config/comicdl/config.toml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override logging.level")

	root.AddCommand(newDownloadCommand(opts))
	root.AddCommand(newChaptersCommand(opts))
	root.AddCommand(newConfigCommand(opts))
	return root
}

// load reads the configuration and installs the logger it describes.
func (o *options) load(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	cfg, _, _, err := config.Load(o.configPath)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	logger, err := logging.New(logging.Options{
		Format: cfg.Logging.Format,
		Level:  cfg.Logging.Level,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logger, nil
}
