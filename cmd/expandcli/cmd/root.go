// Package cmd provides the expandcli commands.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/module"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/module/builtin"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/logger"
)

// globalOptions are shared by every subcommand.
type globalOptions struct {
	configPath string
	logLevel   string
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	var opts globalOptions

	cmd := &cobra.Command{
		Use:   "expandcli",
		Short: "Expand search queries with the configured modules",
		Long: `expandcli loads the modules from a service configuration file and
expands Lucene-style queries locally, without running the HTTP service.

Examples:
  expandcli expand 'cat AND dog'
  expandcli expand --include syn --k 3 'title:cat'
  expandcli modules --format json
  expandcli validate --config configs/production.yaml`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(logger.New(cmd.ErrOrStderr(), opts.logLevel, "text"))
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "configs/development.yaml", "Path to the config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	cmd.AddCommand(newExpandCmd(&opts))
	cmd.AddCommand(newModulesCmd(&opts))
	cmd.AddCommand(newValidateCmd(&opts))

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().ExecuteContext(context.Background())
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func loadRegistry(ctx context.Context, opts *globalOptions) (*config.Config, *module.Registry, error) {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, nil, err
	}
	reg, err := builtin.Load(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, reg, nil
}
