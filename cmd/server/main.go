package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sumire/defects/internal/config"
	"github.com/sumire/defects/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "defects",
		Short:         "Defect tracking API server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "optional config file (yaml, toml or json)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Apply the schema and serve the HTTP API",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, logger, err := setup(configFile)
				if err != nil {
					return err
				}
				return serve(cmd.Context(), cfg, logger)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create missing tables and indexes, then exit",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, logger, err := setup(configFile)
				if err != nil {
					return err
				}
				return migrate(cmd.Context(), cfg, logger)
			},
		},
	)
	return root
}

func setup(configFile string) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}

	format := cfg.LogFormat
	if format == "" && cfg.Production() {
		format = "json"
	}
	logger := logging.New(os.Stdout, cfg.LogLevel, format)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
