// Package main provides the logsplit CLI application.
package main

import (
	"log/slog"
	"os"

	"github.com/logsplit/logsplit/pkg/config"
	"github.com/logsplit/logsplit/pkg/version"
	"github.com/spf13/cobra"
)

// rootFlags holds the flags shared by every subcommand.
type rootFlags struct {
	config   string
	logLevel string
}

var rootOpts rootFlags

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "logsplit",
	Short: "Split large log files into size-bounded chunks",
	Long: `logsplit splits large line-oriented log files into a sequence of
size-bounded chunk files without ever breaking a line in two.

Chunks are written as {base}_{index}.log into a directory named after the
source file, sitting next to it. Once a split completes the source file is
deleted, unless told otherwise.`,
	Version:      version.String(),
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootOpts.config, "config", "c", "",
		"Path to a config file (default: logsplit.yaml in . or the user config dir)")
	rootCmd.PersistentFlags().StringVar(&rootOpts.logLevel, "log-level", "",
		"Log level: debug, info, warn or error (overrides config)")
}

// loadConfig resolves the effective configuration and builds the logger the
// subcommands share. Flag overrides on top of the file are applied by each
// subcommand before use.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(rootOpts.config)
	if err != nil {
		return nil, nil, err
	}
	if rootOpts.logLevel != "" {
		cfg.LogLevel = rootOpts.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, nil, err
		}
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	return cfg, log, nil
}
