// Package main provides the logsplit CLI application.
package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/logsplit/logsplit"
	"github.com/logsplit/logsplit/pkg/watch"
	"github.com/spf13/cobra"
)

// watchCmd represents the watch command.
var watchCmd = &cobra.Command{
	Use:   "watch DIR",
	Short: "Watch a directory and split log files once they stop growing",
	Long: `Watch DIR for log files and split each one after it has gone quiet for
the settle window, so files still being written are never picked up mid-write.
Files already present when the watch starts are considered too.

Runs until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

// watchFlags holds the flags for the watch command.
type watchFlags struct {
	size   string
	ext    string
	settle time.Duration
}

var watchOpts watchFlags

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVarP(&watchOpts.size, "size", "s", "", "Target chunk size, e.g. 250MB or 64MiB")
	watchCmd.Flags().StringVar(&watchOpts.ext, "ext", "", "File extension to watch for, dot included")
	watchCmd.Flags().DurationVar(&watchOpts.settle, "settle", 0, "How long a file must stay quiet before it is split")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	f := cmd.Flags()
	if f.Changed("size") {
		cfg.TargetChunkSize = watchOpts.size
	}
	if f.Changed("ext") {
		cfg.Watch.Ext = watchOpts.ext
	}
	if f.Changed("settle") {
		cfg.Watch.Settle = watchOpts.settle.String()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	target, err := cfg.TargetBytes()
	if err != nil {
		return err
	}
	settle, err := cfg.Watch.SettleDuration()
	if err != nil {
		return err
	}

	sp := newSplitter(cfg, log)

	// Files at or below the target would be refused by the splitter anyway,
	// so the watcher drops them before they reach the callback.
	w, err := watch.New(watch.Config{
		Dir:     args[0],
		Ext:     cfg.Watch.Ext,
		Settle:  settle,
		MinSize: target,
		OnStable: func(path string) {
			if _, err := sp.Run(logsplit.NewJob(path, target)); err != nil &&
				!errors.Is(err, logsplit.ErrSplitNotNeeded) {
				log.Error("split failed", slog.String("input", path), slog.Any("err", err))
			}
		},
		Logger: log,
	})
	if err != nil {
		return err
	}

	if err := w.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("watch stopped")
	return nil
}
