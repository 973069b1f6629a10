// Package main provides the logsplit CLI application.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/logsplit/logsplit"
	"github.com/logsplit/logsplit/pkg/config"
	"github.com/spf13/cobra"
)

// splitCmd represents the split command.
var splitCmd = &cobra.Command{
	Use:   "split FILE...",
	Short: "Split log files into size-bounded chunks",
	Long: `Split each FILE into chunks of at most the target size, never breaking
a line across two chunks. A single line larger than the target still lands
intact, in a chunk of its own.

Files already at or below the target size are left untouched.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSplit,
}

// splitFlags holds the flags for the split command. Each one overrides the
// corresponding config file value only when set explicitly.
type splitFlags struct {
	size        string
	batchLines  int
	keepSource  bool
	mmap        bool
	emptySource string
	cleanup     bool
}

var splitOpts splitFlags

func init() {
	rootCmd.AddCommand(splitCmd)

	splitCmd.Flags().StringVarP(&splitOpts.size, "size", "s", "", "Target chunk size, e.g. 250MB or 64MiB")
	splitCmd.Flags().IntVar(&splitOpts.batchLines, "batch-lines", 0, "Lines accumulated per write call")
	splitCmd.Flags().BoolVar(&splitOpts.keepSource, "keep-source", false, "Keep the source file after a successful split")
	splitCmd.Flags().BoolVar(&splitOpts.mmap, "mmap", false, "Read sources through a memory mapping")
	splitCmd.Flags().StringVar(&splitOpts.emptySource, "empty-source", "", "What an empty source produces: skip or chunk")
	splitCmd.Flags().BoolVar(&splitOpts.cleanup, "cleanup", false, "Remove partial chunks when a split fails")
}

func runSplit(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	applySplitOverrides(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	target, err := cfg.TargetBytes()
	if err != nil {
		return err
	}

	sp := newSplitter(cfg, log)

	failed := 0
	for _, path := range args {
		sum, err := sp.Run(logsplit.NewJob(path, target))
		switch {
		case errors.Is(err, logsplit.ErrSplitNotNeeded):
			fmt.Printf("%s: already within %s, nothing to do\n", path, humanize.Bytes(uint64(target)))
		case err != nil:
			failed++
			fmt.Printf("%s: %v\n", path, err)
		default:
			printSummary(path, sum)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(args))
	}
	return nil
}

// applySplitOverrides lays explicitly set flags over the loaded config, so a
// config file value survives unless the user asked for something else.
func applySplitOverrides(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("size") {
		cfg.TargetChunkSize = splitOpts.size
	}
	if f.Changed("batch-lines") {
		cfg.BatchLineCount = splitOpts.batchLines
	}
	if f.Changed("keep-source") {
		cfg.KeepSource = splitOpts.keepSource
	}
	if f.Changed("mmap") {
		cfg.UseMmap = splitOpts.mmap
	}
	if f.Changed("empty-source") {
		cfg.EmptySource = splitOpts.emptySource
	}
	if f.Changed("cleanup") {
		cfg.CleanupOnFailure = splitOpts.cleanup
	}
}

// newSplitter maps the effective configuration onto splitter options.
func newSplitter(cfg *config.Config, log *slog.Logger) *logsplit.Splitter {
	empty := logsplit.SkipEmptySource
	if cfg.EmptySource == config.EmptySourceChunk {
		empty = logsplit.EmitEmptyChunk
	}
	return logsplit.New(
		logsplit.WithBatchLineCount(cfg.BatchLineCount),
		logsplit.WithMmapInput(cfg.UseMmap),
		logsplit.WithKeepSource(cfg.KeepSource),
		logsplit.WithEmptySourcePolicy(empty),
		logsplit.WithFailureCleanup(cfg.CleanupOnFailure),
		logsplit.WithProgressSink(logsplit.NewLogSink(log)),
		logsplit.WithLogger(log),
	)
}

func printSummary(path string, sum *logsplit.Summary) {
	fmt.Printf("%s: %d chunks, %s, %s\n",
		path, sum.ChunkCount, humanize.Bytes(uint64(sum.TotalBytes)), sum.Elapsed.Round(time.Millisecond))
	if sum.SourceDeleteErr != nil {
		fmt.Printf("  warning: source file not deleted: %v\n", sum.SourceDeleteErr)
	}
}
