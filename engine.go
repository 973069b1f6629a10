// Package logsplit splits large line-oriented log files into a sequence of
// size-bounded chunk files. No line is ever broken across two chunks, memory
// stays bounded regardless of input size, and writes are batched.
package logsplit

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidTargetSize = errors.New("target chunk size must be positive")
	ErrSplitNotNeeded    = errors.New("source already fits within the target chunk size")
)

// Phase names the pipeline stage where a split failed.
type Phase string

const (
	PhaseRead     Phase = "read"
	PhaseWrite    Phase = "write"
	PhaseRotate   Phase = "rotate"
	PhaseFinalize Phase = "finalize"
)

// SplitError tags an I/O failure with the phase it occurred in, so callers
// can tell a source read problem from an output write problem.
type SplitError struct {
	Phase Phase
	Err   error
}

func (e *SplitError) Error() string {
	return fmt.Sprintf("split %s: %v", e.Phase, e.Err)
}

func (e *SplitError) Unwrap() error {
	return e.Err
}

// EmptySourcePolicy decides what a zero-byte source produces.
type EmptySourcePolicy int

const (
	// SkipEmptySource refuses the job with ErrSplitNotNeeded; no files are
	// created.
	SkipEmptySource EmptySourcePolicy = iota
	// EmitEmptyChunk produces a single empty chunk and finalizes normally.
	EmitEmptyChunk
)

// Option configures a Splitter.
type Option func(*Splitter)

// WithBatchLineCount sets how many lines accumulate before one write call is
// issued. Values below one keep the default.
func WithBatchLineCount(n int) Option {
	return func(s *Splitter) {
		if n > 0 {
			s.batchLines = n
		}
	}
}

// WithReadBufferSize sets the source read granularity in bytes. Values below
// one keep the default.
func WithReadBufferSize(n int) Option {
	return func(s *Splitter) {
		if n > 0 {
			s.readBufSize = n
		}
	}
}

// WithMmapInput reads sources through a memory mapping instead of buffered
// reads. Throughput on large inputs tends to improve; the address space cost
// grows with source size.
func WithMmapInput(enabled bool) Option {
	return func(s *Splitter) {
		s.useMmap = enabled
	}
}

// WithKeepSource disables the post-completion deletion of the source file.
func WithKeepSource(keep bool) Option {
	return func(s *Splitter) {
		s.keepSource = keep
	}
}

// WithEmptySourcePolicy sets how zero-byte sources are handled.
func WithEmptySourcePolicy(p EmptySourcePolicy) Option {
	return func(s *Splitter) {
		s.emptyPolicy = p
	}
}

// WithFailureCleanup removes partially written chunks, and the output
// directory when that leaves it empty, after a failed run. The default keeps
// partial output on disk for inspection.
func WithFailureCleanup(remove bool) Option {
	return func(s *Splitter) {
		s.cleanupOnFail = remove
	}
}

// WithProgressSink registers a sink that receives one event per sealed chunk.
func WithProgressSink(sink ProgressSink) Option {
	return func(s *Splitter) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithLogger sets the logger used for operational messages.
func WithLogger(log *slog.Logger) Option {
	return func(s *Splitter) {
		if log != nil {
			s.log = log
		}
	}
}

// Splitter executes split jobs. A single Splitter may run any number of jobs
// sequentially; the zero configuration from New is ready to use.
type Splitter struct {
	batchLines    int
	readBufSize   int
	useMmap       bool
	keepSource    bool
	emptyPolicy   EmptySourcePolicy
	cleanupOnFail bool
	sink          ProgressSink
	log           *slog.Logger
}

// New returns a Splitter with the given options applied over the defaults.
func New(opts ...Option) *Splitter {
	s := &Splitter{
		batchLines:  defaultBatchLineCount,
		readBufSize: defaultReadBufferSize,
		emptyPolicy: SkipEmptySource,
		sink:        NopSink{},
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Job describes one source file to split. Fields are fixed for the lifetime
// of the job; use NewJob to derive the output layout from the input path.
type Job struct {
	// ID correlates log lines and the summary of one run.
	ID string
	// InputPath is the source file to split.
	InputPath string
	// TargetChunkBytes is the soft ceiling for each chunk. A single line
	// larger than this still lands intact in a chunk of its own.
	TargetChunkBytes int64
	// OutputDir receives the chunk files.
	OutputDir string
	// BaseName prefixes each chunk file name.
	BaseName string
}

// NewJob returns a job that writes chunks named {base}_{index}.log into a
// directory called {base} next to the source file, where {base} is the source
// file name without its extension.
func NewJob(inputPath string, targetChunkBytes int64) *Job {
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	if base == "" {
		base = filepath.Base(inputPath)
	}
	return &Job{
		ID:               uuid.NewString(),
		InputPath:        inputPath,
		TargetChunkBytes: targetChunkBytes,
		OutputDir:        filepath.Join(filepath.Dir(inputPath), base),
		BaseName:         base,
	}
}

// Summary reports what a completed job produced.
type Summary struct {
	JobID      string
	ChunkCount int
	// ChunkBytes holds the final size of every chunk in index order.
	ChunkBytes []int64
	TotalBytes int64
	// SourceDeleted is true when the source file was removed. A deletion
	// failure is recorded in SourceDeleteErr without failing the job.
	SourceDeleted   bool
	SourceDeleteErr error
	Elapsed         time.Duration
}

// Run executes one job to completion.
//
// It returns ErrInvalidTargetSize for a non-positive target and
// ErrSplitNotNeeded when the source already fits the target (or is empty
// under SkipEmptySource); neither creates any files. I/O failures surface as
// a *SplitError naming the failing phase. On success the source file is
// deleted unless the Splitter keeps sources; a deletion failure is demoted to
// a warning in the Summary.
func (s *Splitter) Run(job *Job) (*Summary, error) {
	start := time.Now()

	if job.TargetChunkBytes <= 0 {
		return nil, ErrInvalidTargetSize
	}

	src, err := s.openSource(job.InputPath)
	if err != nil {
		return nil, &SplitError{Phase: PhaseRead, Err: err}
	}

	size := src.Size()
	if (size > 0 && size <= job.TargetChunkBytes) || (size == 0 && s.emptyPolicy == SkipEmptySource) {
		_ = src.Close()
		s.log.Debug("split not needed",
			slog.String("input", job.InputPath),
			slog.Int64("source_bytes", size),
			slog.Int64("target_bytes", job.TargetChunkBytes),
		)
		return nil, ErrSplitNotNeeded
	}

	r := &run{
		sp:       s,
		job:      job,
		batch:    newLineBatch(s.batchLines),
		seq:      NewChunkSequencer(job.OutputDir, job.BaseName),
		notif:    startNotifier(s.sink),
		log:      s.log.With(slog.String("job_id", job.ID), slog.String("input", job.InputPath)),
		target:   job.TargetChunkBytes,
		estTotal: estimateChunks(size, job.TargetChunkBytes),
	}
	defer r.notif.stop()

	r.log.Info("split started",
		slog.Int64("source_bytes", size),
		slog.Int64("target_bytes", job.TargetChunkBytes),
		slog.Int("estimated_chunks", r.estTotal),
	)

	r.state = stateStreaming
	if size == 0 {
		// EmitEmptyChunk: the one case where a chunk exists with no line
		// destined for it.
		if _, err := r.seq.EnsureOpen(); err != nil {
			return nil, r.fail(src, &SplitError{Phase: PhaseRotate, Err: err})
		}
	} else if serr := r.stream(src); serr != nil {
		return nil, r.fail(src, serr)
	}

	return r.finalize(src, start)
}

func (s *Splitter) openSource(path string) (ByteSource, error) {
	if s.useMmap {
		return OpenMmapSource(path, s.readBufSize)
	}
	return OpenFileSource(path, s.readBufSize)
}

// run is the mutable state of one job execution.
type run struct {
	sp       *Splitter
	job      *Job
	scan     LineScanner
	batch    *lineBatch
	seq      *ChunkSequencer
	notif    *progressNotifier
	log      *slog.Logger
	state    runState
	target   int64
	estTotal int
}

// stream drains the source through the scanner, routing every line through
// the rotation check and the write batch.
func (r *run) stream(src ByteSource) *SplitError {
	for {
		p, err := src.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return &SplitError{Phase: PhaseRead, Err: err}
		}
		for line := range r.scan.Feed(p) {
			if serr := r.appendLine(line); serr != nil {
				return serr
			}
		}
	}
	// a source without a trailing newline still owes us its last line.
	if rem := r.scan.Flush(); len(rem) > 0 {
		if serr := r.appendLine(rem); serr != nil {
			return serr
		}
	}
	return nil
}

// appendLine admits one line: rotation is decided before the line joins the
// batch, so a chunk can only exceed the target by at most the final line it
// accepted while still under it.
func (r *run) appendLine(line []byte) *SplitError {
	if needRotation(r.seq.CurrentWritten(), r.batch.size(), int64(len(line)), r.target) {
		if serr := r.rotate(); serr != nil {
			return serr
		}
	}
	r.batch.append(line)
	if r.batch.full() {
		return r.flushBatch()
	}
	return nil
}

// rotate flushes pending lines into the open chunk and seals it. The next
// chunk is not created here; the following flush opens it lazily.
func (r *run) rotate() *SplitError {
	if serr := r.flushBatch(); serr != nil {
		return serr
	}
	if err := r.seq.CloseCurrent(); err != nil {
		return &SplitError{Phase: PhaseRotate, Err: err}
	}
	r.reportChunk()
	return nil
}

// flushBatch writes the pending batch into the open chunk as one write call,
// opening the next chunk in the sequence if none is open. An empty batch
// creates nothing.
func (r *run) flushBatch() *SplitError {
	if r.batch.size() == 0 {
		return nil
	}
	c, err := r.seq.EnsureOpen()
	if err != nil {
		return &SplitError{Phase: PhaseRotate, Err: err}
	}
	if err := c.write(r.batch.take()); err != nil {
		return &SplitError{Phase: PhaseWrite, Err: err}
	}
	return nil
}

func (r *run) reportChunk() {
	done := r.seq.SealedCount()
	est := r.estTotal
	if est < done {
		est = done
	}
	r.notif.publish(Progress{CompletedChunks: done, EstimatedTotal: est})
}

// finalize flushes the remainder, seals the last chunk, and applies the
// source deletion policy. Deletion failure does not fail the job.
func (r *run) finalize(src ByteSource, start time.Time) (*Summary, error) {
	r.state = stateFinalizing

	if serr := r.flushBatch(); serr != nil {
		return nil, r.fail(src, serr)
	}
	if r.seq.Current() != nil {
		if err := r.seq.CloseCurrent(); err != nil {
			return nil, r.fail(src, &SplitError{Phase: PhaseFinalize, Err: err})
		}
		r.reportChunk()
	}
	if err := src.Close(); err != nil {
		return nil, r.fail(src, &SplitError{Phase: PhaseRead, Err: err})
	}

	sum := &Summary{
		JobID:      r.job.ID,
		ChunkCount: r.seq.SealedCount(),
		ChunkBytes: r.seq.SealedSizes(),
	}
	for _, n := range sum.ChunkBytes {
		sum.TotalBytes += n
	}

	if !r.sp.keepSource {
		if err := os.Remove(r.job.InputPath); err != nil {
			sum.SourceDeleteErr = err
			r.log.Warn("source delete failed", slog.Any("err", err))
		} else {
			sum.SourceDeleted = true
		}
	}

	r.state = stateCompleted
	sum.Elapsed = time.Since(start)
	r.log.Info("split completed",
		slog.Int("chunks", sum.ChunkCount),
		slog.Int64("bytes", sum.TotalBytes),
		slog.Bool("source_deleted", sum.SourceDeleted),
		slog.Duration("elapsed", sum.Elapsed),
	)
	return sum, nil
}

// fail moves the run to its terminal failure state: resources are released,
// the cleanup policy is applied, and the phase-tagged error is returned for
// the caller to propagate.
func (r *run) fail(src ByteSource, serr *SplitError) error {
	failedIn := r.state
	r.state = stateFailed
	_ = src.Close()

	if c := r.seq.Current(); c != nil {
		if err := r.seq.CloseCurrent(); err != nil {
			r.log.Error("chunk close failed", slog.String("path", c.Path()), slog.Any("err", err))
		}
	}
	if r.sp.cleanupOnFail {
		r.removePartialOutput()
	}

	r.log.Error("split failed",
		slog.String("phase", string(serr.Phase)),
		slog.String("state", failedIn.String()),
		slog.Any("err", serr.Err),
	)
	return serr
}

// removePartialOutput deletes every chunk created during the failed run, then
// the output directory. The directory removal only succeeds when the run's
// chunks were its sole content, which is the intent.
func (r *run) removePartialOutput() {
	for _, path := range r.seq.CreatedPaths() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.log.Error("chunk file delete failed", slog.String("path", path), slog.Any("err", err))
		}
	}
	if err := os.Remove(r.seq.Dir()); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.log.Debug("output directory kept", slog.String("path", r.seq.Dir()), slog.Any("err", err))
	}
}

// runState tracks where a job execution is in its lifecycle.
type runState int8

const (
	stateIdle runState = iota
	stateStreaming
	stateFinalizing
	stateCompleted
	stateFailed
)

func (st runState) String() string {
	switch st {
	case stateIdle:
		return "idle"
	case stateStreaming:
		return "streaming"
	case stateFinalizing:
		return "finalizing"
	case stateCompleted:
		return "completed"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
