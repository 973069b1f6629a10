package logsplit

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// Progress describes the state of a split after one more chunk was sealed.
type Progress struct {
	// CompletedChunks is how many chunks have been sealed so far; it equals
	// the index of the chunk that just completed.
	CompletedChunks int
	// EstimatedTotal is the projected final chunk count. It is derived from
	// the source size and never falls below CompletedChunks, but the true
	// count is only known once the split finishes.
	EstimatedTotal int
}

// ProgressSink receives one event per sealed chunk. Delivery is
// fire-and-forget: the pipeline never waits on a sink, and events may be
// dropped when a sink cannot keep up. Sinks must be safe for use from a
// goroutine other than the caller's.
type ProgressSink interface {
	ChunkCompleted(p Progress)
}

// NopSink discards all progress events.
type NopSink struct{}

func (NopSink) ChunkCompleted(Progress) {}

// LogSink writes chunk completions to a slog.Logger, throttled to at most
// one line per second so a fast split cannot flood the log.
type LogSink struct {
	log *slog.Logger
	lim *rate.Limiter
}

// NewLogSink returns a LogSink writing to log, or slog.Default() when log is
// nil.
func NewLogSink(log *slog.Logger) *LogSink {
	if log == nil {
		log = slog.Default()
	}
	return &LogSink{
		log: log,
		lim: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

func (s *LogSink) ChunkCompleted(p Progress) {
	if !s.lim.Allow() {
		return
	}
	s.log.Info("chunk completed",
		slog.Int("completed", p.CompletedChunks),
		slog.Int("estimated_total", p.EstimatedTotal),
	)
}

// notifierBuffer is how many undelivered events may queue before publish
// starts dropping.
const notifierBuffer = 128

// notifierDrainTimeout bounds how long stop waits for a sink to take the
// remaining events. A sink that stalls past it leaks its goroutine rather
// than wedging the split's completion.
const notifierDrainTimeout = 5 * time.Second

// progressNotifier decouples the write path from the sink: events go into a
// buffered channel and a single goroutine delivers them in order, so a slow
// sink costs dropped events instead of split throughput.
type progressNotifier struct {
	ch           chan Progress
	done         chan struct{}
	drainTimeout time.Duration
}

func startNotifier(sink ProgressSink) *progressNotifier {
	n := &progressNotifier{
		ch:           make(chan Progress, notifierBuffer),
		done:         make(chan struct{}),
		drainTimeout: notifierDrainTimeout,
	}
	go func() {
		defer close(n.done)
		for p := range n.ch {
			sink.ChunkCompleted(p)
		}
	}()
	return n
}

// publish hands one event to the delivery goroutine without ever blocking.
func (n *progressNotifier) publish(p Progress) {
	select {
	case n.ch <- p:
	default:
	}
}

// stop closes the event stream and waits for queued events to drain, up to
// the drain timeout.
func (n *progressNotifier) stop() {
	close(n.ch)
	select {
	case <-n.done:
	case <-time.After(n.drainTimeout):
	}
}
