package logsplit

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	chunkFileExt = ".log"
	fileModePerm = 0644
	dirModePerm  = 0755
)

var ErrChunkClosed = errors.New("the chunk file is closed")

// Chunk is a single size-bounded output file. It only ever receives whole
// lines, appended in batches, and is sealed exactly once.
type Chunk struct {
	index   int
	path    string
	fd      *os.File
	written int64
	closed  bool
}

// Index returns the 1-based position of the chunk in the output sequence.
func (c *Chunk) Index() int {
	return c.index
}

// Path returns the chunk's file path.
func (c *Chunk) Path() string {
	return c.path
}

// BytesWritten returns how many bytes have been flushed into the chunk.
func (c *Chunk) BytesWritten() int64 {
	return c.written
}

// write appends one flushed batch as a single write call.
func (c *Chunk) write(data []byte) error {
	if c.closed {
		return ErrChunkClosed
	}
	n, err := c.fd.Write(data)
	c.written += int64(n)
	if err != nil {
		return fmt.Errorf("chunk %d write: %w", c.index, err)
	}
	return nil
}

// close seals the chunk: fsync then close, so a completed chunk is durable
// before the source file is ever considered for deletion. Idempotent.
func (c *Chunk) close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.fd.Sync(); err != nil {
		_ = c.fd.Close()
		return fmt.Errorf("chunk %d fsync: %w", c.index, err)
	}
	if err := c.fd.Close(); err != nil {
		return fmt.Errorf("chunk %d close: %w", c.index, err)
	}
	return nil
}

// ChunkFileName returns the file name of chunk index within dir.
func ChunkFileName(dir string, baseName string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%d%s", baseName, index, chunkFileExt))
}

// ChunkSequencer owns the output side of a split: it creates the output
// directory and chunk files lazily, numbers chunks contiguously from 1, and
// keeps at most one chunk open for writing at a time.
type ChunkSequencer struct {
	dir      string
	baseName string
	dirMade  bool

	current *Chunk
	lastIdx int

	// byte sizes of sealed chunks, in index order.
	sizes []int64
	// every path created during the run, kept for failure cleanup.
	paths []string
}

// NewChunkSequencer returns a sequencer that writes chunks named
// baseName_1.log, baseName_2.log, ... into dir. Nothing touches the
// filesystem until the first chunk is actually needed.
func NewChunkSequencer(dir string, baseName string) *ChunkSequencer {
	return &ChunkSequencer{dir: dir, baseName: baseName}
}

// EnsureOpen returns the open chunk, creating the directory and the next
// file in the sequence when none is open.
func (q *ChunkSequencer) EnsureOpen() (*Chunk, error) {
	if q.current != nil {
		return q.current, nil
	}

	if !q.dirMade {
		if err := os.MkdirAll(q.dir, dirModePerm); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
		q.dirMade = true
	}

	idx := q.lastIdx + 1
	path := ChunkFileName(q.dir, q.baseName, idx)
	fd, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fileModePerm)
	if err != nil {
		return nil, fmt.Errorf("failed to create chunk %d: %w", idx, err)
	}

	q.lastIdx = idx
	q.current = &Chunk{index: idx, path: path, fd: fd}
	q.paths = append(q.paths, path)
	return q.current, nil
}

// Current returns the open chunk, or nil when none is open.
func (q *ChunkSequencer) Current() *Chunk {
	return q.current
}

// CurrentWritten returns the flushed byte count of the open chunk, or 0 when
// none is open.
func (q *ChunkSequencer) CurrentWritten() int64 {
	if q.current == nil {
		return 0
	}
	return q.current.written
}

// CloseCurrent seals the open chunk and records its final size. It is a
// no-op when no chunk is open; the next EnsureOpen continues the sequence.
func (q *ChunkSequencer) CloseCurrent() error {
	if q.current == nil {
		return nil
	}
	c := q.current
	q.current = nil
	if err := c.close(); err != nil {
		return err
	}
	q.sizes = append(q.sizes, c.written)
	return nil
}

// SealedCount returns how many chunks have been sealed so far.
func (q *ChunkSequencer) SealedCount() int {
	return len(q.sizes)
}

// SealedSizes returns the byte sizes of all sealed chunks in index order.
func (q *ChunkSequencer) SealedSizes() []int64 {
	out := make([]int64, len(q.sizes))
	copy(out, q.sizes)
	return out
}

// CreatedPaths returns every chunk path created during the run, sealed or
// not, in creation order.
func (q *ChunkSequencer) CreatedPaths() []string {
	out := make([]string, len(q.paths))
	copy(out, q.paths)
	return out
}

// Dir returns the output directory path.
func (q *ChunkSequencer) Dir() string {
	return q.dir
}
