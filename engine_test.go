package logsplit

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// makeLines builds count lines of exactly lineLen bytes each, newline
// included, with distinct content per line.
func makeLines(count, lineLen int) []byte {
	var buf bytes.Buffer
	for i := 0; i < count; i++ {
		fmt.Fprintf(&buf, "%0*d\n", lineLen-1, i)
	}
	return buf.Bytes()
}

func writeInput(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

// readChunks returns the content of every chunk in index order and asserts
// the output directory holds nothing else.
func readChunks(t *testing.T, job *Job) [][]byte {
	t.Helper()
	var chunks [][]byte
	for i := 1; ; i++ {
		data, err := os.ReadFile(ChunkFileName(job.OutputDir, job.BaseName, i))
		if os.IsNotExist(err) {
			break
		}
		require.NoError(t, err)
		chunks = append(chunks, data)
	}
	entries, err := os.ReadDir(job.OutputDir)
	require.NoError(t, err)
	require.Len(t, entries, len(chunks), "output directory must hold exactly the sealed chunks")
	return chunks
}

func TestNewJob_DerivesOutputLayout(t *testing.T) {
	job := NewJob(filepath.Join("var", "logs", "app.log"), 250)

	assert.Equal(t, "app", job.BaseName)
	assert.Equal(t, filepath.Join("var", "logs", "app"), job.OutputDir)
	assert.Equal(t, int64(250), job.TargetChunkBytes)

	_, err := uuid.Parse(job.ID)
	assert.NoError(t, err)
}

func TestNewJob_NoExtension(t *testing.T) {
	job := NewJob(filepath.Join("data", "trace"), 100)
	assert.Equal(t, "trace", job.BaseName)
	assert.Equal(t, filepath.Join("data", "trace"), job.OutputDir)
}

func TestSplitter_EqualLinesSplitEvenly(t *testing.T) {
	// ten 100-byte lines against a 250-byte target: two lines fit, a third
	// would overflow, so every chunk carries exactly two lines.
	content := makeLines(10, 100)
	input := writeInput(t, content)
	job := NewJob(input, 250)

	sum, err := New(WithLogger(discardLogger())).Run(job)
	require.NoError(t, err)

	assert.Equal(t, 5, sum.ChunkCount)
	assert.Equal(t, []int64{200, 200, 200, 200, 200}, sum.ChunkBytes)
	assert.Equal(t, int64(1000), sum.TotalBytes)
	assert.Equal(t, job.ID, sum.JobID)

	chunks := readChunks(t, job)
	require.Len(t, chunks, 5)
	assert.Equal(t, content, bytes.Join(chunks, nil), "concatenated chunks must equal the source")

	_, err = os.Stat(input)
	assert.True(t, os.IsNotExist(err), "source must be deleted after completion")
	assert.True(t, sum.SourceDeleted)
	assert.NoError(t, sum.SourceDeleteErr)
}

func TestSplitter_TargetAtOrAboveSourceIsRefused(t *testing.T) {
	content := makeLines(10, 100)

	for _, target := range []int64{1000, 1001, 1 << 30} {
		input := writeInput(t, content)
		job := NewJob(input, target)

		sum, err := New(WithLogger(discardLogger())).Run(job)
		assert.ErrorIs(t, err, ErrSplitNotNeeded, "target %d", target)
		assert.Nil(t, sum)

		_, statErr := os.Stat(job.OutputDir)
		assert.True(t, os.IsNotExist(statErr), "refusal must not create any files")

		data, readErr := os.ReadFile(input)
		require.NoError(t, readErr)
		assert.Equal(t, content, data, "refusal must leave the source untouched")
	}
}

func TestSplitter_InvalidTargetSize(t *testing.T) {
	input := writeInput(t, makeLines(5, 50))

	for _, target := range []int64{0, -1, -500} {
		job := NewJob(input, target)
		sum, err := New(WithLogger(discardLogger())).Run(job)
		assert.ErrorIs(t, err, ErrInvalidTargetSize, "target %d", target)
		assert.Nil(t, sum)

		_, statErr := os.Stat(job.OutputDir)
		assert.True(t, os.IsNotExist(statErr))
	}
}

func TestSplitter_EmptySourceSkippedByDefault(t *testing.T) {
	input := writeInput(t, nil)
	job := NewJob(input, 100)

	_, err := New(WithLogger(discardLogger())).Run(job)
	assert.ErrorIs(t, err, ErrSplitNotNeeded)

	_, statErr := os.Stat(job.OutputDir)
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(input)
	assert.NoError(t, statErr, "skipped source must survive")
}

func TestSplitter_EmptySourceEmitsChunkWhenConfigured(t *testing.T) {
	input := writeInput(t, nil)
	job := NewJob(input, 100)

	sum, err := New(
		WithEmptySourcePolicy(EmitEmptyChunk),
		WithLogger(discardLogger()),
	).Run(job)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.ChunkCount)
	assert.Equal(t, []int64{0}, sum.ChunkBytes)
	assert.Equal(t, int64(0), sum.TotalBytes)

	chunks := readChunks(t, job)
	require.Len(t, chunks, 1)
	assert.Empty(t, chunks[0])

	_, statErr := os.Stat(input)
	assert.True(t, os.IsNotExist(statErr), "empty source is still finalized away")
}

func TestSplitter_NoTrailingNewline(t *testing.T) {
	content := []byte("first line\nsecond line\nfinal line without newline")
	input := writeInput(t, content)
	job := NewJob(input, 24)

	sum, err := New(WithLogger(discardLogger())).Run(job)
	require.NoError(t, err)

	chunks := readChunks(t, job)
	assert.Equal(t, content, bytes.Join(chunks, nil), "the unterminated final line must be captured")
	assert.Equal(t, sum.ChunkCount, len(chunks))

	last := chunks[len(chunks)-1]
	assert.True(t, bytes.HasSuffix(last, []byte("final line without newline")))
}

func TestSplitter_NeverSplitsALine(t *testing.T) {
	var content bytes.Buffer
	for i := 0; i < 400; i++ {
		fmt.Fprintf(&content, "entry %03d %s\n", i, strings.Repeat("p", i%97))
	}
	input := writeInput(t, content.Bytes())
	job := NewJob(input, 512)

	_, err := New(WithLogger(discardLogger())).Run(job)
	require.NoError(t, err)

	chunks := readChunks(t, job)
	require.NotEmpty(t, chunks)
	assert.Equal(t, content.Bytes(), bytes.Join(chunks, nil))

	for i, chunk := range chunks {
		require.NotEmpty(t, chunk, "chunk %d must not be empty", i+1)
		assert.Equal(t, byte('\n'), chunk[len(chunk)-1],
			"chunk %d must end on a line boundary", i+1)
	}
}

func TestSplitter_SoftCeiling(t *testing.T) {
	// irregular line lengths; no chunk may exceed target plus its final line.
	var content bytes.Buffer
	maxLine := 0
	for i := 0; i < 300; i++ {
		line := fmt.Sprintf("%d %s\n", i, strings.Repeat("y", (i*37)%201))
		if len(line) > maxLine {
			maxLine = len(line)
		}
		content.WriteString(line)
	}
	const target = 400
	input := writeInput(t, content.Bytes())
	job := NewJob(input, target)

	_, err := New(WithLogger(discardLogger())).Run(job)
	require.NoError(t, err)

	for i, chunk := range readChunks(t, job) {
		assert.LessOrEqual(t, len(chunk), target+maxLine,
			"chunk %d exceeds the soft ceiling", i+1)
	}
}

func TestSplitter_OversizedLineGetsOwnChunk(t *testing.T) {
	small := strings.Repeat("s", 49) + "\n"
	big := strings.Repeat("B", 299) + "\n"
	content := []byte(small + big + small)
	input := writeInput(t, content)
	job := NewJob(input, 100)

	sum, err := New(WithLogger(discardLogger())).Run(job)
	require.NoError(t, err)

	assert.Equal(t, []int64{50, 300, 50}, sum.ChunkBytes,
		"the oversized line lands alone in its own over-budget chunk")
	chunks := readChunks(t, job)
	assert.Equal(t, content, bytes.Join(chunks, nil))
}

func TestSplitter_SingleOversizedLineWholeFile(t *testing.T) {
	content := []byte(strings.Repeat("z", 1000))
	input := writeInput(t, content)
	job := NewJob(input, 100)

	sum, err := New(WithLogger(discardLogger())).Run(job)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.ChunkCount)
	assert.Equal(t, []int64{1000}, sum.ChunkBytes)
	chunks := readChunks(t, job)
	assert.Equal(t, content, chunks[0])
}

func TestSplitter_ContiguousNamingAcrossManyChunks(t *testing.T) {
	content := makeLines(60, 10)
	input := writeInput(t, content)
	job := NewJob(input, 20)

	sum, err := New(WithLogger(discardLogger())).Run(job)
	require.NoError(t, err)
	assert.Equal(t, 30, sum.ChunkCount)

	chunks := readChunks(t, job)
	require.Len(t, chunks, 30)
	for _, chunk := range chunks {
		assert.Equal(t, 20, len(chunk))
	}
	assert.Equal(t, content, bytes.Join(chunks, nil))
}

func TestSplitter_BatchSizeDoesNotChangeOutput(t *testing.T) {
	content := makeLines(123, 37)

	var reference [][]byte
	for _, batchLines := range []int{1, 7, 100, 10000} {
		input := writeInput(t, content)
		job := NewJob(input, 300)

		_, err := New(
			WithBatchLineCount(batchLines),
			WithLogger(discardLogger()),
		).Run(job)
		require.NoError(t, err)

		chunks := readChunks(t, job)
		if reference == nil {
			reference = chunks
			continue
		}
		assert.Equal(t, reference, chunks, "batch size %d changed the output", batchLines)
	}
}

func TestSplitter_DeterministicAcrossRuns(t *testing.T) {
	// two byte-identical inputs with the same target must produce
	// byte-identical chunk sets.
	content := makeLines(137, 53)

	var reference [][]byte
	for i := 0; i < 2; i++ {
		input := writeInput(t, content)
		job := NewJob(input, 400)

		_, err := New(WithLogger(discardLogger())).Run(job)
		require.NoError(t, err)

		chunks := readChunks(t, job)
		if reference == nil {
			reference = chunks
			continue
		}
		assert.Equal(t, reference, chunks)
	}
}

func TestSplitter_MmapMatchesBufferedReads(t *testing.T) {
	content := makeLines(500, 61)

	bufInput := writeInput(t, content)
	bufJob := NewJob(bufInput, 1024)
	_, err := New(WithLogger(discardLogger())).Run(bufJob)
	require.NoError(t, err)

	mmapInput := writeInput(t, content)
	mmapJob := NewJob(mmapInput, 1024)
	_, err = New(WithMmapInput(true), WithLogger(discardLogger())).Run(mmapJob)
	require.NoError(t, err)

	assert.Equal(t, readChunks(t, bufJob), readChunks(t, mmapJob))
}

func TestSplitter_ReadBufferSizeDoesNotChangeOutput(t *testing.T) {
	content := makeLines(200, 45)

	var reference [][]byte
	for _, bufSize := range []int{1, 3, 64, 1 << 20} {
		input := writeInput(t, content)
		job := NewJob(input, 500)

		_, err := New(
			WithReadBufferSize(bufSize),
			WithLogger(discardLogger()),
		).Run(job)
		require.NoError(t, err)

		chunks := readChunks(t, job)
		if reference == nil {
			reference = chunks
			continue
		}
		assert.Equal(t, reference, chunks, "read buffer %d changed the output", bufSize)
	}
}

func TestSplitter_KeepSource(t *testing.T) {
	content := makeLines(10, 100)
	input := writeInput(t, content)
	job := NewJob(input, 250)

	sum, err := New(WithKeepSource(true), WithLogger(discardLogger())).Run(job)
	require.NoError(t, err)

	assert.False(t, sum.SourceDeleted)
	assert.NoError(t, sum.SourceDeleteErr)

	data, readErr := os.ReadFile(input)
	require.NoError(t, readErr)
	assert.Equal(t, content, data)
}

func TestSplitter_MissingInput(t *testing.T) {
	job := NewJob(filepath.Join(t.TempDir(), "absent.log"), 100)

	_, err := New(WithLogger(discardLogger())).Run(job)
	require.Error(t, err)

	var serr *SplitError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, PhaseRead, serr.Phase)
}

func TestSplitter_ObstructedOutputDir(t *testing.T) {
	content := makeLines(300, 10)
	input := writeInput(t, content)
	job := NewJob(input, 500)

	// a regular file where the output directory belongs makes MkdirAll fail.
	require.NoError(t, os.WriteFile(job.OutputDir, []byte("in the way"), 0644))

	_, err := New(WithLogger(discardLogger())).Run(job)
	require.Error(t, err)

	var serr *SplitError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, PhaseRotate, serr.Phase)

	// failure must not take the source with it.
	data, readErr := os.ReadFile(input)
	require.NoError(t, readErr)
	assert.Equal(t, content, data)
}

func TestSplitter_ProgressEvents(t *testing.T) {
	content := makeLines(10, 100)
	input := writeInput(t, content)
	job := NewJob(input, 250)

	sink := &recordingSink{}
	sum, err := New(WithProgressSink(sink), WithLogger(discardLogger())).Run(job)
	require.NoError(t, err)
	require.Equal(t, 5, sum.ChunkCount)

	events := sink.snapshot()
	require.Len(t, events, 5, "one event per sealed chunk")

	for i, ev := range events {
		assert.Equal(t, i+1, ev.CompletedChunks, "events must arrive in seal order")
		assert.GreaterOrEqual(t, ev.EstimatedTotal, ev.CompletedChunks,
			"the estimate may never trail the sealed count")
	}
	assert.Equal(t, 5, events[4].EstimatedTotal)
}

// stubSource feeds fixed byte chunks and then a terminal error, standing in
// for a real file on the failure paths.
type stubSource struct {
	chunks [][]byte
	err    error
	i      int
}

func (s *stubSource) Next() ([]byte, error) {
	if s.i < len(s.chunks) {
		p := s.chunks[s.i]
		s.i++
		return p, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	return nil, io.EOF
}

func (s *stubSource) Size() int64 {
	var n int64
	for _, p := range s.chunks {
		n += int64(len(p))
	}
	return n
}

func (s *stubSource) Close() error { return nil }

func newTestRun(sp *Splitter, job *Job) *run {
	return &run{
		sp:       sp,
		job:      job,
		batch:    newLineBatch(sp.batchLines),
		seq:      NewChunkSequencer(job.OutputDir, job.BaseName),
		notif:    startNotifier(sp.sink),
		log:      sp.log,
		target:   job.TargetChunkBytes,
		estTotal: 8,
	}
}

func TestRun_ReadFailureKeepsPartialChunksByDefault(t *testing.T) {
	job := NewJob(filepath.Join(t.TempDir(), "app.log"), 50)
	sp := New(WithLogger(discardLogger()))
	r := newTestRun(sp, job)
	defer r.notif.stop()

	src := &stubSource{
		chunks: [][]byte{[]byte(strings.Repeat("aaaaaaaaa\n", 12))},
		err:    errors.New("injected read failure"),
	}

	serr := r.stream(src)
	require.NotNil(t, serr)
	err := r.fail(src, serr)

	var sErr *SplitError
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, PhaseRead, sErr.Phase)

	entries, readErr := os.ReadDir(job.OutputDir)
	require.NoError(t, readErr)
	assert.NotEmpty(t, entries, "partial chunks stay on disk for inspection")
}

func TestRun_ReadFailureCleansUpWhenConfigured(t *testing.T) {
	job := NewJob(filepath.Join(t.TempDir(), "app.log"), 50)
	sp := New(WithFailureCleanup(true), WithLogger(discardLogger()))
	r := newTestRun(sp, job)
	defer r.notif.stop()

	src := &stubSource{
		chunks: [][]byte{[]byte(strings.Repeat("aaaaaaaaa\n", 12))},
		err:    errors.New("injected read failure"),
	}

	serr := r.stream(src)
	require.NotNil(t, serr)
	_ = r.fail(src, serr)

	_, statErr := os.Stat(job.OutputDir)
	assert.True(t, os.IsNotExist(statErr), "cleanup must remove chunks and the directory")
}

func TestRun_SourceDeleteFailureStillCompletes(t *testing.T) {
	// the input path never exists, so the finalizing deletion must fail,
	// and the job must complete anyway.
	job := NewJob(filepath.Join(t.TempDir(), "ghost.log"), 50)
	sp := New(WithLogger(discardLogger()))
	r := newTestRun(sp, job)
	defer r.notif.stop()

	src := &stubSource{chunks: [][]byte{[]byte("aaaa\nbbbb\n")}}
	require.Nil(t, r.stream(src))

	sum, err := r.finalize(src, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.ChunkCount)
	assert.False(t, sum.SourceDeleted)
	assert.Error(t, sum.SourceDeleteErr)
	assert.Equal(t, stateCompleted, r.state)
}
