package logsplit

// defaultBatchLineCount is how many lines accumulate before one write call
// is issued. Batching amortizes syscall cost on inputs with short lines.
const defaultBatchLineCount = 100

// lineBatch accumulates whole lines into one contiguous buffer so they can be
// handed to the file as a single write. Lines are copied in on append, so the
// caller may reuse its slice immediately.
type lineBatch struct {
	buf   []byte
	lines int
	limit int
}

func newLineBatch(limit int) *lineBatch {
	if limit <= 0 {
		limit = defaultBatchLineCount
	}
	return &lineBatch{limit: limit}
}

// append copies line into the pending buffer.
func (b *lineBatch) append(line []byte) {
	b.buf = append(b.buf, line...)
	b.lines++
}

// full reports whether the batch reached its line-count threshold.
func (b *lineBatch) full() bool {
	return b.lines >= b.limit
}

// size returns the pending byte count.
func (b *lineBatch) size() int64 {
	return int64(len(b.buf))
}

// take returns the pending bytes and resets the batch for reuse. The returned
// slice shares the batch's backing array and is only valid until the next
// append, so it must be written out before the batch is touched again.
func (b *lineBatch) take() []byte {
	data := b.buf
	b.buf = b.buf[:0]
	b.lines = 0
	return data
}
