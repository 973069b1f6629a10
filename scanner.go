package logsplit

import (
	"bytes"
	"iter"
)

// LineScanner reassembles newline-terminated lines from a stream of byte
// chunks whose boundaries fall anywhere, including mid-line. Bytes are
// treated as opaque: any encoding passes through untouched as long as '\n'
// marks line ends.
//
// The zero value is ready to use. LineScanner is not safe for concurrent use.
type LineScanner struct {
	buf []byte
	// read cursor into buf; everything before it has been yielded already.
	off int
}

// Feed appends p to the carry-over buffer and returns an iterator over every
// complete line now available, in input order. Each yielded line includes its
// trailing '\n'.
//
// Yielded slices alias the scanner's internal buffer and are only valid until
// the next Feed or Flush call. Callers that retain a line must copy it.
func (s *LineScanner) Feed(p []byte) iter.Seq[[]byte] {
	s.compact()
	s.buf = append(s.buf, p...)
	return func(yield func([]byte) bool) {
		for {
			i := bytes.IndexByte(s.buf[s.off:], '\n')
			if i < 0 {
				return
			}
			line := s.buf[s.off : s.off+i+1]
			s.off += i + 1
			if !yield(line) {
				return
			}
		}
	}
}

// Flush returns the trailing bytes that never saw a final '\n', or nil when
// nothing is pending. Call it once after the last Feed so a source without a
// trailing newline still surfaces its final line.
func (s *LineScanner) Flush() []byte {
	s.compact()
	if len(s.buf) == 0 {
		return nil
	}
	line := s.buf
	s.buf = nil
	return line
}

// Buffered returns how many carried-over bytes are waiting for a newline.
func (s *LineScanner) Buffered() int {
	return len(s.buf) - s.off
}

// compact drops already-yielded bytes so the buffer only ever holds the
// current partial line plus whatever the last Feed appended.
func (s *LineScanner) compact() {
	if s.off == 0 {
		return
	}
	n := copy(s.buf, s.buf[s.off:])
	s.buf = s.buf[:n]
	s.off = 0
}
