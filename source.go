package logsplit

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
)

// defaultReadBufferSize is the read granularity of a source. It bounds how
// much input sits in memory at once, independent of source file size.
const defaultReadBufferSize = 256 * 1024

var ErrSourceClosed = errors.New("byte source is closed")

// ByteSource is a forward-only stream of byte chunks over an input file.
// Next returns io.EOF after the final chunk; the returned slice is only valid
// until the following Next call. Implementations are not safe for concurrent
// use and must tolerate Close being called more than once.
type ByteSource interface {
	Next() ([]byte, error)
	Size() int64
	Close() error
}

// FileSource streams a file through a fixed-size buffer using plain reads.
type FileSource struct {
	fd     *os.File
	buf    []byte
	size   int64
	closed bool
}

// OpenFileSource opens path for forward-only buffered reading. bufSize <= 0
// selects the default buffer size.
func OpenFileSource(path string, bufSize int) (*FileSource, error) {
	if bufSize <= 0 {
		bufSize = defaultReadBufferSize
	}
	fd, info, err := openRegular(path)
	if err != nil {
		return nil, err
	}
	return &FileSource{fd: fd, buf: make([]byte, bufSize), size: info.Size()}, nil
}

// Next returns the next chunk of the file, or io.EOF once exhausted.
func (s *FileSource) Next() ([]byte, error) {
	if s.closed {
		return nil, ErrSourceClosed
	}
	for {
		n, err := s.fd.Read(s.buf)
		if n > 0 {
			return s.buf[:n], nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// Size returns the file size observed at open time.
func (s *FileSource) Size() int64 {
	return s.size
}

func (s *FileSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.fd.Close()
}

// MmapSource maps the whole file read-only and serves fixed windows of the
// mapping. Next is copy-free; the caller must not retain returned slices
// beyond the next call, and never past Close.
type MmapSource struct {
	fd     *os.File
	data   mmap.MMap
	size   int64
	window int64
	offset int64
	closed bool
}

// OpenMmapSource maps path for forward-only windowed reading. window <= 0
// selects the default window size.
func OpenMmapSource(path string, window int) (*MmapSource, error) {
	if window <= 0 {
		window = defaultReadBufferSize
	}
	fd, info, err := openRegular(path)
	if err != nil {
		return nil, err
	}

	s := &MmapSource{fd: fd, size: info.Size(), window: int64(window)}
	if s.size == 0 {
		// mmap of an empty file fails with EINVAL; zero bytes need no mapping.
		return s, nil
	}

	data, err := mmap.Map(fd, mmap.RDONLY, 0)
	if err != nil {
		_ = fd.Close()
		return nil, fmt.Errorf("mmap error: %w", err)
	}
	s.data = data
	return s, nil
}

// Next returns the next window of the mapping, or io.EOF once exhausted.
func (s *MmapSource) Next() ([]byte, error) {
	if s.closed {
		return nil, ErrSourceClosed
	}
	if s.offset >= s.size {
		return nil, io.EOF
	}
	end := min(s.offset+s.window, s.size)
	p := s.data[s.offset:end]
	s.offset = end
	return p, nil
}

// Size returns the mapped file size.
func (s *MmapSource) Size() int64 {
	return s.size
}

func (s *MmapSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var unmapErr error
	if s.data != nil {
		unmapErr = s.data.Unmap()
		s.data = nil
	}
	return errors.Join(unmapErr, s.fd.Close())
}

func openRegular(path string) (*os.File, os.FileInfo, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	info, err := fd.Stat()
	if err != nil {
		_ = fd.Close()
		return nil, nil, fmt.Errorf("stat error: %w", err)
	}
	if !info.Mode().IsRegular() {
		_ = fd.Close()
		return nil, nil, fmt.Errorf("%s: not a regular file", path)
	}
	return fd, info, nil
}
