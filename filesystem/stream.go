package filesystem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/caffeineduck/dotstar/future"
)

// ErrStreamClosed is returned by operations on a closed Stream.
var ErrStreamClosed = errors.New("stream is closed")

// StreamFactory creates Streams sharing one write limit.
type StreamFactory struct {
	maxWriteSize int64
}

// NewStreamFactory returns a factory whose streams reject writes larger than maxWriteSize.
func NewStreamFactory(maxWriteSize int64) *StreamFactory {
	return &StreamFactory{maxWriteSize: maxWriteSize}
}

// Create wraps an open file. position is the offset the next write lands at;
// appending streams always write at the end of the file.
func (sf *StreamFactory) Create(path string, file *os.File, position int64, appending bool) *Stream {
	return &Stream{
		path:         path,
		file:         file,
		position:     position,
		appending:    appending,
		maxWriteSize: sf.maxWriteSize,
	}
}

// Stream is a positioned write handle on a host file.
type Stream struct {
	mu           sync.Mutex
	path         string
	file         *os.File
	position     int64
	appending    bool
	maxWriteSize int64
	closed       bool
}

// Path returns the absolute path the stream writes to.
func (s *Stream) Path() string {
	return s.path
}

// Position returns the offset of the next write.
func (s *Stream) Position() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// WriteSync writes data at the current position and advances it.
func (s *Stream) WriteSync(data []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStreamClosed
	}
	if s.maxWriteSize > 0 && int64(len(data)) > s.maxWriteSize {
		return 0, fmt.Errorf("write exceeds max size of %d bytes", s.maxWriteSize)
	}

	var n int
	var err error
	if s.appending {
		n, err = s.file.Write(data)
	} else {
		n, err = s.file.WriteAt(data, s.position)
	}
	s.position += int64(n)
	return n, err
}

// Write is the future-returning form of WriteSync.
func (s *Stream) Write(ctx context.Context, data []byte) *future.Future[int] {
	return future.Go(func() (int, error) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return s.WriteSync(data)
	})
}

// CloseSync closes the underlying file. Closing twice returns ErrStreamClosed.
func (s *Stream) CloseSync() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStreamClosed
	}
	s.closed = true
	return s.file.Close()
}

// Close is the future-returning form of CloseSync.
func (s *Stream) Close(ctx context.Context) *future.Future[struct{}] {
	return future.Go(func() (struct{}, error) {
		return struct{}{}, s.CloseSync()
	})
}
