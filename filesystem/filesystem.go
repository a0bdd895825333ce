// Package filesystem gives the orchestration layer and guest programs access
// to host files: path canonicalization, type checks, reads, unlinks and
// write streams with both synchronous and future-returning forms.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/caffeineduck/dotstar/future"
)

const (
	DefaultMaxFileSize   = 10 << 20 // 10MB
	DefaultMaxWriteSize  = 10 << 20 // 10MB
	DefaultMaxPathLength = 4096
)

// ErrReadOnly is returned by mutating operations on a read-only FileSystem.
var ErrReadOnly = errors.New("permission denied: read-only filesystem")

// Option configures a FileSystem.
type Option func(*FileSystem)

// WithMaxFileSize sets the maximum file size for read operations.
func WithMaxFileSize(size int64) Option {
	return func(f *FileSystem) {
		f.maxFileSize = size
	}
}

// WithMaxWriteSize sets the maximum number of bytes a single write may carry.
func WithMaxWriteSize(size int64) Option {
	return func(f *FileSystem) {
		f.maxWriteSize = size
	}
}

// WithMaxPathLength sets the maximum path length accepted by any operation.
func WithMaxPathLength(length int) Option {
	return func(f *FileSystem) {
		f.maxPathLength = length
	}
}

// WithReadOnly rejects writes, opens for writing and unlinks.
func WithReadOnly() Option {
	return func(f *FileSystem) {
		f.readOnly = true
	}
}

// WithWorkDir resolves relative paths against dir instead of the process
// working directory.
func WithWorkDir(dir string) Option {
	return func(f *FileSystem) {
		f.workDir = dir
	}
}

// FileSystem resolves and accesses host paths.
type FileSystem struct {
	workDir       string
	readOnly      bool
	maxFileSize   int64
	maxWriteSize  int64
	maxPathLength int
	streams       *StreamFactory
}

// New creates a FileSystem.
func New(opts ...Option) *FileSystem {
	f := &FileSystem{
		maxFileSize:   DefaultMaxFileSize,
		maxWriteSize:  DefaultMaxWriteSize,
		maxPathLength: DefaultMaxPathLength,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.streams = NewStreamFactory(f.maxWriteSize)
	return f
}

// ReadOnly reports whether mutating operations are rejected.
func (f *FileSystem) ReadOnly() bool {
	return f.readOnly
}

func (f *FileSystem) abs(path string) (string, error) {
	if path == "" {
		return "", &fs.PathError{Op: "stat", Path: path, Err: fs.ErrNotExist}
	}
	if len(path) > f.maxPathLength {
		return "", fmt.Errorf("path exceeds max length of %d", f.maxPathLength)
	}
	if !filepath.IsAbs(path) && f.workDir != "" {
		path = filepath.Join(f.workDir, path)
	}
	return filepath.Abs(path)
}

// RealPath returns the canonical absolute path with symlinks resolved.
// A missing path yields an error satisfying errors.Is(err, fs.ErrNotExist).
func (f *FileSystem) RealPath(path string) (string, error) {
	abs, err := f.abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// IsFile reports whether path names an existing regular file.
func (f *FileSystem) IsFile(path string) bool {
	info, err := f.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// IsDirectory reports whether path names an existing directory.
func (f *FileSystem) IsDirectory(path string) bool {
	info, err := f.Stat(path)
	return err == nil && info.IsDir()
}

// Stat returns file information for path.
func (f *FileSystem) Stat(path string) (fs.FileInfo, error) {
	abs, err := f.abs(path)
	if err != nil {
		return nil, err
	}
	return os.Stat(abs)
}

// ReadFile returns the contents of path.
func (f *FileSystem) ReadFile(path string) ([]byte, error) {
	abs, err := f.abs(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, &fs.PathError{Op: "read", Path: path, Err: errors.New("is a directory")}
	}
	if info.Size() > f.maxFileSize {
		return nil, fmt.Errorf("file exceeds max size of %d bytes", f.maxFileSize)
	}
	return os.ReadFile(abs)
}

// WriteFile replaces the contents of path, creating it when needed.
func (f *FileSystem) WriteFile(path string, data []byte) error {
	if f.readOnly {
		return ErrReadOnly
	}
	if int64(len(data)) > f.maxWriteSize {
		return fmt.Errorf("content exceeds max size of %d bytes", f.maxWriteSize)
	}
	abs, err := f.abs(path)
	if err != nil {
		return err
	}
	return os.WriteFile(abs, data, 0644)
}

// Entry describes one directory entry.
type Entry struct {
	Name  string
	IsDir bool
	Size  int64
}

// List returns the entries of a directory sorted by name.
func (f *FileSystem) List(path string) ([]Entry, error) {
	abs, err := f.abs(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, err
	}

	result := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		item := Entry{Name: entry.Name(), IsDir: entry.IsDir()}
		if info, err := entry.Info(); err == nil {
			item.Size = info.Size()
		}
		result = append(result, item)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// OpenSync opens path for writing according to flag ("w" truncates, "a"
// appends, "x" requires the file to be new) and returns a Stream.
func (f *FileSystem) OpenSync(path, flag string) (*Stream, error) {
	if f.readOnly {
		return nil, ErrReadOnly
	}
	abs, err := f.abs(path)
	if err != nil {
		return nil, err
	}

	var osFlag int
	switch flag {
	case "", "w":
		osFlag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case "a":
		osFlag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	case "x":
		osFlag = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	default:
		return nil, fmt.Errorf("unsupported open flag %q", flag)
	}

	file, err := os.OpenFile(abs, osFlag, 0644)
	if err != nil {
		return nil, err
	}

	var position int64
	if flag == "a" {
		if info, err := file.Stat(); err == nil {
			position = info.Size()
		}
	}
	return f.streams.Create(abs, file, position, flag == "a"), nil
}

// Open is the future-returning form of OpenSync.
func (f *FileSystem) Open(ctx context.Context, path, flag string) *future.Future[*Stream] {
	return future.Go(func() (*Stream, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return f.OpenSync(path, flag)
	})
}

// UnlinkSync removes a file.
func (f *FileSystem) UnlinkSync(path string) error {
	if f.readOnly {
		return ErrReadOnly
	}
	abs, err := f.abs(path)
	if err != nil {
		return err
	}
	return os.Remove(abs)
}

// Unlink is the future-returning form of UnlinkSync.
func (f *FileSystem) Unlink(ctx context.Context, path string) *future.Future[struct{}] {
	return future.Go(func() (struct{}, error) {
		if err := ctx.Err(); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, f.UnlinkSync(path)
	})
}
