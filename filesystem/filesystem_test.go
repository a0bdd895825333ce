package filesystem

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestRealPath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "main.star")
	os.WriteFile(file, []byte("x = 1"), 0644)

	f := New(WithWorkDir(dir))

	got, err := f.RealPath("main.star")
	if err != nil {
		t.Fatalf("RealPath failed: %v", err)
	}
	want, _ := filepath.EvalSymlinks(file)
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestRealPathResolvesSymlinks(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target.star")
	link := filepath.Join(dir, "link.star")
	os.WriteFile(target, []byte(""), 0644)
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	got, err := New().RealPath(link)
	if err != nil {
		t.Fatalf("RealPath failed: %v", err)
	}
	want, _ := filepath.EvalSymlinks(target)
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestRealPathMissing(t *testing.T) {
	f := New(WithWorkDir(t.TempDir()))

	_, err := f.RealPath("missing.star")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}

	_, err = f.RealPath("")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected not-exist error for empty path, got %v", err)
	}
}

func TestIsFileIsDirectory(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0644)
	os.Mkdir(filepath.Join(dir, "sub"), 0755)

	f := New(WithWorkDir(dir))

	if !f.IsFile("a.txt") || f.IsDirectory("a.txt") {
		t.Error("a.txt should be a file")
	}
	if f.IsFile("sub") || !f.IsDirectory("sub") {
		t.Error("sub should be a directory")
	}
	if f.IsFile("nope") || f.IsDirectory("nope") {
		t.Error("missing path should be neither")
	}
}

func TestReadFileLimits(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "big.txt"), make([]byte, 100), 0644)

	f := New(WithWorkDir(dir), WithMaxFileSize(10))
	if _, err := f.ReadFile("big.txt"); err == nil {
		t.Error("expected size limit error")
	}

	f = New(WithWorkDir(dir), WithMaxPathLength(5))
	if _, err := f.ReadFile("big.txt"); err == nil {
		t.Error("expected path length error")
	}
}

func TestReadFileDirectory(t *testing.T) {
	f := New()
	if _, err := f.ReadFile(t.TempDir()); err == nil {
		t.Error("expected error reading a directory")
	}
}

func TestWriteAndList(t *testing.T) {
	dir := t.TempDir()
	f := New(WithWorkDir(dir))

	if err := f.WriteFile("b.txt", []byte("bb")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := f.WriteFile("a.txt", []byte("a")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	entries, err := f.List(".")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 2 || entries[0].Name != "a.txt" || entries[1].Size != 2 {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestStreamWritesAdvancePosition(t *testing.T) {
	dir := t.TempDir()
	f := New(WithWorkDir(dir))

	stream, err := f.OpenSync("out.txt", "w")
	if err != nil {
		t.Fatalf("OpenSync failed: %v", err)
	}

	stream.WriteSync([]byte("hello "))
	n, err := stream.Write(context.Background(), []byte("world")).Await(context.Background())
	if err != nil || n != 5 {
		t.Fatalf("Write: n=%d err=%v", n, err)
	}
	if stream.Position() != 11 {
		t.Errorf("expected position 11, got %d", stream.Position())
	}
	if err := stream.CloseSync(); err != nil {
		t.Fatalf("CloseSync failed: %v", err)
	}

	data, _ := os.ReadFile(filepath.Join(dir, "out.txt"))
	if string(data) != "hello world" {
		t.Errorf("expected 'hello world', got %q", data)
	}
}

func TestStreamAppend(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "log.txt"), []byte("one\n"), 0644)
	f := New(WithWorkDir(dir))

	stream, err := f.OpenSync("log.txt", "a")
	if err != nil {
		t.Fatalf("OpenSync failed: %v", err)
	}
	if stream.Position() != 4 {
		t.Errorf("expected position 4, got %d", stream.Position())
	}
	stream.WriteSync([]byte("two\n"))
	stream.CloseSync()

	data, _ := os.ReadFile(filepath.Join(dir, "log.txt"))
	if string(data) != "one\ntwo\n" {
		t.Errorf("unexpected content %q", data)
	}
}

func TestStreamClosed(t *testing.T) {
	f := New(WithWorkDir(t.TempDir()))
	stream, _ := f.OpenSync("x.txt", "w")

	if _, err := stream.Close(context.Background()).Await(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := stream.WriteSync([]byte("late")); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("expected ErrStreamClosed, got %v", err)
	}
	if err := stream.CloseSync(); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("expected ErrStreamClosed on second close, got %v", err)
	}
}

func TestStreamWriteLimit(t *testing.T) {
	f := New(WithWorkDir(t.TempDir()), WithMaxWriteSize(3))
	stream, _ := f.OpenSync("x.txt", "w")
	defer stream.CloseSync()

	if _, err := stream.WriteSync([]byte("toolong")); err == nil {
		t.Error("expected write size error")
	}
}

func TestOpenExclusive(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "exists.txt"), nil, 0644)
	f := New(WithWorkDir(dir))

	if _, err := f.Open(context.Background(), "exists.txt", "x").Await(context.Background()); !errors.Is(err, fs.ErrExist) {
		t.Errorf("expected exist error, got %v", err)
	}
	if _, err := f.OpenSync("exists.txt", "rw+"); err == nil {
		t.Error("expected unsupported flag error")
	}
}

func TestUnlink(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "gone.txt"), nil, 0644)
	f := New(WithWorkDir(dir))

	if _, err := f.Unlink(context.Background(), "gone.txt").Await(context.Background()); err != nil {
		t.Fatalf("Unlink failed: %v", err)
	}
	if f.IsFile("gone.txt") {
		t.Error("file should be removed")
	}
	if err := f.UnlinkSync("gone.txt"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestReadOnly(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "keep.txt"), []byte("keep"), 0644)
	f := New(WithWorkDir(dir), WithReadOnly())

	if err := f.WriteFile("keep.txt", []byte("x")); !errors.Is(err, ErrReadOnly) {
		t.Errorf("expected ErrReadOnly, got %v", err)
	}
	if _, err := f.OpenSync("new.txt", "w"); !errors.Is(err, ErrReadOnly) {
		t.Errorf("expected ErrReadOnly, got %v", err)
	}
	if err := f.UnlinkSync("keep.txt"); !errors.Is(err, ErrReadOnly) {
		t.Errorf("expected ErrReadOnly, got %v", err)
	}
	if data, err := f.ReadFile("keep.txt"); err != nil || string(data) != "keep" {
		t.Errorf("reads should still work: %q, %v", data, err)
	}
}
