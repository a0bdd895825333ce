package engine

import (
	"fmt"

	"github.com/caffeineduck/dotstar/filesystem"
	"go.starlark.net/starlark"
)

// FileSystemAddon exposes the environment's filesystem to guest code.
func FileSystemAddon() Addon {
	return NewAddon("fs", func(env *Environment) (starlark.StringDict, error) {
		fs := env.FileSystem()
		return starlark.StringDict{
			"file_exists": starlark.NewBuiltin("file_exists", pathPredicate(func(p string) bool {
				_, err := fs.Stat(p)
				return err == nil
			})),
			"is_file":           starlark.NewBuiltin("is_file", pathPredicate(fs.IsFile)),
			"is_dir":            starlark.NewBuiltin("is_dir", pathPredicate(fs.IsDirectory)),
			"realpath":          starlark.NewBuiltin("realpath", realpath(fs)),
			"filesize":          starlark.NewBuiltin("filesize", filesize(fs)),
			"file_get_contents": starlark.NewBuiltin("file_get_contents", fileGetContents(fs)),
			"file_put_contents": starlark.NewBuiltin("file_put_contents", filePutContents(fs)),
			"scandir":           starlark.NewBuiltin("scandir", scandir(fs)),
			"unlink":            starlark.NewBuiltin("unlink", unlink(fs)),
			"fopen":             starlark.NewBuiltin("fopen", fopen(fs)),
		}, nil
	})
}

func pathPredicate(fn func(string) bool) builtinFunc {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var path string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &path); err != nil {
			return nil, err
		}
		return starlark.Bool(fn(path)), nil
	}
}

// realpath returns False for paths that cannot be resolved.
func realpath(fs *filesystem.FileSystem) builtinFunc {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var path string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &path); err != nil {
			return nil, err
		}
		real, err := fs.RealPath(path)
		if err != nil {
			return starlark.False, nil
		}
		return starlark.String(real), nil
	}
}

func filesize(fs *filesystem.FileSystem) builtinFunc {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var path string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &path); err != nil {
			return nil, err
		}
		info, err := fs.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		return starlark.MakeInt64(info.Size()), nil
	}
}

func fileGetContents(fs *filesystem.FileSystem) builtinFunc {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var path string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &path); err != nil {
			return nil, err
		}
		data, err := fs.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		return starlark.String(data), nil
	}
}

func filePutContents(fs *filesystem.FileSystem) builtinFunc {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var path string
		var data starlark.Value
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &path, &data); err != nil {
			return nil, err
		}
		content := display(data)
		if err := fs.WriteFile(path, []byte(content)); err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		return starlark.MakeInt(len(content)), nil
	}
}

func scandir(fs *filesystem.FileSystem) builtinFunc {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var path string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &path); err != nil {
			return nil, err
		}
		entries, err := fs.List(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		names := make([]starlark.Value, len(entries))
		for i, entry := range entries {
			names[i] = starlark.String(entry.Name)
		}
		return starlark.NewList(names), nil
	}
}

func unlink(fs *filesystem.FileSystem) builtinFunc {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var path string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &path); err != nil {
			return nil, err
		}
		if err := fs.UnlinkSync(path); err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		return starlark.True, nil
	}
}

func fopen(fs *filesystem.FileSystem) builtinFunc {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var path string
		flag := "w"
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "path", &path, "mode?", &flag); err != nil {
			return nil, err
		}
		stream, err := fs.OpenSync(path, flag)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		return &streamValue{stream: stream}, nil
	}
}

// streamValue is the guest view of a filesystem.Stream.
type streamValue struct {
	stream *filesystem.Stream
}

var (
	_ starlark.Value    = (*streamValue)(nil)
	_ starlark.HasAttrs = (*streamValue)(nil)
)

func (s *streamValue) String() string        { return fmt.Sprintf("<stream %s>", s.stream.Path()) }
func (s *streamValue) Type() string          { return "stream" }
func (s *streamValue) Freeze()               {}
func (s *streamValue) Truth() starlark.Bool  { return starlark.True }
func (s *streamValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: stream") }

func (s *streamValue) AttrNames() []string {
	return []string{"close", "path", "position", "write"}
}

func (s *streamValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case "path":
		return starlark.String(s.stream.Path()), nil
	case "position":
		return starlark.MakeInt64(s.stream.Position()), nil
	case "write":
		return starlark.NewBuiltin("write", s.write).BindReceiver(s), nil
	case "close":
		return starlark.NewBuiltin("close", s.close).BindReceiver(s), nil
	}
	return nil, nil
}

func (s *streamValue) write(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var data starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &data); err != nil {
		return nil, err
	}
	n, err := s.stream.WriteSync([]byte(display(data)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return starlark.MakeInt(n), nil
}

func (s *streamValue) close(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	if err := s.stream.CloseSync(); err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return starlark.None, nil
}
