package executor

import (
	"context"

	"github.com/caffeineduck/dotstar/engine"
	"github.com/caffeineduck/dotstar/filesystem"
	"github.com/caffeineduck/dotstar/future"
	"github.com/caffeineduck/dotstar/mode"
)

// FileCompiler compiles guest files. Reads go through the path mapper while
// the unit keeps the path it was asked for.
type FileCompiler struct {
	fs       *filesystem.FileSystem
	paths    *PathMapper
	compiler UnitCompiler
}

func NewFileCompiler(fs *filesystem.FileSystem, paths *PathMapper, compiler UnitCompiler) *FileCompiler {
	return &FileCompiler{fs: fs, paths: paths, compiler: compiler}
}

func (fc *FileCompiler) Compile(path string, m mode.Mode) (engine.ModuleFactory, error) {
	code, err := fc.fs.ReadFile(fc.paths.Map(path))
	if err != nil {
		return nil, err
	}
	return fc.compiler.Compile(code, path, m)
}

// Requirer compiles and runs guest files.
type Requirer struct {
	files *FileCompiler
}

func NewRequirer(files *FileCompiler) *Requirer {
	return &Requirer{files: files}
}

// Require runs the file at path in mode m. Compile failures reject the
// returned future.
func (r *Requirer) Require(ctx context.Context, path string, m mode.Mode) *future.Future[engine.Result] {
	factory, err := r.files.Compile(path, m)
	if err != nil {
		return future.Rejected[engine.Result](err)
	}
	return factory().Execute(ctx)
}

// RequireSync runs the file at path in sync mode.
func (r *Requirer) RequireSync(ctx context.Context, path string) (engine.Result, error) {
	factory, err := r.files.Compile(path, mode.Sync)
	if err != nil {
		return engine.Result{}, err
	}
	return factory().Run(ctx)
}
