package executor

import (
	"context"
	"fmt"

	"github.com/caffeineduck/dotstar/engine"
	"github.com/caffeineduck/dotstar/future"
	"github.com/caffeineduck/dotstar/mode"
	"github.com/caffeineduck/dotstar/telemetry"
	"github.com/rs/zerolog"
)

// RequireExtension installs the loader that compiles guest files into host
// modules, after the bootstraps have run.
type RequireExtension struct {
	files        *FileCompiler
	bootstrapper *Bootstrapper
	loaders      *LoaderRegistry
	extension    string
	mode         mode.Mode
	logger       zerolog.Logger
}

func NewRequireExtension(files *FileCompiler, b *Bootstrapper, loaders *LoaderRegistry, extension string, m mode.Mode, logger zerolog.Logger) *RequireExtension {
	return &RequireExtension{
		files:        files,
		bootstrapper: b,
		loaders:      loaders,
		extension:    extension,
		mode:         m,
		logger:       telemetry.Component(logger, "extension"),
	}
}

// Install runs the bootstraps and then registers the loader. In sync mode
// everything happens before Install returns and the future is nil. In the
// other modes the returned future settles with the bootstrap result; the
// loader is registered only if it resolves.
func (x *RequireExtension) Install(ctx context.Context) (*future.Future[engine.Result], error) {
	switch x.mode {
	case mode.Sync:
		if _, err := x.bootstrapper.BootstrapSync(ctx); err != nil {
			return nil, err
		}
		x.register()
		return nil, nil
	case mode.Async, mode.PromiseSync:
		return future.Then(x.bootstrapper.Bootstrap(ctx), func(res engine.Result) *future.Future[engine.Result] {
			x.register()
			return future.Resolved(res)
		}), nil
	default:
		return nil, fmt.Errorf("invalid mode %v", x.mode)
	}
}

func (x *RequireExtension) register() {
	m := x.mode
	x.loaders.RegisterLoader(x.extension, func(mod *Module, path string) error {
		factory, err := x.files.Compile(path, m)
		if err != nil {
			return err
		}
		mod.Exports = factory
		return nil
	})
	x.logger.Debug().Str("extension", x.extension).Str("mode", m.String()).Msg("loader registered")
}
