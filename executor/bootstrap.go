package executor

import (
	"context"
	"sync"

	"github.com/caffeineduck/dotstar/engine"
	"github.com/caffeineduck/dotstar/future"
	"github.com/caffeineduck/dotstar/mode"
	"github.com/caffeineduck/dotstar/telemetry"
	"github.com/rs/zerolog"
)

type requirer interface {
	Require(ctx context.Context, path string, m mode.Mode) *future.Future[engine.Result]
	RequireSync(ctx context.Context, path string) (engine.Result, error)
}

// Bootstrapper runs the configured bootstrap files in order, once per
// executor. A bootstrap that exits stops the sequence.
type Bootstrapper struct {
	requirer requirer
	paths    []string
	mode     mode.Mode
	logger   zerolog.Logger
	metrics  *telemetry.Metrics

	mu   sync.Mutex
	done bool
}

// NewBootstrapper creates a bootstrapper whose asynchronous runs use m.
func NewBootstrapper(r requirer, paths []string, m mode.Mode, logger zerolog.Logger, metrics *telemetry.Metrics) *Bootstrapper {
	return &Bootstrapper{
		requirer: r,
		paths:    append([]string(nil), paths...),
		mode:     m,
		logger:   telemetry.Component(logger, "bootstrap"),
		metrics:  metrics,
	}
}

// claim reports whether this call is the one that runs the bootstraps.
func (b *Bootstrapper) claim() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return false
	}
	b.done = true
	return true
}

// BootstrapSync runs every bootstrap in sync mode and returns the first
// exit result, or a null result.
func (b *Bootstrapper) BootstrapSync(ctx context.Context) (engine.Result, error) {
	if !b.claim() {
		return engine.Null(), nil
	}
	for _, path := range b.paths {
		b.logger.Debug().Str("path", path).Msg("bootstrapping")
		res, err := b.requirer.RequireSync(ctx, path)
		b.metrics.BootstrapDone(status(res, err))
		if err != nil {
			return engine.Result{}, err
		}
		if res.IsExit() {
			b.logger.Debug().Str("path", path).Int("status", res.Status()).Msg("bootstrap exited")
			return res, nil
		}
	}
	return engine.Null(), nil
}

// Bootstrap runs the bootstraps as a future chain. Each bootstrap starts
// only after the previous one settled; a rejection rejects the chain.
func (b *Bootstrapper) Bootstrap(ctx context.Context) *future.Future[engine.Result] {
	if !b.claim() {
		return future.Resolved(engine.Null())
	}
	return b.chain(ctx, b.paths)
}

func (b *Bootstrapper) chain(ctx context.Context, paths []string) *future.Future[engine.Result] {
	if len(paths) == 0 {
		return future.Resolved(engine.Null())
	}

	path := paths[0]
	b.logger.Debug().Str("path", path).Msg("bootstrapping")
	f := b.requirer.Require(ctx, path, b.mode)

	return future.Then(b.observe(f), func(res engine.Result) *future.Future[engine.Result] {
		if res.IsExit() {
			b.logger.Debug().Str("path", path).Int("status", res.Status()).Msg("bootstrap exited")
			return future.Resolved(res)
		}
		return b.chain(ctx, paths[1:])
	})
}

// observe counts f once it settles.
func (b *Bootstrapper) observe(f *future.Future[engine.Result]) *future.Future[engine.Result] {
	return future.Go(func() (engine.Result, error) {
		res, err := f.Await(context.Background())
		b.metrics.BootstrapDone(status(res, err))
		return res, err
	})
}

func status(res engine.Result, err error) string {
	switch {
	case err != nil:
		return telemetry.StatusError
	case res.IsExit():
		return telemetry.StatusExit
	default:
		return telemetry.StatusOK
	}
}
