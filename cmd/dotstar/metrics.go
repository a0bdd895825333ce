package main

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/caffeineduck/dotstar/telemetry"
	"github.com/rs/zerolog"
)

// serveMetrics exposes m on /metrics at addr until the server is closed.
func serveMetrics(addr string, m *telemetry.Metrics, logger zerolog.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	logger.Info().Str("addr", ln.Addr().String()).Msg("serving metrics")
	return srv, nil
}
