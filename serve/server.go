// Package serve hosts the diagnostics endpoints of a running capture.
package serve

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"rawcap/video"
)

type Options struct {
	// Gatherer backs /metrics. Nil leaves the endpoint out.
	Gatherer prometheus.Gatherer
	Stats    *StatsServer
	// Updater backs /statsws. Nil leaves the endpoint out.
	Updater *StatsUpdater
	// Captures enables /captures, /capture and /delete for an output
	// directory.
	Captures *video.Filesystem
	// Runs enables /runs and /run from the run catalog.
	Runs RunCatalog

	// AccessLog receives one Apache combined log line per request.
	AccessLog io.Writer
	Logger    log.FieldLogger
}

// NewHandler builds the diagnostics mux with request logging and panic
// recovery.
func NewHandler(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	mux := http.NewServeMux()
	if opts.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	if opts.Stats != nil {
		mux.Handle("/stats", opts.Stats)
	}
	if opts.Updater != nil {
		mux.Handle("/statsws", opts.Updater)
	}
	if opts.Captures != nil {
		mux.Handle("/captures", &CaptureServer{FS: opts.Captures})
		mux.Handle("/capture", &FileServer{FS: opts.Captures})
		mux.Handle("/delete", &DeleteServer{FS: opts.Captures})
	}
	if opts.Runs != nil {
		mux.Handle("/runs", &RunsServer{Catalog: opts.Runs})
		mux.Handle("/run", &RunServer{Catalog: opts.Runs})
	}

	var h http.Handler = mux
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(logger), handlers.PrintRecoveryStack(true))(h)
	if opts.AccessLog != nil {
		h = handlers.CombinedLoggingHandler(opts.AccessLog, h)
	}
	return h
}

// Serve hosts the handler built from opts on addr until ctx is done, then
// closes the access log when it is closable.
func Serve(ctx context.Context, addr string, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	err := ListenAndServe(ctx, addr, NewHandler(opts), logger)
	if c, ok := opts.AccessLog.(io.Closer); ok {
		err = multierr.Append(err, c.Close())
	}
	return err
}

// ListenAndServe serves h on addr until ctx is done.
func ListenAndServe(ctx context.Context, addr string, h http.Handler, logger log.FieldLogger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Infof("Hosting diagnostics on %s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return errors.Wrap(err, "diagnostics server")
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "diagnostics server shutdown")
	}
	return nil
}
