// Package logging builds the leveled logger shared by the capture pipeline.
package logging

import (
	"io"
	"os"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DefaultLevel matches the error-only default of the capture tools. Each -v
// raises it by one step, each -q lowers it.
const DefaultLevel = log.ErrorLevel

// Options configures a logger. It is constructed once and passed to every
// component that logs.
type Options struct {
	// Level is the minimum severity emitted.
	Level log.Level
	// Stream receives formatted entries. Defaults to stderr.
	Stream io.Writer
	// Flush forces the stream to be synced after every entry.
	Flush bool
}

// New builds a logger from opts.
func New(opts Options) *log.Logger {
	return &log.Logger{
		Out:       Output(opts.Stream, opts.Flush),
		Formatter: &log.TextFormatter{FullTimestamp: true},
		Hooks:     make(log.LevelHooks),
		Level:     opts.Level,
		ExitFunc:  os.Exit,
	}
}

// Output returns the writer a logger should use for stream, stderr when nil.
func Output(stream io.Writer, flush bool) io.Writer {
	if stream == nil {
		stream = os.Stderr
	}
	if flush {
		return &flushWriter{w: stream}
	}
	return stream
}

// LevelFromVerbosity applies -v/-q counts to the default level. The result is
// clamped between fatal and trace.
func LevelFromVerbosity(verbose, quiet int) log.Level {
	l := int(DefaultLevel) + verbose - quiet
	if l < int(log.FatalLevel) {
		l = int(log.FatalLevel)
	}
	if l > int(log.TraceLevel) {
		l = int(log.TraceLevel)
	}
	return log.Level(l)
}

type syncer interface {
	Sync() error
}

type flusher interface {
	Flush() error
}

// flushWriter pushes every entry to the underlying stream as soon as it is
// written. logrus emits one Write per entry.
type flushWriter struct {
	w io.Writer
}

func (f *flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if err != nil {
		return n, err
	}
	switch w := f.w.(type) {
	case flusher:
		err = w.Flush()
	case syncer:
		err = w.Sync()
		// Terminals and pipes cannot be synced; the write already reached them.
		if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTSUP) {
			err = nil
		}
	}
	return n, err
}
