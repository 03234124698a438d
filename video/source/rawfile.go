package source

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// RawFile replays packed frames stored back to back, as written by the raw
// sink. Without pacing frames are read as fast as the consumer takes them.
type RawFile struct {
	opts   Options
	r      io.Reader
	c      io.Closer
	pool   *BufferPool
	ticker *time.Ticker
	log    log.FieldLogger
}

// OpenRawFile opens path for replay. "-" reads stdin.
func OpenRawFile(path string, opts Options, paced bool, pool *BufferPool, logger log.FieldLogger) (*RawFile, error) {
	if path == "-" {
		return NewRawFile(os.Stdin, opts, paced, pool, logger)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open %s for reading", path)
	}
	rf, err := NewRawFile(f, opts, paced, pool, logger)
	if err != nil {
		f.Close()
		return nil, err
	}
	rf.c = f
	return rf, nil
}

// NewRawFile replays frames from r. When paced, frames are released at the
// configured frame rate.
func NewRawFile(r io.Reader, opts Options, paced bool, pool *BufferPool, logger log.FieldLogger) (*RawFile, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	rf := &RawFile{
		opts: opts,
		r:    r,
		pool: pool,
		log:  logger,
	}
	if paced {
		rf.ticker = time.NewTicker(opts.FrameDuration())
	}
	return rf, nil
}

func (rf *RawFile) Capture(ctx context.Context, timeout time.Duration) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t := time.Now()
	if rf.ticker != nil {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case t = <-rf.ticker.C:
		}
	}

	f := rf.pool.NewFrame(rf.opts.frame(t))
	size := len(f.Data)
	n, err := io.ReadFull(rf.r, f.Data)
	if err != nil {
		f.Release()
		switch {
		case errors.Is(err, io.EOF):
			rf.log.Info("End of input")
			return nil, io.EOF
		case errors.Is(err, io.ErrUnexpectedEOF):
			rf.log.Errorf("Unable to read from input: got %d of %d bytes", n, size)
			return nil, io.EOF
		}
		return nil, errors.Wrap(err, "read frame")
	}
	return f, nil
}

func (rf *RawFile) Close() error {
	if rf.ticker != nil {
		rf.ticker.Stop()
	}
	if rf.c != nil {
		return rf.c.Close()
	}
	return nil
}
