package video

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"rawcap/video/source"
)

const (
	DefaultCaptureTimeout = time.Second
	// DefaultIdleLimit is how many empty captures in a row are tolerated once
	// frames have started arriving.
	DefaultIdleLimit = 5
)

type RecorderOptions struct {
	// MaxFrames stops the run after that many frames. Negative runs until the
	// source ends or the context is cancelled.
	MaxFrames      int
	CaptureTimeout time.Duration
	IdleLimit      int
	// FourCC, when set, is the only pixel format accepted from the source.
	FourCC  source.FourCC
	Logger  log.FieldLogger
	Metrics *Metrics
}

// RunStats summarizes a finished run.
type RunStats struct {
	Captured int
	Idle     int
	Started  time.Time
	Stopped  time.Time
	// Reason says why the capture loop ended.
	Reason string
}

// Recorder pulls frames from a source and hands them to a FrameWriter.
type Recorder struct {
	src     source.Source
	w       *FrameWriter
	opts    RecorderOptions
	log     log.FieldLogger
	metrics *Metrics
}

func NewRecorder(src source.Source, w *FrameWriter, opts RecorderOptions) *Recorder {
	if opts.CaptureTimeout <= 0 {
		opts.CaptureTimeout = DefaultCaptureTimeout
	}
	if opts.IdleLimit <= 0 {
		opts.IdleLimit = DefaultIdleLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Recorder{
		src:     src,
		w:       w,
		opts:    opts,
		log:     logger,
		metrics: metrics,
	}
}

// Run captures until the frame budget is spent, the source ends or goes
// quiet, or ctx is cancelled. Cancellation is a normal stop. Run does not
// finish the writer; the caller does that once it returns.
func (r *Recorder) Run(ctx context.Context) (RunStats, error) {
	stats := RunStats{Started: time.Now()}
	defer func() { stats.Stopped = time.Now() }()

	remaining := r.opts.MaxFrames
	active := false
	idle := 0

	for remaining != 0 {
		if ctx.Err() != nil {
			stats.Reason = "aborted"
			r.log.Info("Capture aborted")
			return stats, nil
		}
		if err := r.w.Err(); err != nil {
			stats.Reason = "writer failed"
			return stats, err
		}

		r.log.WithField("queued", r.w.Len()).Debug("Waiting for frame")

		f, err := r.src.Capture(ctx, r.opts.CaptureTimeout)
		switch {
		case errors.Is(err, io.EOF):
			stats.Reason = "end of input"
			return stats, nil
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			stats.Reason = "aborted"
			r.log.Info("Capture aborted")
			return stats, nil
		case err != nil:
			stats.Reason = "capture failed"
			return stats, errors.Wrap(err, "capture")
		}

		if f == nil {
			if !active {
				continue
			}
			idle++
			stats.Idle++
			r.log.WithField("idle", idle).Info("No frame received")
			if idle >= r.opts.IdleLimit {
				stats.Reason = "source went away"
				r.log.Warn("Source stopped sending frames")
				return stats, nil
			}
			continue
		}
		active = true
		idle = 0

		if r.opts.FourCC != "" && f.FourCC != r.opts.FourCC {
			got := f.FourCC
			f.Release()
			stats.Reason = "unexpected format"
			return stats, &FatalError{
				Op:  "capture",
				Err: errors.Wrapf(ErrUnexpectedFormat, "got %s, expected %s", got, r.opts.FourCC),
			}
		}

		_, err = r.w.Submit(f)
		f.Release()
		if err != nil {
			stats.Reason = "writer failed"
			return stats, err
		}
		stats.Captured++
		r.metrics.FramesCaptured.Inc()
		if remaining > 0 {
			remaining--
		}
	}
	stats.Reason = "frame count reached"
	return stats, nil
}
