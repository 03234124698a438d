package video

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"rawcap/util"
	"rawcap/video/sink"
	"rawcap/video/source"
)

// WriterOptions configures a FrameWriter.
type WriterOptions struct {
	Sink sink.Sink
	// Depth is applied to the queue by Begin. Zero keeps every frame; a
	// positive depth drops the oldest frames when the sink falls behind.
	Depth int
	// Pool supplies the buffers frames are copied into. When nil the writer
	// creates its own and closes it on Finish.
	Pool    *source.BufferPool
	Logger  log.FieldLogger
	Metrics *Metrics
}

type writerState int

const (
	stateIdle writerState = iota
	stateRunning
	// stateDraining: end of stream is queued, the consumer is flushing.
	stateDraining
	stateFailed
	stateFinished
)

func (s writerState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateRunning:
		return "running"
	case stateDraining:
		return "draining"
	case stateFailed:
		return "failed"
	case stateFinished:
		return "finished"
	}
	return "unknown"
}

// message is what travels through the queue: a frame, or the end of stream.
type message struct {
	frame *source.Frame
	eos   bool
}

// Stats is a point-in-time view of a writer.
type Stats struct {
	State        string `json:"state"`
	Queued       int    `json:"queued"`
	MaxDepth     int    `json:"max_depth"`
	Submitted    uint64 `json:"submitted"`
	Dropped      uint64 `json:"dropped"`
	Skipped      uint64 `json:"skipped"`
	Written      uint64 `json:"written"`
	BytesWritten uint64 `json:"bytes_written"`
}

// FrameWriter decouples frame acquisition from a slow sink. Frames submitted
// by the producer are copied into independently owned buffers and queued; a
// single goroutine started by Begin writes them to the sink in order. Finish
// queues the end of stream and waits until everything before it is written.
type FrameWriter struct {
	sink    sink.Sink
	depth   int
	queue   *Queue[message]
	pool    *source.BufferPool
	ownPool bool
	log     log.FieldLogger
	metrics *Metrics

	// mu orders submissions against state changes so that nothing is queued
	// once the consumer has failed or end of stream was requested.
	mu        sync.Mutex
	state     writerState
	seq       uint64
	submitted uint64
	// err is the fatal error, set together with stateFailed.
	err error

	done *util.Event

	written atomic.Uint64
	bytes   atomic.Uint64
	skipped atomic.Uint64
}

func NewFrameWriter(opts WriterOptions) *FrameWriter {
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	w := &FrameWriter{
		sink:    opts.Sink,
		depth:   opts.Depth,
		pool:    opts.Pool,
		log:     logger,
		metrics: metrics,
		done:    util.NewEvent(),
	}
	if w.pool == nil {
		w.pool = source.NewBufferPool(logger)
		w.ownPool = true
	}
	w.queue = NewQueue(QueueOptions[message]{
		MaxDepth: DefaultQueueDepth,
		Logger:   logger.WithField("component", "queue"),
		OnDrop:   w.dropped,
	})
	return w
}

// Begin applies the configured depth and starts the consumer goroutine.
func (w *FrameWriter) Begin() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != stateIdle {
		return ErrAlreadyStarted
	}
	w.queue.SetDepth(w.depth)
	w.state = stateRunning
	go w.run()
	w.log.WithField("depth", w.depth).Info("Writer started")
	return nil
}

// Submit copies f into the queue. The caller keeps ownership of f and may
// release it as soon as Submit returns. The boolean is false when the queue is
// saturated, a hint that frames are about to be dropped.
//
// A nil frame requests end of stream without waiting; a frame with no payload
// is logged and ignored.
func (w *FrameWriter) Submit(f *source.Frame) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case stateIdle:
		return false, ErrNotStarted
	case stateFailed:
		return false, w.err
	case stateDraining, stateFinished:
		return false, ErrFinished
	}

	if f == nil {
		w.log.WithField("queued", w.queue.Len()).Info("End of stream requested")
		w.endOfStream()
		return true, nil
	}
	if len(f.Data) == 0 {
		w.log.WithField("frame", f.String()).Warn("Frame has no data, skipping")
		return true, nil
	}

	c := w.pool.CopyFrame(f)
	w.seq++
	c.Seq = w.seq
	w.submitted++
	w.metrics.FramesSubmitted.Inc()

	ok := w.queue.Push(message{frame: c})
	w.metrics.QueueDepth.Set(float64(w.queue.Len()))
	return ok, nil
}

// Finish queues the end of stream and blocks until every frame submitted
// before it has been written and the consumer has exited. It returns the
// fatal error the consumer stopped with, if any. Calling it again returns the
// same result.
func (w *FrameWriter) Finish() error {
	w.mu.Lock()
	switch w.state {
	case stateIdle:
		w.mu.Unlock()
		return ErrNotStarted
	case stateRunning:
		w.log.Infof("Flushing %d frames from queue", w.queue.Len())
		w.endOfStream()
	}
	w.mu.Unlock()

	err := w.done.Wait()

	w.mu.Lock()
	if w.state == stateDraining {
		w.state = stateFinished
	}
	w.mu.Unlock()

	if w.ownPool {
		w.pool.Close()
	}
	if err == nil {
		w.log.Info("Queue flushed")
	}
	return err
}

// Err returns the fatal error once the consumer has failed, nil otherwise.
// It does not wait for the consumer, so a producer can poll it between frames.
func (w *FrameWriter) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Done reports whether the consumer goroutine has exited.
func (w *FrameWriter) Done() bool {
	return w.done.HasBeenNotified()
}

// SetDepth changes the queue depth. Before Begin it replaces the configured
// depth; once end of stream is queued it has no effect.
func (w *FrameWriter) SetDepth(n int) {
	if n < 0 {
		n = 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.state {
	case stateIdle:
		w.depth = n
	case stateRunning:
		w.depth = n
		w.queue.SetDepth(n)
	default:
		return
	}
	w.log.WithField("depth", n).Info("Queue depth changed")
}

// Len returns the number of frames waiting to be written.
func (w *FrameWriter) Len() int {
	return w.queue.Len()
}

func (w *FrameWriter) Stats() Stats {
	w.mu.Lock()
	state := w.state
	submitted := w.submitted
	w.mu.Unlock()

	qs := w.queue.Stats()
	return Stats{
		State:        state.String(),
		Queued:       w.queue.Len(),
		MaxDepth:     w.queue.MaxDepth(),
		Submitted:    submitted,
		Dropped:      qs.Dropped,
		Skipped:      w.skipped.Load(),
		Written:      w.written.Load(),
		BytesWritten: w.bytes.Load(),
	}
}

// endOfStream queues the end marker behind everything already accepted.
// Dropping is switched off first so the flush cannot discard frames. Callers
// hold mu.
func (w *FrameWriter) endOfStream() {
	w.queue.SetDepth(0)
	w.queue.Push(message{eos: true})
	w.state = stateDraining
}

func (w *FrameWriter) dropped(m message) {
	if m.frame == nil {
		return
	}
	m.frame.Release()
	w.metrics.FramesDropped.Inc()
}

func (w *FrameWriter) run() {
	var last uint64
	for {
		m := w.queue.Pop()
		w.metrics.QueueDepth.Set(float64(w.queue.Len()))
		if m.eos {
			break
		}
		if err := w.write(m.frame, &last); err != nil {
			w.fail(err)
			return
		}
	}
	w.log.Info("Writer exiting")
	w.done.Notify(nil)
}

func (w *FrameWriter) write(f *source.Frame, last *uint64) error {
	defer f.Release()

	// Padded rows are not supported.
	if expected := f.PackedStride(); f.Stride != expected {
		w.log.WithFields(log.Fields{
			"stride":   f.Stride,
			"expected": expected,
		}).Error("Unsupported line stride")
		return &FatalError{
			Op:  "check geometry",
			Err: errors.Wrapf(ErrUnsupportedStride, "%d bytes per line, expected %d", f.Stride, expected),
		}
	}

	if f.Seq > *last+1 {
		gap := f.Seq - *last - 1
		w.log.WithFields(log.Fields{"seq": f.Seq, "skipped": gap}).Warn("Frames skipped")
		w.skipped.Add(gap)
		w.metrics.FramesSkipped.Add(float64(gap))
	}
	*last = f.Seq

	start := time.Now()
	if err := w.sink.Put(f); err != nil {
		return &FatalError{Op: "write frame", Err: err}
	}
	w.metrics.WriteSeconds.Observe(time.Since(start).Seconds())

	size := uint64(f.Size())
	w.written.Add(1)
	w.bytes.Add(size)
	w.metrics.FramesWritten.Inc()
	w.metrics.BytesWritten.Add(float64(size))
	w.log.WithField("seq", f.Seq).Debug("Wrote frame")
	return nil
}

// fail stops accepting frames and releases everything still queued.
func (w *FrameWriter) fail(err error) {
	w.log.WithError(err).Error("Writer failed")

	w.mu.Lock()
	w.state = stateFailed
	w.err = err
	pending := w.queue.Drain()
	w.mu.Unlock()

	for _, m := range pending {
		if m.frame != nil {
			m.frame.Release()
		}
	}
	w.metrics.QueueDepth.Set(0)
	w.done.Notify(err)
}
