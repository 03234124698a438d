package sink

import (
	"github.com/pkg/errors"

	"rawcap/video/source"
)

// ErrShortWrite means the sink accepted fewer bytes than a full frame. The
// output is corrupt from that point on, so it is never retried.
var ErrShortWrite = errors.New("short write to sink")

// Sink defines a destination for a stream of frames, such as a file or an
// encoder.
type Sink interface {
	// Put writes one packed frame. The caller keeps ownership of the frame
	// and must not modify it until Put returns. Any error is fatal for the
	// stream.
	Put(f *source.Frame) error

	// Close should be called to finalize the Sink.
	Close() error
}
