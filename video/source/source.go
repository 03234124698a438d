package source

import (
	"context"
	"fmt"
	"time"
)

// Frame is one uncompressed video frame. A frame has exactly one owner at a
// time; the owner must call Release once it no longer needs the payload so
// the buffer can be reused by whoever produced it.
type Frame struct {
	Width  int
	Height int
	// Stride is the number of bytes per line as delivered by the source.
	Stride int
	FourCC FourCC

	FrameRateN int
	FrameRateD int

	Timestamp time.Time
	// Seq is stamped by the writer when the frame is accepted. Gaps in Seq on
	// the consuming side are frames dropped by the queue.
	Seq uint64

	Data []byte

	release  func(*Frame)
	released bool
}

// PackedStride is the line stride of a frame with no row padding.
func (f *Frame) PackedStride() int {
	return f.FourCC.PackedStride(f.Width)
}

// Size is the payload size in bytes of a packed frame.
func (f *Frame) Size() int {
	return f.FourCC.FrameSize(f.Width, f.Height)
}

// Geometry copies the frame description without the payload.
func (f *Frame) Geometry() Frame {
	return Frame{
		Width:      f.Width,
		Height:     f.Height,
		Stride:     f.Stride,
		FourCC:     f.FourCC,
		FrameRateN: f.FrameRateN,
		FrameRateD: f.FrameRateD,
		Timestamp:  f.Timestamp,
		Seq:        f.Seq,
	}
}

// SetRelease installs the function that hands the frame back to its origin.
func (f *Frame) SetRelease(release func(*Frame)) {
	f.release = release
}

// Release returns the frame to its origin. Releasing twice is a bug in the
// ownership chain and panics.
func (f *Frame) Release() {
	if f.released {
		panic("frame already released")
	}
	f.released = true
	if f.release != nil {
		f.release(f)
	}
}

func (f *Frame) String() string {
	return fmt.Sprintf("%s %dx%d stride=%d seq=%d", f.FourCC, f.Width, f.Height, f.Stride, f.Seq)
}

// Source defines a stream of frames, such as a network receiver or a file.
type Source interface {
	// Capture waits up to timeout for the next frame. It returns a nil frame
	// and nil error when the timeout elapses without a frame, and io.EOF once
	// the source is exhausted. The caller owns the returned frame.
	Capture(ctx context.Context, timeout time.Duration) (*Frame, error)

	// Close disconnects from the source and frees up all resources.
	Close() error
}
