package source

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
)

// Options describes the frames a source produces.
type Options struct {
	Width      int
	Height     int
	FourCC     FourCC
	FrameRateN int
	FrameRateD int
}

func (o Options) validate() error {
	if o.Width <= 0 || o.Height <= 0 {
		return errors.Errorf("invalid resolution %dx%d", o.Width, o.Height)
	}
	if !o.FourCC.Valid() {
		return errors.Wrapf(ErrUnknownFourCC, "%q", o.FourCC)
	}
	if o.FrameRateN <= 0 || o.FrameRateD <= 0 {
		return errors.Errorf("invalid frame rate %d/%d", o.FrameRateN, o.FrameRateD)
	}
	return nil
}

// FrameDuration is the interval between frames at the configured rate.
func (o Options) FrameDuration() time.Duration {
	return time.Duration(int64(time.Second) * int64(o.FrameRateD) / int64(o.FrameRateN))
}

func (o Options) frame(t time.Time) Frame {
	return Frame{
		Width:      o.Width,
		Height:     o.Height,
		Stride:     o.FourCC.PackedStride(o.Width),
		FourCC:     o.FourCC,
		FrameRateN: o.FrameRateN,
		FrameRateD: o.FrameRateD,
		Timestamp:  t,
	}
}

// Pattern is a live test source. It emits a gradient at the configured frame
// rate whether or not anybody keeps up, like a camera would.
type Pattern struct {
	opts     Options
	pool     *BufferPool
	ticker   *time.Ticker
	template []byte
	count    uint64
}

func NewPattern(opts Options, pool *BufferPool) (*Pattern, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	stride := opts.FourCC.PackedStride(opts.Width)
	template := make([]byte, opts.FourCC.FrameSize(opts.Width, opts.Height))
	for i := range template {
		template[i] = byte((i % stride) * 255 / stride)
	}
	return &Pattern{
		opts:     opts,
		pool:     pool,
		ticker:   time.NewTicker(opts.FrameDuration()),
		template: template,
	}, nil
}

func (p *Pattern) Capture(ctx context.Context, timeout time.Duration) (*Frame, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var t time.Time
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case t = <-p.ticker.C:
	}

	f := p.pool.NewFrame(p.opts.frame(t))
	copy(f.Data, p.template)
	if len(f.Data) >= 8 {
		// Stamp the frame counter so replays can be checked for gaps.
		binary.BigEndian.PutUint64(f.Data, p.count)
	}
	p.count++
	return f, nil
}

func (p *Pattern) Close() error {
	p.ticker.Stop()
	return nil
}
