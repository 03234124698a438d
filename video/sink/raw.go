package sink

import (
	"io"
	"os"

	"github.com/pkg/errors"

	"rawcap/video/source"
)

// Raw writes packed frames back to back with no container.
type Raw struct {
	w io.Writer
}

// NewRaw writes to w. Close closes w when it is an io.Closer other than
// stdout.
func NewRaw(w io.Writer) *Raw {
	return &Raw{w: w}
}

// CreateRaw creates (or truncates) path. "-" writes to stdout.
func CreateRaw(path string) (*Raw, error) {
	if path == "-" {
		return NewRaw(os.Stdout), nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open %s for writing", path)
	}
	return NewRaw(f), nil
}

func (r *Raw) Put(f *source.Frame) error {
	size := f.Size()
	if len(f.Data) < size {
		return errors.Errorf("frame payload is %d bytes, expected %d", len(f.Data), size)
	}
	n, err := r.w.Write(f.Data[:size])
	if n != size {
		if err == nil {
			err = io.ErrShortWrite
		}
		return errors.Wrapf(ErrShortWrite, "wrote %d of %d bytes: %v", n, size, err)
	}
	return errors.Wrap(err, "write frame")
}

func (r *Raw) Close() error {
	if r.w == os.Stdout {
		return nil
	}
	if c, ok := r.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
