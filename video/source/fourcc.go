package source

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// FourCC identifies the pixel layout of a frame payload.
type FourCC string

const (
	// P216 is a 16-bit luma plane followed by an interleaved 16-bit CbCr plane
	// of the same height (4:2:2).
	P216 FourCC = "P216"
	UYVY FourCC = "UYVY"
	BGRA FourCC = "BGRA"
	RGBA FourCC = "RGBA"
	NV12 FourCC = "NV12"
	I420 FourCC = "I420"
)

// layout describes a packed frame: bpp is the bytes per pixel of the first
// plane, halves is the whole frame size in half multiples of that plane.
type layout struct {
	bpp    int
	halves int
	pixFmt string
}

var layouts = map[FourCC]layout{
	P216: {bpp: 2, halves: 4, pixFmt: "p216le"},
	UYVY: {bpp: 2, halves: 2, pixFmt: "uyvy422"},
	BGRA: {bpp: 4, halves: 2, pixFmt: "bgra"},
	RGBA: {bpp: 4, halves: 2, pixFmt: "rgba"},
	NV12: {bpp: 1, halves: 3, pixFmt: "nv12"},
	I420: {bpp: 1, halves: 3, pixFmt: "yuv420p"},
}

// ErrUnknownFourCC is returned when parsing an unsupported pixel format.
var ErrUnknownFourCC = errors.New("unknown fourcc")

// ParseFourCC accepts a case-insensitive pixel format name.
func ParseFourCC(s string) (FourCC, error) {
	f := FourCC(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := layouts[f]; !ok {
		return "", errors.Wrapf(ErrUnknownFourCC, "%q", s)
	}
	return f, nil
}

// Valid reports whether the format is supported.
func (f FourCC) Valid() bool {
	_, ok := layouts[f]
	return ok
}

// PackedStride is the line stride of the first plane with no padding.
func (f FourCC) PackedStride(width int) int {
	return layouts[f].bpp * width
}

// FrameSize is the size of a packed frame of the given dimensions.
func (f FourCC) FrameSize(width, height int) int {
	return f.PackedStride(width) * height * layouts[f].halves / 2
}

// PixelFormat is the ffmpeg rawvideo pixel format name.
func (f FourCC) PixelFormat() string {
	return layouts[f].pixFmt
}

// ParseFrameRate parses "N", "N/D", "N/" or "/D". A missing numerator or
// denominator keeps the value passed in.
func ParseFrameRate(arg string, n, d int) (int, int, error) {
	if arg == "" {
		return n, d, nil
	}
	num, den, found := strings.Cut(arg, "/")
	if !found {
		v, err := strconv.ParseInt(arg, 0, 64)
		if err != nil {
			return n, d, errors.Wrapf(err, "frame rate %q", arg)
		}
		if v <= 0 {
			return n, d, errors.Errorf("frame rate %q must be positive", arg)
		}
		return int(v), 1, nil
	}
	if num != "" {
		v, err := strconv.ParseInt(num, 0, 64)
		if err != nil {
			return n, d, errors.Wrapf(err, "frame rate numerator %q", arg)
		}
		n = int(v)
	}
	if den != "" {
		v, err := strconv.ParseInt(den, 0, 64)
		if err != nil {
			return n, d, errors.Wrapf(err, "frame rate denominator %q", arg)
		}
		d = int(v)
	}
	if n <= 0 || d <= 0 {
		return n, d, errors.Errorf("frame rate %q must be positive", arg)
	}
	return n, d, nil
}
