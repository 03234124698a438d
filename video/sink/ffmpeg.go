package sink

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"rawcap/util"
	"rawcap/video/source"
)

// DefaultCodecArgs use h264 encoding with reasonable quality and speed. Note
// that "preset" can be adjusted if the system is too slow to handle encoding.
var DefaultCodecArgs = []string{"-c:v", "libx264", "-preset", "superfast", "-crf", "23"}

// FFmpegOptions configures the encoder child process.
type FFmpegOptions struct {
	// Binary overrides util.LocateFFmpeg.
	Binary string
	Width  int
	Height int
	FourCC source.FourCC
	// FrameRateN/FrameRateD set the input rate of the raw stream.
	FrameRateN int
	FrameRateD int
	// CodecArgs are placed between the input and the output. Nil means
	// DefaultCodecArgs.
	CodecArgs []string
	// Output is a file path or any URL ffmpeg can publish to.
	Output string
}

// Args is the ffmpeg command line without the binary.
func (o FFmpegOptions) Args() []string {
	args := []string{
		"-hide_banner",
		// Configure ffmpeg to read packed frames from the pipe.
		"-f", "rawvideo",
		"-pixel_format", o.FourCC.PixelFormat(),
		"-video_size", fmt.Sprintf("%dx%d", o.Width, o.Height),
		"-framerate", fmt.Sprintf("%d/%d", o.FrameRateN, o.FrameRateD),
		"-i", "-", // Read from stdin.
	}
	codec := o.CodecArgs
	if codec == nil {
		codec = DefaultCodecArgs
	}
	args = append(args, codec...)
	return append(args, "-y", o.Output)
}

// FFmpeg pipes frames into an ffmpeg process which compresses and publishes
// them.
type FFmpeg struct {
	cmd  *exec.Cmd
	pipe io.WriteCloser
	raw  *Raw
	log  log.FieldLogger
}

func NewFFmpeg(opts FFmpegOptions, logger log.FieldLogger) (*FFmpeg, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	bin := opts.Binary
	if bin == "" {
		var err error
		if bin, err = util.LocateFFmpeg(); err != nil {
			return nil, err
		}
	}
	c := exec.Command(bin, opts.Args()...)

	// ffmpeg reports progress on stderr; keep it visible in the shell.
	c.Stdout = os.Stderr
	c.Stderr = os.Stderr

	pipe, err := c.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "ffmpeg stdin")
	}
	if err := c.Start(); err != nil {
		return nil, errors.Wrap(err, "start ffmpeg")
	}
	logger.WithField("args", c.Args).Info("Started ffmpeg")
	return &FFmpeg{
		cmd:  c,
		pipe: pipe,
		raw:  NewRaw(pipe),
		log:  logger,
	}, nil
}

func (f *FFmpeg) Put(frame *source.Frame) error {
	return f.raw.Put(frame)
}

// Close ends the input stream and waits for ffmpeg to finish the output.
func (f *FFmpeg) Close() error {
	err := f.pipe.Close()
	f.log.Info("Waiting for ffmpeg shutdown")
	werr := f.cmd.Wait()
	f.log.Infof("ffmpeg exit with status %v", werr)
	return multierr.Combine(err, errors.Wrap(werr, "ffmpeg"))
}
