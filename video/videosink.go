package video

import (
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"rawcap/video/sink"
	"rawcap/video/source"
)

// Output describes where a run's frames go.
type Output struct {
	// Path is "-" for stdout, a file, or an existing directory in which a
	// timestamped file is created.
	Path string
	// FFmpeg, when set, encodes through ffmpeg to this file or URL instead of
	// writing raw frames to Path.
	FFmpeg    string
	CodecArgs []string

	Geometry source.Options
	Run      string
	Time     time.Time
}

// SinkProducer opens the sink for a run.
type SinkProducer struct {
	// FFmpegBinary overrides the ffmpeg lookup.
	FFmpegBinary string
	Logger       log.FieldLogger
}

// New opens the sink described by out. It returns the sink and where it
// writes to.
func (p *SinkProducer) New(out Output) (sink.Sink, string, error) {
	logger := p.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}

	if out.FFmpeg != "" {
		s, err := sink.NewFFmpeg(sink.FFmpegOptions{
			Binary:     p.FFmpegBinary,
			Width:      out.Geometry.Width,
			Height:     out.Geometry.Height,
			FourCC:     out.Geometry.FourCC,
			FrameRateN: out.Geometry.FrameRateN,
			FrameRateD: out.Geometry.FrameRateD,
			CodecArgs:  out.CodecArgs,
			Output:     out.FFmpeg,
		}, logger)
		if err != nil {
			return nil, "", err
		}
		return s, out.FFmpeg, nil
	}

	path := out.Path
	if path == "" {
		path = "-"
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		fs, err := NewFilesystem(path)
		if err != nil {
			return nil, "", err
		}
		path = fs.Path(out.Time, out.Run, out.Geometry.FourCC)
	}

	s, err := sink.CreateRaw(path)
	if err != nil {
		return nil, "", err
	}
	logger.WithField("path", path).Info("Writing raw frames")
	return s, path, nil
}
