package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"rawcap/catalog"
	"rawcap/config"
	"rawcap/logging"
	"rawcap/serve"
	"rawcap/video"
	"rawcap/video/source"
)

const version = "rawcap 1.0"

// counter is a boolean flag that counts how often it is given.
type counter int

func (c *counter) String() string   { return strconv.Itoa(int(*c)) }
func (c *counter) IsBoolFlag() bool { return true }

func (c *counter) Set(s string) error {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	if v {
		*c++
	}
	return nil
}

var (
	sourceArg  = flag.String("source", "pattern", "Frame source: pattern, file:<path>, or - for stdin.")
	output     = flag.String("o", "-", "Output file or directory, - for stdout.")
	ffmpegOut  = flag.String("ffmpeg", "", "Encode with ffmpeg to this file or URL instead of writing raw frames.")
	ffmpegArgs = flag.String("ffmpeg-args", "", "Codec arguments for ffmpeg, space separated.")
	width      = flag.Int("x", 1920, "Frame width.")
	height     = flag.Int("y", 1080, "Frame height.")
	rate       = flag.String("r", "6000/1001", "Frame rate as N or N/D.")
	fourccArg  = flag.String("fourcc", string(source.P216), "Pixel format.")
	count      = flag.Int("c", 0, "Number of frames to record (default: until end of input or user abort).")
	depth      = flag.Int("depth", 0, "Writer queue depth, 0 keeps every frame.")
	paced      = flag.Bool("paced", false, "Replay file input at the frame rate.")
	configPath = flag.String("config", "", "JSON or YAML config file, reloaded on change.")
	httpAddr   = flag.String("http", "", "Address for the diagnostics server, e.g. :8080.")
	catalogDSN = flag.String("catalog", "", "MySQL DSN of the run catalog.")
	flush      = flag.Bool("f", false, "Flush after each log message.")

	verbose counter
	quiet   counter
)

func init() {
	flag.Var(&verbose, "v", "Increase logging output level (repeatable).")
	flag.Var(&quiet, "q", "Decrease logging output level (repeatable).")
}

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "rawcap: %v\n", err)
		os.Exit(1)
	}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

func run() error {
	logger := logging.New(logging.Options{
		Level:  logging.LevelFromVerbosity(int(verbose), int(quiet)),
		Stream: os.Stderr,
		Flush:  *flush,
	})

	fourcc, err := source.ParseFourCC(*fourccArg)
	if err != nil {
		return err
	}
	rateN, rateD, err := source.ParseFrameRate(*rate, 6000, 1001)
	if err != nil {
		return err
	}
	geometry := source.Options{
		Width:      *width,
		Height:     *height,
		FourCC:     fourcc,
		FrameRateN: rateN,
		FrameRateD: rateD,
	}

	// Stdin is only free for user input when it is a terminal that does not
	// carry frames.
	interactive := *sourceArg != "-" && isTerminal(os.Stdin)
	live := *sourceArg == "pattern"
	maxFrames := -1
	if *count > 0 {
		maxFrames = *count
	}
	if live && maxFrames < 0 && !interactive {
		return errors.New("number of frames to record was not specified and stdin is not a tty")
	}

	if *output != "-" || *ffmpegOut != "" {
		// Stdout does not carry frames, so it is safe to talk on it.
		fmt.Println(version)
		fmt.Println()
	}

	runID := uuid.NewString()
	rlog := logger.WithField("run", runID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if interactive {
		go func() {
			// Any input aborts the capture.
			b := make([]byte, 1)
			if _, err := os.Stdin.Read(b); err == nil {
				rlog.Info("User abort")
				cancel()
			}
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := video.NewMetrics(reg)

	pool := source.NewBufferPool(rlog)
	defer pool.Close()

	src, err := openSource(*sourceArg, geometry, pool, rlog)
	if err != nil {
		return err
	}

	var codec []string
	if *ffmpegArgs != "" {
		codec = strings.Fields(*ffmpegArgs)
	}
	started := time.Now()
	producer := &video.SinkProducer{Logger: rlog}
	out, target, err := producer.New(video.Output{
		Path:      *output,
		FFmpeg:    *ffmpegOut,
		CodecArgs: codec,
		Geometry:  geometry,
		Run:       runID,
		Time:      started,
	})
	if err != nil {
		return multierr.Append(err, src.Close())
	}

	writer := video.NewFrameWriter(video.WriterOptions{
		Sink:    out,
		Depth:   *depth,
		Pool:    pool,
		Logger:  rlog,
		Metrics: metrics,
	})

	if *configPath != "" {
		cw, err := config.Watch(ctx, *configPath, rlog, func(c *config.Config) {
			c.Apply(writer, logger, os.Stderr)
		})
		if err != nil {
			return multierr.Combine(err, out.Close(), src.Close())
		}
		cw.Get().Apply(writer, logger, os.Stderr)
	}

	var cat *catalog.Catalog
	record := &catalog.Run{
		ID:         runID,
		Source:     *sourceArg,
		Output:     target,
		FourCC:     string(fourcc),
		Width:      geometry.Width,
		Height:     geometry.Height,
		FrameRateN: rateN,
		FrameRateD: rateD,
		QueueDepth: *depth,
		StartedAt:  started,
	}
	if *catalogDSN != "" {
		db, err := catalog.Open(*catalogDSN, rlog)
		if err == nil {
			cat, err = catalog.New(db, rlog)
		}
		if err == nil {
			err = cat.Start(record)
		}
		if err != nil {
			return multierr.Combine(err, out.Close(), src.Close())
		}
	}

	if *httpAddr != "" {
		stats := &serve.StatsServer{
			Writer:  writer,
			Run:     runID,
			Source:  *sourceArg,
			Output:  target,
			Started: started,
		}
		opts := serve.Options{
			Gatherer:  reg,
			Stats:     stats,
			Updater:   serve.NewStatsUpdater(ctx, stats, serve.DefaultUpdatePeriod, rlog),
			AccessLog: logger.WriterLevel(log.DebugLevel),
			Logger:    rlog,
		}
		if cat != nil {
			opts.Runs = cat
		}
		if info, err := os.Stat(*output); err == nil && info.IsDir() {
			if fs, err := video.NewFilesystem(*output); err == nil {
				opts.Captures = fs
			}
		}
		go func() {
			if err := serve.Serve(ctx, *httpAddr, opts); err != nil {
				rlog.Error(err)
			}
		}()
	}

	if err := writer.Begin(); err != nil {
		return multierr.Combine(err, out.Close(), src.Close())
	}

	rec := video.NewRecorder(src, writer, video.RecorderOptions{
		MaxFrames: maxFrames,
		FourCC:    fourcc,
		Logger:    rlog,
		Metrics:   metrics,
	})
	rs, runErr := rec.Run(ctx)
	rlog.WithFields(log.Fields{
		"captured": rs.Captured,
		"reason":   rs.Reason,
	}).Info("Capture stopped")

	rlog.Info("Flushing write queue")
	finishErr := writer.Finish()
	if finishErr != nil && errors.Is(runErr, finishErr) {
		// The run already stopped on the writer's error.
		finishErr = nil
	}
	err = multierr.Combine(runErr, finishErr, out.Close(), src.Close())

	if cat != nil {
		if cerr := cat.Finish(record, rs, writer.Stats(), err); cerr != nil {
			rlog.Errorf("Failed to record run result: %v", cerr)
		}
	}
	return err
}

func openSource(arg string, geometry source.Options, pool *source.BufferPool, logger log.FieldLogger) (source.Source, error) {
	var (
		src source.Source
		err error
	)
	switch {
	case arg == "pattern":
		src, err = source.NewPattern(geometry, pool)
	case arg == "-":
		src, err = source.NewRawFile(os.Stdin, geometry, *paced, pool, logger)
	case strings.HasPrefix(arg, "file:"):
		src, err = source.OpenRawFile(strings.TrimPrefix(arg, "file:"), geometry, *paced, pool, logger)
	default:
		return nil, errors.Errorf("unknown source %q", arg)
	}
	if err != nil {
		return nil, err
	}
	return src, nil
}
