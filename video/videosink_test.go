package video

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"go.viam.com/test"

	"rawcap/video/source"
)

var testGeometry = source.Options{
	Width:      4,
	Height:     2,
	FourCC:     source.UYVY,
	FrameRateN: 30,
	FrameRateD: 1,
}

func TestFilesystemNamesAndScansCaptures(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "captures")
	fs, err := NewFilesystem(dir)
	test.That(t, err, test.ShouldBeNil)

	t1 := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	p1 := fs.Path(t1, "aaa", source.P216)
	p2 := fs.Path(t2, "bbb", source.UYVY)
	test.That(t, filepath.Base(p1), test.ShouldEqual, "20240301-123000-Z_aaa.p216")

	test.That(t, os.WriteFile(p2, make([]byte, 32), 0o644), test.ShouldBeNil)
	test.That(t, os.WriteFile(p1, make([]byte, 16), 0o644), test.ShouldBeNil)
	test.That(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o644), test.ShouldBeNil)
	test.That(t, os.WriteFile(filepath.Join(dir, "20240301-123000-Z_ccc.mp4"), nil, 0o644), test.ShouldBeNil)

	test.That(t, fs.Refresh(), test.ShouldBeNil)
	records := fs.Records()
	test.That(t, len(records), test.ShouldEqual, 2)
	test.That(t, records[0].Run, test.ShouldEqual, "aaa")
	test.That(t, records[0].FourCC, test.ShouldEqual, source.P216)
	test.That(t, records[0].Size, test.ShouldEqual, int64(16))
	test.That(t, records[0].Time.Equal(t1), test.ShouldBeTrue)
	test.That(t, records[1].Run, test.ShouldEqual, "bbb")
	test.That(t, records[1].Path, test.ShouldEqual, p2)
}

func TestSinkProducerWritesIntoDirectory(t *testing.T) {
	dir := t.TempDir()
	logger, _ := logtest.NewNullLogger()
	p := &SinkProducer{Logger: logger}

	when := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	s, path, err := p.New(Output{Path: dir, Geometry: testGeometry, Run: "run1", Time: when})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, path, test.ShouldEqual, filepath.Join(dir, "20240301-123000-Z_run1.uyvy"))

	test.That(t, s.Put(testFrame(4, 2, 7)), test.ShouldBeNil)
	test.That(t, s.Close(), test.ShouldBeNil)

	b, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(b), test.ShouldEqual, 16)
	test.That(t, b[0], test.ShouldEqual, byte(7))
}

func TestSinkProducerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.raw")
	logger, _ := logtest.NewNullLogger()
	p := &SinkProducer{Logger: logger}

	s, got, err := p.New(Output{Path: path, Geometry: testGeometry})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldEqual, path)
	test.That(t, s.Close(), test.ShouldBeNil)

	_, err = os.Stat(path)
	test.That(t, err, test.ShouldBeNil)
}

func TestSinkProducerFFmpeg(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "ffmpeg")
	script := "#!/bin/sh\nfor last; do :; done\ncat > \"$last\"\n"
	test.That(t, os.WriteFile(bin, []byte(script), 0o755), test.ShouldBeNil)

	logger, _ := logtest.NewNullLogger()
	p := &SinkProducer{FFmpegBinary: bin, Logger: logger}
	encoded := filepath.Join(dir, "out.mp4")

	s, got, err := p.New(Output{FFmpeg: encoded, Geometry: testGeometry})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldEqual, encoded)
	test.That(t, s.Put(testFrame(4, 2, 3)), test.ShouldBeNil)
	test.That(t, s.Close(), test.ShouldBeNil)

	b, err := os.ReadFile(encoded)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(b), test.ShouldEqual, 16)
}

func TestSinkProducerMissingDirectory(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	p := &SinkProducer{Logger: logger}
	_, _, err := p.New(Output{Path: filepath.Join(t.TempDir(), "missing", "out.raw"), Geometry: testGeometry})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "cannot open")
}
