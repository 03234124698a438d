package logging

import (
	"bytes"
	"os"
	"testing"

	log "github.com/sirupsen/logrus"
	"go.viam.com/test"
)

type countingBuffer struct {
	bytes.Buffer
	flushes int
}

func (b *countingBuffer) Flush() error {
	b.flushes++
	return nil
}

func TestLevelFromVerbosity(t *testing.T) {
	test.That(t, LevelFromVerbosity(0, 0), test.ShouldEqual, log.ErrorLevel)
	test.That(t, LevelFromVerbosity(1, 0), test.ShouldEqual, log.WarnLevel)
	test.That(t, LevelFromVerbosity(3, 0), test.ShouldEqual, log.DebugLevel)
	test.That(t, LevelFromVerbosity(10, 0), test.ShouldEqual, log.TraceLevel)
	test.That(t, LevelFromVerbosity(0, 1), test.ShouldEqual, log.FatalLevel)
	test.That(t, LevelFromVerbosity(0, 5), test.ShouldEqual, log.FatalLevel)
	test.That(t, LevelFromVerbosity(2, 1), test.ShouldEqual, log.WarnLevel)
}

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: log.WarnLevel, Stream: &buf})

	logger.Info("hidden")
	logger.Warn("shown")

	test.That(t, buf.String(), test.ShouldNotContainSubstring, "hidden")
	test.That(t, buf.String(), test.ShouldContainSubstring, "shown")
}

func TestNewFlushesEveryEntry(t *testing.T) {
	buf := &countingBuffer{}
	logger := New(Options{Level: log.InfoLevel, Stream: buf, Flush: true})

	logger.Info("one")
	logger.Info("two")
	logger.Debug("filtered")

	test.That(t, buf.flushes, test.ShouldEqual, 2)

	unflushed := &countingBuffer{}
	logger = New(Options{Level: log.InfoLevel, Stream: unflushed})
	logger.Info("one")
	test.That(t, unflushed.flushes, test.ShouldEqual, 0)
	test.That(t, unflushed.String(), test.ShouldContainSubstring, "one")
}

func TestFlushToPipe(t *testing.T) {
	r, w, err := os.Pipe()
	test.That(t, err, test.ShouldBeNil)
	defer r.Close()
	defer w.Close()

	n, err := Output(w, true).Write([]byte("hello\n"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 6)

	logger := New(Options{Level: log.InfoLevel, Stream: w, Flush: true})
	logger.Info("entry")
	test.That(t, w.Close(), test.ShouldBeNil)

	var got bytes.Buffer
	_, err = got.ReadFrom(r)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got.String(), test.ShouldContainSubstring, "hello\n")
	test.That(t, got.String(), test.ShouldContainSubstring, "entry")
}

func TestFlushToRegularFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "log")
	test.That(t, err, test.ShouldBeNil)
	defer f.Close()

	n, err := Output(f, true).Write([]byte("synced\n"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 7)
}
