package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"go.viam.com/test"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	test.That(t, os.WriteFile(path, []byte(content), 0o644), test.ShouldBeNil)
}

func TestFromFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rawcap.json")
	writeFile(t, path, `{"queue_depth": 3, "log_level": "debug", "log_flush": true}`)

	logger, hook := logtest.NewNullLogger()
	c, err := FromFile(path, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.QueueDepth, test.ShouldNotBeNil)
	test.That(t, *c.QueueDepth, test.ShouldEqual, 3)
	test.That(t, c.LogFlush, test.ShouldBeTrue)

	level, ok, err := c.Level()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, level, test.ShouldEqual, log.DebugLevel)

	test.That(t, hook.LastEntry(), test.ShouldNotBeNil)
	test.That(t, hook.LastEntry().Message, test.ShouldContainSubstring, "Loaded configuration")
}

func TestFromFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rawcap.yaml")
	writeFile(t, path, "queue_depth: 0\nlog_level: warning\n")

	c, err := FromFile(path, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, *c.QueueDepth, test.ShouldEqual, 0)
	test.That(t, c.LogFlush, test.ShouldBeFalse)

	level, ok, err := c.Level()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, level, test.ShouldEqual, log.WarnLevel)
}

func TestFromFileUnsetFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rawcap.yml")
	writeFile(t, path, "")

	c, err := FromFile(path, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.QueueDepth, test.ShouldBeNil)
	_, ok, err := c.Level()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeFalse)
}

func TestFromFileRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"depth.json":  `{"queue_depth": -1}`,
		"level.json":  `{"log_level": "loud"}`,
		"syntax.json": `{"queue_depth": `,
		"syntax.yaml": "queue_depth: [",
	} {
		path := filepath.Join(dir, name)
		writeFile(t, path, content)
		_, err := FromFile(path, nil)
		test.That(t, err, test.ShouldNotBeNil)
	}

	_, err := FromFile(filepath.Join(dir, "missing.json"), nil)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestWatcherReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rawcap.json")
	writeFile(t, path, `{"queue_depth": 1}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	logger, _ := logtest.NewNullLogger()
	w, err := Watch(ctx, path, logger, func(c *Config) { changes <- c })
	test.That(t, err, test.ShouldBeNil)
	test.That(t, *w.Get().QueueDepth, test.ShouldEqual, 1)

	// Give the watch goroutine a moment to register.
	time.Sleep(50 * time.Millisecond)
	writeFile(t, path, `{"queue_depth": 7}`)

	select {
	case c := <-changes:
		test.That(t, *c.QueueDepth, test.ShouldEqual, 7)
	case <-time.After(5 * time.Second):
		t.Fatal("config change not observed")
	}
	test.That(t, *w.Get().QueueDepth, test.ShouldEqual, 7)
}

func TestWatcherKeepsLastGoodConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rawcap.json")
	writeFile(t, path, `{"queue_depth": 2}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	logger, hook := logtest.NewNullLogger()
	w, err := Watch(ctx, path, logger, func(c *Config) { changes <- c })
	test.That(t, err, test.ShouldBeNil)

	time.Sleep(50 * time.Millisecond)
	writeFile(t, path, `{"queue_depth": -4}`)

	deadline := time.Now().Add(5 * time.Second)
	for {
		var failed bool
		for _, e := range hook.AllEntries() {
			if e.Level == log.ErrorLevel {
				failed = true
			}
		}
		if failed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("invalid config not reported")
		}
		time.Sleep(10 * time.Millisecond)
	}
	test.That(t, *w.Get().QueueDepth, test.ShouldEqual, 2)
	test.That(t, len(changes), test.ShouldEqual, 0)
}

func TestWatchMissingFile(t *testing.T) {
	_, err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope.json"), nil, nil)
	test.That(t, err, test.ShouldNotBeNil)
}

type depthRecorder struct{ depths []int }

func (d *depthRecorder) SetDepth(n int) { d.depths = append(d.depths, n) }

func TestApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rawcap.yaml")
	writeFile(t, path, "queue_depth: 5\nlog_level: debug\nlog_flush: true\n")
	c, err := FromFile(path, nil)
	test.That(t, err, test.ShouldBeNil)

	var out flushCounter
	logger := log.New()
	logger.SetLevel(log.ErrorLevel)
	w := &depthRecorder{}
	c.Apply(w, logger, &out)

	test.That(t, w.depths, test.ShouldResemble, []int{5})
	test.That(t, logger.GetLevel(), test.ShouldEqual, log.DebugLevel)
	logger.Debug("now visible")
	test.That(t, out.flushes, test.ShouldEqual, 1)
	test.That(t, out.String(), test.ShouldContainSubstring, "now visible")

	// An empty config changes nothing.
	(&Config{}).Apply(w, logger, &out)
	test.That(t, len(w.depths), test.ShouldEqual, 1)
	test.That(t, logger.GetLevel(), test.ShouldEqual, log.DebugLevel)
}

type flushCounter struct {
	bytes.Buffer
	flushes int
}

func (f *flushCounter) Flush() error {
	f.flushes++
	return nil
}
