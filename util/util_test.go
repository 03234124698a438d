package util

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestEventWaitReturnsFirstError(t *testing.T) {
	e := NewEvent()
	test.That(t, e.HasBeenNotified(), test.ShouldBeFalse)
	test.That(t, e.Err(), test.ShouldBeNil)

	first := errors.New("first")
	done := make(chan error)
	go func() { done <- e.Wait() }()

	select {
	case <-done:
		t.Fatal("Wait returned before Notify")
	case <-time.After(10 * time.Millisecond):
	}

	e.Notify(first)
	e.Notify(errors.New("second"))

	test.That(t, <-done, test.ShouldEqual, first)
	test.That(t, e.HasBeenNotified(), test.ShouldBeTrue)
	test.That(t, e.Err(), test.ShouldEqual, first)
	test.That(t, e.Wait(), test.ShouldEqual, first)
}

func TestLocateFFmpegFromEnv(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "ffmpeg")
	test.That(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755), test.ShouldBeNil)

	t.Setenv("FFMPEG", bin)
	p, err := LocateFFmpeg()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p, test.ShouldEqual, bin)

	t.Setenv("FFMPEG", filepath.Join(dir, "missing"))
	_, err = LocateFFmpeg()
	test.That(t, err, test.ShouldNotBeNil)
}

func TestLocateFFmpegFromPath(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "ffmpeg")
	test.That(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755), test.ShouldBeNil)

	t.Setenv("FFMPEG", "")
	t.Setenv("PATH", dir)
	p, err := LocateFFmpeg()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p, test.ShouldEqual, bin)

	t.Setenv("PATH", t.TempDir())
	_, err = LocateFFmpeg()
	test.That(t, err, test.ShouldNotBeNil)
}
