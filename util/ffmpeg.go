package util

import (
	"os"
	"os/exec"

	"github.com/pkg/errors"
)

// LocateFFmpeg finds the ffmpeg binary, preferring $FFMPEG over $PATH.
func LocateFFmpeg() (string, error) {
	if p := os.Getenv("FFMPEG"); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", errors.Wrap(err, "FFMPEG")
		}
		return p, nil
	}
	p, err := exec.LookPath("ffmpeg")
	if err != nil {
		return "", errors.Wrap(err, "ffmpeg is required for encoding; put it in $PATH or set $FFMPEG")
	}
	return p, nil
}
