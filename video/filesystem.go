package video

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"rawcap/video/source"
)

// FileTimeLayout defines the timestamp prefix of capture filenames.
// See https://golang.org/src/time/format.go.
const FileTimeLayout = "20060102-150405-Z0700"

// CaptureRecord is one capture file found in a Filesystem.
type CaptureRecord struct {
	Time   time.Time     `json:"time"`
	Run    string        `json:"run"`
	FourCC source.FourCC `json:"fourcc"`
	Path   string        `json:"path"`
	Size   int64         `json:"size"`
}

// Filesystem names capture files inside an output directory.
type Filesystem struct {
	BasePath string

	records []*CaptureRecord
	l       sync.Mutex
}

func NewFilesystem(path string) (*Filesystem, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, errors.Wrapf(err, "create output directory %s", path)
	}
	return &Filesystem{
		BasePath: path,
	}, nil
}

// Path returns the file a capture starting at t should be written to.
func (f *Filesystem) Path(t time.Time, run string, fourcc source.FourCC) string {
	name := t.Format(FileTimeLayout) + "_" + run + "." + strings.ToLower(string(fourcc))
	return filepath.Join(f.BasePath, name)
}

// Refresh rescans the directory for capture files.
func (f *Filesystem) Refresh() error {
	entries, err := os.ReadDir(f.BasePath)
	if err != nil {
		return errors.Wrapf(err, "scan %s", f.BasePath)
	}

	var records []*CaptureRecord
	for _, e := range entries {
		b := e.Name()
		if e.IsDir() || len(b) < len(FileTimeLayout)+1 {
			continue
		}
		t, err := time.Parse(FileTimeLayout, b[:len(FileTimeLayout)])
		if err != nil {
			continue
		}
		rest := b[len(FileTimeLayout):]
		if rest[0] != '_' {
			continue
		}
		run, ext, ok := strings.Cut(rest[1:], ".")
		if !ok {
			continue
		}
		fourcc, err := source.ParseFourCC(ext)
		if err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		records = append(records, &CaptureRecord{
			Time:   t,
			Run:    run,
			FourCC: fourcc,
			Path:   filepath.Join(f.BasePath, b),
			Size:   info.Size(),
		})
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Time.Before(records[j].Time)
	})

	f.l.Lock()
	defer f.l.Unlock()
	f.records = records
	return nil
}

// Records returns the captures found by the last Refresh, oldest first.
func (f *Filesystem) Records() []*CaptureRecord {
	f.l.Lock()
	defer f.l.Unlock()
	return f.records[:]
}

// RecordByRun returns the capture written by run, or nil.
func (f *Filesystem) RecordByRun(run string) *CaptureRecord {
	f.l.Lock()
	defer f.l.Unlock()
	for _, r := range f.records {
		if r.Run == run {
			return r
		}
	}
	return nil
}

// Delete removes a capture file and forgets it.
func (f *Filesystem) Delete(r *CaptureRecord) error {
	if err := os.Remove(r.Path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "delete %s", r.Path)
	}
	f.l.Lock()
	defer f.l.Unlock()
	for i, v := range f.records {
		if v == r {
			f.records = append(f.records[:i:i], f.records[i+1:]...)
			break
		}
	}
	return nil
}
