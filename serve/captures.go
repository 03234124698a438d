package serve

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"rawcap/video"
)

type CapturesResponse struct {
	Items []*video.CaptureRecord `json:"items"`

	ItemsTotalSize  int64 `json:"items_total_size"`
	ItemsCount      int   `json:"items_count"`
	OldestTimestamp int64 `json:"oldest_timestamp"`
}

// CaptureServer lists the capture files of an output directory.
type CaptureServer struct {
	FS *video.Filesystem
}

func (s *CaptureServer) BuildResponse() (*CapturesResponse, error) {
	if err := s.FS.Refresh(); err != nil {
		return nil, err
	}
	records := s.FS.Records()

	resp := &CapturesResponse{Items: records}
	var sz int64
	for _, r := range records {
		sz += r.Size
	}
	if len(records) > 0 {
		resp.OldestTimestamp = records[0].Time.Unix()
	}
	resp.ItemsTotalSize = sz
	resp.ItemsCount = len(records)
	return resp, nil
}

func (s *CaptureServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp, err := s.BuildResponse()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	js, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(js)
}

func lookup(fs *video.Filesystem, w http.ResponseWriter, r *http.Request) *video.CaptureRecord {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}
	run := r.Form.Get("run")
	cr := fs.RecordByRun(run)
	if cr == nil {
		if err := fs.Refresh(); err == nil {
			cr = fs.RecordByRun(run)
		}
	}
	if cr == nil {
		http.Error(w, fmt.Sprintf("No capture found for run %v", run), http.StatusNotFound)
	}
	return cr
}

// FileServer streams the raw capture file of a run.
type FileServer struct {
	FS *video.Filesystem
}

func (s *FileServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cr := lookup(s.FS, w, r)
	if cr == nil {
		return
	}

	f, err := os.Open(cr.Path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	defer f.Close()

	w.Header().Add("Content-Type", "application/octet-stream")
	io.Copy(w, f)
}

// DeleteServer removes the capture file of a run.
type DeleteServer struct {
	FS *video.Filesystem
}

func (s *DeleteServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}

	cr := lookup(s.FS, w, r)
	if cr == nil {
		return
	}
	if err := s.FS.Delete(cr); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
