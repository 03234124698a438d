package serve

import (
	"encoding/json"
	"net/http"
	"time"

	"rawcap/video"
)

// StatsProvider is anything that can report writer statistics, usually a
// *video.FrameWriter.
type StatsProvider interface {
	Stats() video.Stats
}

type StatsResponse struct {
	Run       string      `json:"run"`
	Source    string      `json:"source"`
	Output    string      `json:"output"`
	UptimeSec float64     `json:"uptime_sec"`
	Writer    video.Stats `json:"writer"`
}

type StatsServer struct {
	Writer  StatsProvider
	Run     string
	Source  string
	Output  string
	Started time.Time
}

func (s *StatsServer) BuildResponse() *StatsResponse {
	return &StatsResponse{
		Run:       s.Run,
		Source:    s.Source,
		Output:    s.Output,
		UptimeSec: time.Since(s.Started).Seconds(),
		Writer:    s.Writer.Stats(),
	}
}

func (s *StatsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	js, err := json.Marshal(s.BuildResponse())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(js)
}
