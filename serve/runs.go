package serve

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/pkg/errors"

	"rawcap/catalog"
)

// DefaultRunsLimit is how many runs /runs returns without a limit parameter.
const DefaultRunsLimit = 20

// RunCatalog is the read side of the run catalog.
type RunCatalog interface {
	Get(id string) (*catalog.Run, error)
	Recent(limit int) ([]catalog.Run, error)
}

type RunsResponse struct {
	Items      []catalog.Run `json:"items"`
	ItemsCount int           `json:"items_count"`
}

// RunsServer lists the most recent runs of the catalog.
type RunsServer struct {
	Catalog RunCatalog
}

func (s *RunsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit := DefaultRunsLimit
	if v := r.Form.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, fmt.Sprintf("Invalid limit %q", v), http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := s.Catalog.Recent(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []catalog.Run{}
	}
	writeJSON(w, &RunsResponse{Items: runs, ItemsCount: len(runs)})
}

// RunServer returns a single run by identifier.
type RunServer struct {
	Catalog RunCatalog
}

func (s *RunServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := r.Form.Get("id")
	if id == "" {
		http.Error(w, "Missing run id", http.StatusBadRequest)
		return
	}

	run, err := s.Catalog.Get(id)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		http.Error(w, fmt.Sprintf("No run found for id %v", id), http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, run)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	js, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(js)
}
