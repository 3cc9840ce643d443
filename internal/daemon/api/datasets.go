package api

import (
	"errors"
	"net/http"

	"github.com/carpit680/openbot-go/internal/daemon/hub"
)

func (s *Server) handleDatasetsList(w http.ResponseWriter, r *http.Request) {
	author := r.URL.Query().Get("author")
	if author == "" {
		s.httpError(w, http.StatusBadRequest, "author query parameter is required")
		return
	}
	list, err := s.c.Hub.ListByAuthor(r.Context(), author, s.c.Env.Token())
	if err != nil {
		s.hubError(w, err, "Failed to list datasets")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"datasets": list, "count": len(list)})
}

func (s *Server) handleDatasetsSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		s.httpError(w, http.StatusBadRequest, "q query parameter is required")
		return
	}
	list, err := s.c.Hub.Search(r.Context(), query, q.Get("author"), s.c.Env.Token())
	if err != nil {
		s.hubError(w, err, "Failed to search datasets")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"datasets": list, "count": len(list)})
}

func (s *Server) handleDatasetDetails(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	d, err := s.c.Hub.Details(r.Context(), id, s.c.Env.Token())
	if err != nil {
		var herr *hub.HTTPError
		if errors.As(err, &herr) && herr.StatusCode == http.StatusNotFound {
			s.httpError(w, http.StatusNotFound, "Dataset not found: "+id)
			return
		}
		s.hubError(w, err, "Failed to load dataset details")
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}

// hubError maps upstream hub failures to 502 so the dashboard can tell
// daemon faults from hub outages.
func (s *Server) hubError(w http.ResponseWriter, err error, prefix string) {
	s.httpError(w, http.StatusBadGateway, prefix+": "+err.Error())
}
