package api

import (
	"context"
	"net/http"
	"time"

	"lyricbox/svc/util"
)

type HealthResponse struct {
	Status string `json:"status"`
}
type ReadyResponse struct {
	Ready   bool   `json:"ready"`
	Store   string `json:"store"`
	Backend string `json:"backend"`
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}
func (s *Server) Ready(w http.ResponseWriter, r *http.Request) {
	resp := ReadyResponse{
		Ready:   true,
		Store:   "up",
		Backend: s.cfg.StoreBackend,
	}
	if s.store == nil {
		resp.Ready = false
		resp.Store = "unconfigured"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		util.Error().Err(err).Msg("store health check failed")
		resp.Ready = false
		resp.Store = "down"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
