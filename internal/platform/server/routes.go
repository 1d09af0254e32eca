package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// StatusResponse is the body of the health and readiness endpoints.
type StatusResponse struct {
	Status string `json:"status"`
}

// setupRoutes creates the chi router.
func (s *Server) setupRoutes() chi.Router {
	r := chi.NewRouter()

	// RequestID must come first so GetReqID works in the access log.
	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthHandler)
	r.Get("/readyz", s.readyHandler)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	return r
}

// healthHandler handles GET /healthz.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, "ok")
}

// readyHandler handles GET /readyz: 200 once the notice is posted.
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if s.ready == nil || !s.ready() {
		writeStatus(w, http.StatusServiceUnavailable, "starting")
		return
	}
	writeStatus(w, http.StatusOK, "ready")
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(StatusResponse{Status: status})
}
