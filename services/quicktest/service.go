package quicktest

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Service exposes quick tests over HTTP.
type Service struct {
	orchestrator *Orchestrator
}

// NewService creates a Service around an Orchestrator.
func NewService(orchestrator *Orchestrator) *Service {
	return &Service{orchestrator: orchestrator}
}

// jsonMiddleware sets the Content-Type header to application/json.
func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// LoadRoutes registers quick test HTTP handlers on the given router.
func (s *Service) LoadRoutes(parentRouter *mux.Router) {
	router := parentRouter.NewRoute().Subrouter()
	router.StrictSlash(false)
	router.Use(jsonMiddleware)

	router.HandleFunc("/instances/{id}/quick-tests", s.HandleSubmit).Methods("POST")

	tests := router.PathPrefix("/quick-tests").Subrouter()
	tests.HandleFunc("/{id}", s.HandleGetStatus).Methods("GET")
	tests.HandleFunc("/{id}/cancel", s.HandleCancel).Methods("POST")
	tests.HandleFunc("/{id}/events", s.HandleWorkerEvent).Methods("POST")
}
