package codegen

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"

	"logicflow/services/flow"
	"logicflow/services/security"
)

// InstanceOwners resolves the user that owns a strategy instance. Unknown
// instances yield an error that unwraps to apperr.ErrNotFound.
type InstanceOwners interface {
	InstanceOwner(ctx context.Context, instanceID string) (string, error)
}

// Service exposes the compiler over HTTP.
type Service struct {
	generator *Generator
	owners    InstanceOwners
}

// NewService creates a Service around an existing Generator. Instance
// endpoints only serve the instance's owner.
func NewService(generator *Generator, owners InstanceOwners) *Service {
	return &Service{generator: generator, owners: owners}
}

// NewPostgresGenerator builds a Generator whose store is the generated_codes
// table, creating the table if needed.
func NewPostgresGenerator(ctx context.Context, pool *pgxpool.Pool, catalog *flow.Catalog, sec *security.Validator) (*Generator, error) {
	repo := NewRepository(pool)
	if err := repo.InitSchema(ctx); err != nil {
		return nil, err
	}
	return NewGenerator(catalog, sec, repo), nil
}

// jsonMiddleware sets the Content-Type header to application/json.
func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// LoadRoutes registers compiler and catalog HTTP handlers on the given router.
func (s *Service) LoadRoutes(parentRouter *mux.Router) {
	router := parentRouter.NewRoute().Subrouter()
	router.StrictSlash(false)
	router.Use(jsonMiddleware)

	router.HandleFunc("/logic-flows/validate", s.HandleValidate).Methods("POST")
	router.HandleFunc("/logic-flows/cycles", s.HandleDetectCycle).Methods("POST")
	router.HandleFunc("/instances/{id}/code", s.HandleGenerate).Methods("POST")
	router.HandleFunc("/instances/{id}/code", s.HandleHistory).Methods("GET")
	router.HandleFunc("/catalog/nodes/{type}", s.HandleNodeSchema).Methods("GET")
	router.HandleFunc("/catalog/factors", s.HandleFactors).Methods("GET")
}
