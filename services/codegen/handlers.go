package codegen

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"logicflow/pkg/apperr"
	"logicflow/pkg/auth"
	"logicflow/services/flow"
)

// HandleValidate runs graph validation on a posted logic flow.
func (s *Service) HandleValidate(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Validating logic flow")

	var f flow.LogicFlow
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(s.generator.Validate(&f))
}

// HandleDetectCycle reports the first cycle found in a posted logic flow.
func (s *Service) HandleDetectCycle(w http.ResponseWriter, r *http.Request) {
	var f flow.LogicFlow
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	path := s.generator.DetectCycle(&f)
	if path == nil {
		path = []string{}
	}
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(CycleResponse{HasCycle: len(path) > 0, Path: path})
}

// HandleGenerate compiles a logic flow for an instance and returns the stored record.
func (s *Service) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	slog.Debug("Generating code", "instance_id", id)

	if !s.authorizeInstance(w, r, id) {
		return
	}

	var body generateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Flow == nil {
		writeError(w, http.StatusBadRequest, "logic_flow is required")
		return
	}
	includeComments := true
	if body.IncludeComments != nil {
		includeComments = *body.IncludeComments
	}

	code, err := s.generator.Generate(r.Context(), GenerateRequest{
		InstanceID:      id,
		Flow:            body.Flow,
		Parameters:      body.Parameters,
		IncludeComments: includeComments,
	})
	if err != nil {
		writeGenerateError(w, id, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(code)
}

// HandleHistory lists an instance's generated code, newest first.
func (s *Service) HandleHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.authorizeInstance(w, r, id) {
		return
	}

	records, err := s.generator.History(r.Context(), id)
	if err != nil {
		slog.Error("Failed to load generated code history", "instance_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(records)
}

// HandleNodeSchema returns ports and parameters of one node type.
func (s *Service) HandleNodeSchema(w http.ResponseWriter, r *http.Request) {
	nt := flow.NodeType(mux.Vars(r)["type"])

	spec, ok := s.generator.Catalog().Node(nt)
	if !ok {
		writeError(w, http.StatusNotFound, "node type not found")
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"type":       spec.Type,
		"inputs":     nonNilPorts(spec.Inputs),
		"outputs":    nonNilPorts(spec.Outputs),
		"parameters": spec.Schema.Parameters,
	})
}

// HandleFactors lists factor descriptors, optionally filtered by ?category=.
func (s *Service) HandleFactors(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(s.generator.Catalog().GetFactorCatalog(category))
}

// authorizeInstance checks the instance id and that the caller owns the
// instance, writing the error response when not.
func (s *Service) authorizeInstance(w http.ResponseWriter, r *http.Request, id string) bool {
	userID, ok := auth.UserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing "+auth.Header+" header")
		return false
	}
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid instance id")
		return false
	}

	owner, err := s.owners.InstanceOwner(r.Context(), id)
	if err != nil {
		writeGenerateError(w, id, err)
		return false
	}
	if owner != userID {
		writeGenerateError(w, id, &apperr.AuthorizationError{Resource: "instance", ID: id, UserID: userID})
		return false
	}
	return true
}

func writeGenerateError(w http.ResponseWriter, instanceID string, err error) {
	var validationErr *flow.ValidationError
	var genErr *CodeGenerationError
	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message":    "logic flow is invalid",
			"validation": validationErr.Result,
		})
	case errors.As(err, &genErr):
		violations := genErr.Violations
		if violations == nil {
			violations = []flow.Violation{}
		}
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message":    genErr.Error(),
			"violations": violations,
		})
	case apperr.Status(err) != http.StatusInternalServerError:
		writeError(w, apperr.Status(err), err.Error())
	default:
		slog.Error("Code generation failed", "instance_id", instanceID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func nonNilPorts(ports []flow.PortSpec) []flow.PortSpec {
	if ports == nil {
		return []flow.PortSpec{}
	}
	return ports
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
