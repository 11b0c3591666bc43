package quicktest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"logicflow/pkg/apperr"
	"logicflow/pkg/auth"
	"logicflow/services/codegen"
	"logicflow/services/flow"
)

// HandleSubmit starts a quick test for an instance and returns 202 with the pending record.
func (s *Service) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	slog.Debug("Submitting quick test", "instance_id", id)

	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid instance id")
		return
	}

	var req QuickTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	qt, err := s.orchestrator.Submit(r.Context(), userID, id, req)
	if err != nil {
		writeServiceError(w, "Failed to submit quick test", id, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(qt)
}

// HandleGetStatus returns the current state of a quick test.
func (s *Service) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := testID(w, r)
	if !ok {
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	qt, err := s.orchestrator.GetStatus(r.Context(), userID, id)
	if err != nil {
		writeServiceError(w, "Failed to get quick test", id, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(qt)
}

// HandleCancel cancels a pending or running quick test.
func (s *Service) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := testID(w, r)
	if !ok {
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	slog.Debug("Cancelling quick test", "id", id)

	qt, err := s.orchestrator.Cancel(r.Context(), userID, id)
	if err != nil {
		writeServiceError(w, "Failed to cancel quick test", id, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(qt)
}

// HandleWorkerEvent applies a callback posted by an external execution worker.
func (s *Service) HandleWorkerEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := testID(w, r)
	if !ok {
		return
	}

	var ev WorkerEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	slog.Debug("Worker event", "id", id, "type", ev.Type)

	var qt *QuickTest
	var err error
	switch ev.Type {
	case "started":
		qt, err = s.orchestrator.OnWorkerStarted(r.Context(), id)
	case "progress":
		qt, err = s.orchestrator.OnWorkerProgress(r.Context(), id, ev.Progress)
	case "completed":
		qt, err = s.orchestrator.OnWorkerCompleted(r.Context(), id, ev.Metrics)
	case "failed":
		if strings.TrimSpace(ev.Error) == "" {
			ev.Error = "worker reported failure"
		}
		qt, err = s.orchestrator.OnWorkerFailed(r.Context(), id, ev.Error)
	default:
		writeError(w, http.StatusBadRequest, "unknown event type")
		return
	}
	if err != nil {
		writeServiceError(w, "Failed to apply worker event", id, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(qt)
}

func testID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := mux.Vars(r)["id"]
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid quick test id")
		return "", false
	}
	return id, true
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.UserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing "+auth.Header+" header")
	}
	return userID, ok
}

func writeServiceError(w http.ResponseWriter, logMsg, id string, err error) {
	var validationErr *flow.ValidationError
	var genErr *codegen.CodeGenerationError
	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message":    "logic flow is invalid",
			"validation": validationErr.Result,
		})
	case errors.As(err, &genErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message":    genErr.Error(),
			"violations": genErr.Violations,
		})
	default:
		status := apperr.Status(err)
		if status == http.StatusInternalServerError {
			slog.Error(logMsg, "id", id, "error", err)
			writeError(w, status, "internal server error")
			return
		}
		writeError(w, status, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
