// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/adiadia/hitl-gateway/internal/domain"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error             string                `json:"error"`
	Message           string                `json:"message"`
	CurrentStatus     domain.WorkflowStatus `json:"current_status,omitempty"`
	CurrentCheckpoint domain.CheckpointType `json:"current_checkpoint,omitempty"`
}

// errBadRequest marks a body that could not be decoded.
type errBadRequest struct {
	err error
}

func (e *errBadRequest) Error() string { return "invalid request body: " + e.err.Error() }
func (e *errBadRequest) Unwrap() error { return e.err }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto status codes and the JSON error body.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		invalidState *domain.InvalidStateError
		mismatch     *domain.CheckpointMismatchError
		validation   *domain.ValidationError
		badRequest   *errBadRequest
	)

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_error", Message: validation.Error()})
	case errors.As(err, &badRequest):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_request", Message: badRequest.Error()})
	case errors.As(err, &invalidState):
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:         "invalid_state",
			Message:       invalidState.Error(),
			CurrentStatus: invalidState.Status,
		})
	case errors.As(err, &mismatch):
		writeJSON(w, http.StatusConflict, errorBody{
			Error:             "checkpoint_mismatch",
			Message:           mismatch.Error(),
			CurrentCheckpoint: mismatch.Current,
		})
	case errors.Is(err, domain.ErrWorkflowNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: "Workflow not found"})
	case errors.Is(err, domain.ErrApprovalNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: "Approval not found"})
	case errors.Is(err, domain.ErrDuplicateWorkflow):
		writeJSON(w, http.StatusConflict, errorBody{Error: "duplicate_workflow", Message: err.Error()})
	default:
		logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error:   "internal_error",
			Message: "An unexpected error occurred",
		})
	}
}

// decodeStrict decodes exactly one JSON object and rejects unknown fields.
func decodeStrict(w http.ResponseWriter, r *http.Request, dst any) error {
	return decodeBody(w, r, dst, true)
}

// decodeLenient accepts unknown fields; agent payloads carry arbitrary task
// output alongside the fields the gateway reads.
func decodeLenient(w http.ResponseWriter, r *http.Request, dst any) error {
	return decodeBody(w, r, dst, false)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any, strict bool) error {
	if r.Body == nil || r.Body == http.NoBody {
		return &errBadRequest{err: errors.New("empty body")}
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(dst); err != nil {
		var validation *domain.ValidationError
		if errors.As(err, &validation) {
			return validation
		}
		if errors.Is(err, io.EOF) {
			return &errBadRequest{err: errors.New("empty body")}
		}
		return &errBadRequest{err: err}
	}

	// Ensure there is only one JSON object.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return &errBadRequest{err: errors.New("request body must contain exactly one JSON object")}
	}
	return nil
}
