package respond

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"vehicle-orders/internal/domain"
)

const maxBodyBytes = 1 << 20

const (
	CodeValidation    = "VALIDATION_ERROR"
	CodeStateConflict = "STATE_CONFLICT"
	CodeNotFound      = "NOT_FOUND"
	CodeForbidden     = "FORBIDDEN"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeUpstream      = "UPSTREAM_PROVIDER_ERROR"
	CodeInternal      = "INTERNAL_ERROR"
)

type ErrorBody struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Details []domain.FieldError `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error ErrorBody `json:"error"`
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, body ErrorBody) {
	JSON(w, status, errorEnvelope{Error: body})
}

// Error maps the domain error taxonomy onto a status code and a stable error
// code. Unclassified errors are logged and reported generically.
func Error(w http.ResponseWriter, logger *zap.Logger, err error) {
	var (
		validation *domain.ValidationError
		conflict   *domain.StateConflictError
		upstream   *domain.UpstreamError
	)
	switch {
	case errors.As(err, &validation):
		WriteError(w, http.StatusBadRequest, ErrorBody{Code: CodeValidation, Message: validation.Message, Details: validation.Fields})
	case errors.As(err, &conflict):
		WriteError(w, http.StatusBadRequest, ErrorBody{Code: CodeStateConflict, Message: conflict.Error()})
	case errors.Is(err, domain.ErrNotFound):
		WriteError(w, http.StatusNotFound, ErrorBody{Code: CodeNotFound, Message: err.Error()})
	case errors.Is(err, domain.ErrForbidden):
		WriteError(w, http.StatusForbidden, ErrorBody{Code: CodeForbidden, Message: err.Error()})
	case errors.As(err, &upstream):
		logger.Error("Upstream provider error", zap.String("provider", upstream.Provider), zap.String("op", upstream.Op), zap.Error(err))
		WriteError(w, http.StatusBadGateway, ErrorBody{Code: CodeUpstream, Message: fmt.Sprintf("%s is unavailable, try again later", upstream.Provider)})
	default:
		logger.Error("Internal server error", zap.Error(err))
		WriteError(w, http.StatusInternalServerError, ErrorBody{Code: CodeInternal, Message: "Internal server error"})
	}
}

// DecodeJSON reads a bounded JSON body into dst, rejecting unknown fields.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.NewValidationError("invalid request body", domain.FieldError{Field: "body", Message: err.Error()})
	}
	return nil
}
