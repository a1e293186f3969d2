package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/nlq2sql/pkg/apperrors"
	"github.com/ekaya-inc/nlq2sql/pkg/logging"
	nlqsql "github.com/ekaya-inc/nlq2sql/pkg/sql"
)

// maxRequestBytes caps request bodies. Entity tables for a single question are small.
const maxRequestBytes = 1 << 20

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// decodeJSON reads a bounded JSON body into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, err)
	}
	return nil
}

// errorStatus maps a service error to an HTTP status, error code and client message.
func errorStatus(err error) (int, string, string) {
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput), errors.Is(err, apperrors.ErrUnknownCategory):
		return http.StatusBadRequest, "invalid_request", err.Error()
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "not_found", err.Error()
	case errors.Is(err, apperrors.ErrMacroUnresolved),
		errors.Is(err, apperrors.ErrUnexpandedMacro),
		errors.Is(err, nlqsql.ErrMultipleStatements):
		return http.StatusUnprocessableEntity, "render_failed", "could not process this query"
	case errors.Is(err, apperrors.ErrNoDatasource):
		return http.StatusServiceUnavailable, "no_datasource", "no datasource is configured for execution"
	case errors.Is(err, apperrors.ErrDetectorFailed):
		return http.StatusBadGateway, "detection_failed", "entity detection is unavailable"
	case errors.Is(err, apperrors.ErrTranslationFailed):
		return http.StatusBadGateway, "translation_failed", "question translation is unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout", "request timed out"
	default:
		return http.StatusInternalServerError, "internal_error", "internal error"
	}
}

// writeError maps err onto a JSON error response. Server-side failures are logged.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status, code, message := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed",
			zap.String("error_code", code),
			zap.String("error", logging.SanitizeError(err)))
	}
	if werr := ErrorResponse(w, status, code, message); werr != nil {
		logger.Error("Failed to write error response", zap.Error(werr))
	}
}
