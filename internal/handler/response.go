package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/repairhub/api/internal/logger"
	"github.com/repairhub/api/internal/service"
)

const (
	kindValidation   = "validation_error"
	kindUnauthorized = "unauthorized"
	kindForbidden    = "forbidden"
	kindExternal     = "external_failure"
	kindInternal     = "internal"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L().Error("encode JSON response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Kind: kind})
}

// writeServiceError maps a service error to its HTTP status. Unclassified
// errors are logged and hidden behind a generic message.
func writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	kind := service.Kind(err)
	var status int
	switch kind {
	case "validation_error":
		status = http.StatusBadRequest
	case "forbidden":
		status = http.StatusForbidden
	case "not_found":
		status = http.StatusNotFound
	case "invalid_transition":
		status = http.StatusConflict
	case "external_failure":
		status = http.StatusBadGateway
		logger.FromCtx(r.Context()).Error(op, zap.Error(err))
	default:
		logger.FromCtx(r.Context()).Error(op, zap.Error(err))
		writeError(w, http.StatusInternalServerError, kindInternal, "internal server error")
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}

// decodeJSON reads a JSON body. maxBytes caps the body size when > 0.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, v interface{}) error {
	body := r.Body
	if maxBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	return json.NewDecoder(body).Decode(v)
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
