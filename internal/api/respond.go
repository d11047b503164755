package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"olibox/agent/internal/apperr"
)

const maxBodyBytes int64 = 1 << 20

var ErrBody = errors.New("request body is invalid")

type errorBody struct {
	Error    string `json:"error"`
	Category string `json:"category"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, operation string, err error) {
	status := apperr.HTTPStatus(err)
	category := apperr.Category(err)
	s.metrics.RecordError(category)
	attrs := []any{
		"component", componentName,
		"operation", operation,
		"category", category,
		"status", status,
		"error", err.Error(),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", attrs...)
	} else {
		s.logger.Warn("request rejected", attrs...)
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Category: category})
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(out); err != nil {
		return apperr.Format(fmt.Errorf("%w: %v", ErrBody, err))
	}
	return nil
}
