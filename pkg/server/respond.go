package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/policyprobe/policyprobe/pkg/engine"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Warn("failed to encode response")
	}
}

// writeError maps engine error classes to HTTP status codes: validation and
// other config errors become 400, not-found 404, everything else 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := ""

	var e *engine.EngineError
	if errors.As(err, &e) {
		code = e.Code
		switch {
		case e.Code == engine.ErrCodeNotFound:
			status = http.StatusNotFound
		case engine.IsConfigError(err):
			status = http.StatusBadRequest
		}
	}

	if status == http.StatusInternalServerError {
		s.logger.WithError(err).Error("request failed")
	}
	s.writeJSON(w, status, errorBody{Error: err.Error(), Code: code})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{
			Error: "invalid request body: " + err.Error(),
			Code:  engine.ErrCodeValidation,
		})
		return false
	}
	return true
}
