package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"vuoksi-trader/apperrors"
)

// getIntParam retrieves an integer query parameter with default value and optional range validation
func getIntParam(r *http.Request, key string, defaultVal int, minVal, maxVal *int) int {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultVal
	}

	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}

	if minVal != nil && val < *minVal {
		return defaultVal
	}
	if maxVal != nil && val > *maxVal {
		return defaultVal
	}

	return val
}

// getDateParam parses a YYYY-MM-DD query parameter; nil when absent
func getDateParam(r *http.Request, key string) (*time.Time, error) {
	return parseOptionalDate(key, r.URL.Query().Get(key))
}

func intPtr(v int) *int { return &v }

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// errorStatus maps an error kind to its HTTP status
func errorStatus(err error) int {
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindConflict:
		return http.StatusConflict
	case apperrors.KindComputationSkipped:
		return http.StatusUnprocessableEntity
	case apperrors.KindPartialFailure:
		return http.StatusMultiStatus
	case apperrors.KindUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	Reason string `json:"reason,omitempty"`
}

// respondWithError logs the error and sends a JSON error response.
// Internal errors are logged but their text is not returned.
func (s *Server) respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	code := errorStatus(err)
	body := errorBody{
		Error:  err.Error(),
		Kind:   apperrors.KindOf(err).String(),
		Reason: apperrors.ReasonOf(err),
	}

	ev := s.log.Warn()
	if code >= 500 {
		ev = s.log.Error()
		var appErr *apperrors.Error
		if !errors.As(err, &appErr) {
			body.Error = http.StatusText(code)
		}
	}
	ev.Err(err).Str("path", r.URL.Path).Int("status", code).Msg("API error")
	writeJSON(w, code, body)
}

func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, field, reason string) {
	s.respondWithError(w, r, apperrors.Validation("api", field, reason))
}
