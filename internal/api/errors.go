package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	apperrors "github.com/record-sync/internal/errors"
	"github.com/record-sync/internal/logging"
)

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// respondError renders err as {"detail": ...} with the status its category maps to.
// Rate limit rejections also carry Retry-After.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	catErr := apperrors.Categorize(err)

	if seconds, ok := apperrors.RetryAfter(catErr); ok {
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}

	logger := logging.FromContext(r.Context()).WithFields(map[string]interface{}{
		"code":   catErr.Code,
		"status": catErr.StatusCode,
		"path":   r.URL.Path,
	}).WithError(err)
	switch {
	case apperrors.IsSystemError(catErr):
		logger.Error("Request failed")
	case apperrors.IsUserError(catErr):
		logger.Debug("Request rejected")
	}

	respondJSON(w, catErr.StatusCode, ErrorResponse{Detail: catErr.Message})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// queryInt reads a non-negative integer query parameter, falling back to def when absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewInvalidParameterError(name, "must be an integer")
	}
	if v < 0 {
		return 0, apperrors.NewInvalidParameterError(name, "must not be negative")
	}
	return v, nil
}

// pathID parses the {id} route variable.
func pathID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperrors.NewInvalidParameterError("id", "must be an integer")
	}
	return id, nil
}
