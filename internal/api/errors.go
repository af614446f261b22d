package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-ezviz/internal/integration"
	"github.com/nerrad567/gray-logic-ezviz/internal/observation"
)

// Error is the body of every non-2xx JSON response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeNotFound           = "not_found"
	ErrCodeNoData             = "no_data"
	ErrCodeUnauthorized       = "unauthorised"
	ErrCodeNotSupported       = "not_supported"
	ErrCodeNotReady           = "not_ready"
	ErrCodeUnlockFailed       = "unlock_failed"
	ErrCodeBadGateway         = "bad_gateway"
	ErrCodeServiceUnavailable = "service_unavailable"
	ErrCodeInternal           = "internal_error"
)

// deviceErrors maps integration errors onto responses. An empty message
// means the error text is passed through.
var deviceErrors = []struct {
	target  error
	status  int
	code    string
	message string
}{
	{integration.ErrNotSetUp, http.StatusServiceUnavailable, ErrCodeNotReady, "device is not set up"},
	{observation.ErrNoImage, http.StatusNotFound, ErrCodeNoData, "no snapshot available"},
	{observation.ErrUnsupported, http.StatusUnprocessableEntity, ErrCodeNotSupported, ""},
}

// writeDeviceError answers a failed device call. Errors not in deviceErrors
// get fallback, whose message may likewise be empty.
func writeDeviceError(w http.ResponseWriter, err error, fallback Error) {
	resp := fallback
	for _, m := range deviceErrors {
		if errors.Is(err, m.target) {
			resp = Error{Status: m.status, Code: m.code, Message: m.message}
			break
		}
	}
	if resp.Message == "" {
		resp.Message = err.Error()
	}
	writeJSON(w, resp.Status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	//nolint:errcheck // The client may already be gone
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeNotReady(w http.ResponseWriter) {
	writeDeviceError(w, integration.ErrNotSetUp, Error{})
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}
