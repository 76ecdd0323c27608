package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/FocuswithJustin/docdiff/core/errors"
	"github.com/FocuswithJustin/docdiff/internal/logging"
	"github.com/FocuswithJustin/docdiff/internal/validation"
)

// APIResponse is the standard API response wrapper.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *APIMeta  `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIMeta contains response metadata.
type APIMeta struct {
	Total     int    `json:"total,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Error codes returned in APIError.Code.
const (
	CodeInvalidArchive    = "INVALID_ARCHIVE"
	CodeMissingMember     = "MISSING_MEMBER"
	CodeMalformedMarkup   = "MALFORMED_MARKUP"
	CodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeInvalidUpload     = "INVALID_UPLOAD"
	CodePayloadTooLarge   = "PAYLOAD_TOO_LARGE"
	CodeNotFound          = "NOT_FOUND"
	CodeInternal          = "INTERNAL_ERROR"
)

func respond(w http.ResponseWriter, status int, data any) {
	respondMeta(w, status, data, &APIMeta{})
}

func respondMeta(w http.ResponseWriter, status int, data any, meta *APIMeta) {
	meta.Timestamp = time.Now().UTC().Format(time.RFC3339)
	writeJSON(w, status, APIResponse{Success: true, Data: data, Meta: meta})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message},
		Meta:    &APIMeta{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// classify maps an error to its HTTP status and error code. Document
// errors are the client's input being unusable, hence 422.
func classify(err error) (int, string) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, errors.ErrArchiveFormat):
		return http.StatusUnprocessableEntity, CodeInvalidArchive
	case errors.Is(err, errors.ErrMissingMember):
		return http.StatusUnprocessableEntity, CodeMissingMember
	case errors.Is(err, errors.ErrMarkupParse):
		return http.StatusUnprocessableEntity, CodeMalformedMarkup
	case errors.Is(err, errors.ErrUnsupported):
		return http.StatusUnprocessableEntity, CodeUnsupportedFormat
	case stderrors.As(err, &maxBytes), errors.Is(err, validation.ErrUploadTooLarge):
		return http.StatusRequestEntityTooLarge, CodePayloadTooLarge
	case errors.Is(err, validation.ErrEmptyUpload),
		errors.Is(err, validation.ErrTypeMismatch),
		errors.Is(err, validation.ErrInvalidFilename),
		errors.Is(err, validation.ErrFilenameTooLong):
		return http.StatusBadRequest, CodeInvalidUpload
	case errors.Is(err, errors.ErrInvalidInput):
		return http.StatusBadRequest, CodeInvalidInput
	case errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	}
	return http.StatusInternalServerError, CodeInternal
}

// respondErr writes err using classify. Internal errors are logged and
// reported without detail.
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logging.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"error", err)
		msg = "Internal server error"
	}
	respondError(w, status, code, msg)
}
