package httpadapter

import (
	"log/slog"
	"net/http"

	"github.com/kirillkom/property-vault/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrMissingFile), domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case domain.IsKind(err, domain.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case domain.IsKind(err, domain.ErrStoreUnavailable), domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage never leaks internal error detail to clients.
func publicMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "No file uploaded"
	case http.StatusUnauthorized:
		return "Token is not valid."
	case http.StatusNotFound:
		return "Document not found"
	case http.StatusRequestEntityTooLarge:
		return "File too large"
	case http.StatusUnsupportedMediaType:
		return "Unsupported file type"
	case http.StatusServiceUnavailable:
		return "Service temporarily unavailable"
	default:
		return "Server error"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	message := publicMessage(status)
	if status == http.StatusBadRequest && domain.IsKind(err, domain.ErrInvalidInput) {
		message = "Invalid request"
	}

	attrs := []any{
		"request_id", requestIDFromContext(r.Context()),
		"owner_id", ownerIDFromContext(r.Context()),
		"status", status,
		"error", err,
	}
	if status >= http.StatusInternalServerError {
		slog.Error("http_error", attrs...)
	} else {
		slog.Debug("http_error", attrs...)
	}
	writeJSON(w, status, errorResponse{Status: "error", Message: message})
}
