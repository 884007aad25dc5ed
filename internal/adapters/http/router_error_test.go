package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/property-vault/internal/config"
	"github.com/kirillkom/property-vault/internal/core/domain"
)

func TestUploadMapsDomainErrorsToStatus(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"missing file", domain.WrapError(domain.ErrMissingFile, "upload", errors.New("empty")), http.StatusBadRequest, "No file uploaded"},
		{"unsupported", domain.WrapError(domain.ErrUnsupportedType, "upload", errors.New("text/plain")), http.StatusUnsupportedMediaType, "Unsupported file type"},
		{"too large", domain.WrapError(domain.ErrFileTooLarge, "upload", errors.New("11 MiB")), http.StatusRequestEntityTooLarge, "File too large"},
		{"store down", fmt.Errorf("create document metadata: %w", domain.WrapError(domain.ErrStoreUnavailable, "insert", errors.New("dial tcp"))), http.StatusServiceUnavailable, "Service temporarily unavailable"},
		{"unexpected", errors.New("disk on fire"), http.StatusInternalServerError, "Server error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestHandler(config.Config{}, &ingestFake{err: tc.err}, readerFake{})

			body, contentType := multipartBody(t, "document", "deed.pdf", "application/pdf", []byte("x"))
			req := httptest.NewRequest(http.MethodPost, "/documents", body)
			req.Header.Set("Content-Type", contentType)
			req.Header.Set("Authorization", bearerFor(t, "owner-1"))
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)

			if res.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, res.Code)
			}
			var resp errorResponse
			if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Status != "error" || resp.Message != tc.message {
				t.Fatalf("unexpected error body: %+v", resp)
			}
		})
	}
}

func TestListDocumentsStoreUnavailableReturns503(t *testing.T) {
	reader := readerFake{err: domain.WrapError(domain.ErrStoreUnavailable, "list", errors.New("connection refused"))}
	handler := newTestHandler(config.Config{}, nil, reader)

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", bearerFor(t, "owner-1"))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestMapErrorToHTTPStatusDefaults(t *testing.T) {
	if got := mapErrorToHTTPStatus(domain.WrapError(domain.ErrInvalidInput, "x", errors.New("y"))); got != http.StatusBadRequest {
		t.Fatalf("invalid input: expected 400, got %d", got)
	}
	if got := mapErrorToHTTPStatus(domain.WrapError(domain.ErrTemporary, "x", errors.New("y"))); got != http.StatusServiceUnavailable {
		t.Fatalf("temporary: expected 503, got %d", got)
	}
	if got := mapErrorToHTTPStatus(domain.ErrExtractionFailure); got != http.StatusInternalServerError {
		t.Fatalf("extraction failure: expected 500, got %d", got)
	}
}
