package httpadapter

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/property-vault/internal/config"
	"github.com/kirillkom/property-vault/internal/core/domain"
	"github.com/kirillkom/property-vault/internal/core/usecase"
)

const testSecret = "test-secret"

type ingestFake struct {
	mu        sync.Mutex
	err       error
	ownerID   string
	file      domain.UploadFile
	body      []byte
	requestID string
}

func (f *ingestFake) Upload(ctx context.Context, ownerID string, file domain.UploadFile) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	raw, err := io.ReadAll(file.Content)
	if err != nil {
		return nil, err
	}
	f.ownerID = ownerID
	f.file = file
	f.body = raw
	f.requestID = usecase.RequestIDFromContext(ctx)

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &domain.Document{
		ID:           "doc-1",
		OwnerID:      ownerID,
		OriginalName: file.Name,
		MimeType:     file.MimeType,
		ByteSize:     int64(len(raw)),
		StorageKey:   "doc-1_" + file.Name,
		Status:       domain.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

type readerFake struct {
	docs []domain.Document
	err  error
}

func (f readerFake) ListByOwner(_ context.Context, ownerID string) ([]domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Document, 0)
	for _, doc := range f.docs {
		if doc.OwnerID == ownerID {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (f readerFake) GetForOwner(_ context.Context, ownerID, documentID string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, doc := range f.docs {
		if doc.ID == documentID && doc.OwnerID == ownerID {
			cp := doc
			return &cp, nil
		}
	}
	return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", io.EOF)
}

func newTestHandler(cfg config.Config, ingestor *ingestFake, reader readerFake) http.Handler {
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = testSecret
	}
	if ingestor == nil {
		ingestor = &ingestFake{}
	}
	return NewRouter(cfg, ingestor, reader).Handler()
}

func bearerFor(t *testing.T, ownerID string) string {
	t.Helper()
	token, err := SignToken([]byte(testSecret), Claims{Sub: ownerID, Exp: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("SignToken() error = %v", err)
	}
	return "Bearer " + token
}

func multipartBody(t *testing.T, field, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("CreatePart() error = %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return &body, writer.FormDataContentType()
}
