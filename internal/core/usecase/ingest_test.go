package usecase

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/property-vault/internal/core/domain"
)

func newIngestForTest(maxBytes int64) (*IngestDocumentUseCase, *storeFake, *storageFake, *queueFake) {
	repo := newStoreFake()
	storage := newStorageFake()
	queue := &queueFake{}
	uc := NewIngestDocumentUseCase(repo, storage, queue, UploadPolicy{MaxBytes: maxBytes})
	return uc, repo, storage, queue
}

func uploadFile(name, mimeType, body string) domain.UploadFile {
	return domain.UploadFile{
		Name:     name,
		MimeType: mimeType,
		Size:     int64(len(body)),
		Content:  bytes.NewBufferString(body),
	}
}

func TestIngestUploadSuccess(t *testing.T) {
	uc, repo, storage, queue := newIngestForTest(1024)
	ctx := WithRequestID(context.Background(), "req-1")

	doc, err := uc.Upload(ctx, "owner-1", uploadFile("deed 1.pdf", "application/pdf", "%PDF-1.4"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	uc.Wait()

	if doc.ID == "" {
		t.Fatalf("expected document id")
	}
	if doc.Status != domain.StatusPending || doc.IsProcessed || doc.ExtractedText != "" {
		t.Fatalf("expected fresh pending document, got %+v", doc)
	}
	if doc.OwnerID != "owner-1" || doc.ByteSize != 8 || doc.MimeType != "application/pdf" {
		t.Fatalf("unexpected metadata: %+v", doc)
	}
	if doc.EnqueuedAt == nil || !doc.CreatedAt.Equal(doc.UpdatedAt) {
		t.Fatalf("expected enqueue mark and equal timestamps, got %+v", doc)
	}
	if repo.get(doc.ID) == nil {
		t.Fatalf("expected repo.Create call")
	}
	if !strings.HasSuffix(doc.StorageKey, "_deed_1.pdf") {
		t.Fatalf("expected sanitized key suffix, got %s", doc.StorageKey)
	}
	if string(storage.objects[doc.StorageKey]) != "%PDF-1.4" {
		t.Fatalf("expected saved body, got %q", storage.objects[doc.StorageKey])
	}

	tasks := queue.enqueued()
	if len(tasks) != 1 || tasks[0].DocumentID != doc.ID || tasks[0].RequestID != "req-1" {
		t.Fatalf("expected exactly one task for %s, got %+v", doc.ID, tasks)
	}
}

func TestIngestUploadValidationOrder(t *testing.T) {
	cases := []struct {
		name    string
		ownerID string
		file    domain.UploadFile
		kind    error
	}{
		{"missing owner beats missing file", "", domain.UploadFile{}, domain.ErrUnauthorized},
		{"missing file", "owner-1", domain.UploadFile{}, domain.ErrMissingFile},
		{"unsupported type", "owner-1", uploadFile("notes.txt", "text/plain", "x"), domain.ErrUnsupportedType},
		{"extension mismatch", "owner-1", uploadFile("deed.png", "application/pdf", "x"), domain.ErrUnsupportedType},
		{"declared oversize", "owner-1", uploadFile("scan.png", "image/png", strings.Repeat("a", 11)), domain.ErrFileTooLarge},
		{"unsupported type beats oversize", "owner-1", uploadFile("big.gif", "image/gif", strings.Repeat("a", 11)), domain.ErrUnsupportedType},
		{"empty content", "owner-1", uploadFile("scan.jpeg", "image/jpeg", ""), domain.ErrMissingFile},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			uc, repo, _, queue := newIngestForTest(10)

			_, err := uc.Upload(context.Background(), tc.ownerID, tc.file)
			uc.Wait()
			if !domain.IsKind(err, tc.kind) {
				t.Fatalf("expected %v, got %v", tc.kind, err)
			}
			if repo.count() != 0 {
				t.Fatalf("rejected upload must not create a record")
			}
			if len(queue.enqueued()) != 0 {
				t.Fatalf("rejected upload must not dispatch")
			}
		})
	}
}

func TestIngestUploadUndeclaredOversizeIsDiscarded(t *testing.T) {
	uc, repo, storage, _ := newIngestForTest(4)
	file := uploadFile("scan.webp", "image/webp", "123456789")
	file.Size = 0

	_, err := uc.Upload(context.Background(), "owner-1", file)
	if !domain.IsKind(err, domain.ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
	if repo.count() != 0 || len(storage.objects) != 0 || len(storage.deleted) != 1 {
		t.Fatalf("expected bytes discarded and no record; objects=%d deleted=%v", len(storage.objects), storage.deleted)
	}
}

func TestIngestUploadCreateFailureRemovesBytes(t *testing.T) {
	uc, repo, storage, queue := newIngestForTest(1024)
	repo.createErr = domain.WrapError(domain.ErrStoreUnavailable, "create", errors.New("db down"))

	_, err := uc.Upload(context.Background(), "owner-1", uploadFile("scan.png", "image/png", "png"))
	uc.Wait()
	if !domain.IsKind(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if len(storage.objects) != 0 {
		t.Fatalf("expected saved bytes to be removed")
	}
	if len(queue.enqueued()) != 0 {
		t.Fatalf("expected no dispatch")
	}
}

func TestIngestUploadQueueErrorDoesNotFailUpload(t *testing.T) {
	uc, repo, _, queue := newIngestForTest(1024)
	queue.err = errors.New("queue down")

	doc, err := uc.Upload(context.Background(), "owner-1", uploadFile("scan.jpg", "image/jpeg", "jpg"))
	uc.Wait()
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if got := repo.get(doc.ID); got == nil || got.Status != domain.StatusPending {
		t.Fatalf("expected stranded pending record, got %+v", got)
	}
}

func TestIngestUploadCanceledRequestStillDispatches(t *testing.T) {
	uc, _, _, queue := newIngestForTest(1024)
	ctx, cancel := context.WithCancel(context.Background())

	doc, err := uc.Upload(ctx, "owner-1", uploadFile("scan.png", "image/png", "png"))
	cancel()
	uc.Wait()
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	tasks := queue.enqueued()
	if len(tasks) != 1 || tasks[0].DocumentID != doc.ID {
		t.Fatalf("expected dispatch despite canceled request, got %+v", tasks)
	}
}

func TestIngestReturnedDocumentIsDetached(t *testing.T) {
	uc, repo, _, _ := newIngestForTest(1024)

	doc, err := uc.Upload(context.Background(), "owner-1", uploadFile("scan.png", "image/png", "png"))
	uc.Wait()
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	doc.Status = domain.StatusCompleted
	if repo.get(doc.ID).Status != domain.StatusPending {
		t.Fatalf("caller mutation leaked into the store")
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"../../etc/passwd": "passwd",
		"my deed (1).pdf":  "my_deed__1_.pdf",
		"":                 "document.bin",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUploadPolicyRestrictsAllowList(t *testing.T) {
	repo := newStoreFake()
	uc := NewIngestDocumentUseCase(repo, newStorageFake(), &queueFake{}, UploadPolicy{
		AllowedMimeTypes: []string{"application/pdf", "text/html"},
	})
	if got := uc.Policy().AllowedMimeTypes; len(got) != 1 || got[0] != "application/pdf" {
		t.Fatalf("expected only known types to survive, got %v", got)
	}

	_, err := uc.Upload(context.Background(), "owner-1", uploadFile("scan.png", "image/png", "png"))
	if !domain.IsKind(err, domain.ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}
