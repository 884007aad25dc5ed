package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/property-vault/internal/core/domain"
	"github.com/kirillkom/property-vault/internal/core/ports"
)

const (
	DefaultMaxUploadBytes = 10 << 20
	enqueueTimeout        = 10 * time.Second
)

var mimeExtensions = map[string][]string{
	"image/jpeg":      {".jpg", ".jpeg"},
	"image/png":       {".png"},
	"image/webp":      {".webp"},
	"application/pdf": {".pdf"},
}

// DefaultAllowedMimeTypes lists every type the intake knows how to validate.
func DefaultAllowedMimeTypes() []string {
	return []string{"image/jpeg", "image/png", "image/webp", "application/pdf"}
}

type UploadPolicy struct {
	MaxBytes         int64
	AllowedMimeTypes []string
}

func (p UploadPolicy) normalize() UploadPolicy {
	out := p
	if out.MaxBytes <= 0 {
		out.MaxBytes = DefaultMaxUploadBytes
	}
	allowed := make([]string, 0, len(out.AllowedMimeTypes))
	for _, mt := range out.AllowedMimeTypes {
		mt = normalizeMimeType(mt)
		if _, known := mimeExtensions[mt]; known {
			allowed = append(allowed, mt)
		}
	}
	if len(allowed) == 0 {
		allowed = DefaultAllowedMimeTypes()
	}
	out.AllowedMimeTypes = allowed
	return out
}

// checkType requires both the declared MIME type and the file extension to
// agree with the allow-list.
func (p UploadPolicy) checkType(filename, declared string) (string, error) {
	mimeType := normalizeMimeType(declared)
	allowed := false
	for _, mt := range p.AllowedMimeTypes {
		if mt == mimeType {
			allowed = true
			break
		}
	}
	if !allowed {
		return "", fmt.Errorf("mime type %q is not allowed", declared)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	for _, candidate := range mimeExtensions[mimeType] {
		if candidate == ext {
			return mimeType, nil
		}
	}
	return "", fmt.Errorf("extension %q does not match mime type %s", ext, mimeType)
}

type IngestDocumentUseCase struct {
	repo    ports.DocumentStore
	storage ports.ObjectStorage
	queue   ports.TaskQueue
	policy  UploadPolicy
	now     func() time.Time

	dispatches sync.WaitGroup
}

func NewIngestDocumentUseCase(
	repo ports.DocumentStore,
	storage ports.ObjectStorage,
	queue ports.TaskQueue,
	policy UploadPolicy,
) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
		policy:  policy.normalize(),
		now:     time.Now,
	}
}

func (uc *IngestDocumentUseCase) Policy() UploadPolicy {
	return uc.policy
}

func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	ownerID string,
	file domain.UploadFile,
) (*domain.Document, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "upload document", errors.New("owner id is required"))
	}
	if file.Content == nil || strings.TrimSpace(file.Name) == "" {
		return nil, domain.WrapError(domain.ErrMissingFile, "upload document", errors.New("file payload is required"))
	}
	mimeType, err := uc.policy.checkType(file.Name, file.MimeType)
	if err != nil {
		return nil, domain.WrapError(domain.ErrUnsupportedType, "upload document", err)
	}
	if file.Size > uc.policy.MaxBytes {
		return nil, domain.WrapError(domain.ErrFileTooLarge, "upload document", sizeError(file.Size, uc.policy.MaxBytes))
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(file.Name))

	// One byte past the limit is enough to detect an undeclared oversize body.
	written, err := uc.storage.Save(ctx, storageKey, io.LimitReader(file.Content, uc.policy.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}
	if written > uc.policy.MaxBytes {
		uc.discard(ctx, storageKey)
		return nil, domain.WrapError(domain.ErrFileTooLarge, "upload document", sizeError(written, uc.policy.MaxBytes))
	}
	if written == 0 {
		uc.discard(ctx, storageKey)
		return nil, domain.WrapError(domain.ErrMissingFile, "upload document", errors.New("file is empty"))
	}

	now := uc.now().UTC()
	enqueuedAt := now
	doc := &domain.Document{
		ID:           id,
		OwnerID:      ownerID,
		OriginalName: filepath.Base(file.Name),
		MimeType:     mimeType,
		ByteSize:     written,
		StorageKey:   storageKey,
		Status:       domain.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
		EnqueuedAt:   &enqueuedAt,
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		uc.discard(ctx, storageKey)
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	uc.dispatch(ctx, doc)
	return doc.Clone(), nil
}

// Wait blocks until every in-flight dispatch has been attempted.
func (uc *IngestDocumentUseCase) Wait() {
	uc.dispatches.Wait()
}

// dispatch hands the record to the queue exactly once, off the request path.
// A failed handoff leaves the record pending for the reaper.
func (uc *IngestDocumentUseCase) dispatch(ctx context.Context, doc *domain.Document) {
	task := ports.Task{
		DocumentID: doc.ID,
		OwnerID:    doc.OwnerID,
		RequestID:  RequestIDFromContext(ctx),
		EnqueuedAt: *doc.EnqueuedAt,
		Version:    ports.TaskVersion,
	}
	dispatchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)

	uc.dispatches.Add(1)
	go func() {
		defer uc.dispatches.Done()
		defer cancel()
		if err := uc.queue.Enqueue(dispatchCtx, task); err != nil {
			slog.Error("enqueue_failed",
				"document_id", task.DocumentID,
				"owner_id", task.OwnerID,
				"request_id", task.RequestID,
				"error", err,
			)
		}
	}()
}

func (uc *IngestDocumentUseCase) discard(ctx context.Context, key string) {
	if err := uc.storage.Delete(context.WithoutCancel(ctx), key); err != nil {
		slog.Warn("discard_upload_failed", "storage_key", key, "error", err)
	}
}

func sizeError(size, limit int64) error {
	return fmt.Errorf("size %d exceeds limit %d bytes", size, limit)
}

func normalizeMimeType(mimeType string) string {
	return strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
