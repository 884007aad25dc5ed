package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/property-vault/internal/core/domain"
)

// DocumentStore persists document records and funnels every status change
// through UpdateStatus.
type DocumentStore interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, patch domain.StatusPatch) error
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Document, error)
	ListStale(ctx context.Context, status domain.DocumentStatus, updatedBefore time.Time) ([]domain.Document, error)
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// TaskQueue hands document ids from intake to workers.
type TaskQueue interface {
	Enqueue(ctx context.Context, task Task) error
	Subscribe(ctx context.Context, handler TaskHandler) error
}

// TextExtractor turns raw document bytes into text.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document, content []byte) (string, error)
}

// FieldParser derives structured property details from extracted text.
type FieldParser interface {
	Parse(text string) *domain.PropertyDetails
}

// OperationRunner runs fn under the caller's retry and circuit-breaker policy.
type OperationRunner interface {
	Run(ctx context.Context, operation string, fn func(context.Context) error) error
}
