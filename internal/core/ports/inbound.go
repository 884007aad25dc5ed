package ports

import (
	"context"

	"github.com/kirillkom/property-vault/internal/core/domain"
)

// DocumentIngestor is the inbound contract for upload intake.
type DocumentIngestor interface {
	Upload(ctx context.Context, ownerID string, file domain.UploadFile) (*domain.Document, error)
}

// DocumentReader is the owner-scoped read model for document state.
type DocumentReader interface {
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Document, error)
	GetForOwner(ctx context.Context, ownerID, documentID string) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}
