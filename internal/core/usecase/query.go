package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/property-vault/internal/core/domain"
	"github.com/kirillkom/property-vault/internal/core/ports"
)

// DocumentQueryUseCase serves owner-scoped reads straight from the store and
// never waits on in-flight processing.
type DocumentQueryUseCase struct {
	repo ports.DocumentStore
}

func NewDocumentQueryUseCase(repo ports.DocumentStore) *DocumentQueryUseCase {
	return &DocumentQueryUseCase{repo: repo}
}

func (uc *DocumentQueryUseCase) ListByOwner(ctx context.Context, ownerID string) ([]domain.Document, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "list documents", errors.New("owner id is required"))
	}
	docs, err := uc.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents by owner: %w", err)
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	return docs, nil
}

// GetForOwner reports a foreign record as not found so ids of other owners
// cannot be enumerated.
func (uc *DocumentQueryUseCase) GetForOwner(ctx context.Context, ownerID, documentID string) (*domain.Document, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "get document", errors.New("owner id is required"))
	}
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get document", errors.New("document id is required"))
	}

	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("get document by id: %w", err)
	}
	if doc.OwnerID != ownerID {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", documentID))
	}
	return doc, nil
}
