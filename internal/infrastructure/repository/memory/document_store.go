package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kirillkom/property-vault/internal/core/domain"
)

// DocumentStore keeps records in process memory. Every read returns a deep
// copy and every status change is a compare-and-set under the write lock.
type DocumentStore struct {
	mu      sync.RWMutex
	docs    map[string]*domain.Document
	byOwner map[string][]string
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		docs:    make(map[string]*domain.Document),
		byOwner: make(map[string][]string),
	}
}

func (s *DocumentStore) Create(ctx context.Context, doc *domain.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if doc == nil || doc.ID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "create document", errors.New("document id is required"))
	}
	if doc.Status != domain.StatusPending {
		return domain.WrapError(domain.ErrInvalidInput, "create document", fmt.Errorf("initial status %q", doc.Status))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[doc.ID]; exists {
		return domain.WrapError(domain.ErrInvalidInput, "create document", fmt.Errorf("duplicate id %s", doc.ID))
	}
	s.docs[doc.ID] = doc.Clone()
	s.byOwner[doc.OwnerID] = append(s.byOwner[doc.OwnerID], doc.ID)
	return nil
}

func (s *DocumentStore) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
	}
	return doc.Clone(), nil
}

func (s *DocumentStore) UpdateStatus(ctx context.Context, id string, patch domain.StatusPatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := patch.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "update document status", fmt.Errorf("id=%s", id))
	}
	return patch.Apply(doc)
}

func (s *DocumentStore) ListByOwner(ctx context.Context, ownerID string) ([]domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	ids := s.byOwner[ownerID]
	out := make([]domain.Document, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.docs[id].Clone())
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	return out, nil
}

func (s *DocumentStore) ListStale(ctx context.Context, status domain.DocumentStatus, updatedBefore time.Time) ([]domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]domain.Document, 0)
	for _, doc := range s.docs {
		if doc.Status == status && doc.UpdatedAt.Before(updatedBefore) {
			out = append(out, *doc.Clone())
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	return out, nil
}

// sortNewestFirst orders by creation time, id breaking ties so equal
// timestamps still list deterministically.
func sortNewestFirst(docs []domain.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		}
		return docs[i].ID > docs[j].ID
	})
}
