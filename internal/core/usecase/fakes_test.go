package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/kirillkom/property-vault/internal/core/domain"
	"github.com/kirillkom/property-vault/internal/core/ports"
)

type storeFake struct {
	mu        sync.Mutex
	docs      map[string]*domain.Document
	createErr error
	getErr    error
	// updateErrs is consumed one error per UpdateStatus call.
	updateErrs []error
	patches    []domain.StatusPatch
}

func newStoreFake(docs ...*domain.Document) *storeFake {
	f := &storeFake{docs: make(map[string]*domain.Document)}
	for _, doc := range docs {
		f.docs[doc.ID] = doc.Clone()
	}
	return f
}

func (f *storeFake) Create(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.docs[doc.ID] = doc.Clone()
	return nil
}

func (f *storeFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New(id))
	}
	return doc.Clone(), nil
}

func (f *storeFake) UpdateStatus(_ context.Context, id string, patch domain.StatusPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches = append(f.patches, patch)
	if len(f.updateErrs) > 0 {
		err := f.updateErrs[0]
		f.updateErrs = f.updateErrs[1:]
		if err != nil {
			return err
		}
	}
	doc, ok := f.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "update status", errors.New(id))
	}
	if err := patch.Validate(); err != nil {
		return err
	}
	return patch.Apply(doc)
}

func (f *storeFake) ListByOwner(_ context.Context, ownerID string) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Document, 0)
	for _, doc := range f.docs {
		if doc.OwnerID == ownerID {
			out = append(out, *doc.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *storeFake) ListStale(_ context.Context, status domain.DocumentStatus, before time.Time) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Document, 0)
	for _, doc := range f.docs {
		if doc.Status == status && doc.UpdatedAt.Before(before) {
			out = append(out, *doc.Clone())
		}
	}
	return out, nil
}

func (f *storeFake) get(id string) *domain.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[id].Clone()
}

func (f *storeFake) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs)
}

type storageFake struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	saveErr error
	openErr error
}

func newStorageFake() *storageFake {
	return &storageFake{objects: make(map[string][]byte)}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) (int64, error) {
	if f.saveErr != nil {
		return 0, f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = raw
	return int64(len(raw)), nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (f *storageFake) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

type queueFake struct {
	mu    sync.Mutex
	tasks []ports.Task
	err   error
}

func (f *queueFake) Enqueue(_ context.Context, task ports.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.tasks = append(f.tasks, task)
	return nil
}

func (f *queueFake) Subscribe(context.Context, ports.TaskHandler) error {
	return errors.New("not implemented")
}

func (f *queueFake) enqueued() []ports.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ports.Task(nil), f.tasks...)
}

type extractorFunc func(ctx context.Context, doc *domain.Document, content []byte) (string, error)

func (f extractorFunc) Extract(ctx context.Context, doc *domain.Document, content []byte) (string, error) {
	return f(ctx, doc, content)
}

type parserFake struct {
	details *domain.PropertyDetails
	calls   int
}

func (f *parserFake) Parse(string) *domain.PropertyDetails {
	f.calls++
	return f.details
}

type observerFake struct {
	mu       sync.Mutex
	started  int
	outcomes []string
	lags     []time.Duration
}

func (f *observerFake) StartDocument() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
}

func (f *observerFake) FinishDocument(outcome string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, outcome)
}

func (f *observerFake) ObserveQueueLag(lag time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lags = append(f.lags, lag)
}
