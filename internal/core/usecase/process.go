package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/kirillkom/property-vault/internal/core/domain"
	"github.com/kirillkom/property-vault/internal/core/ports"
)

const (
	DefaultExtractionTimeout = 30 * time.Second
	DefaultStoreTimeout      = 5 * time.Second

	failedTextPrefix = "OCR processing failed"
	timedOutPrefix   = "OCR processing timed out after"
	abandonedText    = "OCR processing abandoned"
)

// ProcessingObserver receives per-document worker measurements.
type ProcessingObserver interface {
	StartDocument()
	FinishDocument(outcome string, duration time.Duration)
	ObserveQueueLag(lag time.Duration)
}

type ProcessOptions struct {
	ExtractionTimeout time.Duration
	StoreTimeout      time.Duration
	Observer          ProcessingObserver
	Runner            ports.OperationRunner
}

type ProcessDocumentUseCase struct {
	repo      ports.DocumentStore
	storage   ports.ObjectStorage
	extractor ports.TextExtractor
	parser    ports.FieldParser

	extractionTimeout time.Duration
	storeTimeout      time.Duration
	observer          ProcessingObserver
	runner            ports.OperationRunner
	now               func() time.Time
}

func NewProcessDocumentUseCase(
	repo ports.DocumentStore,
	storage ports.ObjectStorage,
	extractor ports.TextExtractor,
	parser ports.FieldParser,
	opts ProcessOptions,
) *ProcessDocumentUseCase {
	if opts.ExtractionTimeout <= 0 {
		opts.ExtractionTimeout = DefaultExtractionTimeout
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}
	if opts.Runner == nil {
		opts.Runner = directRunner{}
	}
	return &ProcessDocumentUseCase{
		repo:              repo,
		storage:           storage,
		extractor:         extractor,
		parser:            parser,
		extractionTimeout: opts.ExtractionTimeout,
		storeTimeout:      opts.StoreTimeout,
		observer:          opts.Observer,
		runner:            opts.Runner,
		now:               time.Now,
	}
}

// ProcessByID drives one record from pending to a terminal status. Duplicate
// deliveries and lost races return nil without touching the record.
func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	doc, err := uc.loadDocument(ctx, documentID)
	if err != nil {
		if domain.IsKind(err, domain.ErrDocumentNotFound) {
			slog.Warn("process_document_missing", "document_id", documentID)
			return nil
		}
		return err
	}
	if doc.Status != domain.StatusPending {
		slog.Debug("process_document_skipped", "document_id", documentID, "status", doc.Status)
		return nil
	}

	started := uc.now().UTC()
	claimed, err := uc.claim(ctx, documentID, started)
	if err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}
	if !claimed {
		slog.Debug("process_document_claim_lost", "document_id", documentID)
		return nil
	}

	uc.observer.StartDocument()
	if doc.EnqueuedAt != nil {
		uc.observer.ObserveQueueLag(started.Sub(*doc.EnqueuedAt))
	}

	patch := uc.runPipeline(ctx, doc)
	patch.At = uc.now().UTC()

	if err := uc.finalize(ctx, documentID, patch); err != nil {
		uc.observer.FinishDocument("error", time.Since(started))
		return fmt.Errorf("set status=%s: %w", patch.To, err)
	}
	uc.observer.FinishDocument(string(patch.To), time.Since(started))

	slog.Info("document_processed",
		"document_id", documentID,
		"owner_id", doc.OwnerID,
		"status", patch.To,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return nil
}

// runPipeline never returns an error; every failure becomes a failed patch.
func (uc *ProcessDocumentUseCase) runPipeline(ctx context.Context, doc *domain.Document) domain.StatusPatch {
	content, err := uc.readContent(ctx, doc)
	if err != nil {
		return failedPatch(err, uc.extractionTimeout)
	}

	text, err := uc.extractText(ctx, doc, content)
	if err != nil {
		slog.Warn("document_extraction_failed", "document_id", doc.ID, "error", err)
		return failedPatch(err, uc.extractionTimeout)
	}

	var details *domain.PropertyDetails
	if uc.parser != nil {
		details = uc.parser.Parse(text)
	}
	return domain.StatusPatch{
		From:            domain.StatusProcessing,
		To:              domain.StatusCompleted,
		ExtractedText:   text,
		PropertyDetails: details,
	}
}

func (uc *ProcessDocumentUseCase) loadDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	storeCtx, cancel := context.WithTimeout(ctx, uc.storeTimeout)
	defer cancel()

	doc, err := uc.repo.GetByID(storeCtx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	return doc, nil
}

func (uc *ProcessDocumentUseCase) claim(ctx context.Context, documentID string, at time.Time) (bool, error) {
	storeCtx, cancel := context.WithTimeout(ctx, uc.storeTimeout)
	defer cancel()

	err := uc.repo.UpdateStatus(storeCtx, documentID, domain.StatusPatch{
		From: domain.StatusPending,
		To:   domain.StatusProcessing,
		At:   at,
	})
	switch {
	case err == nil:
		return true, nil
	case domain.IsKind(err, domain.ErrInvalidTransition):
		return false, nil
	default:
		return false, err
	}
}

func (uc *ProcessDocumentUseCase) readContent(ctx context.Context, doc *domain.Document) ([]byte, error) {
	rc, err := uc.storage.Open(ctx, doc.StorageKey)
	if err != nil {
		return nil, domain.WrapError(domain.ErrExtractionFailure, "open stored document", err)
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, domain.WrapError(domain.ErrExtractionFailure, "read stored document", err)
	}
	return content, nil
}

type extractResult struct {
	text string
	err  error
}

// extractText bounds the extractor by the extraction timeout even when it
// ignores its context, and converts a panic into an extraction failure.
func (uc *ProcessDocumentUseCase) extractText(ctx context.Context, doc *domain.Document, content []byte) (string, error) {
	extractCtx, cancel := context.WithTimeout(ctx, uc.extractionTimeout)
	defer cancel()

	done := make(chan extractResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- extractResult{err: domain.WrapError(domain.ErrExtractionFailure, "extract text", fmt.Errorf("panic: %v", r))}
			}
		}()
		text, err := uc.extractor.Extract(extractCtx, doc.Clone(), content)
		done <- extractResult{text: text, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if errors.Is(res.err, context.DeadlineExceeded) {
				return "", domain.WrapError(domain.ErrExtractionTimeout, "extract text", res.err)
			}
			if domain.IsKind(res.err, domain.ErrExtractionFailure) || domain.IsKind(res.err, domain.ErrExtractionTimeout) {
				return "", res.err
			}
			return "", domain.WrapError(domain.ErrExtractionFailure, "extract text", res.err)
		}
		if res.text == "" {
			return "", domain.WrapError(domain.ErrExtractionFailure, "extract text", errors.New("empty extracted text"))
		}
		return res.text, nil
	case <-extractCtx.Done():
		if errors.Is(extractCtx.Err(), context.DeadlineExceeded) {
			return "", domain.WrapError(domain.ErrExtractionTimeout, "extract text", extractCtx.Err())
		}
		return "", extractCtx.Err()
	}
}

// finalize writes the terminal patch on a context detached from the
// extraction deadline. Losing to the reaper is not an error.
func (uc *ProcessDocumentUseCase) finalize(ctx context.Context, documentID string, patch domain.StatusPatch) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.storeTimeout)
	defer cancel()

	err := uc.runner.Run(writeCtx, "document_store.update_status", func(runCtx context.Context) error {
		return uc.repo.UpdateStatus(runCtx, documentID, patch)
	})
	if domain.IsKind(err, domain.ErrInvalidTransition) {
		slog.Warn("process_document_final_write_rejected", "document_id", documentID, "status", patch.To, "error", err)
		return nil
	}
	return err
}

func failedPatch(err error, timeout time.Duration) domain.StatusPatch {
	return domain.StatusPatch{
		From:          domain.StatusProcessing,
		To:            domain.StatusFailed,
		ExtractedText: failureText(err, timeout),
	}
}

func failureText(err error, timeout time.Duration) string {
	switch {
	case domain.IsKind(err, domain.ErrExtractionTimeout):
		return fmt.Sprintf("%s %s", timedOutPrefix, timeout)
	case errors.Is(err, context.Canceled):
		return abandonedText
	default:
		return fmt.Sprintf("%s: %v", failedTextPrefix, err)
	}
}

type noopObserver struct{}

func (noopObserver) StartDocument()                       {}
func (noopObserver) FinishDocument(string, time.Duration) {}
func (noopObserver) ObserveQueueLag(time.Duration)        {}

type directRunner struct{}

func (directRunner) Run(ctx context.Context, _ string, fn func(context.Context) error) error {
	return fn(ctx)
}
