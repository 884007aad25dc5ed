package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/property-vault/internal/core/domain"
	"github.com/kirillkom/property-vault/internal/core/ports"
)

// ReapStaleUseCase fails records left behind by a lost dispatch or a crashed
// worker. It never re-enqueues.
type ReapStaleUseCase struct {
	repo       ports.DocumentStore
	staleAfter time.Duration
	observer   ReapObserver
	now        func() time.Time
}

// ReapObserver counts records the reaper moved to failed.
type ReapObserver interface {
	AddReaped(n int)
}

func (uc *ReapStaleUseCase) WithObserver(observer ReapObserver) *ReapStaleUseCase {
	uc.observer = observer
	return uc
}

func NewReapStaleUseCase(repo ports.DocumentStore, staleAfter time.Duration) *ReapStaleUseCase {
	return &ReapStaleUseCase{
		repo:       repo,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Sweep fails every pending or processing record whose last update is older
// than the stale threshold and returns how many it moved.
func (uc *ReapStaleUseCase) Sweep(ctx context.Context) (int, error) {
	if uc.staleAfter <= 0 {
		return 0, nil
	}
	cutoff := uc.now().UTC().Add(-uc.staleAfter)

	reaped := 0
	var errs []error
	for _, status := range []domain.DocumentStatus{domain.StatusPending, domain.StatusProcessing} {
		docs, err := uc.repo.ListStale(ctx, status, cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("list stale %s documents: %w", status, err))
			continue
		}
		for _, doc := range docs {
			ok, err := uc.reap(ctx, doc)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if ok {
				reaped++
			}
		}
	}
	return reaped, errors.Join(errs...)
}

func (uc *ReapStaleUseCase) reap(ctx context.Context, doc domain.Document) (bool, error) {
	at := uc.now().UTC()
	if doc.Status == domain.StatusPending {
		err := uc.repo.UpdateStatus(ctx, doc.ID, domain.StatusPatch{
			From: domain.StatusPending,
			To:   domain.StatusProcessing,
			At:   at,
		})
		if domain.IsKind(err, domain.ErrInvalidTransition) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("reap document %s: %w", doc.ID, err)
		}
	}

	err := uc.repo.UpdateStatus(ctx, doc.ID, domain.StatusPatch{
		From:          domain.StatusProcessing,
		To:            domain.StatusFailed,
		ExtractedText: abandonedText,
		At:            at,
	})
	if domain.IsKind(err, domain.ErrInvalidTransition) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reap document %s: %w", doc.ID, err)
	}
	slog.Warn("document_reaped", "document_id", doc.ID, "owner_id", doc.OwnerID, "stale_status", doc.Status)
	return true, nil
}

// Run sweeps every interval until ctx is done.
func (uc *ReapStaleUseCase) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 || uc.staleAfter <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := uc.Sweep(ctx)
			if err != nil {
				slog.Error("reaper_sweep_failed", "error", err)
			}
			if n > 0 {
				slog.Info("reaper_sweep", "reaped", n)
				if uc.observer != nil {
					uc.observer.AddReaped(n)
				}
			}
		}
	}
}
