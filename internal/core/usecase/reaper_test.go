package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/property-vault/internal/core/domain"
)

func TestReaperSweepFailsStaleRecords(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stalePending := ownedDoc("stale-pending", "owner-1", now.Add(-time.Hour))
	staleProcessing := ownedDoc("stale-processing", "owner-1", now.Add(-time.Hour))
	staleProcessing.Status = domain.StatusProcessing
	fresh := ownedDoc("fresh", "owner-1", now.Add(-time.Second))
	done := ownedDoc("done", "owner-1", now.Add(-time.Hour))
	done.Status = domain.StatusCompleted
	done.ExtractedText = "text"
	done.IsProcessed = true

	repo := newStoreFake(stalePending, staleProcessing, fresh, done)
	uc := NewReapStaleUseCase(repo, 10*time.Minute)
	uc.now = func() time.Time { return now }

	n, err := uc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 reaped, got %d", n)
	}
	for _, id := range []string{"stale-pending", "stale-processing"} {
		got := repo.get(id)
		if got.Status != domain.StatusFailed || got.ExtractedText != "OCR processing abandoned" {
			t.Fatalf("expected %s failed, got %+v", id, got)
		}
	}
	if repo.get("fresh").Status != domain.StatusPending {
		t.Fatalf("fresh record must be left alone")
	}
	if repo.get("done").Status != domain.StatusCompleted {
		t.Fatalf("terminal record must be left alone")
	}
}

func TestReaperSweepSkipsRecordsThatMovedOn(t *testing.T) {
	now := time.Now().UTC()
	doc := ownedDoc("doc-1", "owner-1", now.Add(-time.Hour))
	repo := newStoreFake(doc)
	repo.updateErrs = []error{domain.WrapError(domain.ErrInvalidTransition, "update", errors.New("raced"))}
	uc := NewReapStaleUseCase(repo, time.Minute)

	n, err := uc.Sweep(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("Sweep() = %d, %v; want 0, nil", n, err)
	}
}

func TestReaperSweepDisabled(t *testing.T) {
	repo := newStoreFake(ownedDoc("doc-1", "owner-1", time.Now().Add(-time.Hour)))
	uc := NewReapStaleUseCase(repo, 0)

	if n, err := uc.Sweep(context.Background()); n != 0 || err != nil {
		t.Fatalf("Sweep() = %d, %v", n, err)
	}
	if repo.get("doc-1").Status != domain.StatusPending {
		t.Fatalf("disabled reaper must not touch records")
	}
}

func TestReaperSweepCollectsStoreErrors(t *testing.T) {
	repo := newStoreFake(ownedDoc("doc-1", "owner-1", time.Now().Add(-time.Hour)))
	repo.updateErrs = []error{domain.WrapError(domain.ErrStoreUnavailable, "update", errors.New("down"))}
	uc := NewReapStaleUseCase(repo, time.Minute)

	_, err := uc.Sweep(context.Background())
	if !domain.IsKind(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

type reapCounter chan int

func (c reapCounter) AddReaped(n int) { c <- n }

func TestReaperRunReportsReapedCount(t *testing.T) {
	doc := ownedDoc("doc-1", "owner-1", time.Now().UTC().Add(-time.Hour))
	repo := newStoreFake(doc)
	counter := make(reapCounter, 1)
	uc := NewReapStaleUseCase(repo, time.Minute).WithObserver(counter)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		uc.Run(ctx, 5*time.Millisecond)
	}()

	select {
	case n := <-counter:
		if n != 1 {
			t.Fatalf("expected 1 reaped, got %d", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("reaper never reported a sweep")
	}
	cancel()
	<-done

	if repo.get("doc-1").Status != domain.StatusFailed {
		t.Fatalf("expected document failed by reaper")
	}
}

func TestReaperRunDisabledWithoutInterval(t *testing.T) {
	uc := NewReapStaleUseCase(newStoreFake(), time.Minute)
	finished := make(chan struct{})
	go func() {
		uc.Run(context.Background(), 0)
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatalf("Run must return immediately when the interval is not positive")
	}
}
