package inmemory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/property-vault/internal/core/domain"
	"github.com/kirillkom/property-vault/internal/core/ports"
)

const (
	DefaultBuffer  = 256
	DefaultWorkers = 4
)

// Queue is a bounded in-process task queue. A document id is held at most
// once between Enqueue and the end of its handler.
type Queue struct {
	tasks   chan ports.Task
	workers int

	mu      sync.Mutex
	pending map[string]struct{}
}

func New(buffer, workers int) *Queue {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Queue{
		tasks:   make(chan ports.Task, buffer),
		workers: workers,
		pending: make(map[string]struct{}),
	}
}

// Enqueue never blocks: a full buffer is reported as ErrTemporary and a
// duplicate id is dropped.
func (q *Queue) Enqueue(ctx context.Context, task ports.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if task.DocumentID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "enqueue task", errors.New("document id is required"))
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, dup := q.pending[task.DocumentID]; dup {
		slog.Debug("enqueue_duplicate_dropped", "document_id", task.DocumentID)
		return nil
	}
	select {
	case q.tasks <- task:
		q.pending[task.DocumentID] = struct{}{}
		return nil
	default:
		return domain.WrapError(domain.ErrTemporary, "enqueue task", fmt.Errorf("queue full (%d)", cap(q.tasks)))
	}
}

// Subscribe runs the worker pool until ctx is done. Handlers already running
// finish on a context that ignores the shutdown; buffered tasks are left to
// the reaper.
func (q *Queue) Subscribe(ctx context.Context, handler ports.TaskHandler) error {
	if handler == nil {
		return errors.New("task handler is nil")
	}
	handlerCtx := context.WithoutCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < q.workers; i++ {
		worker := i
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case task := <-q.tasks:
					q.handle(handlerCtx, worker, task, handler)
				}
			}
		})
	}
	return g.Wait()
}

// Len reports the number of buffered tasks.
func (q *Queue) Len() int {
	return len(q.tasks)
}

func (q *Queue) handle(ctx context.Context, worker int, task ports.Task, handler ports.TaskHandler) {
	defer q.release(task.DocumentID)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("worker_handler_panic", "worker", worker, "document_id", task.DocumentID, "panic", r)
		}
	}()

	if err := handler(ctx, task); err != nil {
		slog.Error("worker_handler_error",
			"worker", worker,
			"document_id", task.DocumentID,
			"request_id", task.RequestID,
			"error", err,
		)
	}
}

func (q *Queue) release(documentID string) {
	q.mu.Lock()
	delete(q.pending, documentID)
	q.mu.Unlock()
}
