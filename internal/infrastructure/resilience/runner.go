package resilience

import (
	"context"
	"errors"

	"github.com/kirillkom/property-vault/internal/core/domain"
)

// Runner binds an Executor to one error classifier.
type Runner struct {
	executor   *Executor
	classifier ErrorClassifier
}

func NewRunner(executor *Executor, classifier ErrorClassifier) *Runner {
	return &Runner{executor: executor, classifier: classifier}
}

func (r *Runner) Run(ctx context.Context, operation string, fn func(context.Context) error) error {
	return r.executor.Execute(ctx, operation, fn, r.classifier)
}

// ClassifyStoreError retries only connectivity failures. Rejected
// transitions and missing records are answers, not faults.
func ClassifyStoreError(err error) ErrorClassification {
	if err == nil {
		return ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if IsCircuitOpen(err) {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	}
	if domain.IsKind(err, domain.ErrStoreUnavailable) {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return ErrorClassification{Retryable: false, RecordFailure: false}
}
