package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/property-vault/internal/core/domain"
	"github.com/kirillkom/property-vault/internal/infrastructure/resilience"
)

// transientErrors clear up once the connection recovers.
var transientErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrConnectionDraining,
	nats.ErrConnectionReconnecting,
	nats.ErrDisconnected,
	nats.ErrStaleConnection,
}

// rejectedErrors mean the task itself can never be published.
var rejectedErrors = []error{
	nats.ErrMaxPayload,
	nats.ErrBadSubject,
	nats.ErrInvalidMsg,
}

func classifyNATSError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err), isAny(err, transientErrors):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	case isAny(err, rejectedErrors):
		return resilience.ErrorClassification{}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

// publishError maps a failed publish to the domain kind callers act on. A
// temporary failure leaves the document pending for the reaper.
func publishError(err error) error {
	switch {
	case err == nil:
		return nil
	case domain.IsKind(err, domain.ErrTemporary):
		return err
	case isAny(err, rejectedErrors):
		return domain.WrapError(domain.ErrInvalidInput, "nats publish", err)
	case classifyNATSError(err).Retryable:
		return domain.WrapError(domain.ErrTemporary, "nats publish", err)
	default:
		return err
	}
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
