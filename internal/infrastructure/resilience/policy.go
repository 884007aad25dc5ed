package resilience

import (
	"strings"
	"time"
)

// Operation prefixes of the dependencies the vault calls through an Executor.
const (
	OpDocumentStore = "document_store."
	OpOCR           = "ocr."
	OpBroker        = "nats."
)

type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32

	// Overrides replace the whole policy for operations starting with the key.
	Overrides map[string]Config
}

func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 100 * time.Millisecond,
		RetryMaxBackoff:     400 * time.Millisecond,
		RetryMultiplier:     2.0,

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

// VaultConfig tunes each dependency separately. Store writes sit on the
// worker's critical path and retry quickly; OCR calls are slow and trip the
// breaker early so a dead OCR service fails documents fast.
func VaultConfig() Config {
	cfg := DefaultConfig()

	store := DefaultConfig()
	store.RetryMaxAttempts = 4
	store.RetryInitialBackoff = 50 * time.Millisecond
	store.RetryMaxBackoff = 500 * time.Millisecond
	store.BreakerMinRequests = 20

	ocr := DefaultConfig()
	ocr.RetryMaxAttempts = 2
	ocr.RetryInitialBackoff = 250 * time.Millisecond
	ocr.RetryMaxBackoff = time.Second
	ocr.BreakerMinRequests = 5
	ocr.BreakerOpenTimeout = time.Minute

	broker := DefaultConfig()
	broker.RetryMaxAttempts = 5
	broker.RetryMaxBackoff = 2 * time.Second

	cfg.Overrides = map[string]Config{
		OpDocumentStore: store,
		OpOCR:           ocr,
		OpBroker:        broker,
	}
	return cfg
}

// forOperation returns the normalized policy of the longest matching prefix.
func (c Config) forOperation(operation string) Config {
	best := ""
	for prefix := range c.Overrides {
		if strings.HasPrefix(operation, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		out := c
		out.Overrides = nil
		return out.normalize()
	}
	out := c.Overrides[best]
	out.Overrides = nil
	return out.normalize()
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	if out.RetryMaxAttempts <= 0 {
		out.RetryMaxAttempts = def.RetryMaxAttempts
	}
	if out.RetryInitialBackoff <= 0 {
		out.RetryInitialBackoff = def.RetryInitialBackoff
	}
	if out.RetryMaxBackoff < out.RetryInitialBackoff {
		out.RetryMaxBackoff = out.RetryInitialBackoff
	}
	if out.RetryMultiplier < 1.0 {
		out.RetryMultiplier = def.RetryMultiplier
	}

	if out.BreakerMinRequests == 0 {
		out.BreakerMinRequests = def.BreakerMinRequests
	}
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if out.BreakerOpenTimeout <= 0 {
		out.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if out.BreakerHalfOpenMaxCalls == 0 {
		out.BreakerHalfOpenMaxCalls = def.BreakerHalfOpenMaxCalls
	}
	return out
}

// backoffAfter is the wait before attempt n+1, capped at RetryMaxBackoff.
func (c Config) backoffAfter(attempt int) time.Duration {
	wait := c.RetryInitialBackoff
	for i := 1; i < attempt; i++ {
		wait = time.Duration(float64(wait) * c.RetryMultiplier)
		if wait >= c.RetryMaxBackoff {
			return c.RetryMaxBackoff
		}
	}
	if wait > c.RetryMaxBackoff {
		return c.RetryMaxBackoff
	}
	return wait
}
