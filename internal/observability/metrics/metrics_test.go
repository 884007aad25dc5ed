package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestMiddlewareNormalizesDocumentPaths(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	h := m.Middleware("api", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/documents/abc-123", nil))

	out := scrape(t, m.Handler())
	if !strings.Contains(out, `path="/documents/{document_id}"`) || !strings.Contains(out, `status="404"`) {
		t.Fatalf("unexpected metrics output:\n%s", out)
	}
	if strings.Contains(out, "abc-123") {
		t.Fatalf("raw document id leaked into labels")
	}
}

func TestCombinedHandlerServesBothRegistries(t *testing.T) {
	httpMetrics := NewHTTPServerMetrics("api")
	workerMetrics := NewWorkerMetrics("api")

	httpMetrics.RecordUpload("api", "accepted", "image/png", 2048)
	workerMetrics.StartDocument()
	workerMetrics.ObserveQueueLag(time.Second)
	workerMetrics.FinishDocument("completed", time.Second)
	workerMetrics.AddReaped(2)

	out := scrape(t, Handler(httpMetrics.Gatherer(), workerMetrics.Gatherer()))
	for _, want := range []string{
		`vault_intake_uploads_total{outcome="accepted",service="api"} 1`,
		`vault_worker_document_process_total{outcome="completed",service="api"} 1`,
		`vault_reaper_documents_reaped_total{service="api"} 2`,
		`vault_worker_queue_lag_seconds_count{service="api"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestWorkerMetricsTracksResilienceEvents(t *testing.T) {
	m := NewWorkerMetrics("worker")
	m.ObserveRetry("ocr.recognize")
	m.ObserveRetry("ocr.recognize")
	m.ObserveBreakerState("ocr.recognize", "open")
	m.ObserveBreakerState("nats.publish", "half-open")
	m.ObserveBreakerState("nats.publish", "closed")

	out := scrape(t, m.Handler())
	for _, want := range []string{
		`vault_resilience_retries_total{operation="ocr.recognize",service="worker"} 2`,
		`vault_resilience_breaker_open{operation="ocr.recognize",service="worker"} 1`,
		`vault_resilience_breaker_open{operation="nats.publish",service="worker"} 0`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}
