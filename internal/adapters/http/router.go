package httpadapter

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/property-vault/internal/config"
	"github.com/kirillkom/property-vault/internal/core/ports"
	"github.com/kirillkom/property-vault/internal/core/usecase"
	"github.com/kirillkom/property-vault/internal/observability/metrics"
)

const serviceName = "api"

type Router struct {
	ingestor ports.DocumentIngestor
	reader   ports.DocumentReader

	maxUploadBytes int64
	jwtSecret      []byte
	corsOrigins    []string

	rateLimitRPS   float64
	rateLimitBurst int
	maxInFlight    int
	inFlightWait   time.Duration

	httpMetrics *metrics.HTTPServerMetrics
	gatherers   []prometheus.Gatherer
}

func NewRouter(
	cfg config.Config,
	ingestor ports.DocumentIngestor,
	reader ports.DocumentReader,
) *Router {
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = usecase.DefaultMaxUploadBytes
	}
	return &Router{
		ingestor:       ingestor,
		reader:         reader,
		maxUploadBytes: maxUpload,
		jwtSecret:      []byte(cfg.JWTSecret),
		corsOrigins:    cfg.CORSAllowedOrigins,
		rateLimitRPS:   cfg.APIRateLimitRPS,
		rateLimitBurst: cfg.APIRateLimitBurst,
		maxInFlight:    cfg.APIMaxInFlight,
		inFlightWait:   cfg.APIBackpressureWait,
	}
}

// WithMetrics instruments the router and exposes the given registries on /metrics.
func (rt *Router) WithMetrics(httpMetrics *metrics.HTTPServerMetrics, extra ...prometheus.Gatherer) *Router {
	rt.httpMetrics = httpMetrics
	rt.gatherers = append([]prometheus.Gatherer{httpMetrics.Gatherer()}, extra...)
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.Handle("POST /documents", rt.authMiddleware(http.HandlerFunc(rt.uploadDocument)))
	mux.Handle("GET /documents", rt.authMiddleware(http.HandlerFunc(rt.listDocuments)))
	mux.Handle("GET /documents/{document_id}", rt.authMiddleware(http.HandlerFunc(rt.getDocument)))
	if rt.httpMetrics != nil {
		mux.Handle("GET /metrics", metrics.Handler(rt.gatherers...))
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.maxInFlight, rt.inFlightWait)
	handler = rateLimitMiddleware(handler, rt.rateLimitRPS, rt.rateLimitBurst)
	if rt.httpMetrics != nil {
		handler = rt.httpMetrics.Middleware(serviceName, handler)
	}
	handler = corsMiddleware(handler, rt.corsOrigins)
	handler = accessLogMiddleware(handler)
	handler = recoverMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) recordUpload(outcome, mimeType string, size int64) {
	if rt.httpMetrics == nil {
		return
	}
	rt.httpMetrics.RecordUpload(serviceName, outcome, mimeType, size)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
