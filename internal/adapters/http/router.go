package httpadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/kirillkom/clinical-intake/internal/config"
	"github.com/kirillkom/clinical-intake/internal/core/ports"
	"github.com/kirillkom/clinical-intake/internal/observability/metrics"
)

const (
	ServiceName    = "intake-api"
	ServiceVersion = "1.0.0"

	defaultTextMaxBytes  int64 = 1 << 20
	defaultAudioMaxBytes int64 = 25 << 20
	multipartOverhead    int64 = 1 << 20
	multipartMemory      int64 = 8 << 20
	healthCheckTimeout         = 3 * time.Second
)

// IntakeService is everything the router needs from the pipeline.
type IntakeService interface {
	ports.IntakePipeline
	ports.MessageReader
}

type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Router struct {
	cfg      config.Config
	pipeline IntakeService
	health   HealthChecker
	metrics  *metrics.HTTPServerMetrics
	now      func() time.Time
}

func NewRouter(cfg config.Config, pipeline IntakeService, health HealthChecker) *Router {
	return &Router{
		cfg:      cfg,
		pipeline: pipeline,
		health:   health,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithMetrics instruments every request and exposes GET /metrics.
func (rt *Router) WithMetrics(m *metrics.HTTPServerMetrics) *Router {
	rt.metrics = m
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /message/validate-process-text", rt.validateProcessText)
	mux.HandleFunc("POST /message/validate-process-audio", rt.validateProcessAudio)
	mux.HandleFunc("POST /message/generate-text", rt.generateText)
	mux.HandleFunc("GET /message/{id}", rt.getMessage)
	mux.HandleFunc("POST /message/{id}/extract", rt.extractMessage)
	mux.HandleFunc("GET /health/ping", rt.healthPing)
	mux.HandleFunc("GET /health/db_connection", rt.healthDBConnection)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, rt.cfg.APIQueueWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = corsMiddleware(handler, rt.cfg.CORSAllowedOrigins)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(ServiceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) textMaxBytes() int64 {
	if rt.cfg.TextMaxBytes > 0 {
		return rt.cfg.TextMaxBytes
	}
	return defaultTextMaxBytes
}

func (rt *Router) audioMaxBytes() int64 {
	if rt.cfg.AudioMaxBytes > 0 {
		return rt.cfg.AudioMaxBytes
	}
	return defaultAudioMaxBytes
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
