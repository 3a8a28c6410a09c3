package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/apura-ai/apura/internal/model"
)

// Engine is the subset of the pipeline engine the HTTP layer drives.
type Engine interface {
	Submit(ctx context.Context, variant model.Variant, payload map[string]any) (bool, error)
	Run(ctx context.Context, variant model.Variant, payload map[string]any) error
	Active() int64
}

// Store is the subset of the record store the read endpoints consume.
type Store interface {
	Ping(ctx context.Context) error
	GetAnalysisRecord(ctx context.Context, requestKey string) (model.AnalysisRecord, error)
	ListAnalysisRecords(ctx context.Context, limit, offset int) ([]model.AnalysisRecord, int, error)
	ListDatasetSamples(ctx context.Context, datasetID string, limit, offset int) ([]model.DatasetSample, int, error)
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	engine              Engine
	store               Store
	logger              *slog.Logger
	datasetDir          string
	verifyToken         string
	appSecret           string
	guardBackend        string
	ingestConcurrency   int
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
	openapiSpec         []byte
}

// HandlersDeps holds all dependencies for constructing Handlers.
type HandlersDeps struct {
	Engine              Engine
	Store               Store
	Logger              *slog.Logger
	DatasetDir          string
	VerifyToken         string
	AppSecret           string
	GuardBackend        string
	IngestConcurrency   int
	Version             string
	MaxRequestBodyBytes int64
	OpenAPISpec         []byte
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.IngestConcurrency <= 0 {
		d.IngestConcurrency = 4
	}
	if d.MaxRequestBodyBytes <= 0 {
		d.MaxRequestBodyBytes = 1 << 20
	}
	return &Handlers{
		engine:              d.Engine,
		store:               d.Store,
		logger:              d.Logger,
		datasetDir:          d.DatasetDir,
		verifyToken:         d.VerifyToken,
		appSecret:           d.AppSecret,
		guardBackend:        d.GuardBackend,
		ingestConcurrency:   d.IngestConcurrency,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
		openapiSpec:         d.OpenAPISpec,
	}
}

// HandleOpenAPISpec serves the embedded OpenAPI specification.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if len(h.openapiSpec) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.openapiSpec)
}

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	pgStatus := "connected"
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.store.Ping(r.Context()); err != nil {
		pgStatus = "disconnected"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, r, httpStatus, model.HealthResponse{
		Status:     status,
		Version:    h.version,
		Postgres:   pgStatus,
		Guard:      h.guardBackend,
		ActiveRuns: h.engine.Active(),
		Uptime:     int64(time.Since(h.startedAt).Seconds()),
	})
}

// writeInternalError logs the error and responds with a generic 500.
func (h *Handlers) writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.ErrorContext(r.Context(), msg,
		"error", err,
		"request_id", RequestIDFromContext(r.Context()),
	)
	writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, msg)
}
