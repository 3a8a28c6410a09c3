package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Server is the apura HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// ServerConfig holds all dependencies and configuration for creating a Server.
type ServerConfig struct {
	// Required dependencies.
	Engine Engine
	Store  Store
	Logger *slog.Logger

	// Webhook settings.
	VerifyToken string
	AppSecret   string

	// Dataset ingestion settings.
	DatasetDir        string
	IngestConcurrency int

	// HTTP server settings.
	Addr                string
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64

	// Reported on /healthz.
	GuardBackend string

	// Optional MCP server, mounted at /mcp when set.
	MCPServer *mcpserver.MCPServer

	// Embedded OpenAPI YAML, served at /openapi.yaml when set.
	OpenAPISpec []byte
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With("component", "http")

	h := NewHandlers(HandlersDeps{
		Engine:              cfg.Engine,
		Store:               cfg.Store,
		Logger:              logger,
		DatasetDir:          cfg.DatasetDir,
		VerifyToken:         cfg.VerifyToken,
		AppSecret:           cfg.AppSecret,
		GuardBackend:        cfg.GuardBackend,
		IngestConcurrency:   cfg.IngestConcurrency,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         cfg.OpenAPISpec,
	})

	mux := http.NewServeMux()

	// Meta webhook surface.
	mux.HandleFunc("GET /webhook", h.HandleVerifyWebhook)
	mux.HandleFunc("POST /webhook", h.HandleWebhook)

	// Operator surface: dataset ingestion and record reads.
	mux.HandleFunc("POST /v1/datasets/ingest", h.HandleIngestAll)
	mux.HandleFunc("POST /v1/datasets/{sample_id}/ingest", h.HandleIngestSample)
	mux.HandleFunc("GET /v1/datasets/{dataset_id}/samples", h.HandleListSamples)
	mux.HandleFunc("GET /v1/records", h.HandleListRecords)
	mux.HandleFunc("GET /v1/records/{request_key}", h.HandleGetRecord)

	// Health and API docs.
	mux.HandleFunc("GET /healthz", h.HandleHealth)
	mux.HandleFunc("GET /openapi.yaml", h.HandleOpenAPISpec)

	// MCP StreamableHTTP transport.
	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(logger, handler)
	handler = loggingMiddleware(logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler: handler,
		logger:  logger,
	}
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
