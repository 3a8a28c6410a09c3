// Package apura is the public embedding API for the apura analysis server.
//
// Operators normally run cmd/apura, which wires everything from environment
// variables. The server can also be embedded in a larger program:
//
//	app, err := apura.New(
//		apura.WithVersion(version),
//		apura.WithLogger(logger),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := app.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// New reads configuration, connects Postgres, runs migrations, builds the
// pipeline definitions, and constructs the HTTP server. Options override
// individual pieces (chat provider, detector, message sender, news sources)
// so embedders and tests can swap external services without touching the
// environment. Nothing under internal/ imports this package.
package apura

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/apura-ai/apura/api"
	"github.com/apura-ai/apura/internal/config"
	"github.com/apura-ai/apura/internal/guard"
	"github.com/apura-ai/apura/internal/mcp"
	"github.com/apura-ai/apura/internal/model"
	"github.com/apura-ai/apura/internal/pipeline"
	"github.com/apura-ai/apura/internal/server"
	"github.com/apura-ai/apura/internal/service/analysis"
	"github.com/apura-ai/apura/internal/service/chat"
	"github.com/apura-ai/apura/internal/service/claims"
	"github.com/apura-ai/apura/internal/service/dataset"
	"github.com/apura-ai/apura/internal/service/deepfake"
	"github.com/apura-ai/apura/internal/service/download"
	"github.com/apura-ai/apura/internal/service/messenger"
	"github.com/apura-ai/apura/internal/service/news"
	"github.com/apura-ai/apura/internal/storage"
	"github.com/apura-ai/apura/internal/telemetry"
	"github.com/apura-ai/apura/migrations"
)

// App is a fully wired apura instance.
type App struct {
	cfg          config.Config
	db           *storage.DB
	guard        guard.Guard
	engine       *pipeline.Engine
	srv          *server.Server
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New builds an App from environment configuration plus options.
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env if present. Production deployments configure through real
	// environment variables and have no .env file.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if o.addr != "" {
		cfg.Addr = o.addr
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("apura starting", "version", version, "addr", cfg.Addr)

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	db, err := storage.New(context.Background(), cfg.DatabaseURL, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := db.RunMigrations(context.Background(), migrations.FS); err != nil {
		db.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	g, err := newGuard(cfg, db, logger)
	if err != nil {
		db.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("open idempotency guard: %w", err)
	}

	var provider chat.Provider
	if o.chatProvider != nil {
		provider = o.chatProvider
	} else {
		provider = newChatProvider(cfg, logger)
	}

	var detector deepfake.Detector
	if o.detector != nil {
		detector = detectorAdapter{d: o.detector}
	} else {
		detector = newDetector(cfg, logger)
	}

	var sender messenger.Sender
	if o.sender != nil {
		sender = o.sender
	} else {
		sender = newSender(cfg, logger)
	}

	var searchers []news.Searcher
	if len(o.sources) > 0 {
		for _, s := range o.sources {
			searchers = append(searchers, newsSourceAdapter{s: s})
		}
	} else {
		searchers = newSearchers(cfg, logger)
	}

	defs := buildDefinitions(stageSet{
		download:        download.New(cfg.MediaDir, db, logger),
		claims:          claims.New(provider, db, logger),
		deepfake:        deepfake.New(detector, db, logger),
		analysis:        analysis.New(provider, db, logger),
		processingReply: messenger.NewProcessingSender(sender, logger),
		analysisReply:   messenger.NewAnalysisSender(sender, logger),
		news: news.New(searchers, provider, sender, db, logger,
			news.WithThreshold(cfg.NewsThreshold),
			news.WithTopN(cfg.NewsTopN),
		),
		datasetLoad:    dataset.NewLoader(cfg.DatasetDir, logger),
		datasetPersist: dataset.NewPersister(db, logger),
	})

	sup := pipeline.NewSupervisor(cfg.MaxConcurrentRuns, logger)
	engine := pipeline.NewEngine(defs, g, sup, logger)

	mcpSrv := mcp.New(engine, db, logger, version)

	srv := server.New(server.ServerConfig{
		Engine:              engine,
		Store:               db,
		Logger:              logger,
		VerifyToken:         cfg.VerifyToken,
		AppSecret:           cfg.AppSecret,
		DatasetDir:          cfg.DatasetDir,
		IngestConcurrency:   cfg.MaxConcurrentRuns,
		Addr:                cfg.Addr,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		GuardBackend:        cfg.GuardBackend,
		MCPServer:           mcpSrv.MCPServer(),
		OpenAPISpec:         api.OpenAPISpec,
	})

	return &App{
		cfg:          cfg,
		db:           db,
		guard:        g,
		engine:       engine,
		srv:          srv,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or the server
// fails. On cancellation it performs a graceful shutdown.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	return a.Shutdown(context.Background())
}

// Handler exposes the HTTP handler for tests and embedders that manage their
// own listener.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// Shutdown performs a two-phase graceful shutdown: stop accepting HTTP
// requests and drain in-flight requests, then wait for running pipeline
// runs to finish. It then closes the guard, telemetry, and the database
// pool. A drain timeout abandons the remaining runs; their idempotency
// keys stay claimed, so the platform's redelivery will not replay them.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("apura shutting down")

	httpCtx, httpCancel := contextWithOptionalTimeout(ctx, a.cfg.ShutdownHTTPTimeout)
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}
	httpCancel()

	drainCtx, drainCancel := contextWithOptionalTimeout(ctx, a.cfg.ShutdownDrainTimeout)
	drainErr := a.engine.Close(drainCtx)
	drainCancel()
	if drainErr != nil {
		a.logger.Error("pipeline drain incomplete",
			"error", drainErr,
			"active_runs", a.engine.Active(),
			"configured_timeout", a.cfg.ShutdownDrainTimeout,
		)
	}

	if err := a.guard.Close(); err != nil {
		a.logger.Error("guard close error", "error", err)
	}
	_ = a.otelShutdown(context.Background())
	a.db.Close()

	a.logger.Info("apura stopped")
	if drainErr != nil {
		return fmt.Errorf("drain pipeline runs: %w", drainErr)
	}
	return nil
}

// stageSet collects one instance of every pipeline stage so the variant
// definitions below can share them.
type stageSet struct {
	download        pipeline.Module
	claims          pipeline.Module
	deepfake        pipeline.Module
	analysis        pipeline.Module
	processingReply pipeline.Module
	analysisReply   pipeline.Module
	news            pipeline.Module
	datasetLoad     pipeline.Module
	datasetPersist  pipeline.Module
}

// buildDefinitions wires the three pipeline variants.
//
// The direct-message variant binds the processing acknowledgement to the
// trigger event ahead of the stage chain, so the user hears back before the
// download starts and a reply failure never blocks analysis.
func buildDefinitions(s stageSet) pipeline.Definitions {
	dm := model.VariantDirectMessage
	dmBindings := append(
		[]pipeline.Binding{{On: dm.Trigger(), Module: s.processingReply}},
		pipeline.Chain(dm.Trigger(),
			s.download,
			s.claims,
			s.deepfake,
			s.analysis,
			s.analysisReply,
			s.news,
		)...,
	)

	wh := model.VariantWebhook
	dc := model.VariantDatasetCloud

	return pipeline.Definitions{
		dm: pipeline.NewDefinition(dm, dmBindings...),
		wh: pipeline.NewDefinition(wh, pipeline.Chain(wh.Trigger(),
			s.download,
			s.claims,
			s.deepfake,
			s.analysis,
		)...),
		dc: pipeline.NewDefinition(dc, pipeline.Chain(dc.Trigger(),
			s.datasetLoad,
			s.datasetPersist,
		)...),
	}
}

// newGuard selects the idempotency guard backend.
func newGuard(cfg config.Config, db *storage.DB, logger *slog.Logger) (guard.Guard, error) {
	switch cfg.GuardBackend {
	case "badger":
		logger.Info("idempotency guard: badger", "dir", cfg.GuardDir)
		return guard.NewBadger(cfg.GuardDir, logger)
	case "postgres":
		logger.Info("idempotency guard: postgres")
		return guard.NewPostgres(db), nil
	default:
		logger.Info("idempotency guard: memory, keys are lost on restart")
		return guard.NewMemory(), nil
	}
}

// newChatProvider selects the chat backend from config. "auto" picks OpenAI
// when a key is configured and falls back to noop otherwise.
func newChatProvider(cfg config.Config, logger *slog.Logger) chat.Provider {
	var opts []chat.Option
	if cfg.ChatBaseURL != "" {
		opts = append(opts, chat.WithBaseURL(cfg.ChatBaseURL))
	}

	switch cfg.ChatProvider {
	case "openai":
		if cfg.ChatAPIKey == "" {
			logger.Error("APURA_LLM_PROVIDER=openai requires APURA_LLM_KEY, falling back to noop")
			return chat.NoopProvider{}
		}
		logger.Info("chat provider: openai", "model", cfg.ChatModel)
		return chat.NewOpenAIProvider(cfg.ChatAPIKey, cfg.ChatModel, opts...)
	case "noop":
		logger.Info("chat provider: noop, claim extraction and analysis are disabled")
		return chat.NoopProvider{}
	default:
		if cfg.ChatAPIKey != "" {
			logger.Info("chat provider: openai (auto-detected)", "model", cfg.ChatModel)
			return chat.NewOpenAIProvider(cfg.ChatAPIKey, cfg.ChatModel, opts...)
		}
		logger.Warn("no chat provider configured, using noop")
		return chat.NoopProvider{}
	}
}

// newDetector selects the deepfake detector from config.
func newDetector(cfg config.Config, logger *slog.Logger) deepfake.Detector {
	if cfg.DetectorURL == "" {
		logger.Warn("deepfake detector: noop, every video scores inconclusive")
		return deepfake.NoopDetector{}
	}
	logger.Info("deepfake detector: http", "url", cfg.DetectorURL)
	return deepfake.NewClient(cfg.DetectorURL)
}

// newSender selects the Instagram message sender from config.
func newSender(cfg config.Config, logger *slog.Logger) messenger.Sender {
	if cfg.AccessToken == "" {
		logger.Warn("instagram sender: noop, replies are dropped")
		return messenger.NoopSender{}
	}
	var opts []messenger.ClientOption
	if cfg.GraphAPIBase != "" {
		opts = append(opts, messenger.WithBaseURL(cfg.GraphAPIBase))
	}
	logger.Info("instagram sender: graph api")
	return messenger.NewClient(cfg.AccessToken, opts...)
}

// newSearchers builds the configured news sources. With no sources the
// related-news stage completes without sending anything.
func newSearchers(cfg config.Config, logger *slog.Logger) []news.Searcher {
	var searchers []news.Searcher
	if cfg.GNewsEnabled {
		var opts []news.GNewsOption
		if cfg.GNewsPeriod != "" {
			opts = append(opts, news.WithGNewsPeriod(cfg.GNewsPeriod))
		}
		searchers = append(searchers, news.NewGNewsClient(opts...))
		logger.Info("news source: gnews")
	}
	if cfg.NewsAPIKey != "" {
		searchers = append(searchers, news.NewNewsAPIClient(cfg.NewsAPIKey))
		logger.Info("news source: newsapi")
	}
	if len(searchers) == 0 {
		logger.Warn("no news sources configured, related news lookups are skipped")
	}
	return searchers
}

// ── Adapters (defined here because this file imports both sides) ───────────────

// detectorAdapter wraps an apura.DeepfakeDetector to satisfy deepfake.Detector.
type detectorAdapter struct {
	d DeepfakeDetector
}

func (a detectorAdapter) Detect(ctx context.Context, videoPath string) (deepfake.Result, error) {
	score, err := a.d.Detect(ctx, videoPath)
	if err != nil {
		return deepfake.Result{}, err
	}
	return deepfake.Result{
		VideoFakeProb: score.VideoFakeProb,
		AudioFakeProb: score.AudioFakeProb,
		AudioStatus:   score.AudioStatus,
	}, nil
}

// newsSourceAdapter wraps an apura.NewsSource to satisfy news.Searcher.
type newsSourceAdapter struct {
	s NewsSource
}

func (a newsSourceAdapter) Search(ctx context.Context, query string) ([]model.NewsArticle, error) {
	articles, err := a.s.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	out := make([]model.NewsArticle, len(articles))
	for i, art := range articles {
		out[i] = model.NewsArticle{
			Source:      art.Source,
			Title:       art.Title,
			URL:         art.URL,
			Description: art.Description,
		}
	}
	return out, nil
}

func contextWithOptionalTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}
