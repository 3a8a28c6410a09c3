package apura

import "log/slog"

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported; callers use the With* functions.
type resolvedOptions struct {
	addr         string
	databaseURL  string
	version      string
	logger       *slog.Logger
	chatProvider ChatProvider
	detector     DeepfakeDetector
	sender       MessageSender
	sources      []NewsSource
}

// WithAddr overrides the listen address from config (APURA_ADDR env var).
func WithAddr(addr string) Option {
	return func(o *resolvedOptions) { o.addr = addr }
}

// WithDatabaseURL overrides the Postgres DSN from config (APURA_DATABASE_URL env var).
func WithDatabaseURL(dsn string) Option {
	return func(o *resolvedOptions) { o.databaseURL = dsn }
}

// WithVersion sets the version string reported by /healthz and telemetry.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithChatProvider replaces the auto-detected OpenAI/noop chat backend.
func WithChatProvider(p ChatProvider) Option {
	return func(o *resolvedOptions) { o.chatProvider = p }
}

// WithDetector replaces the HTTP deepfake detector client.
func WithDetector(d DeepfakeDetector) Option {
	return func(o *resolvedOptions) { o.detector = d }
}

// WithMessageSender replaces the Instagram Graph API sender.
func WithMessageSender(s MessageSender) Option {
	return func(o *resolvedOptions) { o.sender = s }
}

// WithNewsSource adds a news source, replacing the configured GNews and
// NewsAPI set. May be passed multiple times.
func WithNewsSource(s NewsSource) Option {
	return func(o *resolvedOptions) { o.sources = append(o.sources, s) }
}
