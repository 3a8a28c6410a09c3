package apura

import "context"

// ChatProvider generates one completion for one prompt.
// When provided via WithChatProvider, replaces the auto-detected OpenAI/noop
// backend for claim extraction, analysis, and news query generation.
type ChatProvider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// DeepfakeDetector scores a local video file for manipulation.
// When provided via WithDetector, replaces the HTTP client for the inference
// service. Returns raw probabilities; the verdict rule stays internal. Uses a
// public score struct so external consumers avoid internal package imports.
type DeepfakeDetector interface {
	Detect(ctx context.Context, videoPath string) (DetectionScore, error)
}

// MessageSender delivers a text message to an Instagram user.
// When provided via WithMessageSender, replaces the Graph API client for the
// processing acknowledgement, the analysis reply, and related-news messages.
type MessageSender interface {
	SendText(ctx context.Context, recipientID, text string) error
}

// NewsSource finds candidate articles for a keyword query.
// Sources added via WithNewsSource replace the configured GNews/NewsAPI set;
// results from all sources are pooled before relevance ranking.
type NewsSource interface {
	Search(ctx context.Context, query string) ([]NewsArticle, error)
}
