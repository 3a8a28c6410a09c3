// Package news implements the related_news_filter stage: it searches
// Brazilian news indexes for articles related to the extracted claim,
// ranks them by TF-IDF cosine similarity, lets the model pick the two most
// relevant, and DMs them to the submitting user.
package news

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/apura-ai/apura/internal/model"
	"github.com/apura-ai/apura/internal/pipeline"
	"github.com/apura-ai/apura/internal/service/chat"
	"github.com/apura-ai/apura/internal/service/messenger"
)

const introText = "Segue notícias potencialmente relacionadas com o vídeo mandado:"

const (
	defaultThreshold = 0.001
	defaultTopN      = 3
	selectionLimit   = 2
)

// Searcher queries one news index.
type Searcher interface {
	Search(ctx context.Context, query string) ([]model.NewsArticle, error)
}

// RecordStore persists the news messages actually sent.
type RecordStore interface {
	UpdateNewsMessages(ctx context.Context, requestKey string, messages []string) error
}

// Service is the stage module.
type Service struct {
	searchers []Searcher
	provider  chat.Provider
	sender    messenger.Sender
	records   RecordStore
	threshold float64
	topN      int
	group     singleflight.Group
	logger    *slog.Logger
}

// Option configures the service.
type Option func(*Service)

// WithThreshold overrides the minimum similarity score an article needs to
// stay a candidate.
func WithThreshold(t float64) Option {
	return func(s *Service) { s.threshold = t }
}

// WithTopN overrides how many ranked candidates reach the selection step.
func WithTopN(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.topN = n
		}
	}
}

// New creates the related news stage module.
func New(searchers []Searcher, provider chat.Provider, sender messenger.Sender, records RecordStore, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		searchers: searchers,
		provider:  provider,
		sender:    sender,
		records:   records,
		threshold: defaultThreshold,
		topN:      defaultTopN,
		logger:    logger.With("component", "news"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the stage name.
func (s *Service) Name() string { return model.StageRelatedNews }

// Execute searches, ranks, selects and sends related news, then records
// what was sent. Runs that find nothing to send still complete, reporting
// newsSent 0.
func (s *Service) Execute(ctx context.Context, payload map[string]any) (map[string]any, error) {
	requestID, _ := payload[model.FieldID].(string)
	data, _ := payload[model.FieldData].(map[string]any)
	claim, _ := data[model.FieldClaim].(string)
	userID, _ := data[model.FieldUserID].(string)
	if requestID == "" || claim == "" || userID == "" {
		return nil, fmt.Errorf("news: missing id, claim or userId: %w", pipeline.ErrInvalidPayload)
	}

	var sent []string
	candidates := splitUserSentence(claim)
	query := extractKeywords(claim)
	if len(candidates) == 0 || query == "" {
		s.logger.InfoContext(ctx, "claim has no searchable facts", "request_id", requestID)
		return s.finish(ctx, requestID, payload, data, nil, sent)
	}

	ranked, err := s.fetchRanked(ctx, query, candidates)
	if err != nil {
		return nil, err
	}
	selected := s.pickRelated(ctx, messagesFrom(data), ranked)
	if len(selected) == 0 {
		s.logger.InfoContext(ctx, "no related news to send", "request_id", requestID, "candidates", len(ranked))
		return s.finish(ctx, requestID, payload, data, ranked, sent)
	}

	// The intro line is best-effort; losing it must not lose the articles.
	if err := s.sender.SendText(ctx, userID, introText); err != nil {
		s.logger.ErrorContext(ctx, "news intro not delivered", "request_id", requestID, "error", err)
	}
	for _, article := range selected {
		formatted := formatNewsMessage(article)
		for _, chunk := range messenger.ChunkMessage(formatted, messenger.MessageCharLimit) {
			if err := s.sender.SendText(ctx, userID, chunk); err != nil {
				return nil, fmt.Errorf("news: send article: %w", err)
			}
		}
		sent = append(sent, formatted)
	}
	s.logger.InfoContext(ctx, "related news sent", "request_id", requestID, "news_sent", len(sent))

	return s.finish(ctx, requestID, payload, data, ranked, sent)
}

// finish persists the sent messages and shapes the completion payload.
func (s *Service) finish(ctx context.Context, requestID string, payload, data map[string]any, ranked []model.NewsArticle, sent []string) (map[string]any, error) {
	if s.records != nil {
		if err := s.records.UpdateNewsMessages(ctx, requestID, sent); err != nil {
			return nil, fmt.Errorf("news: persist messages: %w", err)
		}
	}
	out := maps.Clone(data)
	out[model.FieldNews] = ranked
	out[model.FieldNewsSent] = len(sent)

	result := maps.Clone(payload)
	result[model.FieldData] = out
	return result, nil
}

// fetchRanked searches every source and ranks the results. Concurrent runs
// producing the same keyword query share one search.
func (s *Service) fetchRanked(ctx context.Context, query string, candidates []string) ([]model.NewsArticle, error) {
	v, err, _ := s.group.Do(query, func() (any, error) {
		return s.searchAndScore(ctx, query, candidates)
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.NewsArticle), nil
}

func (s *Service) searchAndScore(ctx context.Context, query string, candidates []string) ([]model.NewsArticle, error) {
	var articles []model.NewsArticle
	var errs []error
	for _, searcher := range s.searchers {
		found, err := searcher.Search(ctx, query)
		if err != nil {
			s.logger.WarnContext(ctx, "news source failed", "query", query, "error", err)
			errs = append(errs, err)
			continue
		}
		articles = append(articles, found...)
	}
	if len(errs) > 0 && len(errs) == len(s.searchers) {
		return nil, fmt.Errorf("news: all sources failed: %w", errors.Join(errs...))
	}

	var ranked []model.NewsArticle
	for _, article := range articles {
		score := scoreArticle(candidates, article.Title, article.Description)
		if score >= s.threshold {
			article.Score = score
			ranked = append(ranked, article)
		}
	}

	// Dedupe by URL: first position, last value, so a later source refreshes
	// an article without reordering it.
	position := make(map[string]int, len(ranked))
	var unique []model.NewsArticle
	for _, article := range ranked {
		if i, ok := position[article.URL]; ok {
			unique[i] = article
			continue
		}
		position[article.URL] = len(unique)
		unique = append(unique, article)
	}

	slices.SortStableFunc(unique, func(a, b model.NewsArticle) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(unique) > s.topN {
		unique = unique[:s.topN]
	}
	return unique, nil
}

// pickRelated asks the model which ranked candidates actually relate to
// the analysis sent to the user. Without a usable model answer the TF-IDF
// order decides; an explicit "NENHUMA" sends nothing.
func (s *Service) pickRelated(ctx context.Context, messages []string, ranked []model.NewsArticle) []model.NewsArticle {
	if len(ranked) == 0 {
		return nil
	}
	limit := min(selectionLimit, len(ranked))
	if s.provider == nil || len(messages) == 0 {
		return ranked[:limit]
	}

	answer, err := s.provider.Complete(ctx, buildSelectionPrompt(messages, ranked))
	if err != nil {
		s.logger.WarnContext(ctx, "news selection model failed", "error", err)
		return ranked[:limit]
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return ranked[:limit]
	}
	if strings.EqualFold(answer, "NENHUMA") {
		return nil
	}

	var selected []model.NewsArticle
	for _, part := range strings.Split(strings.ReplaceAll(answer, " ", ""), ",") {
		num, err := strconv.Atoi(part)
		if err != nil || num < 1 || num > len(ranked) {
			continue
		}
		selected = append(selected, ranked[num-1])
		if len(selected) == selectionLimit {
			break
		}
	}
	return selected
}

func buildSelectionPrompt(messages []string, ranked []model.NewsArticle) string {
	items := make([]string, 0, len(ranked))
	for i, article := range ranked {
		title := article.Title
		if title == "" {
			title = "Sem título"
		}
		description := article.Description
		if description == "" {
			description = "Sem descrição"
		}
		items = append(items, fmt.Sprintf("Notícia %d:\nTítulo: %s\nDescrição: %s", i+1, title, description))
	}

	return fmt.Sprintf(`Você é um assistente especializado em análise de relevância de notícias.

Dada a seguinte análise enviada ao usuário:
%s

E a seguinte lista de notícias:
%s

Selecione as TOP 2 notícias mais relacionadas com o conteúdo da análise enviada.
Se NENHUMA notícia for relevante ou relacionada, retorne apenas "NENHUMA".

Retorne APENAS os números das notícias selecionadas separados por vírgula (ex: "1, 3" ou "2, 5").
Se nenhuma for relevante, retorne apenas: "NENHUMA"

Não inclua qualquer texto adicional, explicação ou formatação.`,
		strings.Join(messages, " "), strings.Join(items, "\n\n"))
}

func formatNewsMessage(article model.NewsArticle) string {
	title := article.Title
	if title == "" {
		title = "Sem título"
	}
	source := article.Source
	if source == "" {
		source = "Fonte desconhecida"
	}
	msg := "📰 " + title + "\nFonte: " + source
	if article.URL != "" {
		msg += "\nLink: " + article.URL
	}
	return msg
}

// messagesFrom reads data["messages"] whether it kept its []string type or
// went through a JSON round trip as []any.
func messagesFrom(data map[string]any) []string {
	switch v := data[model.FieldMessages].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, m := range v {
			if s, ok := m.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
