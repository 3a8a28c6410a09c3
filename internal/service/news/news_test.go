package news_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apura-ai/apura/internal/model"
	"github.com/apura-ai/apura/internal/pipeline"
	"github.com/apura-ai/apura/internal/service/chat"
	"github.com/apura-ai/apura/internal/service/news"
)

type listSearcher struct {
	articles []model.NewsArticle
	err      error
	calls    int
}

func (l *listSearcher) Search(_ context.Context, _ string) ([]model.NewsArticle, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return l.articles, nil
}

type recordingSender struct {
	sent []string
	err  error
}

func (r *recordingSender) SendText(_ context.Context, _, text string) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, text)
	return nil
}

type answerProvider struct {
	answer string
	err    error
	prompt string
}

func (a *answerProvider) Complete(_ context.Context, prompt string) (string, error) {
	a.prompt = prompt
	return a.answer, a.err
}

type newsStore struct {
	requestKey string
	messages   []string
	called     bool
	err        error
}

func (n *newsStore) UpdateNewsMessages(_ context.Context, requestKey string, messages []string) error {
	if n.err != nil {
		return n.err
	}
	n.called = true
	n.requestKey, n.messages = requestKey, messages
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

const testClaim = "Lula aprova um novo decreto que reduz preço nos alimentos"

var (
	relatedArticle = model.NewsArticle{
		Source:      "GNews",
		Title:       "Lula aprova novo decreto que reduz preço nos alimentos",
		URL:         "https://news.example.com/related",
		Description: "O presidente aprovou um decreto para reduzir o preço dos alimentos em todo o país.",
	}
	weakerArticle = model.NewsArticle{
		Source:      "NewsAPI",
		Title:       "Governo estuda decreto sobre preço de combustíveis",
		URL:         "https://news.example.com/weaker",
		Description: "Proposta em análise pode mudar a política de preços praticada no setor.",
	}
	unrelatedArticle = model.NewsArticle{
		Source:      "GNews",
		Title:       "Campeonato brasileiro tem rodada decisiva neste domingo",
		URL:         "https://news.example.com/futebol",
		Description: "Times disputam a liderança do campeonato em jogos simultâneos pelo país.",
	}
)

func newsPayload() map[string]any {
	return map[string]any{
		model.FieldID: "req-1",
		model.FieldData: map[string]any{
			model.FieldUserID:   "user-5",
			model.FieldClaim:    testClaim,
			model.FieldMessages: []string{"Risco: ALTO", "Evidencia 1: sem fontes confiáveis"},
		},
	}
}

func TestExecuteSendsSelectedNews(t *testing.T) {
	searcher := &listSearcher{articles: []model.NewsArticle{relatedArticle, unrelatedArticle}}
	provider := &answerProvider{answer: "1"}
	sender := &recordingSender{}
	store := &newsStore{}
	svc := news.New([]news.Searcher{searcher}, provider, sender, store, testLogger())

	out, err := svc.Execute(context.Background(), newsPayload())
	require.NoError(t, err)

	assert.Contains(t, provider.prompt, "Notícia 1:")
	assert.Contains(t, provider.prompt, relatedArticle.Title)
	assert.Contains(t, provider.prompt, "Risco: ALTO")
	assert.Contains(t, provider.prompt, "Selecione as TOP 2")

	require.Len(t, sender.sent, 2)
	assert.Equal(t, "Segue notícias potencialmente relacionadas com o vídeo mandado:", sender.sent[0])
	assert.True(t, strings.HasPrefix(sender.sent[1], "📰 "+relatedArticle.Title))
	assert.Contains(t, sender.sent[1], "Fonte: GNews")
	assert.Contains(t, sender.sent[1], "Link: "+relatedArticle.URL)

	assert.Equal(t, "req-1", store.requestKey)
	assert.Equal(t, []string{sender.sent[1]}, store.messages)

	data := out[model.FieldData].(map[string]any)
	assert.Equal(t, 1, data[model.FieldNewsSent])
	ranked := data[model.FieldNews].([]model.NewsArticle)
	require.Len(t, ranked, 1)
	assert.Greater(t, ranked[0].Score, 0.0)
}

func TestExecuteModelRejectsAll(t *testing.T) {
	searcher := &listSearcher{articles: []model.NewsArticle{relatedArticle}}
	provider := &answerProvider{answer: "NENHUMA"}
	sender := &recordingSender{}
	store := &newsStore{}
	svc := news.New([]news.Searcher{searcher}, provider, sender, store, testLogger())

	out, err := svc.Execute(context.Background(), newsPayload())
	require.NoError(t, err)
	assert.Empty(t, sender.sent)
	assert.True(t, store.called)
	assert.Empty(t, store.messages)

	data := out[model.FieldData].(map[string]any)
	assert.Equal(t, 0, data[model.FieldNewsSent])
}

func TestExecuteFallsBackToRankingWithoutModel(t *testing.T) {
	searcher := &listSearcher{articles: []model.NewsArticle{weakerArticle, relatedArticle, unrelatedArticle}}
	sender := &recordingSender{}
	svc := news.New([]news.Searcher{searcher}, chat.NoopProvider{}, sender, &newsStore{}, testLogger())

	_, err := svc.Execute(context.Background(), newsPayload())
	require.NoError(t, err)

	// Intro plus the two best-scoring articles, strongest first.
	require.Len(t, sender.sent, 3)
	assert.Contains(t, sender.sent[1], relatedArticle.Title)
	assert.Contains(t, sender.sent[2], weakerArticle.Title)
}

func TestExecuteDedupesByURL(t *testing.T) {
	duplicate := relatedArticle
	duplicate.Source = "NewsAPI"
	first := &listSearcher{articles: []model.NewsArticle{relatedArticle}}
	second := &listSearcher{articles: []model.NewsArticle{duplicate}}
	sender := &recordingSender{}
	svc := news.New([]news.Searcher{first, second}, chat.NoopProvider{}, sender, &newsStore{}, testLogger())

	out, err := svc.Execute(context.Background(), newsPayload())
	require.NoError(t, err)
	require.Len(t, sender.sent, 2)

	data := out[model.FieldData].(map[string]any)
	assert.Equal(t, 1, data[model.FieldNewsSent])
	// The later source wins the duplicate slot.
	assert.Contains(t, sender.sent[1], "Fonte: NewsAPI")
}

func TestExecuteFailsWhenAllSourcesFail(t *testing.T) {
	first := &listSearcher{err: errors.New("dns failure")}
	second := &listSearcher{err: errors.New("429 too many requests")}
	svc := news.New([]news.Searcher{first, second}, chat.NoopProvider{}, &recordingSender{}, &newsStore{}, testLogger())

	_, err := svc.Execute(context.Background(), newsPayload())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all sources failed")
}

func TestExecuteToleratesOneSourceFailing(t *testing.T) {
	broken := &listSearcher{err: errors.New("dns failure")}
	working := &listSearcher{articles: []model.NewsArticle{relatedArticle}}
	sender := &recordingSender{}
	svc := news.New([]news.Searcher{broken, working}, chat.NoopProvider{}, sender, &newsStore{}, testLogger())

	_, err := svc.Execute(context.Background(), newsPayload())
	require.NoError(t, err)
	require.Len(t, sender.sent, 2)
}

func TestExecuteSkipsSearchForVagueClaim(t *testing.T) {
	searcher := &listSearcher{articles: []model.NewsArticle{relatedArticle}}
	sender := &recordingSender{}
	svc := news.New([]news.Searcher{searcher}, chat.NoopProvider{}, sender, &newsStore{}, testLogger())

	payload := newsPayload()
	payload[model.FieldData].(map[string]any)[model.FieldClaim] = "É muito bom!"
	out, err := svc.Execute(context.Background(), payload)
	require.NoError(t, err)

	assert.Zero(t, searcher.calls)
	assert.Empty(t, sender.sent)
	data := out[model.FieldData].(map[string]any)
	assert.Equal(t, 0, data[model.FieldNewsSent])
}

func TestExecuteRejectsIncompletePayload(t *testing.T) {
	svc := news.New(nil, chat.NoopProvider{}, &recordingSender{}, &newsStore{}, testLogger())

	payload := newsPayload()
	delete(payload[model.FieldData].(map[string]any), model.FieldUserID)
	_, err := svc.Execute(context.Background(), payload)
	assert.ErrorIs(t, err, pipeline.ErrInvalidPayload)

	payload = newsPayload()
	delete(payload[model.FieldData].(map[string]any), model.FieldClaim)
	_, err = svc.Execute(context.Background(), payload)
	assert.ErrorIs(t, err, pipeline.ErrInvalidPayload)
}

func TestExecuteFailsWhenArticleSendFails(t *testing.T) {
	searcher := &listSearcher{articles: []model.NewsArticle{relatedArticle}}
	sender := &recordingSender{err: errors.New("token expired")}
	svc := news.New([]news.Searcher{searcher}, &answerProvider{answer: "1"}, sender, &newsStore{}, testLogger())

	_, err := svc.Execute(context.Background(), newsPayload())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send article")
}

func TestExecuteFailsWhenPersistFails(t *testing.T) {
	searcher := &listSearcher{articles: []model.NewsArticle{relatedArticle}}
	store := &newsStore{err: errors.New("database down")}
	svc := news.New([]news.Searcher{searcher}, &answerProvider{answer: "1"}, &recordingSender{}, store, testLogger())

	_, err := svc.Execute(context.Background(), newsPayload())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist messages")
}
