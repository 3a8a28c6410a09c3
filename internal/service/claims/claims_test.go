package claims_test

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
	"github.com/apura-ai/apura/internal/service/claims"
)

type scriptedProvider struct {
	answers []string
	err     error
	prompts []string
}

func (p *scriptedProvider) Complete(_ context.Context, prompt string) (string, error) {
	p.prompts = append(p.prompts, prompt)
	if p.err != nil {
		return "", p.err
	}
	if len(p.answers) == 0 {
		return "", nil
	}
	answer := p.answers[0]
	p.answers = p.answers[1:]
	return answer, nil
}

type claimStore struct {
	requestKey, claim, context string
	err                        error
}

func (c *claimStore) UpdateAnalysisClaim(_ context.Context, requestKey, claim, claimContext string) error {
	if c.err != nil {
		return c.err
	}
	c.requestKey, c.claim, c.context = requestKey, claim, claimContext
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func payloadWith(data map[string]any) map[string]any {
	return map[string]any{model.FieldID: "req-1", model.FieldData: data}
}

func TestExecuteExtractsClaim(t *testing.T) {
	provider := &scriptedProvider{answers: []string{
		"O vídeo discute uma suposta cura milagrosa.",
		"A cura milagrosa anunciada não tem comprovação científica.",
	}}
	store := &claimStore{}
	svc := claims.New(provider, store, testLogger())

	out, err := svc.Execute(context.Background(), payloadWith(map[string]any{
		model.FieldVideoText: "cura milagrosa revelada!",
	}))
	require.NoError(t, err)

	require.Len(t, provider.prompts, 2)
	assert.Contains(t, provider.prompts[0], "Principais tópicos discutidos")
	assert.Contains(t, provider.prompts[0], "cura milagrosa revelada!")
	assert.True(t, strings.HasPrefix(provider.prompts[1], "Com base no seguinte resumo"))
	assert.Contains(t, provider.prompts[1], "suposta cura milagrosa")

	data := out[model.FieldData].(map[string]any)
	assert.Equal(t, "A cura milagrosa anunciada não tem comprovação científica.", data[model.FieldClaim])
	assert.Equal(t, "O vídeo discute uma suposta cura milagrosa.", data[model.FieldContext])

	assert.Equal(t, "req-1", store.requestKey)
	assert.Equal(t, data[model.FieldClaim], store.claim)
	assert.Equal(t, data[model.FieldContext], store.context)
}

func TestExecuteFallsBackToCaption(t *testing.T) {
	store := &claimStore{}
	svc := claims.New(chat.NoopProvider{}, store, testLogger())

	out, err := svc.Execute(context.Background(), payloadWith(map[string]any{
		model.FieldVideoText: "governo esconde a verdade",
	}))
	require.NoError(t, err)

	data := out[model.FieldData].(map[string]any)
	assert.Equal(t, "governo esconde a verdade", data[model.FieldClaim])
	assert.Equal(t, "governo esconde a verdade", data[model.FieldContext])
}

func TestExecuteFailsWithoutAnyContent(t *testing.T) {
	svc := claims.New(chat.NoopProvider{}, &claimStore{}, testLogger())
	_, err := svc.Execute(context.Background(), payloadWith(map[string]any{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no content")
}

func TestExecuteRejectsMissingID(t *testing.T) {
	svc := claims.New(chat.NoopProvider{}, &claimStore{}, testLogger())
	_, err := svc.Execute(context.Background(), map[string]any{
		model.FieldData: map[string]any{model.FieldVideoText: "x"},
	})
	assert.ErrorIs(t, err, pipeline.ErrInvalidPayload)
}

func TestExecutePropagatesProviderError(t *testing.T) {
	boom := errors.New("quota exceeded")
	svc := claims.New(&scriptedProvider{err: boom}, &claimStore{}, testLogger())
	_, err := svc.Execute(context.Background(), payloadWith(map[string]any{
		model.FieldVideoText: "qualquer coisa",
	}))
	assert.ErrorIs(t, err, boom)
}

func TestExecutePropagatesStoreError(t *testing.T) {
	boom := errors.New("database down")
	provider := &scriptedProvider{answers: []string{"resumo", "afirmação"}}
	svc := claims.New(provider, &claimStore{err: boom}, testLogger())
	_, err := svc.Execute(context.Background(), payloadWith(map[string]any{
		model.FieldVideoText: "legenda",
	}))
	assert.ErrorIs(t, err, boom)
}
