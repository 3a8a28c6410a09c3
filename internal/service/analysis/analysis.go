// Package analysis implements the disinformation_analysis stage: a model
// call that assesses the extracted claim and turns the answer into short
// DM-ready messages.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strings"

	"github.com/apura-ai/apura/internal/model"
	"github.com/apura-ai/apura/internal/pipeline"
	"github.com/apura-ai/apura/internal/service/chat"
)

const analysisPrompt = `Você é um especialista em desinformação. Analise a afirmação e o contexto e responda uma análise em português brasileiro que:
1. Indique o nível de risco (ALTO, MÉDIO ou BAIXO)
2. Apresente as TOP 2 evidências que suportam essa conclusão

A análise deve considerar:
- Afirmações falsas ou enganosas
- Falta de fontes confiáveis ou verificação
- Manipulação emocional ou sensacionalismo
- Informações fora de contexto
- Teorias conspiratórias não comprovadas
- Indicadores de deepfakes ou mídia manipulada

O retorno deve ser EXATAMENTE neste formato em português (sem texto extra, sem JSON):

Risco: <texto curto>
Evidencia 1: <texto curto>
Evidencia 2: <texto curto>

Se alguma evidência não existir, use "N/A" no lugar do texto. Mantenha as evidências objetivas e com no máximo 500 caracteres cada.

Afirmação: %s
Contexto: %s`

// fallbackAnalysis keeps the DM flow alive when the model is unreachable.
const fallbackAnalysis = "Risco: N/A\nEvidencia 1: N/A\nEvidencia 2: N/A"

// RecordStore persists the parsed analysis messages.
type RecordStore interface {
	UpdateAnalysisMessages(ctx context.Context, requestKey string, messages []string) error
}

// Service is the stage module.
type Service struct {
	provider chat.Provider
	records  RecordStore
	logger   *slog.Logger
}

// New creates the disinformation analysis stage module.
func New(provider chat.Provider, records RecordStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		provider: provider,
		records:  records,
		logger:   logger.With("component", "analysis"),
	}
}

// Name returns the stage name.
func (s *Service) Name() string { return model.StageAnalysis }

// Execute analyzes the claim, persists the parsed messages, and returns the
// payload with messages and the joined analysisMessage set. A model failure
// degrades to an N/A answer instead of failing the stage; the user still
// gets a reply.
func (s *Service) Execute(ctx context.Context, payload map[string]any) (map[string]any, error) {
	requestID, _ := payload[model.FieldID].(string)
	data, _ := payload[model.FieldData].(map[string]any)
	claim, claimOK := data[model.FieldClaim].(string)
	claimContext, contextOK := data[model.FieldContext].(string)
	if requestID == "" || !claimOK || !contextOK {
		return nil, fmt.Errorf("analysis: missing id, claim or context: %w", pipeline.ErrInvalidPayload)
	}

	raw, err := s.provider.Complete(ctx, fmt.Sprintf(analysisPrompt, claim, claimContext))
	if err != nil {
		s.logger.ErrorContext(ctx, "analysis model call failed", "request_id", requestID, "error", err)
		raw = fallbackAnalysis
	}
	messages := ParseMessages(strings.TrimSpace(raw))
	s.logger.InfoContext(ctx, "analysis complete", "request_id", requestID, "messages", len(messages))

	if s.records != nil {
		if err := s.records.UpdateAnalysisMessages(ctx, requestID, messages); err != nil {
			return nil, fmt.Errorf("analysis: persist messages: %w", err)
		}
	}

	out := maps.Clone(data)
	out[model.FieldMessages] = messages
	out[model.FieldAnalysisMessage] = strings.Join(messages, "\n")

	result := maps.Clone(payload)
	result[model.FieldData] = out
	return result, nil
}

// ParseMessages splits the model answer into short DM-ready messages: the
// risk line plus the first two evidence lines. When the answer does not
// follow the expected format the whole text is kept as a single message,
// capped at 1000 characters.
func ParseMessages(raw string) []string {
	var risk string
	var evidence []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		if risk == "" && strings.HasPrefix(lower, "risco:") {
			risk = line
			continue
		}
		if strings.HasPrefix(lower, "evidencia") {
			evidence = append(evidence, line)
		}
	}

	var messages []string
	if risk != "" {
		messages = append(messages, risk)
	}
	if len(evidence) > 2 {
		evidence = evidence[:2]
	}
	messages = append(messages, evidence...)

	if len(messages) == 0 && raw != "" {
		runes := []rune(raw)
		if len(runes) > 1000 {
			runes = runes[:1000]
		}
		messages = append(messages, string(runes))
	}
	return messages
}
