// Package claims implements the claim_extraction stage: a two-step model
// call that summarizes the reel and derives a single-sentence claim.
package claims

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"

	"github.com/apura-ai/apura/internal/model"
	"github.com/apura-ai/apura/internal/pipeline"
	"github.com/apura-ai/apura/internal/service/chat"
)

// The extraction prompt asks for topics, participants and tone. The reel
// caption is appended when present; chat providers take text only, so the
// caption stands in for the media itself.
const summaryPrompt = "Por favor faça uma extração deste vídeo incluindo:\n" +
	"- Principais tópicos discutidos\n" +
	"- Participantes do vídeo e tom do discurso"

// RecordStore persists the extracted claim and its context.
type RecordStore interface {
	UpdateAnalysisClaim(ctx context.Context, requestKey, claim, claimContext string) error
}

// Service runs the two-step extraction.
type Service struct {
	provider chat.Provider
	records  RecordStore
	logger   *slog.Logger
}

// New creates the claim extraction stage module.
func New(provider chat.Provider, records RecordStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		provider: provider,
		records:  records,
		logger:   logger.With("component", "claims"),
	}
}

// Name returns the stage name.
func (s *Service) Name() string { return model.StageClaimExtraction }

// Execute summarizes the reel, derives the claim from the summary, persists
// both, and returns the payload with claim and context set.
func (s *Service) Execute(ctx context.Context, payload map[string]any) (map[string]any, error) {
	requestID, _ := payload[model.FieldID].(string)
	data, _ := payload[model.FieldData].(map[string]any)
	if requestID == "" || data == nil {
		return nil, fmt.Errorf("claims: missing id or data: %w", pipeline.ErrInvalidPayload)
	}
	videoText, _ := data[model.FieldVideoText].(string)

	summary, err := s.provider.Complete(ctx, buildSummaryPrompt(videoText))
	if err != nil {
		return nil, fmt.Errorf("claims: summarize video: %w", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		// Model unavailable: fall back to the raw caption.
		summary = strings.TrimSpace(videoText)
	}
	if summary == "" {
		return nil, errors.New("claims: no content to derive a claim from")
	}

	claim, err := s.provider.Complete(ctx, buildClaimPrompt(summary))
	if err != nil {
		return nil, fmt.Errorf("claims: derive claim: %w", err)
	}
	claim = strings.TrimSpace(claim)
	if claim == "" {
		claim = summary
	}
	s.logger.InfoContext(ctx, "claim extracted", "request_id", requestID, "claim", claim)

	if s.records != nil {
		if err := s.records.UpdateAnalysisClaim(ctx, requestID, claim, summary); err != nil {
			return nil, fmt.Errorf("claims: persist claim: %w", err)
		}
	}

	out := maps.Clone(data)
	out[model.FieldClaim] = claim
	out[model.FieldContext] = summary

	result := maps.Clone(payload)
	result[model.FieldData] = out
	return result, nil
}

func buildSummaryPrompt(videoText string) string {
	if strings.TrimSpace(videoText) == "" {
		return summaryPrompt
	}
	return summaryPrompt + "\n\nLegenda do vídeo:\n" + videoText
}

func buildClaimPrompt(summary string) string {
	return "Com base no seguinte resumo do vídeo, gere em uma sentença a mensagem do vídeo:\n" + summary
}
