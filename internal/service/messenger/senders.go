package messenger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/apura-ai/apura/internal/model"
	"github.com/apura-ai/apura/internal/pipeline"
)

const processingText = "Estamos processando seu vídeo, a análise será finalizada em alguns instantes!"

const analysisFallbackText = "A análise foi concluída, mas não foi possível recuperar o resultado."

// ProcessingSender is the processing_message stage: an immediate ack DM
// sent while the analysis chain runs.
type ProcessingSender struct {
	sender Sender
	logger *slog.Logger
}

// NewProcessingSender creates the ack stage module.
func NewProcessingSender(sender Sender, logger *slog.Logger) *ProcessingSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessingSender{sender: sender, logger: logger.With("component", "messenger")}
}

// Name returns the stage name.
func (p *ProcessingSender) Name() string { return model.StageProcessingMessage }

// Execute sends the fixed ack text. A send failure is logged and swallowed;
// the ack must never interrupt the analysis chain.
func (p *ProcessingSender) Execute(ctx context.Context, payload map[string]any) (map[string]any, error) {
	requestID, _ := payload[model.FieldID].(string)
	data, _ := payload[model.FieldData].(map[string]any)
	userID, _ := data[model.FieldUserID].(string)
	if userID == "" {
		return nil, fmt.Errorf("messenger: missing userId: %w", pipeline.ErrInvalidPayload)
	}

	if err := p.sender.SendText(ctx, userID, processingText); err != nil {
		p.logger.ErrorContext(ctx, "processing ack not delivered", "request_id", requestID, "error", err)
	}
	return payload, nil
}

// AnalysisSender is the analysis_message stage: it DMs the analysis result
// back to the submitting user.
type AnalysisSender struct {
	sender Sender
	logger *slog.Logger
}

// NewAnalysisSender creates the result stage module.
func NewAnalysisSender(sender Sender, logger *slog.Logger) *AnalysisSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalysisSender{sender: sender, logger: logger.With("component", "messenger")}
}

// Name returns the stage name.
func (a *AnalysisSender) Name() string { return model.StageAnalysisMessage }

// Execute sends the parsed analysis messages, falling back first to the
// joined analysisMessage text and then to a fixed notice when the analysis
// produced nothing. The payload passes through unchanged so the news stage
// keeps the full context.
func (a *AnalysisSender) Execute(ctx context.Context, payload map[string]any) (map[string]any, error) {
	requestID, _ := payload[model.FieldID].(string)
	data, _ := payload[model.FieldData].(map[string]any)
	userID, _ := data[model.FieldUserID].(string)
	if userID == "" {
		return nil, fmt.Errorf("messenger: missing userId: %w", pipeline.ErrInvalidPayload)
	}

	messages := messagesFrom(data)
	if len(messages) == 0 {
		if joined, ok := data[model.FieldAnalysisMessage].(string); ok && joined != "" {
			messages = []string{joined}
		} else {
			messages = []string{analysisFallbackText}
		}
	}

	if err := deliver(ctx, a.sender, userID, messages); err != nil {
		return nil, fmt.Errorf("messenger: send analysis result: %w", err)
	}
	a.logger.InfoContext(ctx, "analysis result sent", "request_id", requestID, "messages", len(messages))
	return payload, nil
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
