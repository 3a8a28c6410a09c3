package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/apura-ai/apura/internal/model"
	"github.com/apura-ai/apura/internal/storage"
)

func (s *Server) registerTools() {
	// apura_analyze — submit a video for disinformation analysis.
	s.mcpServer.AddTool(
		mcplib.NewTool("apura_analyze",
			mcplib.WithDescription(`Submit an Instagram video for disinformation analysis.

The analysis runs asynchronously: the video is downloaded, its central claim
extracted, the footage scored for deepfake manipulation, and a risk assessment
written. Use apura_get_analysis with the returned request_key to read the
verdict once the run finishes (typically under a minute).

WHAT YOU GET BACK:
- request_key: the key to poll with apura_get_analysis
- admitted: false when this key was already analyzed; the existing record
  is available immediately`),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("video_url",
				mcplib.Description("Public URL of the video to analyze, e.g. an Instagram reel permalink or a direct media URL."),
				mcplib.Required(),
			),
			mcplib.WithString("request_key",
				mcplib.Description("Optional stable key for this request. Re-submitting the same key is a no-op. Defaults to the video URL."),
			),
			mcplib.WithString("caption",
				mcplib.Description("Optional caption or message text accompanying the video. Improves claim extraction."),
			),
		),
		s.handleAnalyze,
	)

	// apura_get_analysis — read one analysis record.
	s.mcpServer.AddTool(
		mcplib.NewTool("apura_get_analysis",
			mcplib.WithDescription(`Fetch the analysis record for a previously submitted video.

WHAT YOU GET BACK: the full record, including the extracted claim, the
deepfake verdict (FAKE, REAL, or INCONCLUSIVE) with raw probabilities, the
risk assessment messages, and any related news articles found. Fields are
null until the corresponding pipeline stage has completed.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("request_key",
				mcplib.Description("The request_key returned by apura_analyze."),
				mcplib.Required(),
			),
		),
		s.handleGetAnalysis,
	)

	// apura_list_analyses — recent analysis records.
	s.mcpServer.AddTool(
		mcplib.NewTool("apura_list_analyses",
			mcplib.WithDescription(`List recent analysis records, newest first.

Useful for reviewing what has been analyzed and spotting runs that are
still in flight (records with a null verdict).`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum number of records to return"),
				mcplib.Min(1),
				mcplib.Max(100),
				mcplib.DefaultNumber(10),
			),
			mcplib.WithNumber("offset",
				mcplib.Description("Number of records to skip, for paging"),
				mcplib.Min(0),
				mcplib.DefaultNumber(0),
			),
		),
		s.handleListAnalyses,
	)
}

func (s *Server) handleAnalyze(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	videoURL := request.GetString("video_url", "")
	if videoURL == "" {
		return errorResult("video_url is required"), nil
	}

	requestKey := request.GetString("request_key", "")
	if requestKey == "" {
		requestKey = videoURL
	}

	payload := map[string]any{
		model.FieldIdempotencyKey: requestKey,
		model.FieldVideoURL:       videoURL,
	}
	if caption := request.GetString("caption", ""); caption != "" {
		payload[model.FieldVideoText] = caption
	}

	admitted, err := s.engine.Submit(ctx, model.VariantWebhook, payload)
	if err != nil {
		return errorResult(fmt.Sprintf("submit failed: %v", err)), nil
	}

	if !admitted {
		s.logger.Info("mcp analyze: duplicate", "request_key", requestKey)
	}

	resultData, _ := json.MarshalIndent(map[string]any{
		"request_key": requestKey,
		"admitted":    admitted,
	}, "", "  ")
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(resultData)},
		},
	}, nil
}

func (s *Server) handleGetAnalysis(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	requestKey := request.GetString("request_key", "")
	if requestKey == "" {
		return errorResult("request_key is required"), nil
	}

	rec, err := s.records.GetAnalysisRecord(ctx, requestKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return errorResult(fmt.Sprintf("no analysis record for request key %q; the run may not have started yet", requestKey)), nil
		}
		return errorResult(fmt.Sprintf("get analysis failed: %v", err)), nil
	}

	resultData, _ := json.MarshalIndent(rec, "", "  ")
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(resultData)},
		},
	}, nil
}

func (s *Server) handleListAnalyses(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	limit := request.GetInt("limit", 10)
	if limit < 1 || limit > 100 {
		limit = 10
	}
	offset := request.GetInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	records, total, err := s.records.ListAnalysisRecords(ctx, limit, offset)
	if err != nil {
		return errorResult(fmt.Sprintf("list analyses failed: %v", err)), nil
	}

	resultData, _ := json.MarshalIndent(map[string]any{
		"total":   total,
		"records": records,
	}, "", "  ")
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(resultData)},
		},
	}, nil
}
