package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apura-ai/apura/internal/model"
	"github.com/apura-ai/apura/internal/storage"
)

type fakeEngine struct {
	submitted []model.Submission
	dup       bool
	err       error
}

func (f *fakeEngine) Submit(_ context.Context, variant model.Variant, payload map[string]any) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.submitted = append(f.submitted, model.Submission{Variant: variant, Payload: payload})
	return !f.dup, nil
}

type fakeRecords struct {
	records   map[string]model.AnalysisRecord
	list      []model.AnalysisRecord
	gotLimit  int
	gotOffset int
}

func (f *fakeRecords) GetAnalysisRecord(_ context.Context, requestKey string) (model.AnalysisRecord, error) {
	rec, ok := f.records[requestKey]
	if !ok {
		return model.AnalysisRecord{}, fmt.Errorf("storage: get analysis record %q: %w", requestKey, storage.ErrNotFound)
	}
	return rec, nil
}

func (f *fakeRecords) ListAnalysisRecords(_ context.Context, limit, offset int) ([]model.AnalysisRecord, int, error) {
	f.gotLimit = limit
	f.gotOffset = offset
	return f.list, len(f.list), nil
}

func newTestServer(engine *fakeEngine, records *fakeRecords) *Server {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(engine, records, logger, "test")
}

func callRequest(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// parseToolText extracts the first TextContent text from a CallToolResult.
func parseToolText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("result has no text content")
	return ""
}

func TestAnalyzeSubmitsWebhookRun(t *testing.T) {
	engine := &fakeEngine{}
	srv := newTestServer(engine, &fakeRecords{})

	result, err := srv.handleAnalyze(context.Background(), callRequest("apura_analyze", map[string]any{
		"video_url": "https://www.instagram.com/reel/DCx19/",
		"caption":   "olha isso",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, "analyze should succeed: %s", parseToolText(t, result))

	var resp struct {
		RequestKey string `json:"request_key"`
		Admitted   bool   `json:"admitted"`
	}
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &resp))
	assert.True(t, resp.Admitted)
	assert.Equal(t, "https://www.instagram.com/reel/DCx19/", resp.RequestKey)

	require.Len(t, engine.submitted, 1)
	sub := engine.submitted[0]
	assert.Equal(t, model.VariantWebhook, sub.Variant)
	assert.Equal(t, "https://www.instagram.com/reel/DCx19/", sub.Payload[model.FieldVideoURL])
	assert.Equal(t, "olha isso", sub.Payload[model.FieldVideoText])
}

func TestAnalyzeUsesProvidedRequestKey(t *testing.T) {
	engine := &fakeEngine{}
	srv := newTestServer(engine, &fakeRecords{})

	result, err := srv.handleAnalyze(context.Background(), callRequest("apura_analyze", map[string]any{
		"video_url":   "https://cdn.example.com/reel.mp4",
		"request_key": "claim-42",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	require.Len(t, engine.submitted, 1)
	assert.Equal(t, "claim-42", engine.submitted[0].Key())
}

func TestAnalyzeRequiresVideoURL(t *testing.T) {
	srv := newTestServer(&fakeEngine{}, &fakeRecords{})

	result, err := srv.handleAnalyze(context.Background(), callRequest("apura_analyze", map[string]any{}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "video_url is required")
}

func TestAnalyzeReportsDuplicate(t *testing.T) {
	engine := &fakeEngine{dup: true}
	srv := newTestServer(engine, &fakeRecords{})

	result, err := srv.handleAnalyze(context.Background(), callRequest("apura_analyze", map[string]any{
		"video_url": "https://cdn.example.com/reel.mp4",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var resp struct {
		Admitted bool `json:"admitted"`
	}
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &resp))
	assert.False(t, resp.Admitted)
}

func TestGetAnalysisReturnsRecord(t *testing.T) {
	claim := "Vacina causa magnetismo"
	verdict := model.VerdictFake
	records := &fakeRecords{records: map[string]model.AnalysisRecord{
		"claim-42": {
			RequestKey: "claim-42",
			Variant:    model.VariantWebhook,
			Claim:      &claim,
			Verdict:    &verdict,
		},
	}}
	srv := newTestServer(&fakeEngine{}, records)

	result, err := srv.handleGetAnalysis(context.Background(), callRequest("apura_get_analysis", map[string]any{
		"request_key": "claim-42",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, "get should succeed: %s", parseToolText(t, result))

	var rec model.AnalysisRecord
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &rec))
	require.NotNil(t, rec.Claim)
	assert.Equal(t, claim, *rec.Claim)
	require.NotNil(t, rec.Verdict)
	assert.Equal(t, model.VerdictFake, *rec.Verdict)
}

func TestGetAnalysisNotFound(t *testing.T) {
	srv := newTestServer(&fakeEngine{}, &fakeRecords{records: map[string]model.AnalysisRecord{}})

	result, err := srv.handleGetAnalysis(context.Background(), callRequest("apura_get_analysis", map[string]any{
		"request_key": "never-submitted",
	}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "no analysis record")
}

func TestListAnalysesClampsLimit(t *testing.T) {
	records := &fakeRecords{list: []model.AnalysisRecord{
		{RequestKey: "a"},
		{RequestKey: "b"},
	}}
	srv := newTestServer(&fakeEngine{}, records)

	result, err := srv.handleListAnalyses(context.Background(), callRequest("apura_list_analyses", map[string]any{
		"limit": 9999,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, 10, records.gotLimit)

	var resp struct {
		Total   int                    `json:"total"`
		Records []model.AnalysisRecord `json:"records"`
	}
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &resp))
	assert.Equal(t, 2, resp.Total)
	require.Len(t, resp.Records, 2)
	assert.Equal(t, "a", resp.Records[0].RequestKey)
}
