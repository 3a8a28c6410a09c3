// Package mcp implements the Model Context Protocol server for apura.
//
// The MCP server exposes video analysis as tools, letting MCP-compatible
// agents submit suspicious reels and read back verdicts without going
// through the HTTP API.
package mcp

import (
	"context"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/apura-ai/apura/internal/model"
)

// Submitter admits an analysis request into the pipeline engine.
type Submitter interface {
	Submit(ctx context.Context, variant model.Variant, payload map[string]any) (bool, error)
}

// RecordStore reads persisted analysis records.
type RecordStore interface {
	GetAnalysisRecord(ctx context.Context, requestKey string) (model.AnalysisRecord, error)
	ListAnalysisRecords(ctx context.Context, limit, offset int) ([]model.AnalysisRecord, int, error)
}

// Server wraps the MCP server with apura's engine and storage.
type Server struct {
	mcpServer *mcpserver.MCPServer
	engine    Submitter
	records   RecordStore
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all tools registered.
func New(engine Submitter, records RecordStore, logger *slog.Logger, version string) *Server {
	s := &Server{
		engine:  engine,
		records: records,
		logger:  logger.With("component", "mcp"),
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"apura",
		version,
		mcpserver.WithToolCapabilities(true),
	)

	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
