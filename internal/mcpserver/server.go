// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the crate cache to LLM tools via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/rocache/internal/apperr"
	"github.com/starford/rocache/internal/crateservice"
)

// SnapshotFormatURI identifies the snapshot format resource.
const SnapshotFormatURI = "rocache://snapshot-format"

// Server wraps the MCP server with crate cache tools.
type Server struct {
	mcp *server.MCPServer
	svc *crateservice.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *crateservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"rocache",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_crates",
		mcp.WithDescription("List every crate directory known to the cache with its validity and artifact count."),
	), s.listCrates)

	s.mcp.AddTool(mcp.NewTool("search_artifacts",
		mcp.WithDescription("Search cached artifacts by name, description or entity id. "+
			"Results carry the pseudonym to pass to resolve_pseudonym."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	), s.searchArtifacts)

	s.mcp.AddTool(mcp.NewTool("resolve_pseudonym",
		mcp.WithDescription("Resolve an artifact pseudonym to its entity metadata and the file its link points at."),
		mcp.WithString("pseudonym", mcp.Required(), mcp.Description("Artifact pseudonym, e.g. data_file.csv")),
	), s.resolvePseudonym)

	s.mcp.AddTool(mcp.NewTool("rescan",
		mcp.WithDescription("Rescan the working tree, revalidate crates and refresh the artifact links. "+
			"This runs the external validator and may take minutes."),
	), s.rescan)

	s.mcp.AddTool(mcp.NewTool("get_snapshot_format",
		mcp.WithDescription("Returns the description of the cache snapshot document and pseudonym rules."),
	), s.getSnapshotFormat)

	s.mcp.AddResource(
		mcp.NewResource(SnapshotFormatURI, "Snapshot Format",
			mcp.WithResourceDescription("Layout of the cache snapshot document and the pseudonym naming rules."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readSnapshotFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listCrates(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.svc.Crates(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("no crates cached; run the rescan tool first"), nil
	}
	return jsonResult(items)
}

func (s *Server) searchArtifacts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hits, err := s.svc.Search(ctx, query, req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(hits) == 0 {
		return mcp.NewToolResultText("no artifacts found"), nil
	}
	return jsonResult(hits)
}

func (s *Server) resolvePseudonym(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("pseudonym")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	detail, err := s.svc.Resolve(ctx, name)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", name)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(detail)
}

func (s *Server) rescan(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.svc.Rescan(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) getSnapshotFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(SnapshotFormat), nil
}

func (s *Server) readSnapshotFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      SnapshotFormatURI,
			MIMEType: "text/markdown",
			Text:     SnapshotFormat,
		},
	}, nil
}
