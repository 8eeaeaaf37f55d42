// Package mcp exposes prop extraction over the Model Context Protocol.
package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/gnana997/propspec/pkg/batch"
	"github.com/gnana997/propspec/pkg/catalog"
	"github.com/gnana997/propspec/pkg/mcplog"
	"github.com/gnana997/propspec/pkg/validator"
)

const serverVersion = "0.1.0"

// Options configures a Server.
type Options struct {
	// Root resolves relative paths in tool arguments. Empty means the
	// working directory.
	Root string

	// Scan holds the discovery and worker settings for scan_props. Its
	// Progress callback is ignored.
	Scan batch.Options

	// Catalog enables the catalog query tools.
	Catalog *catalog.QueryService

	// Validator enables validate_usage. It should check against Catalog.
	Validator *validator.Validator

	// CallLog receives one JSONL entry per tool call. Nil disables it.
	CallLog *mcplog.Logger

	Logger *slog.Logger
}

// Server implements the MCP server for propspec, exposing extraction and,
// when a catalog is loaded, catalog query tools.
type Server struct {
	mcpServer *server.MCPServer
	extractor batch.FileExtractor
	root      string
	scan      batch.Options
	query     *catalog.QueryService // nil without a catalog
	validator *validator.Validator
	calls     *mcplog.Logger
	logger    *slog.Logger
}

// NewServer creates a new MCP server backed by ex.
func NewServer(ex batch.FileExtractor, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	scan := opts.Scan
	scan.Progress = nil

	s := &Server{
		extractor: ex,
		root:      opts.Root,
		scan:      scan,
		query:     opts.Catalog,
		validator: opts.Validator,
		calls:     opts.CallLog,
		logger:    logger,
	}

	serverOpts := []server.ServerOption{
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithToolHandlerMiddleware(s.slogMiddleware()),
	}
	if s.calls != nil {
		serverOpts = append(serverOpts, server.WithToolHandlerMiddleware(s.loggingMiddleware()))
	}
	s.mcpServer = server.NewMCPServer("propspec", serverVersion, serverOpts...)

	s.mcpServer.AddTools(s.tools()...)

	return s
}

func (s *Server) tools() []server.ServerTool {
	tools := []server.ServerTool{
		{Tool: extractPropsTool(), Handler: s.handleExtractProps},
		{Tool: scanPropsTool(), Handler: s.handleScanProps},
	}
	if s.query != nil {
		tools = append(tools,
			server.ServerTool{Tool: listComponentsTool(), Handler: s.handleListComponents},
			server.ServerTool{Tool: getComponentTool(), Handler: s.handleGetComponent},
			server.ServerTool{Tool: searchComponentsTool(), Handler: s.handleSearchComponents},
		)
	}
	if s.validator != nil {
		tools = append(tools, server.ServerTool{Tool: validateUsageTool(), Handler: s.handleValidateUsage})
	}
	return tools
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
