package mcp

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/gnana997/propspec/pkg/mcplog"
)

// slogMiddleware logs every tool call at debug level, and failed calls at
// warn.
func (s *Server) slogMiddleware() server.ToolHandlerMiddleware {
	return func(next server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			start := time.Now()
			result, err := next(ctx, req)
			elapsed := time.Since(start)

			switch {
			case err != nil:
				s.logger.Warn("tool call failed", "tool", req.Params.Name, "duration", elapsed, "error", err)
			case result != nil && result.IsError:
				s.logger.Warn("tool call returned an error", "tool", req.Params.Name, "duration", elapsed)
			default:
				s.logger.Debug("tool call", "tool", req.Params.Name, "duration", elapsed)
			}
			return result, err
		}
	}
}

// loggingMiddleware records every tool call as a JSONL entry in the call
// log. It must only be installed when s.calls is set.
func (s *Server) loggingMiddleware() server.ToolHandlerMiddleware {
	return func(next server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			start := mcplog.Now()
			result, err := next(ctx, req)
			elapsed := mcplog.Now().Sub(start).Milliseconds()

			rb := mcplog.ResponseBytes(result)
			var errStr *string
			if err != nil {
				msg := err.Error()
				errStr = &msg
			}

			entry := mcplog.LogEntry{
				Ts:            start.UTC().Format(time.RFC3339),
				Tool:          req.Params.Name,
				Params:        mcplog.SanitizeParams(req.GetArguments()),
				DurationMs:    elapsed,
				ResponseBytes: rb,
				IsError:       result != nil && result.IsError,
				Error:         errStr,
			}
			if werr := s.calls.Write(entry); werr != nil {
				s.logger.Warn("failed to write call log", "error", werr)
			}

			return result, err
		}
	}
}
