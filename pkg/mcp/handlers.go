package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/gnana997/propspec/pkg/batch"
	"github.com/gnana997/propspec/pkg/catalog"
	"github.com/gnana997/propspec/pkg/extract"
	"github.com/gnana997/propspec/pkg/validator"
)

// toolFailure is the body of an extraction error result.
type toolFailure struct {
	File  string `json:"file"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

type componentSummary struct {
	Component string `json:"component"`
	File      string `json:"file"`
	Export    string `json:"export"`
	Props     int    `json:"props"`
}

type scanSummary struct {
	Root       string             `json:"root"`
	Components []componentSummary `json:"components"`
	Skipped    []batch.Skipped    `json:"skipped"`
	Failures   []batch.Failure    `json:"failures"`
	Stats      batch.Stats        `json:"stats"`
}

func (s *Server) handleExtractProps(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil || path == "" {
		return mcp.NewToolResultError("path is required"), nil
	}
	path = s.resolve(path)

	res, err := s.extractor.ExtractFile(ctx, path)
	if err != nil {
		return failureResult(path, err), nil
	}
	return jsonResult(res)
}

func (s *Server) handleScanProps(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	root, err := req.RequireString("root")
	if err != nil || root == "" {
		return mcp.NewToolResultError("root is required"), nil
	}
	root = s.resolve(root)

	opts := s.scan
	opts.Include = req.GetStringSlice("include", opts.Include)
	opts.Exclude = req.GetStringSlice("exclude", opts.Exclude)

	report, err := batch.Scan(ctx, s.extractor, root, opts, s.logger)
	if err != nil {
		if report == nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return nil, err
	}

	if !req.GetBool("summary", false) {
		return jsonResult(report)
	}

	summary := scanSummary{
		Root:       report.Root,
		Components: make([]componentSummary, 0, len(report.Results)),
		Skipped:    report.Skipped,
		Failures:   report.Failures,
		Stats:      report.Stats,
	}
	for _, res := range report.Results {
		summary.Components = append(summary.Components, componentSummary{
			Component: res.Component,
			File:      res.File,
			Export:    res.Export,
			Props:     len(res.Keys),
		})
	}
	return jsonResult(summary)
}

func (s *Server) handleListComponents(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category := req.GetString("category", "")
	keyword := req.GetString("keyword", "")

	type entry struct {
		Name     string `json:"name"`
		Category string `json:"category"`
		File     string `json:"file_path"`
		Props    int    `json:"props"`
	}
	comps := s.query.ListComponents(category, keyword)
	out := make([]entry, len(comps))
	for i, c := range comps {
		out[i] = entry{Name: c.Name, Category: c.Category, File: c.FilePath, Props: len(c.Props)}
	}
	return jsonResult(out)
}

func (s *Server) handleGetComponent(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names, err := req.RequireStringSlice("names")
	if err != nil || len(names) == 0 {
		return mcp.NewToolResultError("names is required"), nil
	}

	comps := make([]*catalog.Component, 0, len(names))
	var missing []string
	seen := make(map[*catalog.Component]bool)
	for _, name := range names {
		comp, ok := s.query.GetComponent(name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		if !seen[comp] {
			seen[comp] = true
			comps = append(comps, comp)
		}
	}
	if len(comps) == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("unknown component: %v", missing)), nil
	}

	return jsonResult(struct {
		Components []*catalog.Component `json:"components"`
		Missing    []string             `json:"missing,omitempty"`
	}{comps, missing})
}

func (s *Server) handleSearchComponents(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil || query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	results := s.query.SearchComponents(query)
	if results == nil {
		results = []catalog.ComponentSearchResult{}
	}
	return jsonResult(results)
}

func (s *Server) handleValidateUsage(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	code := req.GetString("code", "")

	var (
		res *validator.ValidationResult
		err error
	)
	switch {
	case code != "":
		res, err = s.validator.Validate(path, []byte(code))
	case path != "":
		res, err = s.validator.ValidateFile(s.resolve(path))
	default:
		return mcp.NewToolResultError("path or code is required"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) resolve(path string) string {
	if filepath.IsAbs(path) || s.root == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(s.root, path)
}

func failureResult(path string, err error) *mcp.CallToolResult {
	body, merr := json.Marshal(toolFailure{File: path, Kind: extract.Kind(err), Error: err.Error()})
	if merr != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultError(string(body))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
