package mcp

import "github.com/mark3labs/mcp-go/mcp"

func extractPropsTool() mcp.Tool {
	return mcp.NewTool("extract_props",
		mcp.WithDescription("Extract the propTypes schema and defaultProps of the React component in one file"),
		mcp.WithString("path", mcp.Required(), mcp.Description("Component file, absolute or relative to the server root")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func scanPropsTool() mcp.Tool {
	return mcp.NewTool("scan_props",
		mcp.WithDescription("Extract props from every component file below a directory"),
		mcp.WithString("root", mcp.Required(), mcp.Description("Directory to scan")),
		mcp.WithArray("include", mcp.WithStringItems(), mcp.Description("Glob patterns replacing the configured include list")),
		mcp.WithArray("exclude", mcp.WithStringItems(), mcp.Description("Glob patterns replacing the configured exclude list")),
		mcp.WithBoolean("summary", mcp.Description("Omit per-component props and return stats, skipped files and failures only")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func listComponentsTool() mcp.Tool {
	return mcp.NewTool("list_components",
		mcp.WithDescription("List catalog components, optionally filtered by category or keyword"),
		mcp.WithString("category", mcp.Description("Category name")),
		mcp.WithString("keyword", mcp.Description("Case-insensitive match on name or file path")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func getComponentTool() mcp.Tool {
	return mcp.NewTool("get_component",
		mcp.WithDescription("Full prop list of catalog components"),
		mcp.WithArray("names", mcp.Required(), mcp.WithStringItems(), mcp.Description("Component names or file paths")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func searchComponentsTool() mcp.Tool {
	return mcp.NewTool("search_components",
		mcp.WithDescription("Search catalog component names, prop names and prop descriptions"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search text")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func validateUsageTool() mcp.Tool {
	return mcp.NewTool("validate_usage",
		mcp.WithDescription("Check JSX usages of catalog components for missing required props, unknown props and values outside oneOf"),
		mcp.WithString("path", mcp.Description("File to check, absolute or relative to the server root")),
		mcp.WithString("code", mcp.Description("Source snippet to check instead of a file, parsed as TSX")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}
