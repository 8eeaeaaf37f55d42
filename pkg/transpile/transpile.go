// Package transpile downlevels component source to CommonJS ES2015 with
// esbuild, the syntax subset the sandbox engine executes.
package transpile

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/gnana997/propspec/pkg/parser"
)

// LoaderFor picks the esbuild loader for a file. Plain JavaScript is read
// with the JSX loader since React components commonly use JSX in .js files.
func LoaderFor(filename string) api.Loader {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".ts", ".mts", ".cts":
		return api.LoaderTS
	case ".tsx":
		return api.LoaderTSX
	case ".json":
		return api.LoaderJSON
	default:
		return api.LoaderJSX
	}
}

// Transform converts code to CommonJS targeting ES2015. filename selects the
// loader and is used in error messages. Failures wrap parser.ErrParse.
func Transform(code, filename string) (string, error) {
	return TransformWith(code, filename, LoaderFor(filename))
}

// TransformWith is Transform with an explicit loader.
func TransformWith(code, filename string, loader api.Loader) (string, error) {
	result := api.Transform(code, api.TransformOptions{
		Loader:     loader,
		Format:     api.FormatCommonJS,
		Target:     api.ES2015,
		Platform:   api.PlatformNode,
		KeepNames:  true,
		Sourcefile: filename,
		LogLevel:   api.LogLevelSilent,
	})

	if len(result.Errors) > 0 {
		return "", fmt.Errorf("%w: %s", parser.ErrParse, describe(result.Errors[0], filename))
	}
	return string(result.Code), nil
}

func describe(msg api.Message, filename string) string {
	if msg.Location == nil {
		return fmt.Sprintf("%s: %s", filename, msg.Text)
	}
	return fmt.Sprintf("%s:%d:%d: %s", msg.Location.File, msg.Location.Line, msg.Location.Column+1, msg.Text)
}
