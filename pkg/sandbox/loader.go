package sandbox

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dop251/goja_nodejs/require"

	"github.com/gnana997/propspec/pkg/transpile"
)

// probeExtensions are tried, in order, for a require path without one.
var probeExtensions = []string{".js", ".jsx", ".ts", ".tsx"}

// compiledExtensions are transpiled once the program registered compilation.
var compiledExtensions = []string{".js", ".jsx", ".mjs", ".cjs", ".ts", ".tsx", ".mts", ".cts"}

// load is the require source loader. It reads through the shared file cache,
// probes component extensions the default Node resolution does not know
// about, and transpiles sources after the register module was called.
//
// Missing files and directories report require.ModuleFileDoesNotExistError so
// the registry goes on with its own candidates.
func (ev *evaluation) load(path string) ([]byte, error) {
	for _, candidate := range candidates(filepath.FromSlash(path)) {
		info, err := os.Stat(candidate)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		if info.IsDir() {
			continue
		}

		data, err := ev.sandbox.files.ReadFile(candidate)
		if err != nil {
			return nil, err
		}
		return ev.compileSource(candidate, info, data)
	}
	return nil, require.ModuleFileDoesNotExistError
}

// candidates lists the files a require path may name. A path written with
// .js also matches its .jsx/.ts/.tsx siblings.
func candidates(path string) []string {
	out := []string{path}
	switch ext := filepath.Ext(path); ext {
	case "":
		for _, e := range probeExtensions {
			out = append(out, path+e)
		}
	case ".js":
		stem := strings.TrimSuffix(path, ext)
		for _, e := range probeExtensions[1:] {
			out = append(out, stem+e)
		}
	}
	return out
}

func (ev *evaluation) compileSource(path string, info fs.FileInfo, data []byte) ([]byte, error) {
	if !ev.shouldCompile(path) {
		return data, nil
	}

	key := compileKey{path: path, size: info.Size(), modTime: info.ModTime()}
	if code, ok := ev.sandbox.compiled.Get(key); ok {
		return []byte(code), nil
	}

	code, err := transpile.Transform(string(data), path)
	if err != nil {
		return nil, err
	}
	ev.sandbox.compiled.Add(key, code)
	ev.sandbox.logger.Debug("compiled module",
		"file", path,
		"required_by", ev.file)
	return []byte(code), nil
}

func (ev *evaluation) shouldCompile(path string) bool {
	if !ev.compile {
		return false
	}
	if !slices.Contains(compiledExtensions, strings.ToLower(filepath.Ext(path))) {
		return false
	}
	if inNodeModules(path) {
		return ev.sandbox.opts.CompileNodeModules
	}
	return true
}

func inNodeModules(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == "node_modules" {
			return true
		}
	}
	return false
}
