// Package extract runs the propspec pipeline on a component file: it locates
// the component, isolates the code its propTypes and defaultProps depend
// on, evaluates that code in the sandbox and returns the resulting
// metadata with documentation comments attached.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gnana997/propspec/pkg/closure"
	"github.com/gnana997/propspec/pkg/comments"
	"github.com/gnana997/propspec/pkg/config"
	"github.com/gnana997/propspec/pkg/locate"
	"github.com/gnana997/propspec/pkg/parser"
	"github.com/gnana997/propspec/pkg/program"
	"github.com/gnana997/propspec/pkg/rewrite"
	"github.com/gnana997/propspec/pkg/sandbox"
	"github.com/gnana997/propspec/pkg/util"
)

// DefaultValueKey is the descriptor field holding the prop's default.
const DefaultValueKey = "defaultValue"

// Metadata maps prop names to their descriptors. A descriptor is whatever
// the schema entry evaluated to, converted to JSON-safe values.
type Metadata map[string]any

// Result is the metadata extracted from one component.
type Result struct {
	Component string   `json:"component"`
	File      string   `json:"file"`
	Export    string   `json:"export"`
	Props     Metadata `json:"props"`

	// Keys lists the prop names in declaration order.
	Keys []string `json:"keys"`

	// Defaults is the evaluated defaultProps object.
	Defaults map[string]any `json:"defaults,omitempty"`
}

// Extractor runs extractions. It is safe for concurrent use; each
// extraction parses, resolves and evaluates independently.
//
// Example:
//
//	ex, err := extract.New(config.Default(), logger)
//	if err != nil {
//	    return err
//	}
//	defer ex.Close()
//
//	res, err := ex.ExtractFile(ctx, "src/Button.jsx")
type Extractor struct {
	cfg       *config.Config
	files     util.FileCache
	parsers   *parser.ParserManager
	rewriter  *rewrite.Rewriter
	generator *program.Generator
	sandbox   *sandbox.Sandbox
	cache     *resultCache
	logger    *slog.Logger
}

// New creates an Extractor for cfg. A nil cfg selects config.Default().
func New(cfg *config.Config, logger *slog.Logger) (*Extractor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = config.Default()
	}

	// shared with the sandbox loader, so helper modules are mapped once
	files := util.NewFileCache(&util.FileCacheConfig{
		MaxFiles: util.DefaultFileCacheConfig().MaxFiles,
		Logger:   logger,
	})

	sb, err := sandbox.New(sandbox.Options{
		Timeout:            time.Duration(cfg.Timeout),
		CompileNodeModules: cfg.CompileNodeModules,
		NativeAliases:      cfg.ResolveModule,
		Files:              files,
	}, logger)
	if err != nil {
		files.Close()
		return nil, err
	}

	ex := &Extractor{
		cfg:     cfg,
		files:   files,
		parsers: parser.NewParserManagerWithSize(logger, cfg.Workers),
		rewriter: rewrite.New(rewrite.Options{
			Alias:           cfg.Alias,
			Overrides:       cfg.ResolveModule,
			AssetExtensions: cfg.AssetExtensions,
		}, logger),
		generator: program.NewGenerator(logger),
		sandbox:   sb,
		logger:    logger,
	}

	if cfg.CacheSize > 0 {
		ex.cache, err = newResultCache(cfg.CacheSize, logger)
		if err != nil {
			ex.Close()
			return nil, err
		}
	}
	return ex, nil
}

// Config returns the configuration the extractor was built with.
func (e *Extractor) Config() *config.Config {
	return e.cfg
}

// Files returns the file cache shared by the parser input and the sandbox
// module loader.
func (e *Extractor) Files() util.FileCache {
	return e.files
}

// ExtractFile extracts the component metadata of the file at path.
// Results are cached per file and reused while the file content is
// unchanged. Callers must not modify a returned Result.
func (e *Extractor) ExtractFile(ctx context.Context, path string) (*Result, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	source, err := e.files.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read component: %w", err)
	}

	var hash string
	if e.cache != nil {
		hash = contentHash(source)
		if res, ok := e.cache.get(abs, hash); ok {
			e.logger.Debug("using cached result", "file", abs)
			return res, nil
		}
	}

	res, err := e.Extract(ctx, abs, source)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		e.cache.add(abs, hash, res)
	}
	return res, nil
}

// Extract runs the pipeline on source, which was read from path. Relative
// imports resolve against the directory of path. The result is not cached.
func (e *Extractor) Extract(ctx context.Context, path string, source []byte) (*Result, error) {
	start := time.Now()

	mod, err := e.parsers.ParseModule(path, source)
	if err != nil {
		return nil, err
	}
	defer mod.Close()

	comp, err := locate.FindComponent(mod)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	schema, defaults, err := locate.FindProperties(mod, comp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	table := closure.NewTable(mod)
	deps := closure.Resolve(table, schema.Value, defaults.Value)
	e.rewriter.Apply(deps, mod.Source, filepath.Dir(path))

	e.logger.Debug("resolved dependency closure",
		"file", path,
		"component", comp.Name,
		"dependencies", deps.Len(),
		"imports", len(deps.Imports()))

	prog := program.Assemble(mod, deps, schema, defaults)
	code, err := e.generator.Generate(prog)
	if err != nil {
		return nil, err
	}

	out, err := e.sandbox.Evaluate(ctx, code, sandbox.Globals{
		Filename: path,
		Ambient:  e.cfg.GlobalObject,
	})
	if err != nil {
		return nil, err
	}

	props, ok := out.Arg(0).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s: %s did not evaluate to an object", ErrEvaluation, path, locate.SchemaKey)
	}
	res := &Result{
		Component: comp.Name,
		File:      path,
		Export:    comp.Export.String(),
		Props:     Metadata(props),
		Keys:      out.ArgKeys(0),
	}
	if d, ok := out.Arg(1).(map[string]any); ok {
		res.Defaults = d
	}

	mergeDefaults(res.Props, res.Defaults)
	comments.Merge(res.Props, comments.Collect(schema.Value, mod.Source, table.Initializer))

	e.logger.Debug("extracted component",
		"file", path,
		"component", comp.Name,
		"props", len(res.Keys),
		"elapsed", time.Since(start))
	return res, nil
}

// mergeDefaults copies each default value onto the descriptor of the prop
// it belongs to. Defaults for undeclared props are left in Result.Defaults
// only.
func mergeDefaults(props Metadata, defaults map[string]any) {
	for key, value := range defaults {
		if entry, ok := props[key].(map[string]any); ok {
			entry[DefaultValueKey] = value
		}
	}
}

// Invalidate drops the cached result and the cached source of path.
func (e *Extractor) Invalidate(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if e.cache != nil {
		e.cache.remove(abs)
	}
	e.files.Invalidate(abs)
}

// Purge drops every cached result.
func (e *Extractor) Purge() {
	if e.cache != nil {
		e.cache.purge()
	}
}

// CacheStats reports result cache usage. It is zero when caching is
// disabled.
func (e *Extractor) CacheStats() CacheStats {
	if e.cache == nil {
		return CacheStats{}
	}
	return e.cache.stats()
}

// Close releases the parser pools, the sandbox and the file cache.
func (e *Extractor) Close() error {
	var errs []error
	if e.sandbox != nil {
		errs = append(errs, e.sandbox.Close())
	}
	if e.parsers != nil {
		errs = append(errs, e.parsers.Close())
	}
	errs = append(errs, e.files.Close())
	return errors.Join(errs...)
}
