// Package sandbox evaluates generated programs in an isolated JavaScript
// runtime and hands back the values passed to the program's callback.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gnana997/propspec/pkg/program"
	"github.com/gnana997/propspec/pkg/util"
)

const (
	// PropTypesModule is the native replacement for the prop-types package.
	PropTypesModule = "@propspec/prop-types"

	// AmbientName is the global holding the ambient configuration object.
	AmbientName = "__propspec__"

	// DefaultTimeout bounds one evaluation when Options.Timeout is zero.
	DefaultTimeout = 10 * time.Second

	defaultCompileCacheSize = 512
	maxCallStackSize        = 4096
)

// Options configures a Sandbox.
type Options struct {
	// Timeout bounds a single Evaluate call.
	Timeout time.Duration

	// CompileNodeModules also runs esbuild over files under node_modules
	// once the program has registered compilation.
	CompileNodeModules bool

	// NativeAliases maps require names to native modules, for example
	// "prop-types" -> PropTypesModule. Targets that are not native modules
	// are ignored.
	NativeAliases map[string]string

	// Files is the cache module sources are read through. A private cache
	// is created when nil.
	Files util.FileCache

	// CompileCacheSize caps the number of transpiled modules kept.
	CompileCacheSize int
}

// Globals is the per-evaluation surface exposed to the program besides the
// fixed module globals.
type Globals struct {
	// Filename is the component module path. Relative requires that were
	// not rewritten resolve against its directory.
	Filename string

	// Dirname defaults to the directory of Filename.
	Dirname string

	// Ambient is exposed as the __propspec__ global.
	Ambient map[string]any
}

// Result holds the converted callback arguments.
type Result struct {
	// Args are JSON-safe Go values, one per callback argument.
	Args []any

	// Keys lists the own enumerable keys of each object argument in
	// insertion order. Nil for non-object arguments.
	Keys [][]string
}

// Arg returns argument i, or nil when the callback received fewer.
func (r *Result) Arg(i int) any {
	if i < len(r.Args) {
		return r.Args[i]
	}
	return nil
}

// ArgKeys returns the key order of argument i.
func (r *Result) ArgKeys(i int) []string {
	if i < len(r.Keys) {
		return r.Keys[i]
	}
	return nil
}

type compileKey struct {
	path    string
	size    int64
	modTime time.Time
}

// Sandbox runs generated programs. Each Evaluate call builds a fresh
// runtime, so a Sandbox is safe for concurrent use.
//
// Example:
//
//	sb, err := sandbox.New(sandbox.Options{Timeout: 5 * time.Second}, logger)
//	if err != nil {
//	    return err
//	}
//	defer sb.Close()
//
//	res, err := sb.Evaluate(ctx, code, sandbox.Globals{Filename: path})
type Sandbox struct {
	opts      Options
	files     util.FileCache
	ownsFiles bool
	compiled  *lru.Cache[compileKey, string]
	logger    *slog.Logger
}

// New creates a Sandbox.
func New(opts Options, logger *slog.Logger) (*Sandbox, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.CompileCacheSize <= 0 {
		opts.CompileCacheSize = defaultCompileCacheSize
	}

	compiled, err := lru.New[compileKey, string](opts.CompileCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create compile cache: %w", err)
	}

	s := &Sandbox{
		opts:     opts,
		files:    opts.Files,
		compiled: compiled,
		logger:   logger,
	}
	if s.files == nil {
		s.files = util.NewFileCache(&util.FileCacheConfig{Logger: logger})
		s.ownsFiles = true
	}
	return s, nil
}

// Close releases the private file cache, if any.
func (s *Sandbox) Close() error {
	s.compiled.Purge()
	if s.ownsFiles {
		return s.files.Close()
	}
	return nil
}

// Evaluate runs code and returns the arguments of the first callback
// invocation.
//
// The program sees module, exports, require, console, __filename,
// __dirname, callback and __propspec__. Evaluation stops at the sandbox
// timeout or when ctx is done, whichever comes first.
func (s *Sandbox) Evaluate(ctx context.Context, code string, g Globals) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEvaluationTimeout, err)
	}

	filename := g.Filename
	if filename == "" {
		filename = "program.js"
	}
	dirname := g.Dirname
	if dirname == "" {
		dirname = filepath.Dir(filename)
	}

	prg, err := goja.Compile(filename, code, false)
	if err != nil {
		return nil, &EvaluationError{Message: err.Error(), File: filename, kind: ErrEvaluation}
	}

	ev := &evaluation{sandbox: s, file: filename}
	vm := goja.New()
	vm.SetMaxCallStackSize(maxCallStackSize)
	ev.vm = vm

	if err := ev.install(g, dirname); err != nil {
		return nil, err
	}

	timer := time.AfterFunc(s.opts.Timeout, func() {
		vm.Interrupt(fmt.Errorf("exceeded %s", s.opts.Timeout))
	})
	defer timer.Stop()
	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})
	defer stop()

	start := time.Now()
	runErr := ev.run(prg)
	elapsed := time.Since(start)

	if runErr != nil {
		err := ev.failure(runErr)
		s.logger.Debug("evaluation failed",
			"file", filename,
			"elapsed", elapsed,
			"error", err)
		return nil, err
	}

	if ev.result == nil {
		s.logger.Debug("evaluation produced no result", "file", filename)
		return nil, fmt.Errorf("%w: %s", ErrNoResult, filename)
	}

	s.logger.Debug("evaluation finished",
		"file", filename,
		"elapsed", elapsed,
		"args", len(ev.result.Args))
	return ev.result, nil
}

// evaluation is the state of one Evaluate call.
type evaluation struct {
	sandbox *Sandbox
	vm      *goja.Runtime
	file    string

	// compile is set by the register module.
	compile bool

	result *Result
}

func (ev *evaluation) install(g Globals, dirname string) error {
	vm := ev.vm

	registry := require.NewRegistry(require.WithLoader(ev.load))
	registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(ev.printer()))
	registry.RegisterNativeModule(program.RegisterModule, ev.registerModule)
	registry.RegisterNativeModule(PropTypesModule, loadPropTypes)
	for name, target := range ev.sandbox.opts.NativeAliases {
		if loader, ok := natives[target]; ok {
			registry.RegisterNativeModule(name, loader)
		}
	}
	registry.Enable(vm)
	console.Enable(vm)

	module := vm.NewObject()
	exports := vm.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return err
	}

	ambient, err := jsonValue(vm, g.Ambient)
	if err != nil {
		return fmt.Errorf("failed to expose %s: %w", AmbientName, err)
	}

	globals := []struct {
		name  string
		value any
	}{
		{"module", module},
		{"exports", exports},
		{"__filename", ev.file},
		{"__dirname", dirname},
		{program.CallbackName, ev.callback},
		{AmbientName, ambient},
	}
	for _, gl := range globals {
		if err := vm.Set(gl.name, gl.value); err != nil {
			return fmt.Errorf("failed to set global %s: %w", gl.name, err)
		}
	}
	return nil
}

// jsonValue copies v into the runtime as plain JavaScript data. Wrapping Go
// maps directly would expose them in random key order.
func jsonValue(vm *goja.Runtime, v map[string]any) (goja.Value, error) {
	if v == nil {
		return vm.NewObject(), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	parse, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("parse"))
	if !ok {
		return nil, errors.New("JSON.parse is not a function")
	}
	return parse(goja.Undefined(), vm.ToValue(string(data)))
}

// run executes the program, turning Go panics raised by native code into
// errors.
func (ev *evaluation) run(prg *goja.Program) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &EvaluationError{
				Message: fmt.Sprint(r),
				File:    ev.file,
				kind:    ErrEvaluation,
			}
		}
	}()
	_, err = ev.vm.RunProgram(prg)
	return err
}

func (ev *evaluation) failure(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause, ok := interrupted.Value().(error); ok {
			return fmt.Errorf("%w: %s: %w", ErrEvaluationTimeout, ev.file, cause)
		}
		return fmt.Errorf("%w: %s", ErrEvaluationTimeout, ev.file)
	}

	var ex *goja.Exception
	if errors.As(err, &ex) {
		return classify(ex, ev.file)
	}

	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		return evalErr
	}
	return &EvaluationError{Message: err.Error(), File: ev.file, kind: ErrEvaluation}
}

// callback records the arguments of its first invocation.
func (ev *evaluation) callback(call goja.FunctionCall) goja.Value {
	if ev.result != nil {
		return goja.Undefined()
	}

	res := &Result{
		Args: make([]any, len(call.Arguments)),
		Keys: make([][]string, len(call.Arguments)),
	}
	for i, arg := range call.Arguments {
		res.Args[i] = export(arg)
		res.Keys[i] = ownKeys(arg)
	}
	ev.result = res
	return goja.Undefined()
}

func (ev *evaluation) registerModule(vm *goja.Runtime, module *goja.Object) {
	register := func(goja.FunctionCall) goja.Value {
		ev.compile = true
		return goja.Undefined()
	}
	_ = module.Set("exports", register)
}

// printer routes console output to the sandbox logger.
func (ev *evaluation) printer() console.Printer {
	return &slogPrinter{
		logger: ev.sandbox.logger.With("source", "sandbox", "file", ev.file),
	}
}

type slogPrinter struct {
	logger *slog.Logger
}

func (p *slogPrinter) Log(msg string)   { p.logger.Debug(msg) }
func (p *slogPrinter) Warn(msg string)  { p.logger.Warn(msg) }
func (p *slogPrinter) Error(msg string) { p.logger.Error(msg) }
