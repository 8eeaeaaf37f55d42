package sandbox

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"

	"github.com/gnana997/propspec/pkg/parser"
)

var (
	// ErrEvaluation reports an exception thrown while the program ran.
	ErrEvaluation = errors.New("evaluation error")

	// ErrResolution reports a require that could not be satisfied.
	ErrResolution = errors.New("module resolution error")

	// ErrEvaluationTimeout reports an evaluation stopped by its deadline or
	// by context cancellation.
	ErrEvaluationTimeout = errors.New("evaluation timed out")

	// ErrNoResult reports a program that finished without invoking the
	// callback. It matches ErrEvaluationTimeout as well.
	ErrNoResult = fmt.Errorf("%w: callback was never invoked", ErrEvaluationTimeout)
)

// EvaluationError carries the JavaScript message and stack of a failed
// evaluation. errors.Is matches it against its kind (ErrEvaluation,
// ErrResolution or parser.ErrParse).
type EvaluationError struct {
	Message string
	Stack   string
	File    string

	kind error
}

func (e *EvaluationError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("%v: %s", e.kind, e.Message)
	}
	return fmt.Sprintf("%v: %s: %s", e.kind, e.File, e.Message)
}

func (e *EvaluationError) Unwrap() error {
	return e.kind
}

// resolutionErrors are the require failures goja_nodejs reports as plain
// errors.
var resolutionErrors = []error{
	require.InvalidModuleError,
	require.IllegalModuleNameError,
	require.NoSuchBuiltInModuleError,
	require.ModuleFileDoesNotExistError,
}

// classify turns a thrown exception into an EvaluationError.
func classify(ex *goja.Exception, file string) *EvaluationError {
	msg := exceptionMessage(ex)
	kind := ErrEvaluation

	inner := ex.Unwrap()
	switch {
	case inner != nil && errors.Is(inner, parser.ErrParse):
		kind = parser.ErrParse
	case isResolution(inner, msg):
		kind = ErrResolution
	}

	return &EvaluationError{
		Message: msg,
		Stack:   ex.String(),
		File:    file,
		kind:    kind,
	}
}

func isResolution(inner error, msg string) bool {
	for _, target := range resolutionErrors {
		if inner != nil && errors.Is(inner, target) {
			return true
		}
		if strings.Contains(msg, target.Error()) {
			return true
		}
	}
	return strings.Contains(msg, "Cannot find module")
}

func exceptionMessage(ex *goja.Exception) string {
	val := ex.Value()
	if obj, ok := val.(*goja.Object); ok {
		if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) {
			return m.String()
		}
	}
	if val == nil {
		return ex.Error()
	}
	return val.String()
}
