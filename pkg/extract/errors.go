package extract

import (
	"errors"
	"io/fs"

	"github.com/gnana997/propspec/pkg/locate"
	"github.com/gnana997/propspec/pkg/parser"
	"github.com/gnana997/propspec/pkg/sandbox"
)

// Failure kinds. Every error returned by an Extractor wraps one of these,
// except for I/O errors reading the component file.
var (
	ErrComponentNotFound = locate.ErrComponentNotFound
	ErrSchemaNotFound    = locate.ErrSchemaNotFound
	ErrParse             = parser.ErrParse
	ErrEvaluation        = sandbox.ErrEvaluation
	ErrResolution        = sandbox.ErrResolution
	ErrEvaluationTimeout = sandbox.ErrEvaluationTimeout
	ErrNoResult          = sandbox.ErrNoResult
)

// Kind names the failure class of err for reports and tool output.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrComponentNotFound):
		return "component_not_found"
	case errors.Is(err, ErrSchemaNotFound):
		return "schema_not_found"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrResolution):
		return "resolution"
	case errors.Is(err, ErrNoResult):
		return "no_result"
	case errors.Is(err, ErrEvaluationTimeout):
		return "timeout"
	case errors.Is(err, ErrEvaluation):
		return "evaluation"
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return "io"
	default:
		return "unknown"
	}
}

// IsSkippable reports whether err means the file holds no documented
// component, as opposed to a component that failed to extract.
func IsSkippable(err error) bool {
	return errors.Is(err, ErrComponentNotFound) || errors.Is(err, ErrSchemaNotFound)
}
