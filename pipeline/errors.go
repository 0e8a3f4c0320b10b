// Package pipeline orchestrates the per-function analysis chain —
// dataflow, calling-convention hooks, structural analysis, liveness,
// variable reconstruction — and its cancellation and error containment.
package pipeline

import "github.com/pkg/errors"

// Cancelled means the cancellation token fired mid-analysis. No partial
// result is produced for the function.
type Cancelled struct {
	Function string
}

func (e *Cancelled) Error() string {
	return "pipeline: cancelled while analysing " + e.Function
}

// LocalAnomaly is a recoverable, localised defect: an unresolved
// dereference, a pattern recogniser that didn't match, an unreachable
// region. It is logged and the affected piece of output is degraded
// (e.g. an unresolved write, a goto-based region) rather than the whole
// function being abandoned.
type LocalAnomaly struct {
	Function string
	cause    error
}

func (e *LocalAnomaly) Error() string {
	return errors.Wrapf(e.cause, "pipeline: local anomaly in %s", e.Function).Error()
}

func (e *LocalAnomaly) Unwrap() error { return e.cause }

// NewLocalAnomaly wraps cause as a LocalAnomaly for fn.
func NewLocalAnomaly(fn string, cause error) *LocalAnomaly {
	return &LocalAnomaly{Function: fn, cause: cause}
}

// FunctionFatal means one function's analysis cannot continue (e.g. a
// malformed CFG, ir.ErrEntryUnreachable) but other functions are
// unaffected — the driver records the failure and moves on.
type FunctionFatal struct {
	Function string
	cause    error
}

func (e *FunctionFatal) Error() string {
	return errors.Wrapf(e.cause, "pipeline: fatal error analysing %s", e.Function).Error()
}

func (e *FunctionFatal) Unwrap() error { return e.cause }

// NewFunctionFatal wraps cause as a FunctionFatal for fn.
func NewFunctionFatal(fn string, cause error) *FunctionFatal {
	return &FunctionFatal{Function: fn, cause: cause}
}

// CoreFatal is an invariant violation severe enough that the whole run
// must abort — e.g. ir.ErrCrossDomainMerge, a panic recovered at a
// boundary that should never legitimately fire.
type CoreFatal struct {
	cause error
}

func (e *CoreFatal) Error() string {
	return errors.Wrap(e.cause, "pipeline: core invariant violated").Error()
}

func (e *CoreFatal) Unwrap() error { return e.cause }

// NewCoreFatal wraps cause as a CoreFatal.
func NewCoreFatal(cause error) *CoreFatal { return &CoreFatal{cause: cause} }
