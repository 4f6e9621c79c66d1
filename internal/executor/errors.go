package executor

import (
	"fmt"
	"time"
)

const (
	// DefaultBuildTimeout is the default per-build wall-clock deadline
	// named in spec.md §4.5.
	DefaultBuildTimeout = 10 * time.Minute
	// DefaultRunTimeout is the default per-run wall-clock deadline.
	DefaultRunTimeout = 120 * time.Second
	// DefaultGrace is the default termination grace window of spec.md §5.
	DefaultGrace = 5 * time.Second
)

// NewTimeouts fills in package defaults for any zero field.
func NewTimeouts(build, run, grace time.Duration) Timeouts {
	t := Timeouts{Build: build, Run: run, Grace: grace}
	if t.Build == 0 {
		t.Build = DefaultBuildTimeout
	}
	if t.Run == 0 {
		t.Run = DefaultRunTimeout
	}
	if t.Grace == 0 {
		t.Grace = DefaultGrace
	}
	return t
}

// CaseError is the CaseError kind named in spec.md §7: scoped to a
// single case, it never stops other cases and is recorded verbatim into
// that case's result file via Result.ResultLine.
type CaseError struct {
	Stage     Stage
	Qualifier Qualifier
	ExitCode  int
	Err       error
}

func (e *CaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("case failed in stage %s%s (exit=%d): %v", e.Stage, qualifierSuffix(e.Qualifier), e.ExitCode, e.Err)
	}
	return fmt.Sprintf("case failed in stage %s%s (exit=%d)", e.Stage, qualifierSuffix(e.Qualifier), e.ExitCode)
}

func qualifierSuffix(q Qualifier) string {
	if q == QualifierNone {
		return ""
	}
	return "/" + string(q)
}

func (e *CaseError) Unwrap() error { return e.Err }

// CleanupWarning is the CleanupWarning kind named in spec.md §7: logged
// only, it never alters a verdict that was already decided.
type CleanupWarning struct {
	Resource string
	Err      error
}

func (e *CleanupWarning) Error() string {
	return fmt.Sprintf("cleanup warning for %s: %v", e.Resource, e.Err)
}

func (e *CleanupWarning) Unwrap() error { return e.Err }
