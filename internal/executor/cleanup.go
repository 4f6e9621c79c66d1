package executor

import (
	"github.com/hashicorp/go-hclog"
	multierror "github.com/hashicorp/go-multierror"
)

// cleanupFunc releases one resource an executor acquired mid-run: a
// child process, a mounted filesystem, a network device. Design Notes:
// "replace ad-hoc cleanup (rm -rf, pkill) with scoped resource handles
// whose release is guaranteed on every exit path."
type cleanupFunc struct {
	name string
	fn   func() error
}

// cleanupRegistry accumulates cleanup funcs in acquisition order and
// releases them in reverse on Run, regardless of how the case exited.
// Failures never alter the case's verdict (spec.md §4.5, §7); they are
// logged as CleanupWarning and aggregated only for that log line.
type cleanupRegistry struct {
	logger hclog.Logger
	funcs  []cleanupFunc
}

func newCleanupRegistry(logger hclog.Logger) *cleanupRegistry {
	return &cleanupRegistry{logger: logger}
}

func (c *cleanupRegistry) add(name string, fn func() error) {
	c.funcs = append(c.funcs, cleanupFunc{name: name, fn: fn})
}

// Run releases every registered resource, most-recently-acquired first,
// and returns an aggregated diagnostic (never fatal to the caller).
func (c *cleanupRegistry) Run() error {
	var errs *multierror.Error
	for i := len(c.funcs) - 1; i >= 0; i-- {
		f := c.funcs[i]
		if err := f.fn(); err != nil {
			warn := &CleanupWarning{Resource: f.name, Err: err}
			c.logger.Warn("cleanup failed", "resource", f.name, "error", err)
			errs = multierror.Append(errs, warn)
		}
	}
	return errs.ErrorOrNil()
}
