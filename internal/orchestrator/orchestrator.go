// Package orchestrator implements component C6: it owns the bounded
// worker pool, parses selection filters, dispatches Case Executors in
// ascending index order, and aggregates verdicts into a session summary.
//
// Grounded in redhat-openshift-partner-labs-virtwork's
// errgroup.WithContext(ctx) fan-out over per-VM creation goroutines in
// cmd/virtwork — generalized here from "create N VMs" to "run N case
// executors under a concurrency cap." Workers never return an error to
// the group, so one case's failure does not cancel the others.
package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/unikernel-ci/matrixctl/internal/executor"
	"github.com/unikernel-ci/matrixctl/internal/matrix"
	"github.com/unikernel-ci/matrixctl/internal/netsetup"
)

// caseEntry is the orchestrator's flattened view of one Target Case,
// independent of the matrix package's richer Assignment type, so the
// summary can serialize cleanly.
type caseEntry struct {
	index      int
	id         string
	assignment map[string]string
	dir        string
	networked  bool
	ports      int
}

// Config gathers everything the orchestrator needs to dispatch a
// session, already materialized by C1–C4.
type Config struct {
	SessionName   string
	Root          string
	PoolSize      int
	Timeouts      executor.Timeouts
	PortLow       int
	PortHigh      int
	SuccessMarker string
}

// Orchestrator drives one session's worker pool end to end.
type Orchestrator struct {
	logger  hclog.Logger
	cfg     Config
	runID   string
	cases   []caseEntry
	ports   *PortAllocator
	bridges *netsetup.NameAllocator
}

// New builds an Orchestrator from the resolved Target Cases, their
// on-disk directories, and the per-case networking/port needs derived
// by the application spec. caseDirs and networked/ports maps are keyed
// by case index.
func New(logger hclog.Logger, cfg Config, cases []matrix.TargetCase, caseDirs map[int]string, networked map[int]bool, portsNeeded map[int]int) *Orchestrator {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = runtime.NumCPU()
	}
	if cfg.PoolSize < 1 {
		cfg.PoolSize = 1
	}
	if cfg.PortLow == 0 && cfg.PortHigh == 0 {
		cfg.PortLow, cfg.PortHigh = 20000, 21000
	}

	entries := make([]caseEntry, 0, len(cases))
	for _, c := range cases {
		entries = append(entries, caseEntry{
			index:      c.Index,
			id:         c.ID,
			assignment: map[string]string(c.Assignment),
			dir:        caseDirs[c.Index],
			networked:  networked[c.Index],
			ports:      portsNeeded[c.Index],
		})
	}

	return &Orchestrator{
		logger:  logger.Named("orchestrator"),
		cfg:     cfg,
		runID:   uuid.New().String(),
		cases:   entries,
		ports:   NewPortAllocator(cfg.PortLow, cfg.PortHigh),
		bridges: netsetup.NewNameAllocator("mxbr"),
	}
}

// Dispatch runs the selected cases (ascending index order, bounded
// concurrency) and returns the session summary. ctx cancellation stops
// new dispatch and requests cancellation of in-flight cases, per
// spec.md §4.6.
func (o *Orchestrator) Dispatch(ctx context.Context, selection []int) (SessionSummary, error) {
	selected := make(map[int]bool, len(selection))
	for _, idx := range selection {
		selected[idx] = true
	}

	var byIndex = make(map[int]caseEntry, len(o.cases))
	for _, c := range o.cases {
		byIndex[c.index] = c
	}

	var (
		mu      sync.Mutex
		results = make(map[int]*executor.Result)
	)

	group, groupCtx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(o.cfg.PoolSize))

	for _, idx := range selection {
		idx := idx
		entry, ok := byIndex[idx]
		if !ok {
			return SessionSummary{}, fmt.Errorf("orchestrator: selected index %d has no matching case", idx)
		}

		if err := sem.Acquire(groupCtx, 1); err != nil {
			break
		}

		group.Go(func() error {
			defer sem.Release(1)
			result := o.runOne(groupCtx, entry)
			mu.Lock()
			results[idx] = result
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		o.logger.Warn("dispatch ended early", "error", err)
	}

	summary := buildSummary(o.cfg.SessionName, o.runID, o.cases, results, selected)
	if err := summary.WriteText(filepath.Join(o.cfg.Root, "summary")); err != nil {
		o.logger.Error("failed to write summary", "error", err)
	}
	if err := summary.WriteYAML(filepath.Join(o.cfg.Root, "summary.yaml")); err != nil {
		o.logger.Error("failed to write structured summary", "error", err)
	}

	return summary, nil
}

// runOne drives a single case: allocates networking/ports if the case
// needs them, runs the executor, and releases those resources
// unconditionally on return.
func (o *Orchestrator) runOne(ctx context.Context, entry caseEntry) *executor.Result {
	logger := o.logger.With("case", entry.index, "id", entry.id)

	exec := executor.New(entry.index, entry.dir, o.cfg.SessionName, o.cfg.SuccessMarker, o.cfg.Timeouts, logger)

	// acquired mirrors the cleanups handed to exec, so a failure before
	// exec.Run (which would otherwise run them) still releases them.
	var acquired []func() error
	register := func(fn func() error) {
		acquired = append(acquired, fn)
		exec.RegisterNetworkCleanup(fn)
	}
	fail := func(err error) *executor.Result {
		for i := len(acquired) - 1; i >= 0; i-- {
			_ = acquired[i]()
		}
		return &executor.Result{CaseIndex: entry.index, State: executor.StateFailed, Verdict: executor.VerdictFail, Err: err}
	}

	if entry.networked {
		bridgeName, err := o.bridges.Allocate(entry.index)
		if err != nil {
			logger.Error("bridge allocation failed", "error", err)
			return &executor.Result{CaseIndex: entry.index, State: executor.StateFailed, Verdict: executor.VerdictFail, Err: err}
		}
		register(func() error {
			o.bridges.Release(bridgeName)
			return nil
		})

		bridge, err := netsetup.Create(bridgeName)
		if err != nil {
			logger.Error("bridge creation failed", "error", err)
			return fail(err)
		}
		register(bridge.Teardown)
	}

	if entry.ports > 0 {
		allocated, err := o.ports.Acquire(entry.ports)
		if err != nil {
			logger.Error("port allocation failed", "error", err)
			return fail(err)
		}
		register(func() error {
			o.ports.Release(allocated)
			return nil
		})
	}

	return exec.Run(ctx)
}
