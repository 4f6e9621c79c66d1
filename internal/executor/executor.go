package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sys/unix"
)

// allowedEnv is the small environment-variable allowlist forwarded into
// subprocesses per spec.md §6: toolchain warning suppression and the
// buildkit host pointer. No other environment is inherited.
var allowedEnv = []string{"KRAFTKIT_NO_WARN_SUDO", "BUILDKIT_HOST"}

// Executor drives one Target Case through the state machine of
// spec.md §4.5. It may only write inside CaseDir (plus the well-scoped
// network-teardown calls registered through RegisterNetworkCleanup).
type Executor struct {
	CaseIndex     int
	CaseDir       string
	SessionName   string
	SuccessMarker string
	Timeouts      Timeouts

	logger  hclog.Logger
	cleanup *cleanupRegistry
}

// New returns an Executor for one case directory.
func New(caseIndex int, caseDir, sessionName, successMarker string, timeouts Timeouts, logger hclog.Logger) *Executor {
	named := logger.Named("executor").With("case", caseIndex)
	return &Executor{
		CaseIndex:     caseIndex,
		CaseDir:       caseDir,
		SessionName:   sessionName,
		SuccessMarker: successMarker,
		Timeouts:      timeouts,
		logger:        named,
		cleanup:       newCleanupRegistry(named),
	}
}

// RegisterNetworkCleanup installs the function that tears down any
// network plumbing the orchestrator set up for this case (bridge/tap).
// It runs as part of the unconditional cleanup hook, last-registered
// runs first.
func (e *Executor) RegisterNetworkCleanup(fn func() error) {
	e.cleanup.add("network teardown", fn)
}

func (e *Executor) logDir() string {
	return filepath.Join(e.CaseDir, e.SessionName)
}

// Run drives the case through configure → build → run → verify,
// invoking the cleanup hook unconditionally on every exit path
// (including ctx cancellation), and writes the "result" file before
// returning.
func (e *Executor) Run(ctx context.Context) *Result {
	defer func() {
		if err := e.cleanup.Run(); err != nil {
			e.logger.Warn("cleanup completed with warnings", "error", err)
		}
	}()

	if err := os.MkdirAll(e.logDir(), 0o755); err != nil {
		return e.finish(&Result{CaseIndex: e.CaseIndex, State: StateFailed, Verdict: VerdictFail,
			Stage: StageBuild, Err: fmt.Errorf("create log directory: %w", err)})
	}

	if err := e.configure(); err != nil {
		return e.finish(&Result{CaseIndex: e.CaseIndex, State: StateFailed, Verdict: VerdictFail,
			Stage: StageBuild, Err: err})
	}

	buildResult := e.build(ctx)
	if buildResult != nil {
		return e.finish(buildResult)
	}

	runResult := e.runPhase(ctx)
	if runResult != nil {
		return e.finish(runResult)
	}

	return e.finish(e.verify())
}

// configure implements the pending→configuring→configured transition:
// it verifies the materialized artifacts spec.md §3's invariant requires
// to exist before a case may build.
func (e *Executor) configure() error {
	for _, name := range []string{"build", "run", "config.yaml"} {
		if _, err := os.Stat(filepath.Join(e.CaseDir, name)); err != nil {
			return fmt.Errorf("case not fully materialized: missing %s: %w", name, err)
		}
	}
	return nil
}

// build implements configured→building→built, returning nil on success
// (so the caller proceeds to run) or a terminal *Result on failure.
func (e *Executor) build(ctx context.Context) *Result {
	exitCode, qualifier, err := e.runScript(ctx, filepath.Join(e.CaseDir, "build"), e.Timeouts.Build, filepath.Join(e.logDir(), "build.log"))
	if err != nil || exitCode != 0 {
		verdict := VerdictFail
		if qualifier == QualifierCancelled {
			verdict = VerdictCancelled
		}
		return &Result{
			CaseIndex: e.CaseIndex, State: StateFailed, Verdict: verdict,
			Stage: StageBuild, Qualifier: qualifier, ExitCode: exitCode,
			Err: &CaseError{Stage: StageBuild, Qualifier: qualifier, ExitCode: exitCode, Err: err},
		}
	}
	return nil
}

// runPhase implements built→running, returning nil on a clean run or a
// terminal *Result on failure/timeout/cancellation.
func (e *Executor) runPhase(ctx context.Context) *Result {
	exitCode, qualifier, err := e.runScript(ctx, filepath.Join(e.CaseDir, "run"), e.Timeouts.Run, filepath.Join(e.logDir(), "run.log"))
	if qualifier != QualifierNone {
		verdict := VerdictFail
		if qualifier == QualifierCancelled {
			verdict = VerdictCancelled
		}
		return &Result{
			CaseIndex: e.CaseIndex, State: StateFailed, Verdict: verdict,
			Stage: StageRun, Qualifier: qualifier, ExitCode: exitCode,
			Err: &CaseError{Stage: StageRun, Qualifier: qualifier, ExitCode: exitCode, Err: err},
		}
	}
	if exitCode != 0 {
		return &Result{
			CaseIndex: e.CaseIndex, State: StateFailed, Verdict: VerdictFail,
			Stage: StageRun, ExitCode: exitCode,
			Err: &CaseError{Stage: StageRun, ExitCode: exitCode, Err: err},
		}
	}
	return nil
}

// verify implements running→verifying→done: it scans run.log for the
// application-declared success marker. Presence (or a clean exit when no
// marker is declared, already guaranteed by runPhase returning nil)
// means pass.
func (e *Executor) verify() *Result {
	result := &Result{CaseIndex: e.CaseIndex, State: StateDone, Verdict: VerdictPass}

	if e.SuccessMarker == "" {
		return result
	}

	data, err := os.ReadFile(filepath.Join(e.logDir(), "run.log"))
	if err != nil {
		return &Result{
			CaseIndex: e.CaseIndex, State: StateFailed, Verdict: VerdictFail, Stage: StageVerify,
			Err: &CaseError{Stage: StageVerify, Err: fmt.Errorf("read run.log: %w", err)},
		}
	}

	testLog := filepath.Join(e.logDir(), "test.log")
	if strings.Contains(string(data), e.SuccessMarker) {
		_ = os.WriteFile(testLog, []byte("success marker found: "+e.SuccessMarker+"\n"), 0o644)
		return result
	}

	_ = os.WriteFile(testLog, []byte("success marker not found: "+e.SuccessMarker+"\n"), 0o644)
	return &Result{
		CaseIndex: e.CaseIndex, State: StateFailed, Verdict: VerdictFail, Stage: StageVerify,
		Err: &CaseError{Stage: StageVerify, Err: errors.New("success marker not present in run.log")},
	}
}

func (e *Executor) finish(r *Result) *Result {
	line := r.ResultLine()
	if err := os.WriteFile(filepath.Join(e.logDir(), "result"), []byte(line+"\n"), 0o644); err != nil {
		e.logger.Error("failed to write result file", "error", err)
	}
	e.logger.Info("case finished", "verdict", line)
	return r
}

// runScript starts script as a direct executable (never via a shell),
// in its own process group, with output captured to logPath, and
// supervises it against timeout and ctx cancellation using the
// terminate sequence of spec.md §5: polite signal, grace window, hard
// kill.
func (e *Executor) runScript(ctx context.Context, script string, timeout time.Duration, logPath string) (exitCode int, qualifier Qualifier, err error) {
	logFile, ferr := os.Create(logPath)
	if ferr != nil {
		return -1, QualifierNone, fmt.Errorf("create log %s: %w", logPath, ferr)
	}
	defer logFile.Close()

	cmd := exec.Command(script)
	cmd.Dir = e.CaseDir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = filterEnv(os.Environ(), allowedEnv)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return -1, QualifierNone, fmt.Errorf("start %s: %w", filepath.Base(script), err)
	}

	pid := cmd.Process.Pid
	e.cleanup.add(fmt.Sprintf("terminate pid %d", pid), func() error {
		return terminateProcessGroup(pid, 0)
	})

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case werr := <-done:
		return exitCodeFromWaitErr(werr), QualifierNone, nil
	case <-time.After(timeout):
		e.logger.Warn("script exceeded timeout, terminating", "script", filepath.Base(script), "timeout", timeout)
		terminateProcessGroup(pid, e.Timeouts.Grace)
		<-done
		return -1, QualifierTimeout, fmt.Errorf("%s: %w", filepath.Base(script), context.DeadlineExceeded)
	case <-ctx.Done():
		e.logger.Warn("script cancelled", "script", filepath.Base(script))
		terminateProcessGroup(pid, e.Timeouts.Grace)
		<-done
		return -1, QualifierCancelled, ctx.Err()
	}
}

// terminateProcessGroup sends a polite SIGTERM to the whole process
// group, waits grace, then forces SIGKILL. grace==0 means "kill
// immediately" and is used by the unconditional cleanup hook, which
// only runs after the process has already been waited on once and is
// therefore usually already gone (unix.Kill on a dead pid is a no-op
// error we discard).
func terminateProcessGroup(pid int, grace time.Duration) error {
	if pid <= 0 {
		return nil
	}
	_ = unix.Kill(-pid, syscall.SIGTERM)
	if grace > 0 {
		time.Sleep(grace)
	}
	_ = unix.Kill(-pid, syscall.SIGKILL)
	return nil
}

func exitCodeFromWaitErr(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func filterEnv(environ, allow []string) []string {
	allowSet := make(map[string]bool, len(allow))
	for _, a := range allow {
		allowSet[a] = true
	}
	out := make([]string, 0, len(allow))
	for _, kv := range environ {
		name := strings.SplitN(kv, "=", 2)[0]
		if allowSet[name] {
			out = append(out, kv)
		}
	}
	return out
}
