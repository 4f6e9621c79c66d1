package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() hclog.Logger {
	return hclog.NewNullLogger()
}

// writeScript writes an executable shell script into dir/name.
func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
}

func newCaseDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("case_index: 1\n"), 0o644))
	return dir
}

// TestBuildFailureContainment is scenario S5: a build script that exits
// non-zero yields verdict fail(build), and the failure is scoped to this
// case only (Run returns a terminal Result rather than panicking or
// propagating).
func TestBuildFailureContainment(t *testing.T) {
	dir := newCaseDir(t)
	writeScript(t, dir, "build", "echo boom 1>&2\nexit 7")
	writeScript(t, dir, "run", "exit 0")

	exec := New(1, dir, "session", "", NewTimeouts(2*time.Second, 2*time.Second, 100*time.Millisecond), discardLogger())
	result := exec.Run(context.Background())

	require.NotNil(t, result)
	assert.Equal(t, VerdictFail, result.Verdict)
	assert.Equal(t, StageBuild, result.Stage)
	assert.Equal(t, "fail(build)", result.ResultLine())
	assert.Equal(t, 7, result.ExitCode)

	resultFile, err := os.ReadFile(filepath.Join(dir, "session", "result"))
	require.NoError(t, err)
	assert.Equal(t, "fail(build)\n", string(resultFile))

	buildLog, err := os.ReadFile(filepath.Join(dir, "session", "build.log"))
	require.NoError(t, err)
	assert.Contains(t, string(buildLog), "boom")
}

// TestRunTimeoutProducesCompositeVerdict is scenario S6: a run script
// that never exits is terminated after its timeout, producing
// fail(run,timeout), with run.log flushed and readable. It does not
// check for surviving child processes.
func TestRunTimeoutProducesCompositeVerdict(t *testing.T) {
	dir := newCaseDir(t)
	writeScript(t, dir, "build", "exit 0")
	writeScript(t, dir, "run", "echo starting\nsleep 30")

	exec := New(1, dir, "session", "", NewTimeouts(2*time.Second, 300*time.Millisecond, 100*time.Millisecond), discardLogger())
	result := exec.Run(context.Background())

	require.NotNil(t, result)
	assert.Equal(t, VerdictFail, result.Verdict)
	assert.Equal(t, StageRun, result.Stage)
	assert.Equal(t, QualifierTimeout, result.Qualifier)
	assert.Equal(t, "fail(run,timeout)", result.ResultLine())

	runLog, err := os.ReadFile(filepath.Join(dir, "session", "run.log"))
	require.NoError(t, err)
	assert.Contains(t, string(runLog), "starting")
}

func TestCleanPassWithoutSuccessMarker(t *testing.T) {
	dir := newCaseDir(t)
	writeScript(t, dir, "build", "exit 0")
	writeScript(t, dir, "run", "echo ok\nexit 0")

	exec := New(1, dir, "session", "", NewTimeouts(2*time.Second, 2*time.Second, 100*time.Millisecond), discardLogger())
	result := exec.Run(context.Background())

	require.NotNil(t, result)
	assert.Equal(t, VerdictPass, result.Verdict)
	assert.Equal(t, "pass", result.ResultLine())
}

func TestSuccessMarkerMustBePresentInRunLog(t *testing.T) {
	dir := newCaseDir(t)
	writeScript(t, dir, "build", "exit 0")
	writeScript(t, dir, "run", "echo nothing-matches\nexit 0")

	exec := New(1, dir, "session", "ALL_TESTS_PASSED", NewTimeouts(2*time.Second, 2*time.Second, 100*time.Millisecond), discardLogger())
	result := exec.Run(context.Background())

	require.NotNil(t, result)
	assert.Equal(t, VerdictFail, result.Verdict)
	assert.Equal(t, StageVerify, result.Stage)
	assert.Equal(t, "fail(verify)", result.ResultLine())
}

func TestSuccessMarkerFoundPasses(t *testing.T) {
	dir := newCaseDir(t)
	writeScript(t, dir, "build", "exit 0")
	writeScript(t, dir, "run", "echo ALL_TESTS_PASSED\nexit 0")

	exec := New(1, dir, "session", "ALL_TESTS_PASSED", NewTimeouts(2*time.Second, 2*time.Second, 100*time.Millisecond), discardLogger())
	result := exec.Run(context.Background())

	require.NotNil(t, result)
	assert.Equal(t, VerdictPass, result.Verdict)
}

func TestMissingArtifactsFailCaseBeforeBuild(t *testing.T) {
	dir := t.TempDir()

	exec := New(1, dir, "session", "", NewTimeouts(2*time.Second, 2*time.Second, 100*time.Millisecond), discardLogger())
	result := exec.Run(context.Background())

	require.NotNil(t, result)
	assert.Equal(t, VerdictFail, result.Verdict)
	assert.Equal(t, StageBuild, result.Stage)
}

func TestCleanupRunsEvenOnFailure(t *testing.T) {
	dir := newCaseDir(t)
	writeScript(t, dir, "build", "exit 1")
	writeScript(t, dir, "run", "exit 0")

	exec := New(1, dir, "session", "", NewTimeouts(2*time.Second, 2*time.Second, 100*time.Millisecond), discardLogger())

	cleaned := false
	exec.RegisterNetworkCleanup(func() error {
		cleaned = true
		return nil
	})

	result := exec.Run(context.Background())
	require.NotNil(t, result)
	assert.True(t, cleaned)
}

func TestResultLineFormats(t *testing.T) {
	cases := []struct {
		result   Result
		expected string
	}{
		{Result{Verdict: VerdictPass}, "pass"},
		{Result{Verdict: VerdictFail, Stage: StageBuild}, "fail(build)"},
		{Result{Verdict: VerdictFail, Stage: StageRun, Qualifier: QualifierTimeout}, "fail(run,timeout)"},
		{Result{Verdict: VerdictCancelled, Stage: StageRun, Qualifier: QualifierCancelled}, "cancelled(run,cancelled)"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.expected, tc.result.ResultLine())
	}
}
