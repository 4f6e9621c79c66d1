package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testGlobalConfigTemplate pins architecture to the host's own GOARCH
// and resolves the vmm/compiler tools via explicit paths to an
// always-present binary, so the fixture's host-probe pruning step
// (spec.md §4.2 step 3) never depends on qemu or a cross-compiler
// actually being installed in the test environment.
const testGlobalConfigTemplate = `
variants:
  build:
    architecture: [%s]
    build_tool: [make]
  run:
    run_tool: [qemu]
    hypervisor: [none]
    networking: [none]
exclude_variants: []
tools:
  vmm:
    qemu:
      arch: %s
      type: qemu
      path: /bin/true
  compiler:
    make:
      arch: %s
      type: gcc
      path: /bin/true
`

const testManifestTemplate = `
targets:
  - architecture: %s
    platform: qemu
runtime:
  memory_mb: 128
`

func writeFixtureTree(t *testing.T) (appDir, configPath string) {
	t.Helper()
	root := t.TempDir()

	appDir = filepath.Join(root, "app")
	require.NoError(t, os.MkdirAll(appDir, 0o755))
	manifest := fmt.Sprintf(testManifestTemplate, runtime.GOARCH)
	require.NoError(t, os.WriteFile(filepath.Join(appDir, "matrixctl.yaml"), []byte(manifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(appDir, "main.c"), []byte("int main(){return 0;}"), 0o644))

	configPath = filepath.Join(root, "matrix.yaml")
	globalConfig := fmt.Sprintf(testGlobalConfigTemplate, runtime.GOARCH, runtime.GOARCH, runtime.GOARCH)
	require.NoError(t, os.WriteFile(configPath, []byte(globalConfig), 0o644))

	return appDir, configPath
}

// TestGenerateOnlyMaterializesWithoutExecuting exercises the full
// config-load → probe → matrix → layout → materialize pipeline through
// the CLI, stopping before execution per --generate-only.
func TestGenerateOnlyMaterializesWithoutExecuting(t *testing.T) {
	appDir, configPath := writeFixtureTree(t)
	sessionRoot := filepath.Join(t.TempDir(), "out")

	root := newRootCmd()
	root.SetArgs([]string{
		"run", appDir,
		"--config", configPath,
		"--generate-only",
		"--tests-dir", sessionRoot,
	})
	root.SetOut(new(noopWriter))
	root.SetErr(new(noopWriter))

	err := root.Execute()
	require.NoError(t, err)
	assert.Equal(t, exitOK, pendingExitCode)

	assert.FileExists(t, filepath.Join(sessionRoot, "1", "build"))
	assert.FileExists(t, filepath.Join(sessionRoot, "1", "run"))
	assert.FileExists(t, filepath.Join(sessionRoot, "1", "config.yaml"))
	assert.FileExists(t, filepath.Join(sessionRoot, "common.sh"))
	assert.DirExists(t, filepath.Join(sessionRoot, "app"))
}

func TestUsageErrorOnBadSelectionFilter(t *testing.T) {
	appDir, configPath := writeFixtureTree(t)
	sessionRoot := filepath.Join(t.TempDir(), "out")

	root := newRootCmd()
	root.SetArgs([]string{
		"run", appDir,
		"--config", configPath,
		"--tests-dir", sessionRoot,
		"--targets", "not-a-filter",
	})
	root.SetOut(new(noopWriter))
	root.SetErr(new(noopWriter))

	err := root.Execute()
	require.Error(t, err)
	assert.Equal(t, exitUsage, exitCodeForError(err))
}

func TestDoctorPrintsCapabilityYAML(t *testing.T) {
	_, configPath := writeFixtureTree(t)

	var out capturingWriter
	root := newRootCmd()
	root.SetArgs([]string{"doctor", "--config", configPath})
	root.SetOut(&out)
	root.SetErr(new(noopWriter))

	err := root.Execute()
	require.NoError(t, err)
	assert.Contains(t, out.String(), "architecture:")
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

type capturingWriter struct{ buf []byte }

func (c *capturingWriter) Write(p []byte) (int, error) {
	c.buf = append(c.buf, p...)
	return len(p), nil
}

func (c *capturingWriter) String() string { return string(c.buf) }
