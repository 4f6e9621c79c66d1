package scripts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unikernel-ci/matrixctl/internal/matrix"
)

func sampleParams() CaseParams {
	return CaseParams{
		Index:         1,
		ID:            "qemu-kvm-x86_64",
		SessionName:   "session",
		Architecture:  "x86_64",
		Platform:      "qemu",
		BuildTool:     "make",
		RunTool:       "qemu-system-x86_64",
		DebugLevel:    "info",
		CompilerPath:  "/usr/bin/gcc",
		Hypervisor:    "kvm",
		Rootfs:        matrix.RootfsInitrd,
		Networking:    "bridge",
		MemoryMB:      128,
		Ports:         []int{8080},
		TestCommand:   "/test.sh --verbose",
		SuccessMarker: "ALL TESTS PASSED",
		BridgeName:    "mxbr1",
	}
}

// TestRenderNativeMakeBranch mirrors the teacher's template_test.go
// style: render, then assert on exact substrings of the output.
func TestRenderNativeMakeBranch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, New().Render(dir, sampleParams()))

	build, err := os.ReadFile(filepath.Join(dir, "build"))
	require.NoError(t, err)
	assert.Contains(t, string(build), "make -C ../app")
	assert.Contains(t, string(build), "ARCH=x86_64")
	assert.Contains(t, string(build), "PLATFORM=qemu")
	assert.Contains(t, string(build), "place_kernel_image")

	defconfig, err := os.ReadFile(filepath.Join(dir, "defconfig"))
	require.NoError(t, err)
	assert.Contains(t, string(defconfig), "CONFIG_ARCH_X86_64=y")
	assert.Contains(t, string(defconfig), "CONFIG_PLAT_QEMU=y")

	run, err := os.ReadFile(filepath.Join(dir, "run"))
	require.NoError(t, err)
	assert.Contains(t, string(run), "qemu-system-x86_64")
	assert.Contains(t, string(run), "--enable-kvm")
	assert.Contains(t, string(run), "setup_bridge \"mxbr1\"")
	assert.Contains(t, string(run), "-append \"/test.sh --verbose\"")

	info, err := os.Stat(filepath.Join(dir, "build"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestRenderIntegratedToolBranch(t *testing.T) {
	dir := t.TempDir()
	p := sampleParams()
	p.BuildTool = "kraft"

	require.NoError(t, New().Render(dir, p))

	build, err := os.ReadFile(filepath.Join(dir, "build"))
	require.NoError(t, err)
	assert.Contains(t, string(build), "kraft build")
	assert.Contains(t, string(build), "--manifest kraft.yaml")

	manifest, err := os.ReadFile(filepath.Join(dir, "kraft.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(manifest), "arch: x86_64")
	assert.Contains(t, string(manifest), "plat: qemu")

	assert.NoFileExists(t, filepath.Join(dir, "defconfig"))
}

// TestRenderIsIdempotent is spec.md §8 invariant #5.
func TestRenderIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	p := sampleParams()
	m := New()

	require.NoError(t, m.Render(dir, p))
	first, err := os.ReadFile(filepath.Join(dir, "run"))
	require.NoError(t, err)

	require.NoError(t, m.Render(dir, p))
	second, err := os.ReadFile(filepath.Join(dir, "run"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRenderNetworklessCaseSkipsBridgeSetup(t *testing.T) {
	dir := t.TempDir()
	p := sampleParams()
	p.Networking = "none"
	p.Rootfs = matrix.RootfsNone

	require.NoError(t, New().Render(dir, p))

	run, err := os.ReadFile(filepath.Join(dir, "run"))
	require.NoError(t, err)
	assert.NotContains(t, string(run), "setup_bridge")
}

func TestConfigYAMLCapturesAssignmentAndAppFields(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, New().Render(dir, sampleParams()))

	cfg, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(cfg), "memory_mb: 128")
	assert.Contains(t, string(cfg), "success_marker: ALL TESTS PASSED")
}
