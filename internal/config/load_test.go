package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleGlobal = `
variants:
  build:
    architecture: [x86_64, arm64]
    bootloader: [multiboot, uefi]
  run:
    platform: [xen, qemu, fc]
    hypervisor: [none, xen, kvm]
exclude_variants:
  - bootloader: uefi
  - platform: fc
    hypervisor: not kvm
tools:
  vmm:
    qemu: system
    firecracker:
      arch: x86_64
      type: firecracker
      path: /usr/bin/firecracker
  compiler:
    gcc: system
  privileged_allowlist:
    - /usr/bin/ip
    - /usr/bin/qemu-system-x86_64
source:
  base: /srv/toolchain
`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadGlobalPreservesAxisOrder(t *testing.T) {
	path := writeTemp(t, "matrix.yaml", sampleGlobal)
	cfg, err := LoadGlobal(path)
	require.NoError(t, err)

	require.Len(t, cfg.Variants.Build, 2)
	assert.Equal(t, "architecture", cfg.Variants.Build[0].Name)
	assert.Equal(t, "bootloader", cfg.Variants.Build[1].Name)
	assert.Equal(t, []string{"x86_64", "arm64"}, cfg.Variants.Build[0].Levels)

	require.Len(t, cfg.Variants.Run, 2)
	assert.Equal(t, "platform", cfg.Variants.Run[0].Name)

	assert.Equal(t, "/srv/toolchain", cfg.SourceBase)
	assert.ElementsMatch(t, cfg.Tools.PrivilegedAllowlist, []string{"/usr/bin/ip", "/usr/bin/qemu-system-x86_64"})
}

func TestLoadGlobalDecodesToolSpecs(t *testing.T) {
	path := writeTemp(t, "matrix.yaml", sampleGlobal)
	cfg, err := LoadGlobal(path)
	require.NoError(t, err)

	qemu, ok := cfg.Tools.VMMs["qemu"]
	require.True(t, ok)
	assert.True(t, qemu.System)

	fc, ok := cfg.Tools.VMMs["firecracker"]
	require.True(t, ok)
	assert.False(t, fc.System)
	assert.Equal(t, "/usr/bin/firecracker", fc.Path)
	assert.Equal(t, "x86_64", fc.Arch)
}

func TestLoadGlobalMissingFile(t *testing.T) {
	_, err := LoadGlobal(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

const sampleApp = `
targets:
  - architecture: x86_64
    platform: qemu
  - architecture: arm64
    platform: qemu
runtime:
  memory_mb: 128
  ports: [8080]
  filesystem: initrd
  requires_networking: true
  test_command: /test.sh
  success_marker: "ALL TESTS PASSED"
type: kernel-image
`

func TestLoadAppManifest(t *testing.T) {
	path := writeTemp(t, "app.yaml", sampleApp)
	m, err := LoadAppManifest(path)
	require.NoError(t, err)

	require.Len(t, m.Targets, 2)
	assert.Equal(t, 128, m.Runtime.MemoryMB)
	assert.True(t, m.Runtime.RequiresNetworking)
	assert.Equal(t, "ALL TESTS PASSED", m.Runtime.SuccessMarker)

	spec := m.ApplicationSpec()
	assert.Len(t, spec.Targets, 2)
	assert.Equal(t, "x86_64", spec.Targets[0].Architecture)
}
