// Package scripts implements component C4: it renders a case config
// file, a build script, and a run script from a case's resolved Variant
// Assignment. Every template here is a pure function of its input
// struct — none consults external state at render time, per spec.md
// §4.4.
//
// Directly grounded in the teacher's systemd/template.go: a
// text/template with a template.FuncMap{"join": strings.Join}, built
// with template.Must(template.New(...).Funcs(...).Parse(...)). This
// package repeats that exact construction once per artifact instead of
// once for a single nspawn unit file.
package scripts

import (
	"strings"
	"text/template"
)

var funcMaps = template.FuncMap{
	"join":  strings.Join,
	"upper": strings.ToUpper,
	// dqescape escapes the characters the shell still interprets inside
	// a double-quoted word.
	"dqescape": strings.NewReplacer(`\`, `\\`, `"`, `\"`, "$", `\$`, "`", "\\`").Replace,
}

// nativeMakeBuildTpl is the build-script branch for build tools that
// write a defconfig file and invoke `make`, per spec.md §4.4.
const nativeMakeBuildTpl = `#!/bin/sh
# generated by matrixctl — case {{ .ID }} (index {{ .Index }})
set -eu
. "$(dirname "$0")/../common.sh"

cd "$(dirname "$0")"
rm -rf build
mkdir -p build

cp defconfig ../app/.config
make -C ../app \
	ARCH={{ .Architecture }} \
	PLATFORM={{ .Platform }} \
	CC={{ .CompilerPath }} \
	{{- if .PositionIndependent }}
	PIE=1 \
	{{- end }}
	O="$(pwd)/build" \
	defconfig
make -C ../app O="$(pwd)/build" -j"$(nproc)"

place_kernel_image "$(pwd)/build" "$(pwd)/{{ .KernelImageName }}"
`

// integratedToolBuildTpl is the build-script branch for build tools that
// write a tool-native manifest and invoke the tool directly.
const integratedToolBuildTpl = `#!/bin/sh
# generated by matrixctl — case {{ .ID }} (index {{ .Index }})
set -eu
. "$(dirname "$0")/../common.sh"

cd "$(dirname "$0")"
{{ .BuildTool }} build \
	--arch {{ .Architecture }} \
	--plat {{ .Platform }} \
	{{- if .PositionIndependent }}
	--pie \
	{{- end }}
	--debug-level {{ .DebugLevel }} \
	--manifest {{ .ToolManifestName }} \
	../app

place_kernel_image "../app/.{{ .BuildTool }}/build" "$(pwd)/{{ .KernelImageName }}"
`

// defconfigTpl renders the Kconfig-style defconfig file consumed by the
// native-make build branch.
const defconfigTpl = `CONFIG_ARCH_{{ upper .Architecture }}=y
CONFIG_PLAT_{{ upper .Platform }}=y
{{- if .PositionIndependent }}
CONFIG_PIE=y
{{- end }}
CONFIG_DEBUG_LEVEL={{ .DebugLevel }}
`

// toolManifestTpl renders the integrated-tool's native manifest file.
const toolManifestTpl = `# generated by matrixctl — case {{ .ID }}
specification: v0.6
name: {{ .ID }}
unikraft:
  arch: {{ .Architecture }}
  plat: {{ .Platform }}
{{- if .PositionIndependent }}
  pie: true
{{- end }}
`

// runScriptTpl is the single run-script template, parameterized by
// run_tool, hypervisor, rootfs and networking per spec.md §4.4: it sets
// up network plumbing, mounts/packages the rootfs, invokes the VMM, and
// streams output, exiting with a code reflecting the unikernel's
// observable termination.
const runScriptTpl = `#!/bin/sh
# generated by matrixctl — case {{ .ID }} (index {{ .Index }})
set -eu
. "$(dirname "$0")/../common.sh"

cd "$(dirname "$0")"
mkdir -p "{{ .SessionName }}"
LOG="{{ .SessionName }}/run.log"

{{- if ne .Networking "none" }}
setup_bridge "{{ .BridgeName }}"
trap 'teardown_bridge "{{ .BridgeName }}"' EXIT
{{- end }}

{{- if eq .Rootfs "initrd" }}
build_initrd "../app" "{{ .SessionName }}/initrd.cpio"
{{- else if eq .Rootfs "9p" }}
SHARE_DIR="../app"
{{- end }}

{{ .RunTool }} \
	{{- if eq .Hypervisor "kvm" }}
	--enable-kvm \
	{{- else if eq .Hypervisor "xen" }}
	--hypervisor xen \
	{{- end }}
	-m {{ .MemoryMB }}M \
	{{- range .Ports }}
	-portfwd {{ . }}:{{ . }} \
	{{- end }}
	{{- if ne .Networking "none" }}
	-nic bridge:"{{ .BridgeName }}" \
	{{- end }}
	{{- if eq .Rootfs "initrd" }}
	-initrd "{{ .SessionName }}/initrd.cpio" \
	{{- else if eq .Rootfs "9p" }}
	-9p-share "$SHARE_DIR" \
	{{- end }}
	-k "{{ .KernelImageName }}" \
	{{- if .TestCommandArgs }}
	-append "{{ dqescape (join .TestCommandArgs " ") }}" \
	{{- end }}
	> "$LOG" 2>&1
STATUS=$?

exit "$STATUS"
`

var (
	nativeMakeBuildTemplate     = template.Must(newTemplate("native-make-build").Parse(nativeMakeBuildTpl))
	integratedToolBuildTemplate = template.Must(newTemplate("integrated-tool-build").Parse(integratedToolBuildTpl))
	defconfigTemplate           = template.Must(newTemplate("defconfig").Parse(defconfigTpl))
	toolManifestTemplate        = template.Must(newTemplate("tool-manifest").Parse(toolManifestTpl))
	runScriptTemplate           = template.Must(newTemplate("run-script").Parse(runScriptTpl))
)

func newTemplate(name string) *template.Template {
	return template.New(name).Funcs(funcMaps)
}
