package scripts

import "path/filepath"

// commonHelpers is the shared shell helper library referenced by every
// generated build and run script as "../common.sh", per the on-disk
// layout in spec.md §6. It centralizes the few external-tool
// invocations (kernel image placement, bridge setup, initrd packaging)
// so each per-case script stays a thin, declarative sequence of calls.
const commonHelpers = `#!/bin/sh
# shared helpers for matrixctl-generated build and run scripts
set -eu

place_kernel_image() {
	build_dir="$1"
	dest="$2"
	image="$(find "$build_dir" -maxdepth 2 -type f \( -name '*.img' -o -name 'kernel*' \) | head -n1)"
	if [ -z "$image" ]; then
		echo "matrixctl: no kernel image found under $build_dir" >&2
		exit 1
	fi
	cp "$image" "$dest"
}

setup_bridge() {
	name="$1"
	ip link add name "$name" type bridge 2>/dev/null || true
	ip link set "$name" up
}

teardown_bridge() {
	name="$1"
	ip link delete "$name" type bridge 2>/dev/null || true
}

build_initrd() {
	src_dir="$1"
	dest="$2"
	( cd "$src_dir" && find . -print0 | cpio --null -ov --format=newc ) > "$dest"
}
`

// WriteCommonHelpers writes common.sh into the session root. It is
// rendered once per session rather than once per case since its content
// does not depend on any Target Case's Variant Assignment.
func WriteCommonHelpers(sessionRoot string) error {
	return writeFile(filepath.Join(sessionRoot, "common.sh"), []byte(commonHelpers), 0o755)
}
