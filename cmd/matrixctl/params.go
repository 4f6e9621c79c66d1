package main

import (
	"fmt"

	"github.com/unikernel-ci/matrixctl/internal/matrix"
	"github.com/unikernel-ci/matrixctl/internal/scripts"
)

// caseParamsFor projects a resolved Target Case and its application's
// runtime needs into the flat CaseParams the script templates render
// from, resolving the compiler and VMM paths the host probe discovered.
func caseParamsFor(c matrix.TargetCase, sessionName string, app matrix.ApplicationSpec, caps matrix.HostCapabilitySet) scripts.CaseParams {
	get := func(axis string) string {
		v, _ := c.Assignment.Get(axis)
		return v
	}

	arch := get("architecture")
	buildTool := get("build_tool")
	runTool := get("run_tool")

	rootfs := app.RootfsKind
	if level := get("rootfs"); level != "" {
		rootfs = matrix.RootfsKind(level)
	}

	return scripts.CaseParams{
		Index:               c.Index,
		ID:                  c.ID,
		SessionName:         sessionName,
		Architecture:        arch,
		Platform:            get("platform"),
		BuildTool:           buildTool,
		RunTool:             runTool,
		Bootloader:          get("bootloader"),
		DebugLevel:          get("debug_level"),
		PositionIndependent: get("position_independence") == "pie",
		CompilerPath:        caps.Compilers[arch+"/"+buildTool],
		Hypervisor:          get("hypervisor"),
		Rootfs:              rootfs,
		Networking:          get("networking"),
		MemoryMB:            app.MemoryMB,
		Ports:               app.Ports,
		TestCommand:         app.TestCommand,
		SuccessMarker:       app.SuccessMarker,
		BridgeName:          fmt.Sprintf("mxbr%d", c.Index),
	}
}
