package config

import "github.com/unikernel-ci/matrixctl/internal/matrix"

// Axes converts the build and run axis declarations into matrix.Axis
// values, preserving declaration order with build axes first, matching
// how the global config document lists them.
func (g *GlobalConfig) Axes() []matrix.Axis {
	axes := make([]matrix.Axis, 0, len(g.Variants.Build)+len(g.Variants.Run))
	for _, a := range g.Variants.Build {
		axes = append(axes, matrix.Axis{Name: a.Name, Family: matrix.FamilyBuild, Levels: a.Levels})
	}
	for _, a := range g.Variants.Run {
		axes = append(axes, matrix.Axis{Name: a.Name, Family: matrix.FamilyRun, Levels: a.Levels})
	}
	return axes
}

// ApplicationSpec converts an AppManifest into the matrix.ApplicationSpec
// the engine prunes against.
func (m *AppManifest) ApplicationSpec() matrix.ApplicationSpec {
	targets := make([]matrix.ApplicationTarget, 0, len(m.Targets))
	for _, t := range m.Targets {
		targets = append(targets, matrix.ApplicationTarget{Architecture: t.Architecture, Platform: t.Platform})
	}

	kind := matrix.AppKindKernelImage
	if m.Kind == string(matrix.AppKindExampleBinary) {
		kind = matrix.AppKindExampleBinary
	}

	rootfs := matrix.RootfsNone
	switch m.Runtime.Filesystem {
	case string(matrix.RootfsInitrd):
		rootfs = matrix.RootfsInitrd
	case string(matrix.RootfsNinep):
		rootfs = matrix.RootfsNinep
	}

	return matrix.ApplicationSpec{
		Targets:            targets,
		RequiresNetworking: m.Runtime.RequiresNetworking,
		ForbidsNetworking:  m.Runtime.ForbidsNetworking,
		RequiresFilesystem: m.Runtime.RequiresFilesystem,
		ForbidsFilesystem:  m.Runtime.ForbidsFilesystem,
		RootfsKind:         rootfs,
		MemoryMB:           m.Runtime.MemoryMB,
		Ports:              m.Runtime.Ports,
		Kind:               kind,
		TestCommand:        m.Runtime.TestCommand,
		SuccessMarker:      m.Runtime.SuccessMarker,
	}
}
