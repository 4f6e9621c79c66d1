package matrix

import (
	"fmt"
	"strings"
)

// Engine holds the declarative description of the configuration space:
// the closed set of axes and the exclusion rules evaluated against it.
// It is stateless across Build calls; all host- and application-specific
// pruning is parameterized per call, matching the Design Notes'
// "plain records and free functions, not class hierarchies" direction.
type Engine struct {
	axes   []Axis
	order  []string
	byAxis map[string][]string
	rules  []Rule
}

// New validates the axis declarations and exclusion rules and returns a
// ready-to-use Engine. It fails fast with ErrEmptyAxis or
// ErrUnknownAxisOrLevel rather than deferring validation to Build.
func New(axes []Axis, rules []Rule) (*Engine, error) {
	order := make([]string, 0, len(axes))
	byAxis := make(map[string][]string, len(axes))
	for _, ax := range axes {
		if len(ax.Levels) == 0 {
			return nil, emptyAxisErr(ax.Name)
		}
		order = append(order, ax.Name)
		byAxis[ax.Name] = ax.Levels
	}

	for _, r := range rules {
		for _, at := range r.Atoms {
			levels, ok := byAxis[at.Axis]
			if !ok {
				return nil, unknownAxisErr(at.Axis)
			}
			for _, v := range at.Values {
				if !containsString(levels, v) {
					return nil, unknownLevelErr(at.Axis, v)
				}
			}
		}
	}

	return &Engine{axes: axes, order: order, byAxis: byAxis, rules: rules}, nil
}

// Diagnostic describes why a Build call produced fewer — possibly zero —
// cases than the raw Cartesian product, for logging and for the
// NoSurvivingCases error message.
type Diagnostic struct {
	Expanded        int
	AfterExclusions int
	AfterHost       int
	AfterAppTargets int
	AfterOverrides  int
}

func (d Diagnostic) String() string {
	return fmt.Sprintf(
		"expanded=%d after_exclusions=%d after_host=%d after_app_targets=%d after_overrides=%d",
		d.Expanded, d.AfterExclusions, d.AfterHost, d.AfterAppTargets, d.AfterOverrides,
	)
}

// expand forms the Cartesian product of all axis levels, in lexicographic
// order by declaration order of axes (algorithm step 1). This order
// defines the case index assigned in step 6.
func (e *Engine) expand() []Assignment {
	result := []Assignment{{}}
	for _, ax := range e.axes {
		next := make([]Assignment, 0, len(result)*len(ax.Levels))
		for _, a := range result {
			for _, level := range ax.Levels {
				na := a.Clone()
				na[ax.Name] = level
				next = append(next, na)
			}
		}
		result = next
	}
	return result
}

func (e *Engine) excluded(a Assignment) bool {
	for _, r := range e.rules {
		if r.Match(a, e.byAxis) {
			return true
		}
	}
	return false
}

// Build runs steps 1–5 of the algorithm of spec.md §4.2 and returns the
// surviving assignments in expansion order, together with a Diagnostic
// of the count after each step; Index performs step 6 (dense 1-based
// numbering) on the result. If no assignment survives, it returns a
// *Error with Kind ErrNoSurvivingCases describing which stage emptied
// the set, per spec.md §4.2's short-circuit and §7's error policy.
func (e *Engine) Build(host HostCapabilitySet, apps ApplicationSpec) ([]Assignment, Diagnostic, error) {
	var diag Diagnostic

	expanded := e.expand()
	diag.Expanded = len(expanded)

	pruned := make([]Assignment, 0, len(expanded))
	for _, a := range expanded {
		if !e.excluded(a) {
			pruned = append(pruned, a)
		}
	}
	diag.AfterExclusions = len(pruned)
	if len(pruned) == 0 {
		return nil, diag, noSurvivorsErr("all assignments excluded by exclude_variants rules: " + diag.String())
	}

	afterHost := make([]Assignment, 0, len(pruned))
	for _, a := range pruned {
		if e.satisfiesHost(a, host) {
			afterHost = append(afterHost, a)
		}
	}
	diag.AfterHost = len(afterHost)
	if len(afterHost) == 0 {
		return nil, diag, noSurvivorsErr("no assignment satisfied by host capabilities: " + diag.String())
	}

	afterApp := make([]Assignment, 0, len(afterHost))
	for _, a := range afterHost {
		if e.matchesAnyTarget(a, apps.Targets) {
			afterApp = append(afterApp, a)
		}
	}
	diag.AfterAppTargets = len(afterApp)
	if len(afterApp) == 0 {
		return nil, diag, noSurvivorsErr("no assignment matched a declared application target: " + diag.String())
	}

	afterOverride := make([]Assignment, 0, len(afterApp))
	for _, a := range afterApp {
		if e.satisfiesAppOverrides(a, apps) {
			afterOverride = append(afterOverride, a)
		}
	}
	diag.AfterOverrides = len(afterOverride)
	if len(afterOverride) == 0 {
		return nil, diag, noSurvivorsErr("no assignment survived application-derived overrides: " + diag.String())
	}

	return afterOverride, diag, nil
}

// Index assigns dense 1-based indices and derived identifiers in
// expansion order (algorithm step 6), and guards the "no two cases share
// an assignment" invariant.
func (e *Engine) Index(assignments []Assignment) []TargetCase {
	seen := make(map[string]struct{}, len(assignments))
	cases := make([]TargetCase, 0, len(assignments))
	idx := 1
	for _, a := range assignments {
		k := a.key(e.order)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		cases = append(cases, TargetCase{
			Index:      idx,
			ID:         deriveID(a, e.order),
			Assignment: a,
		})
		idx++
	}
	return cases
}

func (e *Engine) satisfiesHost(a Assignment, host HostCapabilitySet) bool {
	if runTool, ok := a["run_tool"]; ok {
		if !host.SupportsVMM(runTool) {
			return false
		}
	}
	if hv, ok := a["hypervisor"]; ok {
		if !host.SupportsHypervisor(hv) {
			return false
		}
	}
	if arch, ok := a["architecture"]; ok {
		if buildTool, ok := a["build_tool"]; ok {
			if !host.SupportsCompiler(arch, buildTool) {
				return false
			}
		} else if arch != host.Architecture {
			cross := false
			for key := range host.Compilers {
				if strings.HasPrefix(key, arch+"/") {
					cross = true
					break
				}
			}
			if !cross {
				return false
			}
		}
	}
	return true
}

func (e *Engine) matchesAnyTarget(a Assignment, targets []ApplicationTarget) bool {
	arch, hasArch := a["architecture"]
	plat, hasPlat := a["platform"]
	if !hasArch || !hasPlat {
		return true
	}
	for _, t := range targets {
		if t.Architecture == arch && t.Platform == plat {
			return true
		}
	}
	return false
}

func (e *Engine) satisfiesAppOverrides(a Assignment, apps ApplicationSpec) bool {
	if net, ok := a["networking"]; ok {
		if apps.RequiresNetworking && net == "none" {
			return false
		}
		if apps.ForbidsNetworking && net != "none" {
			return false
		}
	}
	if rootfs, ok := a["rootfs"]; ok {
		if apps.RequiresFilesystem && rootfs == "none" {
			return false
		}
		if apps.ForbidsFilesystem && rootfs != "none" {
			return false
		}
	}
	return true
}
