package scripts

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/google/shlex"
	"gopkg.in/yaml.v3"

	"github.com/unikernel-ci/matrixctl/internal/matrix"
)

// nativeMakeTools is the set of build_tool levels that take the
// defconfig-and-make branch described in spec.md §4.4; anything else is
// treated as an integrated tool that writes its own native manifest.
var nativeMakeTools = map[string]bool{
	"make":   true,
	"kbuild": true,
}

// CaseParams is the single input every C4 template renders from: the
// resolved Variant Assignment plus the application-derived fields
// needed to produce a runnable case.
type CaseParams struct {
	Index        int
	ID           string
	SessionName  string
	Architecture string
	Platform     string
	BuildTool    string
	RunTool      string
	Bootloader   string
	DebugLevel   string

	PositionIndependent bool
	CompilerPath        string

	Hypervisor string
	Rootfs     matrix.RootfsKind
	Networking string
	MemoryMB   int
	Ports      []int

	TestCommand   string
	SuccessMarker string

	BridgeName string
}

// KernelImageName is the well-known artifact name every build script
// branch must produce within the case directory, per spec.md §4.4.
func (p CaseParams) KernelImageName() string { return p.ID + ".img" }

// ToolManifestName is the tool-native manifest file name used by the
// integrated-tool build branch.
func (p CaseParams) ToolManifestName() string { return p.BuildTool + ".yaml" }

// TestCommandArgs tokenizes the application-declared test command into
// argv-safe words using shlex, so the run-script template never splices
// a raw user-provided string into shell syntax (Design Notes: "never via
// shell string interpolation of user paths").
func (p CaseParams) TestCommandArgs() ([]string, error) {
	if p.TestCommand == "" {
		return nil, nil
	}
	return shlex.Split(p.TestCommand)
}

func (p CaseParams) isNativeMake() bool { return nativeMakeTools[p.BuildTool] }

// caseConfigDoc is what config.yaml serializes: the resolved assignment
// plus the application-derived fields named in spec.md §4.4 item 1.
type caseConfigDoc struct {
	Index         int      `yaml:"index"`
	ID            string   `yaml:"id"`
	Architecture  string   `yaml:"architecture"`
	Platform      string   `yaml:"platform"`
	BuildTool     string   `yaml:"build_tool"`
	RunTool       string   `yaml:"run_tool"`
	Bootloader    string   `yaml:"bootloader,omitempty"`
	DebugLevel    string   `yaml:"debug_level,omitempty"`
	Hypervisor    string   `yaml:"hypervisor"`
	Rootfs        string   `yaml:"rootfs"`
	Networking    string   `yaml:"networking"`
	MemoryMB      int      `yaml:"memory_mb"`
	Ports         []int    `yaml:"ports,omitempty"`
	TestCommand   string   `yaml:"test_command,omitempty"`
	SuccessMarker string   `yaml:"success_marker,omitempty"`
}

// Materializer renders the config file, build script, and run script for
// one case into its case directory.
type Materializer struct{}

// New returns a ready-to-use Materializer.
func New() *Materializer { return &Materializer{} }

// Render writes config.yaml, the build-tool-specific artifact (defconfig
// or a tool manifest), the build script, and the run script into dir.
// It is idempotent: re-running it against the same dir with the same
// CaseParams overwrites deterministically (spec.md §8 invariant #5),
// since every template is a pure function of p.
func (m *Materializer) Render(dir string, p CaseParams) error {
	if err := m.renderConfig(dir, p); err != nil {
		return err
	}
	if err := m.renderBuildArtifacts(dir, p); err != nil {
		return err
	}
	if err := m.renderBuildScript(dir, p); err != nil {
		return err
	}
	if err := m.renderRunScript(dir, p); err != nil {
		return err
	}
	return nil
}

func (m *Materializer) renderConfig(dir string, p CaseParams) error {
	doc := caseConfigDoc{
		Index:         p.Index,
		ID:            p.ID,
		Architecture:  p.Architecture,
		Platform:      p.Platform,
		BuildTool:     p.BuildTool,
		RunTool:       p.RunTool,
		Bootloader:    p.Bootloader,
		DebugLevel:    p.DebugLevel,
		Hypervisor:    p.Hypervisor,
		Rootfs:        string(p.Rootfs),
		Networking:    p.Networking,
		MemoryMB:      p.MemoryMB,
		Ports:         p.Ports,
		TestCommand:   p.TestCommand,
		SuccessMarker: p.SuccessMarker,
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal config.yaml: %w", err)
	}
	return writeFile(filepath.Join(dir, "config.yaml"), out, 0o644)
}

func (m *Materializer) renderBuildArtifacts(dir string, p CaseParams) error {
	if p.isNativeMake() {
		return renderTemplate(defconfigTemplate, filepath.Join(dir, "defconfig"), p, 0o644)
	}
	return renderTemplate(toolManifestTemplate, filepath.Join(dir, p.ToolManifestName()), p, 0o644)
}

func (m *Materializer) renderBuildScript(dir string, p CaseParams) error {
	tpl := integratedToolBuildTemplate
	if p.isNativeMake() {
		tpl = nativeMakeBuildTemplate
	}
	return renderTemplate(tpl, filepath.Join(dir, "build"), p, 0o755)
}

func (m *Materializer) renderRunScript(dir string, p CaseParams) error {
	return renderTemplate(runScriptTemplate, filepath.Join(dir, "run"), p, 0o755)
}

func renderTemplate(tpl *template.Template, path string, p CaseParams, mode os.FileMode) error {
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, p); err != nil {
		return fmt.Errorf("render %s: %w", filepath.Base(path), err)
	}
	return writeFile(path, buf.Bytes(), mode)
}

func writeFile(path string, data []byte, mode os.FileMode) error {
	if err := os.WriteFile(path, data, mode); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
