package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// ParseError is the ConfigParse error kind named in spec.md §7: it
// carries the offending file. yaml.v3 embeds line information in Err's
// message for mapping/type errors, so it is not duplicated here.
type ParseError struct {
	File string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

type rawToolsSection struct {
	VMM                 map[string]yaml.Node `yaml:"vmm"`
	Compiler            map[string]yaml.Node `yaml:"compiler"`
	PrivilegedAllowlist []string             `yaml:"privileged_allowlist"`
}

type rawGlobalDoc struct {
	Variants struct {
		Build yaml.Node `yaml:"build"`
		Run   yaml.Node `yaml:"run"`
	} `yaml:"variants"`
	ExcludeVariants []RawRule       `yaml:"exclude_variants"`
	Tools           rawToolsSection `yaml:"tools"`
	Source          struct {
		Base string `yaml:"base"`
	} `yaml:"source"`
}

// LoadGlobal reads and decodes the global matrix configuration file.
func LoadGlobal(path string) (*GlobalConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{File: path, Err: err}
	}

	var raw rawGlobalDoc
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ParseError{File: path, Err: err}
	}

	buildAxes, err := decodeOrderedAxes(&raw.Variants.Build)
	if err != nil {
		return nil, &ParseError{File: path, Err: fmt.Errorf("variants.build: %w", err)}
	}
	runAxes, err := decodeOrderedAxes(&raw.Variants.Run)
	if err != nil {
		return nil, &ParseError{File: path, Err: fmt.Errorf("variants.run: %w", err)}
	}

	vmms, err := decodeToolSpecs(raw.Tools.VMM)
	if err != nil {
		return nil, &ParseError{File: path, Err: fmt.Errorf("tools.vmm: %w", err)}
	}
	compilers, err := decodeToolSpecs(raw.Tools.Compiler)
	if err != nil {
		return nil, &ParseError{File: path, Err: fmt.Errorf("tools.compiler: %w", err)}
	}

	return &GlobalConfig{
		Variants: struct {
			Build []AxisDecl
			Run   []AxisDecl
		}{Build: buildAxes, Run: runAxes},
		ExcludeVariants: raw.ExcludeVariants,
		Tools: ToolsConfig{
			VMMs:                vmms,
			Compilers:           compilers,
			PrivilegedAllowlist: raw.Tools.PrivilegedAllowlist,
		},
		SourceBase: raw.Source.Base,
	}, nil
}

// decodeOrderedAxes walks a YAML mapping node directly (rather than
// decoding into a Go map) to preserve declaration order, which
// spec.md §4.2 step 1 requires for index assignment.
func decodeOrderedAxes(node *yaml.Node) ([]AxisDecl, error) {
	if node == nil || node.Kind == 0 {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected a mapping of axis name to levels, got %v", node.Kind)
	}
	axes := make([]AxisDecl, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		nameNode, levelsNode := node.Content[i], node.Content[i+1]
		var levels []string
		if err := levelsNode.Decode(&levels); err != nil {
			return nil, fmt.Errorf("axis %q: %w", nameNode.Value, err)
		}
		axes = append(axes, AxisDecl{Name: nameNode.Value, Levels: levels})
	}
	return axes, nil
}

func decodeToolSpecs(raw map[string]yaml.Node) (map[string]ToolSpec, error) {
	out := make(map[string]ToolSpec, len(raw))
	for name, node := range raw {
		node := node
		if node.Kind == yaml.ScalarNode && node.Value == "system" {
			out[name] = ToolSpec{System: true}
			continue
		}
		var m map[string]interface{}
		if err := node.Decode(&m); err != nil {
			return nil, fmt.Errorf("%q: %w", name, err)
		}
		var spec ToolSpec
		if err := mapstructure.Decode(m, &spec); err != nil {
			return nil, fmt.Errorf("%q: %w", name, err)
		}
		out[name] = spec
	}
	return out, nil
}

// LoadAppManifest reads and decodes the application manifest. If a
// sibling `test.sh` (or any single `.sh` file) exists next to the
// manifest, its path is recorded as OverrideScriptPath per spec.md §6.
func LoadAppManifest(path string) (*AppManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{File: path, Err: err}
	}
	var m AppManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &ParseError{File: path, Err: err}
	}
	dir := filepath.Dir(path)
	if _, err := os.Stat(filepath.Join(dir, "test.sh")); err == nil {
		m.OverrideScriptPath = filepath.Join(dir, "test.sh")
	} else if scripts, _ := filepath.Glob(filepath.Join(dir, "*.sh")); len(scripts) == 1 {
		m.OverrideScriptPath = scripts[0]
	}
	return &m, nil
}
