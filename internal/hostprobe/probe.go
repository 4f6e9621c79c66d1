// Package hostprobe implements component C1: a single, read-only
// inspection of the host's architecture, available VMMs, compilers,
// hypervisor support and privileged-binary allowlist, producing a
// matrix.HostCapabilitySet.
//
// Grounded in the teacher's systemd.go init(), which probes dbus,
// machine1 and import1 connections independently and logs-and-continues
// on any single failure rather than aborting the driver.
package hostprobe

import (
	"os"
	"os/exec"
	"runtime"

	"github.com/hashicorp/go-hclog"
	multierror "github.com/hashicorp/go-multierror"

	"github.com/unikernel-ci/matrixctl/internal/config"
	"github.com/unikernel-ci/matrixctl/internal/matrix"
)

// Prober performs the one-shot host inspection described in spec.md §4.1.
type Prober struct {
	logger hclog.Logger
}

// New returns a Prober that logs absorbed per-tool failures at debug
// level under the given logger.
func New(logger hclog.Logger) *Prober {
	return &Prober{logger: logger.Named("hostprobe")}
}

// canonicalExecutableName returns the PATH executable name used to
// discover a VMM or compiler of the given type on the given
// architecture when its config entry is the literal "system".
func canonicalExecutableName(kind, typ, arch string) string {
	switch kind {
	case "vmm":
		switch typ {
		case "qemu":
			return "qemu-system-" + arch
		case "firecracker":
			return "firecracker"
		case "xen":
			return "xl"
		default:
			return typ
		}
	case "compiler":
		switch typ {
		case "gcc":
			if arch != "" && arch != runtime.GOARCH {
				return arch + "-linux-gnu-gcc"
			}
			return "gcc"
		case "clang":
			return "clang"
		default:
			return typ
		}
	default:
		return typ
	}
}

// Probe runs the full inspection and returns the resulting capability
// set. Only a failure to determine the host architecture is fatal (a
// *ProbeError with Fatal set); every other per-tool absence is absorbed
// into the returned set and logged, never surfaced as an error — a host
// missing a configured VMM or compiler is the ordinary case that
// host-pruning exists to handle.
func (p *Prober) Probe(cfg config.ToolsConfig) (matrix.HostCapabilitySet, error) {
	host := matrix.HostCapabilitySet{
		Architecture:    runtime.GOARCH,
		VMMs:            map[string]string{},
		Compilers:       map[string]string{},
		PrivilegedTools: map[string]string{},
	}
	if host.Architecture == "" {
		return matrix.HostCapabilitySet{}, &ProbeError{Fatal: true, Message: "could not determine host architecture"}
	}

	var diag *multierror.Error

	for name, spec := range cfg.VMMs {
		path, err := p.resolveTool("vmm", name, spec, host.Architecture)
		if err != nil {
			diag = multierror.Append(diag, err)
			p.logger.Debug("vmm not available", "name", name, "error", err)
			continue
		}
		host.VMMs[name] = path
	}

	for key, spec := range cfg.Compilers {
		path, err := p.resolveTool("compiler", key, spec, host.Architecture)
		if err != nil {
			diag = multierror.Append(diag, err)
			p.logger.Debug("compiler not available", "key", key, "error", err)
			continue
		}
		arch := spec.Arch
		if arch == "" {
			arch = host.Architecture
		}
		host.Compilers[arch+"/"+key] = path
	}

	host.HypervisorKVM = fileExists("/dev/kvm")
	host.HypervisorXen = fileExists("/proc/xen/privcmd") || fileExists("/dev/xen")

	for _, bin := range cfg.PrivilegedAllowlist {
		path, err := exec.LookPath(bin)
		if err != nil {
			diag = multierror.Append(diag, err)
			p.logger.Debug("allowlisted binary missing", "binary", bin, "error", err)
			continue
		}
		host.PrivilegedTools[bin] = path
	}

	p.logger.Info("host probe complete",
		"architecture", host.Architecture,
		"vmms", len(host.VMMs),
		"compilers", len(host.Compilers),
		"kvm", host.HypervisorKVM,
		"xen", host.HypervisorXen,
	)

	if diag != nil {
		p.logger.Debug("per-tool absences absorbed into capability set", "error", diag.ErrorOrNil())
	}
	return host, nil
}

func (p *Prober) resolveTool(kind, name string, spec config.ToolSpec, hostArch string) (string, error) {
	if spec.Path != "" {
		if !fileExists(spec.Path) {
			return "", &ProbeError{Message: "configured path does not exist: " + spec.Path}
		}
		return spec.Path, nil
	}
	arch := spec.Arch
	if arch == "" {
		arch = hostArch
	}
	typ := spec.Type
	if typ == "" {
		typ = name
	}
	exeName := canonicalExecutableName(kind, typ, arch)
	path, err := exec.LookPath(exeName)
	if err != nil {
		return "", &ProbeError{Message: "not found on PATH: " + exeName}
	}
	return path, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
