package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/unikernel-ci/matrixctl/internal/config"
	"github.com/unikernel-ci/matrixctl/internal/hostprobe"
)

// newDoctorCmd runs only the Host Probe and prints the resulting
// capability set as YAML — useful for diagnosing why "prune by host"
// dropped cases, without running the full matrix/layout/execute
// pipeline.
func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Probe host capabilities and print them as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd)
		},
	}
	return cmd
}

type capabilityReport struct {
	Architecture    string            `yaml:"architecture"`
	VMMs            map[string]string `yaml:"vmms"`
	Compilers       map[string]string `yaml:"compilers"`
	HypervisorKVM   bool              `yaml:"hypervisor_kvm"`
	HypervisorXen   bool              `yaml:"hypervisor_xen"`
	PrivilegedTools map[string]string `yaml:"privileged_tools"`
}

func runDoctor(cmd *cobra.Command) error {
	flags := cmd.Flags()
	configPath, _ := flags.GetString("config")
	verbose, _ := flags.GetBool("verbose")

	logger := newLogger(verbose)

	global, err := config.LoadGlobal(configPath)
	if err != nil {
		pendingExitCode = exitConfigOrMatrix
		return fmt.Errorf("load global config: %w", err)
	}

	prober := hostprobe.New(logger)
	caps, err := prober.Probe(global.Tools)
	if err != nil {
		pendingExitCode = exitHostShortfall
		return fmt.Errorf("probe host: %w", err)
	}

	report := capabilityReport{
		Architecture:    caps.Architecture,
		VMMs:            caps.VMMs,
		Compilers:       caps.Compilers,
		HypervisorKVM:   caps.HypervisorKVM,
		HypervisorXen:   caps.HypervisorXen,
		PrivilegedTools: caps.PrivilegedTools,
	}

	out, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal capability report: %w", err)
	}

	fmt.Fprint(cmd.OutOrStdout(), string(out))
	pendingExitCode = exitOK
	return nil
}
