package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/unikernel-ci/matrixctl/internal/config"
	"github.com/unikernel-ci/matrixctl/internal/executor"
	"github.com/unikernel-ci/matrixctl/internal/hostprobe"
	"github.com/unikernel-ci/matrixctl/internal/matrix"
	"github.com/unikernel-ci/matrixctl/internal/orchestrator"
	"github.com/unikernel-ci/matrixctl/internal/scripts"
	"github.com/unikernel-ci/matrixctl/internal/workspace"
)

// Exit codes per spec.md §6.
const (
	exitOK             = 0
	exitUsage          = 1
	exitConfigOrMatrix = 2
	exitCaseFailures   = 3
	exitHostShortfall  = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		if pendingExitCode != exitOK {
			return pendingExitCode
		}
		return exitCodeForError(err)
	}
	return pendingExitCode
}

// pendingExitCode is set by runMatrix/runDoctor before returning, since
// cobra's RunE only reports success/failure, not the richer exit-code
// taxonomy spec.md §6 requires.
var pendingExitCode = exitOK

func exitCodeForError(err error) int {
	var usageErr *usageError
	if errors.As(err, &usageErr) {
		return exitUsage
	}
	return exitConfigOrMatrix
}

// usageError marks a cobra/flag-level problem as distinct from a
// configuration or matrix error, per spec.md §7's Usage error kind.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// exactArgs is cobra.ExactArgs with its error marked as a usageError.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "matrixctl <app-dir>",
		Short: "Generate and execute a unikernel build/run test matrix",
		Long: `matrixctl expands a declarative variant matrix, prunes it against host
capabilities and an application's declared targets, materializes one
build/run/verify case per surviving combination, and executes them under
a bounded worker pool.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatrix(cmd, args[0])
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	pf := root.PersistentFlags()
	pf.String("config", "matrix.yaml", "path to the global matrix configuration file")
	pf.StringP("session-name", "n", "session", "session label")
	pf.StringP("targets", "t", "", "selection filter over case indices (see selection grammar)")
	pf.BoolP("verbose", "v", false, "raise log verbosity to debug")
	pf.Bool("generate-only", false, "materialize cases without executing them")
	pf.String("tests-dir", "", "override the session workspace root (default: ./<session-name>)")
	pf.String("app-dir-name", workspace.AppDirName, "name of the staged application directory within the session root")

	root.AddCommand(newRunCmd(), newDoctorCmd())
	return root
}

func newLogger(verbose bool) hclog.Logger {
	level := hclog.Info
	if verbose {
		level = hclog.Debug
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:  "matrixctl",
		Level: level,
	})
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <app-dir>",
		Short: "Generate and (unless --generate-only) execute the test matrix",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatrix(cmd, args[0])
		},
	}
	return cmd
}

func runMatrix(cmd *cobra.Command, appDir string) error {
	flags := cmd.Flags()
	configPath, _ := flags.GetString("config")
	sessionName, _ := flags.GetString("session-name")
	targets, _ := flags.GetString("targets")
	verbose, _ := flags.GetBool("verbose")
	generateOnly, _ := flags.GetBool("generate-only")
	testsDir, _ := flags.GetString("tests-dir")
	appDirName, _ := flags.GetString("app-dir-name")

	logger := newLogger(verbose)

	global, err := config.LoadGlobal(configPath)
	if err != nil {
		pendingExitCode = exitConfigOrMatrix
		return fmt.Errorf("load global config: %w", err)
	}

	manifestPath := appDir + "/matrixctl.yaml"
	manifest, err := config.LoadAppManifest(manifestPath)
	if err != nil {
		pendingExitCode = exitConfigOrMatrix
		return fmt.Errorf("load application manifest: %w", err)
	}

	rules, err := config.CompileRules(global.ExcludeVariants)
	if err != nil {
		pendingExitCode = exitConfigOrMatrix
		return fmt.Errorf("compile exclusion rules: %w", err)
	}

	engine, err := matrix.New(global.Axes(), rules)
	if err != nil {
		pendingExitCode = exitConfigOrMatrix
		return fmt.Errorf("build matrix engine: %w", err)
	}

	prober := hostprobe.New(logger)
	caps, err := prober.Probe(global.Tools)
	if err != nil {
		pendingExitCode = exitHostShortfall
		return fmt.Errorf("probe host: %w", err)
	}

	appSpec := manifest.ApplicationSpec()
	assignments, diag, err := engine.Build(caps, appSpec)
	if err != nil {
		pendingExitCode = exitHostShortfall
		return fmt.Errorf("expand matrix: %w (%s)", err, diag)
	}
	cases := engine.Index(assignments)
	if len(cases) == 0 {
		pendingExitCode = exitHostShortfall
		return fmt.Errorf("no surviving cases: %s", diag)
	}

	if testsDir == "" {
		testsDir = sessionName
	}

	layout, err := workspace.CreateNamed(logger, testsDir, appDir, appDirName, cases)
	if err != nil {
		pendingExitCode = exitConfigOrMatrix
		return fmt.Errorf("lay out workspace: %w", err)
	}

	materializer := scripts.New()
	networked := make(map[int]bool, len(cases))
	portsNeeded := make(map[int]int, len(cases))
	for _, c := range cases {
		params := caseParamsFor(c, sessionName, appSpec, caps)
		if err := materializer.Render(layout.CaseDir(c.Index), params); err != nil {
			pendingExitCode = exitConfigOrMatrix
			return fmt.Errorf("materialize case %d: %w", c.Index, err)
		}
		networked[c.Index] = params.Networking != "" && params.Networking != "none"
		portsNeeded[c.Index] = len(params.Ports)
	}
	if err := scripts.WriteCommonHelpers(layout.Root); err != nil {
		pendingExitCode = exitConfigOrMatrix
		return fmt.Errorf("write common helpers: %w", err)
	}

	if generateOnly {
		logger.Info("generate-only requested, skipping execution", "cases", len(cases))
		pendingExitCode = exitOK
		return nil
	}

	selection, err := orchestrator.ParseSelection(targets, len(cases))
	if err != nil {
		pendingExitCode = exitUsage
		return &usageError{err: fmt.Errorf("parse selection filter: %w", err)}
	}

	cfg := orchestrator.Config{
		SessionName:   sessionName,
		Root:          layout.Root,
		Timeouts:      executor.NewTimeouts(0, 0, 0),
		SuccessMarker: appSpec.SuccessMarker,
	}
	orch := orchestrator.New(logger, cfg, cases, layout.CaseDirs, networked, portsNeeded)

	summary, err := orch.Dispatch(cmd.Context(), selection)
	if err != nil {
		pendingExitCode = exitConfigOrMatrix
		return fmt.Errorf("dispatch session: %w", err)
	}

	pendingExitCode = summary.ExitCode()
	return nil
}
