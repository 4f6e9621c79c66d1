// Package workspace implements component C3: it creates the session
// root directory, one numbered subdirectory per Target Case, and a
// single staged copy of the application source tree, with all-or-
// nothing cleanup on failure.
//
// Grounded in the teacher's CreateMachine (systemd.go), which scopes a
// single file handle with a deferred Close and cleans up on the error
// path; this package generalizes that discipline from one file to a
// directory tree.
package workspace

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"

	"github.com/unikernel-ci/matrixctl/internal/matrix"
)

// AppDirName is the well-known staging location for the single shared
// copy of the application source tree, per spec.md §4.3 and §6.
const AppDirName = "app"

// Layout describes an already-created session workspace.
type Layout struct {
	Root     string
	AppDir   string
	CaseDirs map[int]string
}

// CaseDir returns the directory created for the given case index.
func (l *Layout) CaseDir(index int) string {
	return l.CaseDirs[index]
}

// Create lays out <sessionRoot>/ with one numbered subdirectory per
// case and a single staged copy of appSourceDir at <sessionRoot>/app.
// If any step fails, everything created so far is removed before the
// error is returned (spec.md §4.3's "resource acquisition is scoped").
func Create(logger hclog.Logger, sessionRoot, appSourceDir string, cases []matrix.TargetCase) (*Layout, error) {
	return CreateNamed(logger, sessionRoot, appSourceDir, AppDirName, cases)
}

// CreateNamed is Create with the staged application directory's name
// overridden, per the `--app-dir-name` CLI flag named in spec.md §6.
func CreateNamed(logger hclog.Logger, sessionRoot, appSourceDir, appDirName string, cases []matrix.TargetCase) (*Layout, error) {
	logger = logger.Named("workspace")

	if appDirName == "" {
		appDirName = AppDirName
	}

	if err := os.MkdirAll(sessionRoot, 0o755); err != nil {
		return nil, &Error{Op: "create session root", Err: err}
	}

	layout := &Layout{
		Root:     sessionRoot,
		AppDir:   filepath.Join(sessionRoot, appDirName),
		CaseDirs: make(map[int]string, len(cases)),
	}

	cleanup := func() {
		logger.Warn("layout failed, removing partially created session root", "root", sessionRoot)
		_ = os.RemoveAll(sessionRoot)
	}

	if err := copyTree(appSourceDir, layout.AppDir); err != nil {
		cleanup()
		return nil, &Error{Op: "stage application tree", Err: err}
	}

	for _, c := range cases {
		dir := filepath.Join(sessionRoot, fmt.Sprintf("%d", c.Index))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			cleanup()
			return nil, &Error{Op: fmt.Sprintf("create case directory %d", c.Index), Err: err}
		}
		layout.CaseDirs[c.Index] = dir
	}

	logger.Info("workspace ready", "root", sessionRoot, "cases", len(cases))
	return layout, nil
}

// Error is the LayoutError kind named in spec.md §7: filesystem failures
// during workspace setup, fatal for the session.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "layout: " + e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if info.IsDir() {
			return os.MkdirAll(target, info.Mode())
		}
		if info.Mode()&os.ModeSymlink != 0 {
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
