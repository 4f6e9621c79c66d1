package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/unikernel-ci/matrixctl/internal/matrix"
)

// TestCaseParamsForUsesRootfsAxisLevel covers the regression where two
// cases differing only in their rootfs run-axis level materialized
// identical run scripts because the app-level default was used
// unconditionally instead of the case's own assignment.
func TestCaseParamsForUsesRootfsAxisLevel(t *testing.T) {
	app := matrix.ApplicationSpec{RootfsKind: matrix.RootfsNone}
	caps := matrix.HostCapabilitySet{}

	withAxis := matrix.TargetCase{
		Index:      1,
		ID:         "case-1",
		Assignment: matrix.Assignment{"rootfs": "9p"},
	}
	params := caseParamsFor(withAxis, "session", app, caps)
	assert.Equal(t, matrix.RootfsKind("9p"), params.Rootfs)

	withoutAxis := matrix.TargetCase{
		Index:      2,
		ID:         "case-2",
		Assignment: matrix.Assignment{},
	}
	params = caseParamsFor(withoutAxis, "session", app, caps)
	assert.Equal(t, matrix.RootfsNone, params.Rootfs)
}
