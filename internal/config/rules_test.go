package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unikernel-ci/matrixctl/internal/matrix"
)

func TestCompileRulesScalarIsEq(t *testing.T) {
	rules, err := CompileRules([]RawRule{{"bootloader": "uefi"}})
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.Len(t, rules[0].Atoms, 1)
	assert.Equal(t, matrix.OpEq, rules[0].Atoms[0].Op)
	assert.Equal(t, []string{"uefi"}, rules[0].Atoms[0].Values)
}

func TestCompileRulesNotPrefixIsNeq(t *testing.T) {
	rules, err := CompileRules([]RawRule{{"hypervisor": "not kvm"}})
	require.NoError(t, err)
	assert.Equal(t, matrix.OpNeq, rules[0].Atoms[0].Op)
	assert.Equal(t, []string{"kvm"}, rules[0].Atoms[0].Values)
}

func TestCompileRulesListIsIn(t *testing.T) {
	rules, err := CompileRules([]RawRule{{"platform": []interface{}{"xen", "fc"}}})
	require.NoError(t, err)
	assert.Equal(t, matrix.OpIn, rules[0].Atoms[0].Op)
	assert.ElementsMatch(t, []string{"xen", "fc"}, rules[0].Atoms[0].Values)
}

func TestCompileRulesNotListIsNotIn(t *testing.T) {
	rules, err := CompileRules([]RawRule{{"platform": []interface{}{"not", "xen", "fc"}}})
	require.NoError(t, err)
	assert.Equal(t, matrix.OpNotIn, rules[0].Atoms[0].Op)
	assert.ElementsMatch(t, []string{"xen", "fc"}, rules[0].Atoms[0].Values)
}

func TestCompileRulesMultiAtomConjunction(t *testing.T) {
	rules, err := CompileRules([]RawRule{{
		"platform":   "fc",
		"hypervisor": "not kvm",
	}})
	require.NoError(t, err)
	require.Len(t, rules[0].Atoms, 2)
}

func TestCompileRulesRejectsUnsupportedValue(t *testing.T) {
	_, err := CompileRules([]RawRule{{"platform": 42}})
	require.Error(t, err)
}
