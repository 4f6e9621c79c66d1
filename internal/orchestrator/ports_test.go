package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortAllocatorNeverDoubleAssigns(t *testing.T) {
	alloc := NewPortAllocator(30000, 30001)

	a, err := alloc.Acquire(2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{30000, 30001}, a)

	_, err = alloc.Acquire(1)
	require.Error(t, err)

	alloc.Release(a)
	b, err := alloc.Acquire(1)
	require.NoError(t, err)
	assert.Len(t, b, 1)
}

func TestPortAllocatorExhaustion(t *testing.T) {
	alloc := NewPortAllocator(40000, 40000)
	_, err := alloc.Acquire(2)
	require.Error(t, err)
}
