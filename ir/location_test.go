package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLocationOverlapsAndContains(t *testing.T) {
	eax := NewMemoryLocation(1, 0, 32)
	al := NewMemoryLocation(1, 0, 8)
	ah := NewMemoryLocation(1, 8, 8)
	ecx := NewMemoryLocation(2, 0, 32)

	assert.True(t, eax.Overlaps(al), "eax should overlap al")
	assert.True(t, eax.Contains(al), "eax should contain al")
	assert.False(t, al.Overlaps(ah), "al and ah should not overlap, they are disjoint bit ranges")
	assert.False(t, eax.Overlaps(ecx), "locations in different domains must never overlap")
	assert.False(t, eax.Contains(ecx), "locations in different domains must never contain one another")
}

func TestMemoryLocationEquals(t *testing.T) {
	a := NewMemoryLocation(1, 0, 32)
	b := NewMemoryLocation(1, 0, 32)
	c := NewMemoryLocation(1, 0, 16)
	assert.True(t, a.Equals(b), "identical locations should compare equal")
	assert.False(t, a.Equals(c), "locations of different sizes should not compare equal")
}

func TestNewMemoryLocationPanicsOnNonPositiveSize(t *testing.T) {
	assert.Panics(t, func() { NewMemoryLocation(1, 0, 0) }, "expected a panic for a non-positive size")
}

func TestMergeSameDomain(t *testing.T) {
	al := NewMemoryLocation(1, 0, 8)
	ah := NewMemoryLocation(1, 8, 8)
	merged, err := Merge(al, ah)
	require.NoError(t, err)
	want := NewMemoryLocation(1, 0, 16)
	assert.True(t, merged.Equals(want), "merged = %v, want %v", merged, want)
}

func TestMergeCrossDomainIsRejected(t *testing.T) {
	a := NewMemoryLocation(1, 0, 32)
	b := NewMemoryLocation(2, 0, 32)
	_, err := Merge(a, b)
	require.Error(t, err)
	assert.IsType(t, &ErrCrossDomainMerge{}, err)
}
