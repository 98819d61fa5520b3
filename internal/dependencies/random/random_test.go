package random

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntnStaysInRange(t *testing.T) {
	r := New()
	for i := 0; i < 200; i++ {
		v := r.Intn(3)
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 3)
	}
	assert.Equal(t, 0, r.Intn(0))
}

func TestPermIsPermutation(t *testing.T) {
	r := New()
	perm := r.Perm(8)
	require.Len(t, perm, 8)

	sorted := append([]int(nil), perm...)
	sort.Ints(sorted)
	for i, v := range sorted {
		assert.Equal(t, i, v)
	}
	assert.Nil(t, r.Perm(0))
}

func TestStringUsesAlphabet(t *testing.T) {
	r := New()
	s := r.String(12, "AB")
	assert.Len(t, s, 12)
	assert.Empty(t, strings.Trim(s, "AB"))
	assert.Empty(t, r.String(0, "AB"))
}
