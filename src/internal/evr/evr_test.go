package evr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompareSemverBacked(t *testing.T) {
	require.Equal(t, -1, Compare("1.0.0-1", "1.2.0-1"))
	require.Equal(t, 1, Compare("2.0.0-1", "1.9.9-9"))
	require.Equal(t, 0, Compare("1.0.0-1", "1.0.0-1"))
}

func TestCompareEpochDominates(t *testing.T) {
	require.Equal(t, 1, Compare("1:1.0-1", "0:9.9-9"))
	require.Equal(t, -1, Compare("0:9.9-9", "1:1.0-1"))
}

func TestCompareRpmStyleFallback(t *testing.T) {
	require.Equal(t, -1, Compare("1.0a", "1.0b"))
	require.Equal(t, 1, Compare("1.0", "1.0~rc1"))
	require.Equal(t, 0, Compare("1.0~rc1", "1.0~rc1"))
}

func TestSplitNameEVR(t *testing.T) {
	name, ver, ok := SplitNameEVR("foo-1.0-1")
	require.True(t, ok)
	require.Equal(t, "foo-1.0", name)
	require.Equal(t, "1", ver)
}

func TestSplitNameVerRel(t *testing.T) {
	name, evrStr, ok := SplitNameVerRel("foo-1.0-1")
	require.True(t, ok)
	require.Equal(t, "foo", name)
	require.Equal(t, "1.0-1", evrStr)
}
