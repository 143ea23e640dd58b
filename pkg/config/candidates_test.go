//go:build !integration

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCandidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candidates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
default:
  bidderTimeout: [1000, 1500, 2000]
d385ba19:
  bidderTimeout: [600, 800]
  priceGranularity: [low, dense]
`), 0o644))

	c, err := LoadCandidates(path)
	require.NoError(t, err)

	m, ok := c.For("d385ba19")
	require.True(t, ok)
	assert.Equal(t, []any{600, 800}, m["bidderTimeout"])
	assert.Equal(t, []any{"low", "dense"}, m["priceGranularity"])

	m, ok = c.For("unknown")
	require.True(t, ok)
	assert.Equal(t, []any{1000, 1500, 2000}, m["bidderTimeout"])
}

func TestLoadCandidates_Fallback(t *testing.T) {
	c, err := LoadCandidates("")
	require.NoError(t, err)
	assert.Equal(t, DefaultCandidates(), c)

	c, err = LoadCandidates(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultCandidates(), c)
}

func TestLoadCandidates_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default: [oops"), 0o644))

	_, err := LoadCandidates(path)
	assert.Error(t, err)
}

func TestCandidates_NoDefault(t *testing.T) {
	c := Candidates{"a": {"bidderTimeout": {1}}}

	_, ok := c.For("b")
	assert.False(t, ok)
}
