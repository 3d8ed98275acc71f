package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadYAML_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "yard.yaml")
	require.NoError(t, os.WriteFile(path, []byte("slot_count: 30\nmax_slot_height: 8\n"), 0o644))

	c, err := LoadYAML(path)
	require.NoError(t, err)
	assert.Equal(t, 30, c.SlotCount)
	assert.Equal(t, 8, c.MaxSlotHeight)
	assert.Equal(t, 5, c.AwaitResponsesTimeout) // default preserved
}

func TestLoadYAML_MissingFile(t *testing.T) {
	_, err := LoadYAML(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadYAML_InvalidConfigRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "yard.yaml")
	require.NoError(t, os.WriteFile(path, []byte("slot_count: 0\n"), 0o644))

	_, err := LoadYAML(path)
	assert.Error(t, err)
}
