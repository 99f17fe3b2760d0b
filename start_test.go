package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateNodeUUID(t *testing.T) {
	record := filepath.Join(t.TempDir(), "data", "sys.uuid")

	first, err := loadOrCreateNodeUUID(record)
	require.NoError(t, err)
	_, err = uuid.Parse(first)
	assert.NoError(t, err)

	second, err := loadOrCreateNodeUUID(record)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.NoError(t, os.WriteFile(record, []byte("not-a-uuid"), 0644))
	_, err = loadOrCreateNodeUUID(record)
	assert.Error(t, err)
}

func TestLoadEdgeConfigExplicitMissing(t *testing.T) {
	_, err := loadEdgeConfig(filepath.Join(t.TempDir(), "edge.yaml"))
	assert.Error(t, err)
}
