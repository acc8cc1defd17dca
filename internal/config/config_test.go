package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pantry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))

	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "pantry.db", cfg.Storage.SQLitePath)
	assert.Equal(t, 2.0, cfg.Search.Title)
}

func TestLoad_OverlaysFileOntoDefaults(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
storage:
  backend: memory
  bridge_timeout: 5s
search:
  title: 3.5
`)

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 5*time.Second, cfg.Storage.BridgeTimeout.Std())
	assert.Equal(t, 3.5, cfg.Search.Title)

	// Unspecified keys keep their defaults.
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "pantry.db", cfg.Storage.SQLitePath)
	assert.Equal(t, 1.0, cfg.Search.Description)
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "log: [not a mapping")

	_, err := Load(path)

	require.Error(t, err)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"bad level", "log:\n  level: loud"},
		{"bad format", "log:\n  format: xml"},
		{"bad backend", "storage:\n  backend: cloud"},
		{"negative weight", "search:\n  title: -1"},
		{"negative threshold", "validation:\n  warn_total_time_minutes: -5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			assert.Error(t, err)
		})
	}
}

func TestValidate_DefaultsAreValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}
