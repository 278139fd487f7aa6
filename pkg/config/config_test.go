package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sanonone/gmc/pkg/gmc"
	"github.com/sanonone/gmc/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gmc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, 15, cfg.Clustering.Neighbors)
	assert.Equal(t, gmc.LocalCandidates, cfg.Clustering.Candidates)
	assert.Equal(t, persistence.Float64, cfg.Precision())
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeFile(t, `
clustering:
  clusters: 3
  neighbors: 9
  candidates: global
  normalize: true
server:
  auth_token: secret
output:
  precision: float16
logging:
  level: debug
  format: json
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Clustering.Clusters)
	assert.Equal(t, 9, cfg.Clustering.Neighbors)
	assert.Equal(t, gmc.GlobalCandidates, cfg.Clustering.Candidates)
	assert.True(t, cfg.Clustering.Normalize)
	// Untouched keys keep their defaults.
	assert.Equal(t, 20, cfg.Clustering.MaxIterations)
	assert.Equal(t, ":9093", cfg.Server.Address)
	assert.Equal(t, "secret", cfg.Server.AuthToken)
	assert.Equal(t, persistence.Float16, cfg.Precision())
}

func TestLoadConfigStrict(t *testing.T) {
	_, err := LoadConfig(writeFile(t, "clustering:\n  clustres: 3\n"))
	assert.Error(t, err)

	_, err = LoadConfig(writeFile(t, "output:\n  precision: float32\n"))
	assert.ErrorIs(t, err, gmc.ErrInvalidConfig)

	_, err = LoadConfig(writeFile(t, "logging:\n  level: loud\n"))
	assert.ErrorIs(t, err, gmc.ErrInvalidConfig)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigEmptyFile(t *testing.T) {
	cfg, err := LoadConfig(writeFile(t, ""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := LoggingConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	log.Info("hidden")
	log.Warn("shown", "k", 1)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.True(t, strings.HasPrefix(out, "{"))
	assert.Contains(t, out, `"k":1`)
}
