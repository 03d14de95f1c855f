package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.hcl"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "localhost:8080", cfg.ListenAddr())
}

func TestLoad_PartialFileFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`
server {
  port      = 9000
  log_level = "debug"
}

poker {
  small_blind = 25
  big_blind   = 50
}

lobby {
  grace_seconds = 30
}
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", cfg.ListenAddr())
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, 25, cfg.Poker.SmallBlind)
	assert.Equal(t, 50, cfg.Poker.BigBlind)
	assert.Equal(t, 1000, cfg.Poker.StartingStack)
	assert.Equal(t, 30, cfg.Lobby.GraceSeconds)
	assert.Equal(t, 8, cfg.Lobby.MaxPlayers)
}

func TestLoad_BadFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.hcl")
	require.NoError(t, os.WriteFile(path, []byte("server {"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
