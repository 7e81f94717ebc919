package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultSocketPath, cfg.Endpoint)
	assert.Equal(t, DefaultScrollbackLimit, cfg.ScrollbackLimit)
	shell, args, env := cfg.ShellFor("default")
	assert.Equal(t, "/bin/bash", shell)
	assert.Equal(t, []string{"-l"}, args)
	assert.Contains(t, env, "TERM=xterm-256color")
}

func TestLoadMissingFilesFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "")
	require.NoError(t, err)
	assert.Equal(t, DefaultSocketPath, cfg.Endpoint)
}

func TestPersonalFileOverlaysPartialFields(t *testing.T) {
	dir := t.TempDir()
	systemPath := filepath.Join(dir, "system.yaml")
	personalPath := filepath.Join(dir, "personal.yaml")

	require.NoError(t, os.WriteFile(systemPath, []byte(`
endpoint: /tmp/system.sock
scrollback_limit: 2048
`), 0o644))
	require.NoError(t, os.WriteFile(personalPath, []byte(`
scrollback_limit: 512
sessions:
  build:
    shell: /bin/zsh
`), 0o644))

	cfg, err := Load(systemPath, personalPath)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/system.sock", cfg.Endpoint)
	assert.Equal(t, 512, cfg.ScrollbackLimit)

	shell, _, _ := cfg.ShellFor("build")
	assert.Equal(t, "/bin/zsh", shell)

	assert.Equal(t, 512, cfg.ScrollbackLimitFor("default"))
}

func TestSessionOverrideFallsBackToDaemonDefaultsForMissingFields(t *testing.T) {
	cfg := Default()
	cfg.Sessions["partial"] = SessionOverride{Shell: "/bin/dash"}

	shell, args, env := cfg.ShellFor("partial")
	assert.Equal(t, "/bin/dash", shell)
	assert.Equal(t, cfg.Args, args)
	assert.Equal(t, cfg.Env, env)
}
