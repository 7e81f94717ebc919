// Package config loads ptymasterd.yaml, the daemon's configuration file.
//
// Layering mirrors the teacher's project-registration overlay: a machine-wide
// file is loaded first, then a personal file (if present) overlays it field
// by field, so a partial personal file (e.g. only scrollback_limit) merges
// with rather than replaces the machine-wide defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultSocketPath is used when no configuration file sets endpoint.
const DefaultSocketPath = "/tmp/ptymaster.sock"

// DefaultSessionID is used when a connect frame omits session_id.
const DefaultSessionID = "default"

// DefaultScrollbackLimit matches internal/screen.ScrollbackLimit; kept as a
// separate constant here so internal/config does not need to import
// internal/screen just to read one number.
const DefaultScrollbackLimit = 1024

var defaultShell = []string{"/bin/bash", "-l"}

var defaultEnv = []string{
	"TERM=xterm-256color",
	`PS1=\u@host:\w\$ `,
}

// SessionOverride holds per-session-id overrides of the daemon defaults.
type SessionOverride struct {
	Shell           string   `yaml:"shell"`
	Args            []string `yaml:"args"`
	Env             []string `yaml:"env"`
	ScrollbackLimit int      `yaml:"scrollback_limit"`
}

// Config is the parsed contents of ptymasterd.yaml.
type Config struct {
	Endpoint        string                     `yaml:"endpoint"`
	Shell           string                     `yaml:"shell"`
	Args            []string                   `yaml:"args"`
	Env             []string                   `yaml:"env"`
	ScrollbackLimit int                        `yaml:"scrollback_limit"`
	Sessions        map[string]SessionOverride `yaml:"sessions"`
}

// Default returns the built-in configuration used when no file is present.
func Default() *Config {
	return &Config{
		Endpoint:        DefaultSocketPath,
		Shell:           defaultShell[0],
		Args:            append([]string(nil), defaultShell[1:]...),
		Env:             append([]string(nil), defaultEnv...),
		ScrollbackLimit: DefaultScrollbackLimit,
		Sessions:        map[string]SessionOverride{},
	}
}

// Load reads the machine-wide file at systemPath and, if personalPath is
// non-empty and exists, overlays it on top. Either path may be missing;
// a missing file is not an error and leaves the running config at its
// current values.
func Load(systemPath, personalPath string) (*Config, error) {
	cfg := Default()

	if err := cfg.overlayFile(systemPath); err != nil {
		return nil, err
	}
	if personalPath != "" {
		if err := cfg.overlayFile(personalPath); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if overlay.Endpoint != "" {
		c.Endpoint = overlay.Endpoint
	}
	if overlay.Shell != "" {
		c.Shell = overlay.Shell
	}
	if len(overlay.Args) > 0 {
		c.Args = overlay.Args
	}
	if len(overlay.Env) > 0 {
		c.Env = overlay.Env
	}
	if overlay.ScrollbackLimit > 0 {
		c.ScrollbackLimit = overlay.ScrollbackLimit
	}
	for id, ov := range overlay.Sessions {
		if c.Sessions == nil {
			c.Sessions = map[string]SessionOverride{}
		}
		c.Sessions[id] = ov
	}
	return nil
}

// ShellFor resolves the shell command, arguments, and environment to use for
// session id, applying any per-session override on top of the daemon
// defaults.
func (c *Config) ShellFor(id string) (shell string, args []string, env []string) {
	shell, args, env = c.Shell, c.Args, c.Env

	ov, ok := c.Sessions[id]
	if !ok {
		return shell, args, env
	}
	if ov.Shell != "" {
		shell = ov.Shell
	}
	if len(ov.Args) > 0 {
		args = ov.Args
	}
	if len(ov.Env) > 0 {
		env = ov.Env
	}
	return shell, args, env
}

// ScrollbackLimitFor resolves the scrollback cap for session id.
func (c *Config) ScrollbackLimitFor(id string) int {
	if ov, ok := c.Sessions[id]; ok && ov.ScrollbackLimit > 0 {
		return ov.ScrollbackLimit
	}
	return c.ScrollbackLimit
}
