// Package config loads the daemon's YAML configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of a running daemon. Zero-value fields are
// filled in by Defaults before a config is used.
type Config struct {
	SocketName            string            `yaml:"socket_name"`
	FrameBudgetMS         int               `yaml:"frame_budget_ms"`
	RingSizeBytes         int               `yaml:"ring_size_bytes"`
	IdleSweepIntervalSec  int               `yaml:"idle_sweep_interval_sec"`
	DeadSessionTTLSec     int               `yaml:"dead_session_ttl_sec"`
	MaxOutboundQueueBytes int               `yaml:"max_outbound_queue_bytes"`
	WorkerJoinTimeoutMS   int               `yaml:"worker_join_timeout_ms"`
	DefaultShellEnv       map[string]string `yaml:"default_shell_env"`
	DefaultShell          string            `yaml:"default_shell"`
}

// Defaults returns a Config populated with the daemon's built-in
// defaults, matching what an empty/missing config file produces.
func Defaults() Config {
	return Config{
		SocketName:            "ptymuxd.sock",
		FrameBudgetMS:         16,
		RingSizeBytes:         1024 * 1024,
		IdleSweepIntervalSec:  60,
		DeadSessionTTLSec:     300,
		MaxOutboundQueueBytes: 8 * 1024 * 1024,
		WorkerJoinTimeoutMS:   2000,
		DefaultShellEnv:       map[string]string{},
		DefaultShell:          defaultShellPath(),
	}
}

// defaultShellPath picks the shell spawned for split_pane and
// attach(session_name) when no command is given explicitly: the user's
// login shell if set, otherwise /bin/sh.
func defaultShellPath() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/sh"
}

// Load reads and parses the YAML file at path, overlaying it onto
// Defaults. A missing file is not an error: Defaults alone is returned.
func Load(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// FrameBudget returns the configured frame budget as a time.Duration.
func (c Config) FrameBudget() time.Duration {
	return time.Duration(c.FrameBudgetMS) * time.Millisecond
}

// IdleSweepInterval returns the configured sweep interval as a
// time.Duration.
func (c Config) IdleSweepInterval() time.Duration {
	return time.Duration(c.IdleSweepIntervalSec) * time.Second
}

// DeadSessionTTL returns how long a dead session is kept before being
// swept, as a time.Duration.
func (c Config) DeadSessionTTL() time.Duration {
	return time.Duration(c.DeadSessionTTLSec) * time.Second
}

// WorkerJoinTimeout returns how long shutdown waits for a PTY worker to
// exit before force-closing it, as a time.Duration.
func (c Config) WorkerJoinTimeout() time.Duration {
	return time.Duration(c.WorkerJoinTimeoutMS) * time.Millisecond
}

// DefaultPath returns the config file path for a daemon profile named
// profileName: $HOME/.config/<name>/config.yaml.
func DefaultPath(profileName string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: %w", err)
	}
	return filepath.Join(home, ".config", profileName, "config.yaml"), nil
}
