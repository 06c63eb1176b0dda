package main

import (
	"fmt"
	"os"
	"path/filepath"

	"tomato/pkg/protocol"
)

// Paths holds all resolved tomato state file paths.
type Paths struct {
	Home        string // ~/.tomato or TOMATO_HOME
	PIDPath     string // tomato.pid or TOMATO_PID_PATH
	SocketPath  string // tomato.sock or TOMATO_SOCKET_PATH
	ConfigPath  string // config.toml or TOMATO_CONFIG
	HistoryPath string // history.db or TOMATO_HISTORY_DB
}

// ResolvePaths returns all tomato paths, respecting env var overrides.
// Environment variables:
//   - TOMATO_HOME: base directory for all state (default: ~/.tomato)
//   - TOMATO_PID_PATH: daemon PID file (default: $TOMATO_HOME/tomato.pid)
//   - TOMATO_SOCKET_PATH: daemon socket (default: $TOMATO_HOME/tomato.sock)
//   - TOMATO_CONFIG: config file (default: $TOMATO_HOME/config.toml)
//   - TOMATO_HISTORY_DB: history database (default: $TOMATO_HOME/history.db)
func ResolvePaths() (*Paths, error) {
	home, err := resolveHome()
	if err != nil {
		return nil, err
	}
	return &Paths{
		Home:        home,
		PIDPath:     resolvePathWithEnv("TOMATO_PID_PATH", home, protocol.PIDName),
		SocketPath:  resolvePathWithEnv("TOMATO_SOCKET_PATH", home, protocol.SocketName),
		ConfigPath:  resolvePathWithEnv("TOMATO_CONFIG", home, protocol.ConfigName),
		HistoryPath: resolvePathWithEnv("TOMATO_HISTORY_DB", home, protocol.HistoryName),
	}, nil
}

// resolveHome returns TOMATO_HOME or ~/.tomato.
func resolveHome() (string, error) {
	if v := os.Getenv("TOMATO_HOME"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, protocol.TomatoDir), nil
}

// resolvePathWithEnv returns the path from envKey if set, otherwise joins base + suffix.
func resolvePathWithEnv(envKey, base, suffix string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return filepath.Join(base, suffix)
}
