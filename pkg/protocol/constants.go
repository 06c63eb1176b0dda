package protocol

import "time"

// Directory and file names used throughout tomato.
const (
	// TomatoDir is the user-level state directory (e.g., ~/.tomato).
	TomatoDir = ".tomato"

	// SocketName is the default command socket file inside TomatoDir.
	SocketName = "tomato.sock"

	// PIDName is the daemon PID file inside TomatoDir.
	PIDName = "tomato.pid"

	// ConfigName is the default config file inside TomatoDir.
	ConfigName = "config.toml"

	// HistoryName is the default history database inside TomatoDir.
	HistoryName = "history.db"
)

// MaxRequestSize caps how many bytes the server reads from one connection.
// A well-formed request is a single short line.
const MaxRequestSize = 256

// DefaultUnit is the base time unit every configured duration is expressed in.
const DefaultUnit = time.Second
