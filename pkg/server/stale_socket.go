package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// ErrAlreadyRunning means another daemon is accepting on the socket path.
var ErrAlreadyRunning = errors.New("another tomato daemon is already running")

// cleanStaleSocket checks whether a socket file at socketPath is stale (left
// over from a crash) or actively in use by another daemon.
//
// Behavior:
//   - If the file does not exist, returns nil (nothing to clean).
//   - If a connection to it succeeds, another daemon is running: returns
//     ErrAlreadyRunning so the caller does NOT clobber it.
//   - If the connection fails, the socket is stale: removes it and returns nil.
func cleanStaleSocket(socketPath string, probeTimeout time.Duration) error {
	_, err := os.Stat(socketPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat socket %s: %w", socketPath, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	dialer := net.Dialer{}
	conn, dialErr := dialer.DialContext(ctx, "unix", socketPath)
	if dialErr == nil {
		_ = conn.Close()
		return fmt.Errorf("%w on %s", ErrAlreadyRunning, socketPath)
	}

	if err := os.Remove(socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket %s: %w", socketPath, err)
	}
	return nil
}

// removeSocket deletes the socket file. Missing files are not an error.
func removeSocket(socketPath string) error {
	if err := os.Remove(socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove socket %s: %w", socketPath, err)
	}
	return nil
}
