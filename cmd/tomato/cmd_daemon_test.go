package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"tomato/pkg/config"
	"tomato/pkg/history"
	"tomato/pkg/protocol"
)

// daemonEnv points every tomato path at a fresh short temp dir and writes a
// fast config.
func daemonEnv(t *testing.T, cfg string) string {
	t.Helper()
	clearPathEnv(t)
	for _, k := range []string{config.EnvBackend, config.EnvLogLevel, config.EnvUnit} {
		t.Setenv(k, "")
	}
	home, err := os.MkdirTemp("", "tomato-home")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(home) })
	t.Setenv("TOMATO_HOME", home)
	if err := os.WriteFile(filepath.Join(home, "config.toml"), []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	return home
}

const fastConfig = `
unit = "10ms"
busy = 100
short_break = 50
long_break = 50
remind_interval = 5
drain_window = "1ms"
backend = "none"
log_level = "error"
`

func startDaemon(t *testing.T, opts daemonOptions) (cancel func() error) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- runDaemon(ctx, opts, io.Discard) }()

	paths, err := ResolvePaths()
	if err != nil {
		t.Fatal(err)
	}
	sock := paths.SocketPath
	if opts.socketPath != "" {
		sock = opts.socketPath
	}
	deadline := time.Now().Add(3 * time.Second)
	for {
		if _, err := sendCommand(context.Background(), sock, protocol.CmdGetInfo); err == nil {
			break
		}
		select {
		case err := <-errc:
			stop()
			t.Fatalf("daemon exited early: %v", err)
		default:
		}
		if time.Now().After(deadline) {
			stop()
			t.Fatal("daemon did not come up")
		}
		time.Sleep(10 * time.Millisecond)
	}

	var stopped bool
	var result error
	cancel = func() error {
		if stopped {
			return result
		}
		stopped = true
		stop()
		select {
		case result = <-errc:
		case <-time.After(5 * time.Second):
			t.Fatal("daemon did not stop")
		}
		return result
	}
	t.Cleanup(func() { _ = cancel() })
	return cancel
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestDaemonServesClients(t *testing.T) {
	home := daemonEnv(t, fastConfig)
	stop := startDaemon(t, daemonOptions{})

	out, err := runCLI(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	remaining, err := strconv.ParseInt(strings.TrimSpace(out), 10, 64)
	if err != nil {
		t.Fatalf("status output %q: %v", out, err)
	}
	if remaining > 100 || remaining < -1000 {
		t.Errorf("remaining = %d, want at most 100 units", remaining)
	}

	out, err = runCLI(t, "status", "--polybar")
	if err != nil {
		t.Fatalf("status --polybar: %v", err)
	}
	if len(strings.TrimSpace(out)) < 5 || !strings.Contains(out, ":") {
		t.Errorf("polybar output = %q", out)
	}

	out, err = runCLI(t, "ready")
	if err != nil || strings.TrimSpace(out) != "OK" {
		t.Errorf("ready = %q, %v", out, err)
	}
	out, err = runCLI(t, "remind")
	if err != nil || strings.TrimSpace(out) != "OK" {
		t.Errorf("remind = %q, %v", out, err)
	}

	out, err = runCLI(t, "status", "--json")
	if err != nil || !strings.Contains(out, `"phase"`) {
		t.Errorf("status --json = %q, %v", out, err)
	}

	if err := stop(); err != nil {
		t.Fatalf("daemon returned %v, want nil on clean shutdown", err)
	}

	for _, name := range []string{"tomato.sock", "tomato.pid"} {
		if _, err := os.Stat(filepath.Join(home, name)); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("%s left behind: %v", name, err)
		}
	}

	store, err := history.OpenReadOnly(filepath.Join(home, "history.db"))
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	defer store.Close()
	events, err := store.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(events) == 0 || events[len(events)-1].Kind != protocol.EventPhaseStarted {
		t.Errorf("history = %+v, want first event phase_started", events)
	}

	out, err = runCLI(t, "history", "--limit", "1")
	if err != nil || strings.Count(strings.TrimSpace(out), "\n") != 0 {
		t.Errorf("history --limit 1 = %q, %v", out, err)
	}
}

func TestDaemonSocketFlag(t *testing.T) {
	home := daemonEnv(t, fastConfig)
	sock := filepath.Join(home, "alt.sock")
	stop := startDaemon(t, daemonOptions{socketPath: sock})

	out, err := runCLI(t, "status", "--socket", sock)
	if err != nil || strings.TrimSpace(out) == "" {
		t.Errorf("status --socket = %q, %v", out, err)
	}
	if err := stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, err := os.Stat(sock); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("socket left behind: %v", err)
	}
}

func TestDaemonRejectsBadConfig(t *testing.T) {
	daemonEnv(t, "busy = 0\n")
	err := runDaemon(context.Background(), daemonOptions{}, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "busy") {
		t.Fatalf("runDaemon = %v, want config error", err)
	}
}

func TestDaemonFlagOverridesBackend(t *testing.T) {
	daemonEnv(t, fastConfig)
	err := runDaemon(context.Background(), daemonOptions{backend: "growl"}, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "growl") {
		t.Fatalf("runDaemon = %v, want backend error", err)
	}
}

func TestStopWithoutDaemon(t *testing.T) {
	daemonEnv(t, fastConfig)
	out, err := runCLI(t, "stop")
	if err != nil || !strings.Contains(out, "not running") {
		t.Errorf("stop = %q, %v", out, err)
	}
}

func TestStatusWithoutDaemon(t *testing.T) {
	daemonEnv(t, fastConfig)
	if _, err := runCLI(t, "status"); err == nil {
		t.Fatal("expected error when no daemon is listening")
	}
}
