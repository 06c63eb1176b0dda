package server //nolint:testpackage // white-box tests exercise stale socket helpers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"tomato/pkg/protocol"
)

// --- Mock implementations ---

type mockController struct {
	mu        sync.Mutex
	info      protocol.CycleInfo
	durations map[protocol.Phase]time.Duration
	submitted []protocol.ControlAction
	submitErr error
	block     bool
}

func (m *mockController) Snapshot() protocol.CycleInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info
}

func (m *mockController) DurationFor(p protocol.Phase) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.durations[p]
}

func (m *mockController) Unit() time.Duration { return time.Second }

func (m *mockController) Submit(ctx context.Context, a protocol.ControlAction) error {
	m.mu.Lock()
	block, err := m.block, m.submitErr
	m.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitted = append(m.submitted, a)
	return nil
}

func (m *mockController) actions() []protocol.ControlAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]protocol.ControlAction(nil), m.submitted...)
}

func newMockController(now time.Time) *mockController {
	return &mockController{
		info: protocol.CycleInfo{
			Phase:     protocol.PhaseBusy,
			NextPhase: protocol.PhaseShortBreak,
			StartedAt: now,
		},
		durations: map[protocol.Phase]time.Duration{
			protocol.PhaseBusy:       25 * time.Minute,
			protocol.PhaseShortBreak: 5 * time.Minute,
			protocol.PhaseLongBreak:  15 * time.Minute,
		},
	}
}

// --- Helpers ---

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// socketPath returns a short socket path; sun_path is limited to ~104 bytes.
func socketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "tomato")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, "t.sock")
}

// startServer runs srv until the test ends and waits for the socket to accept.
func startServer(t *testing.T, srv *Server) (cancel func(), done <-chan error) {
	t.Helper()
	ctx, cancelFn := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	finished := make(chan struct{})
	go func() {
		errCh <- srv.Run(ctx)
		close(finished)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, err := net.Dial("unix", srv.Addr())
		if err == nil {
			_ = conn.Close()
			break
		}
		if time.Now().After(deadline) {
			cancelFn()
			t.Fatalf("server never accepted on %s: %v", srv.Addr(), err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Cleanup(func() {
		cancelFn()
		select {
		case <-finished:
		case <-time.After(2 * time.Second):
			t.Error("server did not stop")
		}
	})
	return cancelFn, errCh
}

// roundTrip sends payload, half-closes, and returns everything the server wrote.
func roundTrip(t *testing.T, path, payload string) string {
	t.Helper()
	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(3 * time.Second))

	if _, err := io.WriteString(conn, payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.(*net.UnixConn).CloseWrite(); err != nil {
		t.Fatalf("close write: %v", err)
	}
	data, _ := io.ReadAll(conn)
	return string(data)
}

// --- Tests ---

func TestControlCommandsReplyOK(t *testing.T) {
	ctl := newMockController(time.Now())
	srv := New(Config{SocketPath: socketPath(t)}, ctl, WithLogger(quietLogger()))
	startServer(t, srv)

	if got := roundTrip(t, srv.Addr(), "READY\n"); got != "OK" {
		t.Errorf("READY reply = %q, want OK", got)
	}
	if got := roundTrip(t, srv.Addr(), "REMIND\n"); got != "OK" {
		t.Errorf("REMIND reply = %q, want OK", got)
	}

	got := ctl.actions()
	want := []protocol.ControlAction{protocol.Acknowledge, protocol.Snooze}
	if len(got) != len(want) {
		t.Fatalf("submitted %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("action %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestGetInfoReportsRemainingUnits(t *testing.T) {
	start := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	now := start.Add(10 * time.Second)
	ctl := newMockController(start)
	srv := New(Config{SocketPath: socketPath(t)}, ctl,
		WithLogger(quietLogger()),
		WithClock(func() time.Time { return now }))
	startServer(t, srv)

	got := roundTrip(t, srv.Addr(), "GET INFO\n")
	secs, err := strconv.Atoi(got)
	if err != nil {
		t.Fatalf("GET INFO reply %q is not an integer: %v", got, err)
	}
	if secs != 1490 {
		t.Errorf("GET INFO = %d, want 1490", secs)
	}
}

func TestGetInfoNegativeWhenOverdue(t *testing.T) {
	start := time.Now().Add(-26 * time.Minute)
	ctl := newMockController(start)
	srv := New(Config{SocketPath: socketPath(t)}, ctl, WithLogger(quietLogger()))
	startServer(t, srv)

	first, err := strconv.Atoi(roundTrip(t, srv.Addr(), "GET INFO\n"))
	if err != nil {
		t.Fatalf("parse first reply: %v", err)
	}
	if first > -59 {
		t.Errorf("GET INFO = %d, want about -60", first)
	}

	time.Sleep(1100 * time.Millisecond)
	second, err := strconv.Atoi(roundTrip(t, srv.Addr(), "GET INFO\n"))
	if err != nil {
		t.Fatalf("parse second reply: %v", err)
	}
	if second >= first {
		t.Errorf("overdue remaining did not decrease: %d then %d", first, second)
	}
	if ctl.Snapshot().Phase != protocol.PhaseBusy {
		t.Error("GET INFO changed the phase")
	}
}

func TestGetStateReturnsJSON(t *testing.T) {
	ctl := newMockController(time.Now())
	ctl.info.NeedsAck = true
	ctl.info.Announcement = "a-1"
	srv := New(Config{SocketPath: socketPath(t)}, ctl, WithLogger(quietLogger()))
	startServer(t, srv)

	var reply protocol.StateReply
	if err := json.Unmarshal([]byte(roundTrip(t, srv.Addr(), "GET STATE\n")), &reply); err != nil {
		t.Fatalf("unmarshal GET STATE: %v", err)
	}
	if reply.Phase != protocol.PhaseBusy || !reply.NeedsAck || reply.Announcement != "a-1" {
		t.Errorf("GET STATE = %+v", reply)
	}
	if reply.Remaining < 1490 || reply.Remaining > 1500 {
		t.Errorf("remaining = %d, want about 1500", reply.Remaining)
	}
	if reply.Total != 1500 {
		t.Errorf("total = %d, want 1500", reply.Total)
	}
}

func TestRejectedRequestsGetNoBytes(t *testing.T) {
	ctl := newMockController(time.Now())
	srv := New(Config{SocketPath: socketPath(t)}, ctl, WithLogger(quietLogger()))
	startServer(t, srv)

	for name, payload := range map[string]string{
		"no newline":   "READY",
		"empty line":   "\n",
		"unknown":      "BOGUS\n",
		"lowercase":    "get info\n",
		"invalid utf8": "\xff\xfe\n",
		"empty body":   "",
	} {
		t.Run(name, func(t *testing.T) {
			if got := roundTrip(t, srv.Addr(), payload); got != "" {
				t.Errorf("reply = %q, want no bytes", got)
			}
		})
	}
	if n := len(ctl.actions()); n != 0 {
		t.Errorf("rejected requests submitted %d actions", n)
	}
}

func TestSubmitFailureStopsServer(t *testing.T) {
	ctl := newMockController(time.Now())
	stopped := errors.New("scheduler stopped")
	ctl.submitErr = stopped
	srv := New(Config{SocketPath: socketPath(t)}, ctl, WithLogger(quietLogger()))
	_, done := startServer(t, srv)

	if got := roundTrip(t, srv.Addr(), "READY\n"); got != "" {
		t.Errorf("reply = %q, want no bytes", got)
	}

	select {
	case err := <-done:
		if !errors.Is(err, ErrControllerStopped) || !errors.Is(err, stopped) {
			t.Errorf("Run() = %v, want ErrControllerStopped wrapping %v", err, stopped)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run kept serving after the controller stopped")
	}
	if _, err := os.Stat(srv.Addr()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("socket still present: %v", err)
	}
}

func TestQueriesDoNotStopServer(t *testing.T) {
	ctl := newMockController(time.Now())
	ctl.submitErr = errors.New("scheduler stopped")
	srv := New(Config{SocketPath: socketPath(t)}, ctl, WithLogger(quietLogger()))
	_, done := startServer(t, srv)

	for range 3 {
		if got := roundTrip(t, srv.Addr(), "GET INFO\n"); got == "" {
			t.Fatal("GET INFO got no reply")
		}
	}
	select {
	case err := <-done:
		t.Fatalf("Run returned %v while only queries were served", err)
	default:
	}
}

func TestSlowClientIsAbandoned(t *testing.T) {
	ctl := newMockController(time.Now())
	srv := New(Config{SocketPath: socketPath(t), ConnTimeout: 100 * time.Millisecond}, ctl, WithLogger(quietLogger()))
	startServer(t, srv)

	slow, err := net.Dial("unix", srv.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer slow.Close()
	if _, err := io.WriteString(slow, "GET "); err != nil {
		t.Fatalf("write: %v", err)
	}

	// Other clients are served while the slow one hangs.
	if got := roundTrip(t, srv.Addr(), "READY\n"); got != "OK" {
		t.Errorf("concurrent READY = %q, want OK", got)
	}

	_ = slow.SetReadDeadline(time.Now().Add(2 * time.Second))
	start := time.Now()
	data, _ := io.ReadAll(slow)
	if len(data) != 0 {
		t.Errorf("slow client got %q, want nothing", data)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("slow client held for %v, want about the connection timeout", elapsed)
	}
}

func TestBlockedSubmitBoundedByTimeout(t *testing.T) {
	ctl := newMockController(time.Now())
	ctl.block = true
	srv := New(Config{SocketPath: socketPath(t), ConnTimeout: 50 * time.Millisecond}, ctl, WithLogger(quietLogger()))
	_, done := startServer(t, srv)

	start := time.Now()
	if got := roundTrip(t, srv.Addr(), "READY\n"); got != "" {
		t.Errorf("reply = %q, want no bytes", got)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("blocked submit held connection for %v", elapsed)
	}
	select {
	case err := <-done:
		t.Errorf("Run returned %v after a timed-out submit", err)
	default:
	}
}

func TestSocketRemovedOnShutdown(t *testing.T) {
	ctl := newMockController(time.Now())
	srv := New(Config{SocketPath: socketPath(t), ConnTimeout: 5 * time.Second}, ctl, WithLogger(quietLogger()))
	cancel, done := startServer(t, srv)

	// A hung client must not delay shutdown by the full connection timeout.
	hung, err := net.Dial("unix", srv.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer hung.Close()
	time.Sleep(20 * time.Millisecond)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return promptly after cancel")
	}

	if _, err := os.Stat(srv.Addr()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("socket still present after shutdown: %v", err)
	}
}

func TestStaleSocketIsReplaced(t *testing.T) {
	path := socketPath(t)

	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ln.(*net.UnixListener).SetUnlinkOnClose(false)
	_ = ln.Close()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("setup: stale socket missing: %v", err)
	}

	srv := New(Config{SocketPath: path}, newMockController(time.Now()), WithLogger(quietLogger()))
	startServer(t, srv)

	if got := roundTrip(t, path, "REMIND\n"); got != "OK" {
		t.Errorf("reply = %q, want OK", got)
	}
}

func TestLiveSocketIsNotClobbered(t *testing.T) {
	path := socketPath(t)
	first := New(Config{SocketPath: path}, newMockController(time.Now()), WithLogger(quietLogger()))
	startServer(t, first)

	second := New(Config{SocketPath: path}, newMockController(time.Now()), WithLogger(quietLogger()))
	err := second.Run(context.Background())
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Run() = %v, want ErrAlreadyRunning", err)
	}

	if got := roundTrip(t, path, "READY\n"); got != "OK" {
		t.Errorf("first server stopped answering: %q", got)
	}
}

func TestCleanStaleSocketMissingFile(t *testing.T) {
	if err := cleanStaleSocket(filepath.Join(t.TempDir(), "none.sock"), 50*time.Millisecond); err != nil {
		t.Fatalf("cleanStaleSocket on missing file: %v", err)
	}
}

func TestRunRejectsEmptyPath(t *testing.T) {
	srv := New(Config{}, newMockController(time.Now()), WithLogger(quietLogger()))
	if err := srv.Run(context.Background()); err == nil {
		t.Fatal("Run with empty socket path should fail")
	}
}
