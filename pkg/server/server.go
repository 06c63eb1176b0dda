// Package server implements the tomato command protocol over a Unix-domain
// socket. Each connection carries exactly one command line; the server answers
// queries from the scheduler's published state and forwards control actions
// into the scheduler's queue.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"tomato/pkg/protocol"
)

// Controller is the scheduler surface the server needs.
type Controller interface {
	Snapshot() protocol.CycleInfo
	DurationFor(p protocol.Phase) time.Duration
	Unit() time.Duration
	Submit(ctx context.Context, a protocol.ControlAction) error
}

// ErrControllerStopped is returned by Run when Submit fails for a reason other
// than the connection's own deadline or shutdown. The action queue has no
// consumer left.
var ErrControllerStopped = errors.New("controller stopped accepting actions")

// Config holds Server configuration.
type Config struct {
	SocketPath  string        // UDS socket path.
	ConnTimeout time.Duration // Deadline for one read-then-respond exchange (default 1s).
	SocketMode  os.FileMode   // Permissions applied after bind (default 0600).
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.ConnTimeout == 0 {
		out.ConnTimeout = time.Second
	}
	if out.SocketMode == 0 {
		out.SocketMode = 0o600
	}
	return out
}

// Option configures optional Server collaborators.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l.With("component", "server")
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.nowFunc = now }
}

// Server accepts command connections on a Unix socket.
type Server struct {
	cfg Config
	ctl Controller
	log *slog.Logger

	nowFunc func() time.Time
	conns   sync.WaitGroup
}

// New creates a Server. It does not bind the socket; call Run.
func New(cfg Config, ctl Controller, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg.withDefaults(),
		ctl:     ctl,
		log:     slog.Default().With("component", "server"),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Addr returns the socket path the server binds.
func (s *Server) Addr() string {
	return s.cfg.SocketPath
}

// Run binds the socket and serves connections until ctx is cancelled, the
// listener fails, or the controller stops accepting actions
// (ErrControllerStopped). Once bound, the socket file is removed on every
// return path.
func (s *Server) Run(ctx context.Context) (err error) {
	if s.cfg.SocketPath == "" {
		return errors.New("server: socket path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(s.cfg.SocketPath), 0o700); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}
	if err := cleanStaleSocket(s.cfg.SocketPath, s.cfg.ConnTimeout); err != nil {
		return err
	}

	ln, err := net.Listen("unix", s.cfg.SocketPath) //nolint:noctx // UDS bind is instant
	if err != nil {
		return fmt.Errorf("listen unix %s: %w", s.cfg.SocketPath, err)
	}
	defer func() {
		_ = ln.Close()
		s.conns.Wait()
		if rmErr := removeSocket(s.cfg.SocketPath); rmErr != nil {
			s.log.Warn("socket cleanup failed", "error", rmErr)
			if err == nil {
				err = rmErr
			}
		}
	}()

	if err := os.Chmod(s.cfg.SocketPath, s.cfg.SocketMode); err != nil {
		return fmt.Errorf("chmod socket %s: %w", s.cfg.SocketPath, err)
	}
	s.log.Info("listening", "socket", s.cfg.SocketPath)

	runCtx, abort := context.WithCancelCause(ctx)
	defer abort(nil)
	stop := context.AfterFunc(runCtx, func() { _ = ln.Close() })
	defer stop()

	if err := s.acceptLoop(runCtx, ln, abort); err != nil {
		return err
	}
	if ctx.Err() == nil {
		return context.Cause(runCtx)
	}
	return nil
}

// acceptLoop accepts connections until the listener is closed. A listener
// failure that is not caused by shutdown is returned to the caller. abort
// stops the loop when a connection finds the controller gone.
func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, abort context.CancelCauseFunc) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept on %s: %w", s.cfg.SocketPath, err)
		}
		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.handleConn(ctx, conn, abort)
		}()
	}
}

// handleConn serves one request. The whole exchange shares a single deadline;
// shutdown cuts it short.
func (s *Server) handleConn(ctx context.Context, conn net.Conn, abort context.CancelCauseFunc) {
	defer func() { _ = conn.Close() }()

	connCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnTimeout)
	defer cancel()
	_ = conn.SetDeadline(time.Now().Add(s.cfg.ConnTimeout))
	stop := context.AfterFunc(connCtx, func() { _ = conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	reply, err := s.exchange(connCtx, conn)
	if err != nil {
		if errors.Is(err, ErrControllerStopped) {
			s.log.Error("controller stopped accepting actions", "error", err)
			abort(err)
			return
		}
		s.logConnError(err)
		return
	}
	if _, err := io.WriteString(conn, reply); err != nil {
		s.logConnError(fmt.Errorf("write reply: %w", err))
	}
}

// exchange reads the full request and computes the reply body.
func (s *Server) exchange(ctx context.Context, conn net.Conn) (string, error) {
	raw, err := io.ReadAll(io.LimitReader(conn, protocol.MaxRequestSize))
	if err != nil {
		return "", fmt.Errorf("read request: %w", err)
	}

	cmd, err := protocol.ParseCommand(raw)
	if err != nil {
		return "", err
	}
	s.log.Debug("command", "command", string(cmd))
	return s.dispatch(ctx, cmd)
}

// dispatch executes cmd against the controller.
func (s *Server) dispatch(ctx context.Context, cmd protocol.Command) (string, error) {
	if action, ok := cmd.Action(); ok {
		if err := s.ctl.Submit(ctx, action); err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("forward %s: %w", action, err)
			}
			return "", fmt.Errorf("forward %s: %w: %w", action, ErrControllerStopped, err)
		}
		return protocol.ReplyOK, nil
	}

	info := s.ctl.Snapshot()
	total := s.ctl.DurationFor(info.Phase)
	remaining := protocol.InUnits(info.Remaining(total, s.nowFunc()), s.ctl.Unit())

	switch cmd {
	case protocol.CmdGetInfo:
		return strconv.FormatInt(remaining, 10), nil
	case protocol.CmdGetState:
		data, err := json.Marshal(protocol.StateReply{
			CycleInfo: info,
			Remaining: remaining,
			Total:     protocol.InUnits(total, s.ctl.Unit()),
		})
		if err != nil {
			return "", fmt.Errorf("marshal state: %w", err)
		}
		return string(data), nil
	default:
		return "", &protocol.CommandError{Reason: protocol.ReasonUnknown, Line: string(cmd)}
	}
}

func (s *Server) logConnError(err error) {
	var cmdErr *protocol.CommandError
	var netErr net.Error
	switch {
	case errors.As(err, &cmdErr):
		s.log.Warn("rejected request", "reason", string(cmdErr.Reason), "line", cmdErr.Line)
	case errors.As(err, &netErr) && netErr.Timeout():
		s.log.Warn("connection timed out", "error", err)
	case errors.Is(err, context.DeadlineExceeded):
		s.log.Warn("connection timed out", "error", err)
	default:
		s.log.Warn("connection failed", "error", err)
	}
}
