package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"tomato/pkg/protocol"
)

// clientTimeout bounds one client exchange.
const clientTimeout = 2 * time.Second

// maxReplySize caps how much of a reply the client reads.
const maxReplySize = 4096

// ErrRejected means the daemon closed the connection without answering.
var ErrRejected = errors.New("daemon closed the connection without a reply")

// sendCommand writes one command line, half-closes, and reads the reply to EOF.
func sendCommand(ctx context.Context, socketPath string, c protocol.Command) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, clientTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return "", fmt.Errorf("connect to daemon at %s: %w", socketPath, err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if _, err := conn.Write(c.Encode()); err != nil {
		return "", fmt.Errorf("send %s: %w", c, err)
	}
	if uc, ok := conn.(*net.UnixConn); ok {
		_ = uc.CloseWrite()
	}

	reply, err := io.ReadAll(io.LimitReader(conn, maxReplySize))
	if err != nil {
		return "", fmt.Errorf("read reply to %s: %w", c, err)
	}
	if len(reply) == 0 {
		return "", fmt.Errorf("%s: %w", c, ErrRejected)
	}
	return strings.TrimSpace(string(reply)), nil
}

// queryRemaining asks the daemon for the signed remaining units.
func queryRemaining(ctx context.Context, socketPath string) (int64, error) {
	reply, err := sendCommand(ctx, socketPath, protocol.CmdGetInfo)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(reply, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse remaining %q: %w", reply, err)
	}
	return n, nil
}

// queryState asks the daemon for a full state snapshot.
func queryState(ctx context.Context, socketPath string) (protocol.StateReply, error) {
	var st protocol.StateReply
	reply, err := sendCommand(ctx, socketPath, protocol.CmdGetState)
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal([]byte(reply), &st); err != nil {
		return st, fmt.Errorf("parse state: %w", err)
	}
	return st, nil
}

// sendAction submits READY or REMIND and checks for the OK reply.
func sendAction(ctx context.Context, socketPath string, c protocol.Command) error {
	reply, err := sendCommand(ctx, socketPath, c)
	if err != nil {
		return err
	}
	if reply != protocol.ReplyOK {
		return fmt.Errorf("%s: unexpected reply %q", c, reply)
	}
	return nil
}
