// Package netutil collects the small dial/read/accept-with-timeout
// helpers shared by the handshake and the peer listener: the only place a
// raw net.Conn or net.TCPListener deadline is managed.
package netutil

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// DialTimeout dials network/addr with a bounded connect timeout, wrapping
// any failure with the address for easier log correlation.
func DialTimeout(network, addr string, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout(network, addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("netutil: dialing %s %s: %w", network, addr, err)
	}

	return conn, nil
}

// --------------------------------------------------------------------------------------------- //

// ReadExact reads exactly len(buf) bytes from conn before deadline elapses,
// tolerating short reads. A zero-byte read with no error, or io.EOF before
// buf is full, is reported as a closed-connection error.
func ReadExact(conn net.Conn, buf []byte, deadline time.Duration) error {
	if err := conn.SetReadDeadline(time.Now().Add(deadline)); err != nil {
		return fmt.Errorf("netutil: setting read deadline: %w", err)
	}

	n := 0
	for n < len(buf) {
		m, err := conn.Read(buf[n:])
		if m == 0 && err == nil {
			return errors.New("netutil: connection closed")
		}

		n += m

		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("netutil: connection closed before full message (%d/%d bytes)", n, len(buf))
			}

			return fmt.Errorf("netutil: reading: %w", err)
		}
	}

	return nil
}

// --------------------------------------------------------------------------------------------- //

// WriteDeadline writes data to conn before deadline elapses.
func WriteDeadline(conn net.Conn, data []byte, deadline time.Duration) error {
	if err := conn.SetWriteDeadline(time.Now().Add(deadline)); err != nil {
		return fmt.Errorf("netutil: setting write deadline: %w", err)
	}

	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("netutil: writing: %w", err)
	}

	return nil
}

// --------------------------------------------------------------------------------------------- //

// CloseWrite shuts down the write half of conn, if it supports it
// (*net.TCPConn does), so the remote side observes a clean EOF without
// tearing down the whole connection.
func CloseWrite(conn net.Conn) {
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.CloseWrite()
	}
}

// --------------------------------------------------------------------------------------------- //

// AcceptPoll calls Accept on ln with a deadline set pollInterval in the
// future, so callers running a cooperative shutdown loop (checking a
// running flag between calls) never block indefinitely. It reports
// (nil, true, nil) on an ordinary poll timeout, letting the caller retry.
func AcceptPoll(ln *net.TCPListener, pollInterval time.Duration) (conn net.Conn, timedOut bool, err error) {
	if err := ln.SetDeadline(time.Now().Add(pollInterval)); err != nil {
		return nil, false, fmt.Errorf("netutil: setting accept deadline: %w", err)
	}

	conn, err = ln.Accept()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, true, nil
		}

		return nil, false, err
	}

	return conn, false, nil
}
