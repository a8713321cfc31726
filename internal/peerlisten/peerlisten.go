// Package peerlisten runs a background task that accepts inbound peer
// connections, performs the acceptor side of the handshake, and registers
// successful peers with the client.
package peerlisten

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorent/internal/client"
	"gorent/internal/handshake"
	"gorent/internal/netutil"
)

const acceptPoll = 5 * time.Second

// Listener accepts inbound peer connections on a background goroutine and
// registers handshaked peers with the client's peer set.
type Listener struct {
	log     *zap.SugaredLogger
	state   *client.State
	ln      *net.TCPListener
	running atomic.Bool
	wg      sync.WaitGroup
}

// --------------------------------------------------------------------------------------------- //

/*
Start binds a TCP listening socket to INADDR_ANY:port (with SO_REUSEADDR,
the default for net.ListenTCP) and begins accepting in a background
goroutine. The accept loop wakes every 5 seconds via SetDeadline so
shutdown is observable even with no inbound traffic.
*/
func Start(state *client.State, log *zap.SugaredLogger) (*Listener, error) {
	addr := &net.TCPAddr{IP: net.IPv4zero, Port: int(state.Port())}

	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("peerlisten: binding port %d: %w", state.Port(), err)
	}

	l := &Listener{log: log, state: state, ln: ln}
	l.running.Store(true)

	l.wg.Add(1)
	go l.acceptLoop()

	return l, nil
}

// --------------------------------------------------------------------------------------------- //

func (l *Listener) acceptLoop() {
	defer l.wg.Done()

	for l.running.Load() {
		conn, timedOut, err := netutil.AcceptPoll(l.ln, acceptPoll)
		if timedOut {
			continue
		}

		if err != nil {
			if !l.running.Load() {
				return
			}

			l.log.Errorw("peerlisten: accept failed", "err", err)
			return
		}

		go l.handleInbound(conn)
	}
}

// --------------------------------------------------------------------------------------------- //

func (l *Listener) handleInbound(conn net.Conn) {
	torrent := l.state.Torrent()

	remoteID, err := handshake.Inbound(conn, torrent.InfoHash, l.state.PeerID())
	if err != nil {
		l.log.Debugw("peerlisten: inbound handshake failed", "remote", conn.RemoteAddr(), "err", err)
		conn.Close()

		return
	}

	l.state.AddConnectedPeer(remoteID, conn)
	l.log.Infow("peerlisten: registered inbound peer", "remote", conn.RemoteAddr())
}

// --------------------------------------------------------------------------------------------- //

/*
Stop clears the running flag and shuts down the listening socket to
unblock Accept, then joins the accept goroutine.
*/
func (l *Listener) Stop() {
	l.running.Store(false)
	l.ln.Close()
	l.wg.Wait()
}
