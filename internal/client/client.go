// Package client aggregates the state a BitTorrent session needs: a
// randomly generated peer-id, the local listening port, the three
// transfer-accounting counters, a reference to the torrent descriptor,
// and the live set of connected peer sockets.
package client

import (
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"gorent/internal/metainfo"
)

const peerIDPrefix = "-GR0001-"

// Peer is a connected peer: a 20-byte remote peer-id bound to a live
// transport. It only exists after a successful handshake.
type Peer struct {
	ID   [20]byte
	Conn net.Conn
}

// State is the client's session-wide, thread-safe aggregate. It is
// created once from a torrent descriptor and a listening port, and
// destroyed at shutdown via Close.
type State struct {
	peerID  [20]byte
	port    uint16
	torrent *metainfo.File

	mu         sync.Mutex
	uploaded   int64
	downloaded int64
	left       int64
	peers      []*Peer
}

// --------------------------------------------------------------------------------------------- //

/*
New builds a client State for torrent, listening on port. downloaded and
left seed the transfer counters — callers compute these with the verify
package before constructing the client. The peer-id is generated once,
derived from a random UUIDv4's raw bytes behind the conventional Azureus
-style ASCII prefix.
*/
func New(torrent *metainfo.File, port uint16, downloaded, left int64) *State {
	return &State{
		peerID:     generatePeerID(),
		port:       port,
		torrent:    torrent,
		downloaded: downloaded,
		left:       left,
	}
}

// --------------------------------------------------------------------------------------------- //

func generatePeerID() [20]byte {
	var id [20]byte

	copy(id[:], peerIDPrefix)

	raw := uuid.New()
	copy(id[len(peerIDPrefix):], raw[:20-len(peerIDPrefix)])

	return id
}

// --------------------------------------------------------------------------------------------- //

// PeerID returns this session's 20-byte peer-id.
func (s *State) PeerID() [20]byte { return s.peerID }

// Port returns the port this client advertises to the tracker.
func (s *State) Port() uint16 { return s.port }

// Torrent returns the torrent descriptor this client is serving.
func (s *State) Torrent() *metainfo.File { return s.torrent }

// Uploaded returns the number of bytes uploaded so far.
func (s *State) Uploaded() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.uploaded
}

// Downloaded returns the number of bytes downloaded so far.
func (s *State) Downloaded() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.downloaded
}

// Left returns the number of bytes left to download.
func (s *State) Left() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.left
}

// --------------------------------------------------------------------------------------------- //

/*
AddConnectedPeer registers a handshaked peer connection in the live peer
set. It is safe to call concurrently from the listener, the tracker
poller, and the initial outbound-connect loop.
*/
func (s *State) AddConnectedPeer(id [20]byte, conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.peers = append(s.peers, &Peer{ID: id, Conn: conn})
}

// Peers returns a snapshot of the currently connected peers.
func (s *State) Peers() []*Peer {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Peer, len(s.peers))
	copy(out, s.peers)

	return out
}

// PeerCount returns the number of currently connected peers.
func (s *State) PeerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.peers)
}

// --------------------------------------------------------------------------------------------- //

// MarkCompleted zeroes left and moves downloaded up to the full length, the
// transition the tracker poller watches to emit a single "completed" event.
func (s *State) MarkCompleted() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.left == 0 {
		return
	}

	s.downloaded += s.left
	s.left = 0
}

// --------------------------------------------------------------------------------------------- //

/*
Close closes every registered peer socket and releases the client. It does
not stop the listener or tracker poller goroutines — callers own those
lifetimes and must cancel them before calling Close, per the two-phase
shutdown protocol (set running=false, shut down sockets, join, then
Close).
*/
func (s *State) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error

	for _, p := range s.peers {
		if err := p.Conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("client: closing peer connection: %w", err)
		}
	}

	s.peers = nil

	return firstErr
}
