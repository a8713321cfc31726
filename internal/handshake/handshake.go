// Package handshake implements the fixed 68-byte BitTorrent peer
// handshake, on both the dialing (outbound) and accepting (inbound) side
// of a TCP connection.
package handshake

import (
	"bytes"
	"fmt"
	"net"
	"time"

	"gorent/internal/netutil"
)

const (
	protocol  = "BitTorrent protocol"
	size      = 68
	readLimit = 5 * time.Second
	dialLimit = 5 * time.Second
)

// Message is the 68-byte on-wire handshake layout:
// [19][BitTorrent protocol][8 zero bytes][20-byte info_hash][20-byte peer_id].
type Message struct {
	InfoHash [20]byte
	PeerID   [20]byte
}

// --------------------------------------------------------------------------------------------- //

func (m Message) encode() []byte {
	buf := make([]byte, size)
	buf[0] = byte(len(protocol))
	copy(buf[1:20], protocol)
	// bytes 20..28 stay zero (reserved).
	copy(buf[28:48], m.InfoHash[:])
	copy(buf[48:68], m.PeerID[:])

	return buf
}

// --------------------------------------------------------------------------------------------- //

/*
decode validates a received handshake against infoHash, per spec:
the pstrlen must be 19, the protocol string exact, the reserved bytes all
zero, and the info_hash must match this client's torrent. The remote
peer-id is returned on success.
*/
func decode(buf []byte, infoHash [20]byte) (Message, error) {
	if len(buf) != size {
		return Message{}, fmt.Errorf("handshake: short message (%d bytes)", len(buf))
	}

	if buf[0] != 19 {
		return Message{}, fmt.Errorf("handshake: bad pstrlen %d", buf[0])
	}

	if string(buf[1:20]) != protocol {
		return Message{}, fmt.Errorf("handshake: bad protocol string")
	}

	for _, b := range buf[20:28] {
		if b != 0 {
			return Message{}, fmt.Errorf("handshake: non-zero reserved bytes")
		}
	}

	var gotHash, peerID [20]byte
	copy(gotHash[:], buf[28:48])
	copy(peerID[:], buf[48:68])

	if !bytes.Equal(gotHash[:], infoHash[:]) {
		return Message{}, fmt.Errorf("handshake: info_hash mismatch")
	}

	return Message{InfoHash: gotHash, PeerID: peerID}, nil
}

// --------------------------------------------------------------------------------------------- //

// readFull reads exactly size bytes from conn within the 5-second
// handshake read window.
func readFull(conn net.Conn) ([]byte, error) {
	buf := make([]byte, size)

	if err := netutil.ReadExact(conn, buf, readLimit); err != nil {
		return nil, fmt.Errorf("handshake: %w", err)
	}

	return buf, nil
}

// --------------------------------------------------------------------------------------------- //

/*
Outbound dials addr (a numeric address or DNS name) with a 5-second
connect timeout, sends this client's handshake first, then reads and
validates the peer's response.
*/
func Outbound(addr string, infoHash, peerID [20]byte) (net.Conn, [20]byte, error) {
	conn, err := netutil.DialTimeout("tcp", addr, dialLimit)
	if err != nil {
		return nil, [20]byte{}, fmt.Errorf("handshake: %w", err)
	}

	remoteID, err := send(conn, infoHash, peerID)
	if err != nil {
		conn.Close()
		return nil, [20]byte{}, err
	}

	return conn, remoteID, nil
}

// --------------------------------------------------------------------------------------------- //

func send(conn net.Conn, infoHash, peerID [20]byte) ([20]byte, error) {
	msg := Message{InfoHash: infoHash, PeerID: peerID}

	if err := netutil.WriteDeadline(conn, msg.encode(), readLimit); err != nil {
		return [20]byte{}, fmt.Errorf("handshake: %w", err)
	}

	buf, err := readFull(conn)
	if err != nil {
		return [20]byte{}, err
	}

	reply, err := decode(buf, infoHash)
	if err != nil {
		return [20]byte{}, err
	}

	return reply.PeerID, nil
}

// --------------------------------------------------------------------------------------------- //

/*
Inbound performs the acceptor side of the handshake on an already-accepted
connection: read first, validate, then send our own handshake. On any
failure the write half of conn is shut down (signaling EOF to the peer)
before the caller closes it.
*/
func Inbound(conn net.Conn, infoHash, peerID [20]byte) ([20]byte, error) {
	buf, err := readFull(conn)
	if err != nil {
		netutil.CloseWrite(conn)
		return [20]byte{}, err
	}

	reply, err := decode(buf, infoHash)
	if err != nil {
		netutil.CloseWrite(conn)
		return [20]byte{}, err
	}

	msg := Message{InfoHash: infoHash, PeerID: peerID}

	if err := netutil.WriteDeadline(conn, msg.encode(), readLimit); err != nil {
		netutil.CloseWrite(conn)
		return [20]byte{}, fmt.Errorf("handshake: %w", err)
	}

	return reply.PeerID, nil
}
