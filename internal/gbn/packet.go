// Package gbn implements a Go-Back-N reliable-delivery transport over UDP:
// a sliding-window sender with Jacobson/Karels RTT estimation and
// TCP-Reno-style congestion control, and a receiver that reassembles
// packets in order with a bounded out-of-order buffer.
package gbn

import "encoding/binary"

const (
	// HeaderSize is the size, in bytes, of the big-endian sequence number
	// that prefixes every datagram.
	HeaderSize = 4

	// MSS is the maximum number of application bytes carried by one data
	// packet. A zero-length payload is the EOF marker.
	MSS = 1000

	// MaxWindow is the number of unacknowledged packets the sender's ring
	// buffer can hold, keyed by seq % MaxWindow.
	MaxWindow = 1024

	// PacketBufSize is the number of out-of-order packets the receiver can
	// hold at once, keyed by seq % PacketBufSize.
	PacketBufSize = 100
)

// packet is a single GBN datagram: a sequence number plus up to MSS bytes
// of payload. It is reused in place inside the sender's and receiver's
// slot arrays to avoid per-packet allocation.
type packet struct {
	seq     uint32
	size    int // payload length; 0 means EOF marker
	present bool
	bytes   [HeaderSize + MSS]byte
}

// --------------------------------------------------------------------------------------------- //

func (p *packet) encode(seq uint32, payload []byte) {
	p.seq = seq
	p.size = len(payload)
	p.present = true
	binary.BigEndian.PutUint32(p.bytes[:HeaderSize], seq)
	copy(p.bytes[HeaderSize:], payload)
}

func (p *packet) wire() []byte {
	return p.bytes[:HeaderSize+p.size]
}

func (p *packet) payload() []byte {
	return p.bytes[HeaderSize : HeaderSize+p.size]
}

// --------------------------------------------------------------------------------------------- //

// decodeSeq extracts the big-endian sequence number from a datagram
// header. The caller must ensure len(data) >= HeaderSize.
func decodeSeq(data []byte) uint32 {
	return binary.BigEndian.Uint32(data[:HeaderSize])
}

// encodeAck builds a 4-byte ACK datagram carrying seq.
func encodeAck(seq uint32) []byte {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf, seq)

	return buf
}
