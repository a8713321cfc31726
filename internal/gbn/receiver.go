package gbn

import (
	"context"
	"fmt"
	"io"
	"net"

	"go.uber.org/zap"
)

// ReceiverStats are the running counters the CLI prints when run
// verbosely.
type ReceiverStats struct {
	Packets       uint64
	Segments      uint64
	SeqViolations uint64
	TotalSize     uint64
}

// Receiver drives one Go-Back-N receiving session: it reassembles
// incoming packets in order, writes each delivered payload to out, and
// sends cumulative ACKs back to conn's peer.
type Receiver struct {
	conn net.Conn
	out  io.Writer
	log  *zap.SugaredLogger

	expectedSeq uint32
	buffered    [PacketBufSize]packet

	Stats ReceiverStats
}

// --------------------------------------------------------------------------------------------- //

// NewReceiver builds a Receiver that writes delivered application bytes
// to out and exchanges GBN datagrams over conn, which must already be
// connected to the sender's address.
func NewReceiver(conn net.Conn, out io.Writer, log *zap.SugaredLogger) *Receiver {
	return &Receiver{conn: conn, out: out, log: log}
}

// --------------------------------------------------------------------------------------------- //

/*
Run drives the session to completion: it receives datagrams, delivers
in-order payloads to out, buffers out-of-order arrivals up to
PacketBufSize, and acknowledges cumulatively. It returns once the EOF
marker has been delivered and acknowledged, or on the first I/O error.
*/
func (r *Receiver) Run(ctx context.Context) error {
	buf := make([]byte, HeaderSize+MSS)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := r.conn.Read(buf)
		if err != nil {
			return fmt.Errorf("gbn: receiver reading packet: %w", err)
		}

		if n < HeaderSize {
			return fmt.Errorf("gbn: receiver: packet shorter than header (%d bytes)", n)
		}

		r.Stats.Packets++

		seq := decodeSeq(buf)
		payload := buf[HeaderSize:n]

		if seq == r.expectedSeq {
			done, err := r.deliverInOrder(seq, payload)
			if err != nil {
				return err
			}

			if done {
				return nil
			}

			continue
		}

		if err := r.handleOutOfOrder(seq, payload); err != nil {
			return err
		}
	}
}

// --------------------------------------------------------------------------------------------- //

// deliverInOrder writes payload (and any now-consecutive buffered
// packets) to the sink, advances expectedSeq, and sends the resulting
// cumulative ACK. It reports done once the EOF marker has been
// delivered.
func (r *Receiver) deliverInOrder(seq uint32, payload []byte) (done bool, err error) {
	if err := r.deliver(payload); err != nil {
		return false, err
	}

	if len(payload) == 0 {
		done = true
	}

	r.expectedSeq++

	for {
		slot := &r.buffered[r.expectedSeq%PacketBufSize]
		if !slot.present || slot.seq != r.expectedSeq {
			break
		}

		if err := r.deliver(slot.payload()); err != nil {
			return false, err
		}

		if slot.size == 0 {
			done = true
		}

		slot.present = false
		r.expectedSeq++
	}

	if err := r.sendAck(r.expectedSeq); err != nil {
		return false, err
	}

	return done, nil
}

// --------------------------------------------------------------------------------------------- //

func (r *Receiver) deliver(payload []byte) error {
	r.Stats.Segments++
	r.Stats.TotalSize += uint64(len(payload))

	if len(payload) == 0 {
		return nil
	}

	if _, err := r.out.Write(payload); err != nil {
		return fmt.Errorf("gbn: receiver writing to sink: %w", err)
	}

	return nil
}

// --------------------------------------------------------------------------------------------- //

// handleOutOfOrder sends a duplicate ACK carrying the old expectedSeq and,
// if seq is ahead of expectedSeq and a buffer slot is free, stores the
// packet for later delivery; otherwise it is dropped.
func (r *Receiver) handleOutOfOrder(seq uint32, payload []byte) error {
	r.Stats.SeqViolations++

	if err := r.sendAck(r.expectedSeq); err != nil {
		return err
	}

	if seq <= r.expectedSeq {
		return nil
	}

	slot := &r.buffered[seq%PacketBufSize]
	if slot.present {
		return nil
	}

	slot.encode(seq, payload)

	return nil
}

// --------------------------------------------------------------------------------------------- //

func (r *Receiver) sendAck(seq uint32) error {
	if _, err := r.conn.Write(encodeAck(seq)); err != nil {
		return fmt.Errorf("gbn: receiver writing ack: %w", err)
	}

	return nil
}
