package gbn

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// udpPair dials two loopback UDP sockets connected to each other, giving
// each side a net.Conn usable directly with Sender/Receiver.
func udpPair(t *testing.T) (a, b net.Conn) {
	t.Helper()

	aConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	bConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	dialedA, err := net.DialUDP("udp4", aConn.LocalAddr().(*net.UDPAddr), bConn.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)

	dialedB, err := net.DialUDP("udp4", bConn.LocalAddr().(*net.UDPAddr), aConn.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)

	aConn.Close()
	bConn.Close()

	t.Cleanup(func() { dialedA.Close(); dialedB.Close() })

	return dialedA, dialedB
}

func TestSenderReceiverDeliversExactBytes(t *testing.T) {
	senderConn, receiverConn := udpPair(t)

	payload := bytes.Repeat([]byte("0123456789"), 350) // 3,500 bytes: 4 data packets (3 full MSS, one of 500 bytes) + EOF marker.
	require.Len(t, payload, 3500)

	in := bytes.NewReader(payload)
	var out bytes.Buffer

	sender := NewSender(senderConn, in, zap.NewNop().Sugar())
	receiver := NewReceiver(receiverConn, &out, zap.NewNop().Sugar())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- sender.Run(ctx) }()
	go func() { errCh <- receiver.Run(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case err := <-errCh:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("sender/receiver did not terminate")
		}
	}

	require.Equal(t, payload, out.Bytes())
	require.Equal(t, uint64(4+1), sender.Stats.Segments) // 4 data segments + 1 EOF marker
}

func TestSenderReceiverHandlesEmptyInput(t *testing.T) {
	senderConn, receiverConn := udpPair(t)

	in := bytes.NewReader(nil)
	var out bytes.Buffer

	sender := NewSender(senderConn, in, zap.NewNop().Sugar())
	receiver := NewReceiver(receiverConn, &out, zap.NewNop().Sugar())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- sender.Run(ctx) }()
	go func() { errCh <- receiver.Run(ctx) }()

	for i := 0; i < 2; i++ {
		require.NoError(t, <-errCh)
	}

	require.Equal(t, 0, out.Len())
	require.Equal(t, uint64(1), sender.Stats.Segments) // just the EOF marker
}

// lossyConn drops every Nth outbound write, simulating a lossy channel so
// the sender's timeout/retransmit and fast-retransmit paths fire.
type lossyConn struct {
	net.Conn
	every   int
	written int
}

func (c *lossyConn) Write(b []byte) (int, error) {
	c.written++
	if c.every > 0 && c.written%c.every == 0 {
		return len(b), nil // pretend it was sent; drop it silently
	}

	return c.Conn.Write(b)
}

// dropOnceConn drops exactly the first transmission of one target
// sequence number, letting every other write (including any later
// retransmission of that same sequence number) through untouched — the
// E6 scenario: a single lost segment, observed by the receiver as three
// out-of-order arrivals behind it, each producing a duplicate ACK.
type dropOnceConn struct {
	net.Conn
	targetSeq uint32
	dropped   bool
}

func (c *dropOnceConn) Write(b []byte) (int, error) {
	if !c.dropped && len(b) >= HeaderSize && decodeSeq(b) == c.targetSeq {
		c.dropped = true
		return len(b), nil // pretend it was sent; drop it silently
	}

	return c.Conn.Write(b)
}

// TestSenderReceiverFastRetransmitsOnThirdDuplicateAck reproduces spec's
// E6 scenario end-to-end through the real Sender/Receiver event loops:
// one segment is lost, the three segments behind it arrive out of order
// and each draw a duplicate ACK of the same base, and the third duplicate
// ACK should trigger exactly one fast retransmit.
func TestSenderReceiverFastRetransmitsOnThirdDuplicateAck(t *testing.T) {
	senderConn, receiverConn := udpPair(t)
	dropper := &dropOnceConn{Conn: senderConn, targetSeq: 0}

	// Exactly 4 data segments (seq 0-3) plus the EOF marker (seq 4). The
	// congestion window is pinned to 4 below, so after seq 0 is dropped,
	// seq 1-3 are the only segments the window lets through before it
	// fills — precisely the three out-of-order arrivals the receiver needs
	// to produce three duplicate ACKs, with nothing left over to race a
	// second, unrelated duplicate-ACK episode.
	payload := bytes.Repeat([]byte("y"), 4*MSS)
	in := bytes.NewReader(payload)
	var out bytes.Buffer

	sender := NewSender(dropper, in, zap.NewNop().Sugar())
	sender.cc.cwnd = 4 // pins the window so exactly 3 segments follow the lost one
	receiver := NewReceiver(receiverConn, &out, zap.NewNop().Sugar())

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- sender.Run(ctx) }()
	go func() { errCh <- receiver.Run(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case err := <-errCh:
			require.NoError(t, err)
		case <-time.After(15 * time.Second):
			t.Fatal("sender/receiver did not terminate")
		}
	}

	require.Equal(t, payload, out.Bytes())
	require.Equal(t, uint64(1), sender.Stats.FastRetransmits)
}

func TestSenderReceiverToleratesPacketLoss(t *testing.T) {
	senderConn, receiverConn := udpPair(t)
	lossy := &lossyConn{Conn: senderConn, every: 5}

	payload := bytes.Repeat([]byte("x"), 8000)
	in := bytes.NewReader(payload)
	var out bytes.Buffer

	sender := NewSender(lossy, in, zap.NewNop().Sugar())
	receiver := NewReceiver(receiverConn, &out, zap.NewNop().Sugar())

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- sender.Run(ctx) }()
	go func() { errCh <- receiver.Run(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case err := <-errCh:
			require.NoError(t, err)
		case <-time.After(15 * time.Second):
			t.Fatal("sender/receiver did not terminate under loss")
		}
	}

	require.Equal(t, payload, out.Bytes())
}
