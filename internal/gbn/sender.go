package gbn

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/zap"
)

// sockState mirrors the sender's lifecycle: open while still reading
// input, closing once the EOF marker has been queued, closed once it has
// been acknowledged.
type sockState int

const (
	sockOpen sockState = iota
	sockClosing
	sockClosed
)

// SenderStats are the running counters the CLI prints when run verbosely.
type SenderStats struct {
	Packets         uint64
	Acks            uint64
	Timeouts        uint64
	Segments        uint64
	TotalSize       uint64
	FastRetransmits uint64
}

// Sender drives one Go-Back-N sending session: it reads from in, frames
// packets of up to MSS bytes, and reliably delivers them to conn's peer
// under a sliding window governed by TCP-Reno congestion control.
//
// All mutable session state — the window, cc, rtt, and timer — is owned
// by the goroutine running Run; the reader goroutines it starts only ever
// hand data back over channels, preserving Run as the single writer the
// state machine assumes.
type Sender struct {
	conn net.Conn
	in   io.Reader
	log  *zap.SugaredLogger

	window  [MaxWindow]packet
	base    uint32
	nextSeq uint32

	cc  *congestionController
	rtt *rttEstimator

	state sockState
	timer *time.Timer

	Stats SenderStats

	// OnProgress, if set, is called after every processed event with the
	// current stats snapshot and the live RTT estimate — a hook for a
	// verbose running counter line, the Go analogue of the original
	// event loop's per-iteration stderr summary.
	OnProgress func(stats SenderStats, base uint32, rttMS float64)
}

// --------------------------------------------------------------------------------------------- //

// NewSender builds a Sender that reads application bytes from in and
// exchanges GBN datagrams over conn, which must already be connected to
// the receiver's address.
func NewSender(conn net.Conn, in io.Reader, log *zap.SugaredLogger) *Sender {
	return &Sender{
		conn: conn,
		in:   in,
		log:  log,
		cc:   newCongestionController(),
		rtt:  newRTTEstimator(),
	}
}

// --------------------------------------------------------------------------------------------- //

type inputResult struct {
	n   int
	err error
}

// inputReader serves one read request at a time: it blocks on req, reads
// up to MSS bytes from in, and reports the result on res. This is the
// "conditionally enabled" application-input readiness from the event
// loop — Run only sends on req when the window has space.
func (s *Sender) inputReader(buf []byte, req <-chan struct{}, res chan<- inputResult) {
	for range req {
		n, err := s.in.Read(buf)
		if err == io.EOF {
			err = nil
			n = 0
		}

		res <- inputResult{n: n, err: err}
	}
}

// ackReader continuously reads ACK datagrams from conn and forwards them;
// it is always enabled, matching the event loop's socket-first priority.
func (s *Sender) ackReader(ackCh chan<- []byte, errCh chan<- error) {
	buf := make([]byte, HeaderSize)

	for {
		n, err := io.ReadFull(s.conn, buf)
		if err != nil {
			errCh <- fmt.Errorf("gbn: sender reading ack: %w", err)
			return
		}

		if n < HeaderSize {
			continue
		}

		cp := make([]byte, HeaderSize)
		copy(cp, buf[:n])
		ackCh <- cp
	}
}

// --------------------------------------------------------------------------------------------- //

/*
Run drives the session to completion: it sends every byte of in as a
sequence of GBN packets, retransmitting on timeout or triple duplicate
ACK, and returns once the EOF marker has been sent and cumulatively
acknowledged. It returns early on any I/O error or context cancellation.
*/
func (s *Sender) Run(ctx context.Context) error {
	inputBuf := make([]byte, MSS)
	reqCh := make(chan struct{})
	inputResCh := make(chan inputResult)
	ackCh := make(chan []byte, 8)
	errCh := make(chan error, 2)

	go s.inputReader(inputBuf, reqCh, inputResCh)
	go s.ackReader(ackCh, errCh)
	defer close(reqCh)

	for s.state != sockClosed {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Socket events take priority over application input within an
		// iteration, per the event loop's stated ordering.
		select {
		case raw := <-ackCh:
			if err := s.handleAck(raw); err != nil {
				return err
			}

			s.reportProgress()

			continue
		case err := <-errCh:
			return err
		default:
		}

		var sendReq chan<- struct{}
		if s.canReadInput() {
			sendReq = reqCh
		}

		var timerC <-chan time.Time
		if s.timer != nil {
			timerC = s.timer.C
		}

		select {
		case raw := <-ackCh:
			if err := s.handleAck(raw); err != nil {
				return err
			}

			s.reportProgress()
		case res := <-inputResCh:
			if err := s.handleInput(res, inputBuf); err != nil {
				return err
			}

			s.reportProgress()
		case sendReq <- struct{}{}:
		case <-timerC:
			if err := s.handleTimeout(); err != nil {
				return err
			}

			s.reportProgress()
		case err := <-errCh:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

// --------------------------------------------------------------------------------------------- //

func (s *Sender) reportProgress() {
	if s.OnProgress != nil {
		s.OnProgress(s.Stats, s.base, s.rtt.rtt)
	}
}

// --------------------------------------------------------------------------------------------- //

func (s *Sender) canReadInput() bool {
	return s.state == sockOpen && s.nextSeq < s.base+s.cc.window()
}

// --------------------------------------------------------------------------------------------- //

func (s *Sender) handleInput(res inputResult, buf []byte) error {
	if res.err != nil {
		return fmt.Errorf("gbn: sender reading input: %w", res.err)
	}

	seq := s.nextSeq
	slot := &s.window[seq%MaxWindow]
	slot.encode(seq, buf[:res.n])

	if err := s.transmit(slot); err != nil {
		return err
	}

	s.Stats.Segments++
	s.Stats.TotalSize += uint64(res.n)

	if seq == s.base {
		s.startTimer()
	}

	if res.n == 0 {
		s.state = sockClosing
	}

	s.nextSeq++

	return nil
}

// --------------------------------------------------------------------------------------------- //

func (s *Sender) transmit(p *packet) error {
	now := time.Now()

	if _, err := s.conn.Write(p.wire()); err != nil {
		return fmt.Errorf("gbn: sender writing packet: %w", err)
	}

	s.Stats.Packets++
	s.rtt.segmentSent(p.seq, now)

	return nil
}

// --------------------------------------------------------------------------------------------- //

func (s *Sender) handleAck(raw []byte) error {
	ack := decodeSeq(raw)
	now := time.Now()

	s.Stats.Acks++
	s.rtt.ackReceived(ack, now)

	switch {
	case ack == s.base:
		if s.cc.duplicateAck() {
			s.Stats.FastRetransmits++

			slot := &s.window[s.base%MaxWindow]
			if err := s.transmit(slot); err != nil {
				return err
			}

			s.startTimer()
		}
	case ack > s.base && ack <= s.nextSeq:
		s.cc.receiveAcks(ack - s.base)
		s.base = ack

		if s.base != s.nextSeq {
			s.startTimer()
		} else if s.state == sockClosing {
			s.state = sockClosed
			s.stopTimer()
		} else {
			s.stopTimer()
		}
	}
	// ack < base or ack > nextSeq: spurious/forged, ignored.

	return nil
}

// --------------------------------------------------------------------------------------------- //

func (s *Sender) handleTimeout() error {
	s.Stats.Timeouts++
	s.rtt.timeoutEvent()
	s.cc.timeout()

	slot := &s.window[s.base%MaxWindow]
	if err := s.transmit(slot); err != nil {
		return err
	}

	s.startTimer()

	return nil
}

// --------------------------------------------------------------------------------------------- //

func (s *Sender) startTimer() {
	d := time.Duration(s.rtt.timeoutMS) * time.Millisecond

	if s.timer == nil {
		s.timer = time.NewTimer(d)
		return
	}

	if !s.timer.Stop() {
		select {
		case <-s.timer.C:
		default:
		}
	}

	s.timer.Reset(d)
}

func (s *Sender) stopTimer() {
	if s.timer == nil {
		return
	}

	if !s.timer.Stop() {
		select {
		case <-s.timer.C:
		default:
		}
	}

	s.timer = nil
}
