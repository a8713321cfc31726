package main

import (
	"context"
	"fmt"
	"net"
	"os"

	"gorent/internal/config"
	"gorent/internal/gbn"
	"gorent/internal/logging"
)

func main() {
	cfg := config.SenderDefaults()
	if err := config.Parse(&cfg, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "gbn-sender: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gbn-sender: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	conn, err := dial(cfg)
	if err != nil {
		log.Errorw("gbn-sender: dialing receiver", "err", err)
		os.Exit(1)
	}
	defer conn.Close()

	sender := gbn.NewSender(conn, os.Stdin, log)

	if cfg.Verbose {
		sender.OnProgress = func(stats gbn.SenderStats, base uint32, rttMS float64) {
			fmt.Fprintf(os.Stderr, "\rbase=%d seg=%d size=%d pkt=%d ack=%d to=%d rtt=%.1fms",
				base, stats.Segments, stats.TotalSize, stats.Packets, stats.Acks, stats.Timeouts, rttMS)
		}
	}

	ctx := context.Background()
	if err := sender.Run(ctx); err != nil {
		log.Errorw("gbn-sender: session failed", "err", err)
		os.Exit(1)
	}

	if cfg.Verbose {
		fmt.Fprintln(os.Stderr)
		reportStats(sender)
	}
}

// --------------------------------------------------------------------------------------------- //

func dial(cfg config.GBN) (net.Conn, error) {
	laddr := &net.UDPAddr{IP: net.ParseIP(cfg.SenderAddr), Port: int(cfg.SenderPort)}
	raddr := &net.UDPAddr{IP: net.ParseIP(cfg.ReceiverAddr), Port: int(cfg.ReceiverPort)}

	conn, err := net.DialUDP("udp4", laddr, raddr)
	if err != nil {
		return nil, fmt.Errorf("binding %s, connecting to %s: %w", laddr, raddr, err)
	}

	return conn, nil
}

// --------------------------------------------------------------------------------------------- //

func reportStats(s *gbn.Sender) {
	fmt.Fprintf(os.Stderr, "segments=%d size=%d packets=%d acks=%d timeouts=%d\n",
		s.Stats.Segments, s.Stats.TotalSize, s.Stats.Packets, s.Stats.Acks, s.Stats.Timeouts)
}
