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
	cfg := config.ReceiverDefaults()
	if err := config.Parse(&cfg, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "gbn-receiver: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gbn-receiver: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	conn, err := dial(cfg)
	if err != nil {
		log.Errorw("gbn-receiver: binding socket", "err", err)
		os.Exit(1)
	}
	defer conn.Close()

	receiver := gbn.NewReceiver(conn, os.Stdout, log)

	ctx := context.Background()
	if err := receiver.Run(ctx); err != nil {
		log.Errorw("gbn-receiver: session failed", "err", err)
		os.Exit(1)
	}

	if cfg.Verbose {
		reportStats(receiver)
	}
}

// --------------------------------------------------------------------------------------------- //

func dial(cfg config.GBN) (net.Conn, error) {
	laddr := &net.UDPAddr{IP: net.ParseIP(cfg.ReceiverAddr), Port: int(cfg.ReceiverPort)}
	raddr := &net.UDPAddr{IP: net.ParseIP(cfg.SenderAddr), Port: int(cfg.SenderPort)}

	conn, err := net.DialUDP("udp4", laddr, raddr)
	if err != nil {
		return nil, fmt.Errorf("binding %s, connecting to %s: %w", laddr, raddr, err)
	}

	return conn, nil
}

// --------------------------------------------------------------------------------------------- //

func reportStats(r *gbn.Receiver) {
	fmt.Fprintf(os.Stderr, "segments=%d size=%d packets=%d violations=%d\n",
		r.Stats.Segments, r.Stats.TotalSize, r.Stats.Packets, r.Stats.SeqViolations)
}
