package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/mitchellh/colorstring"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/term"
	"gorent/internal/client"
	"gorent/internal/logging"
	"gorent/internal/metainfo"
	"gorent/internal/peerlisten"
	"gorent/internal/tracker"
	"gorent/internal/verify"
)

const defaultListenPort = 6881

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <path-to-torrent-file> [listen-port]\n", os.Args[0])
		os.Exit(1)
	}

	port := uint16(defaultListenPort)
	if len(os.Args) >= 3 {
		p, err := strconv.ParseUint(os.Args[2], 10, 16)
		if err != nil {
			fmt.Fprintf(os.Stderr, "gorent: invalid listen-port %q: %v\n", os.Args[2], err)
			os.Exit(1)
		}

		port = uint16(p)
	}

	log, err := logging.New(false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gorent: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	banner()

	if err := run(os.Args[1], port, log); err != nil {
		log.Errorw("gorent: session failed", "err", err)
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------------------------- //

func banner() {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Println("gorent: starting")
		return
	}

	colorstring.Println("[bold][green]gorent[reset] — a Go-Back-N-and-BitTorrent client")
}

// --------------------------------------------------------------------------------------------- //

func run(path string, port uint16, log *zap.SugaredLogger) error {
	torrent, err := metainfo.Load(path)
	if err != nil {
		return fmt.Errorf("loading %q: %w", path, err)
	}

	bar := newVerifyBar(torrent.Info.Length)

	result, err := verify.File(torrent)
	if err != nil {
		return fmt.Errorf("verifying %q: %w", string(torrent.Info.Name), err)
	}

	bar.Add64(result.Downloaded)
	bar.Close()

	log.Infow("gorent: local file verified",
		"name", string(torrent.Info.Name),
		"downloaded", result.Downloaded,
		"left", result.Left)

	state := client.New(torrent, port, result.Downloaded, result.Left)
	defer state.Close()

	listener, err := peerlisten.Start(state, log)
	if err != nil {
		return fmt.Errorf("starting peer listener: %w", err)
	}
	defer listener.Stop()

	poller := tracker.New(state, log)
	poller.Start()
	defer poller.Stop()

	log.Infow("gorent: announcing", "announce", string(torrent.Announce), "port", port)

	waitForShutdown(log)

	return nil
}

// --------------------------------------------------------------------------------------------- //

func newVerifyBar(length int64) *progressbar.ProgressBar {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return progressbar.DefaultSilent(length)
	}

	return progressbar.NewOptions64(length,
		progressbar.OptionSetDescription("verifying pieces"),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(os.Stderr) }),
	)
}

// --------------------------------------------------------------------------------------------- //

func waitForShutdown(log *zap.SugaredLogger) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	s := <-sig
	log.Infow("gorent: shutting down", "signal", s.String())
}
