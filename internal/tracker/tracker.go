// Package tracker polls a BitTorrent tracker over HTTP, building the
// announce URL with the standard query parameters and lifecycle events,
// and dials every peer the tracker returns.
package tracker

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	bencodego "github.com/jackpal/bencode-go"
	"go.uber.org/zap"
	"gorent/internal/bencode"
	"gorent/internal/client"
	"gorent/internal/handshake"
)

const (
	requestTimeout  = 10 * time.Second
	defaultInterval = 30 * time.Second
)

// Event is a tracker lifecycle event.
type Event string

const (
	Started   Event = "started"
	Completed Event = "completed"
	Stopped   Event = "stopped"
	None      Event = ""
)

// Poller periodically announces to the tracker named by the torrent's
// announce URL and connects to the peers it returns.
type Poller struct {
	state  *client.State
	log    *zap.SugaredLogger
	client *http.Client

	mu        sync.Mutex
	stop      chan struct{}
	done      chan struct{}
	completed bool
}

// --------------------------------------------------------------------------------------------- //

// New builds a Poller for state. It does not start polling until Start is
// called.
func New(state *client.State, log *zap.SugaredLogger) *Poller {
	return &Poller{
		state:  state,
		log:    log,
		client: &http.Client{Timeout: requestTimeout},
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// --------------------------------------------------------------------------------------------- //

// Start launches the polling loop on a background goroutine. The first
// poll uses event=started; subsequent steady-state polls omit the event
// unless the download just completed.
func (p *Poller) Start() {
	go p.loop()
}

// --------------------------------------------------------------------------------------------- //

func (p *Poller) loop() {
	defer close(p.done)

	interval := defaultInterval
	event := Started

	for {
		resp, err := p.poll(event)
		if err != nil {
			p.log.Warnw("tracker: poll failed", "err", err)
		} else {
			if resp.interval > 0 {
				interval = time.Duration(resp.interval) * time.Second
			}

			p.connectPeers(resp.peers)
		}

		event = p.nextEvent()

		select {
		case <-p.stop:
			p.pollStopped()
			return
		case <-time.After(interval):
		}
	}
}

// --------------------------------------------------------------------------------------------- //

// nextEvent decides the event for the next steady-state poll: "completed"
// exactly once when left transitions to zero, otherwise omitted.
func (p *Poller) nextEvent() Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.Left() == 0 && !p.completed {
		p.completed = true
		p.state.MarkCompleted()

		return Completed
	}

	return None
}

// --------------------------------------------------------------------------------------------- //

// pollStopped sends the final, best-effort poll with event=stopped; its
// response (if any) is discarded — no peers are connected from it.
func (p *Poller) pollStopped() {
	if _, err := p.poll(Stopped); err != nil {
		p.log.Warnw("tracker: stopped poll failed", "err", err)
	}
}

// --------------------------------------------------------------------------------------------- //

// Stop interrupts the polling loop's sleep, sends a final stopped event,
// and waits for the loop to exit.
func (p *Poller) Stop() {
	close(p.stop)
	<-p.done
}

// --------------------------------------------------------------------------------------------- //

type trackerResponse struct {
	interval int
	peers    []peerEntry
}

type peerEntry struct {
	id   [20]byte
	ip   string
	port int
}

// --------------------------------------------------------------------------------------------- //

func (p *Poller) announceURL(event Event) string {
	torrent := p.state.Torrent()
	infoHash := torrent.InfoHash
	peerID := p.state.PeerID()

	var b strings.Builder

	b.WriteString(string(torrent.Announce))
	b.WriteString("?info_hash=")
	b.WriteString(urlEncodeBytes(infoHash[:]))
	b.WriteString("&peer_id=")
	b.WriteString(urlEncodeBytes(peerID[:]))
	fmt.Fprintf(&b, "&port=%d", p.state.Port())
	fmt.Fprintf(&b, "&uploaded=%d", p.state.Uploaded())
	fmt.Fprintf(&b, "&downloaded=%d", p.state.Downloaded())
	fmt.Fprintf(&b, "&left=%d", p.state.Left())

	if event != None {
		b.WriteString("&event=")
		b.WriteString(string(event))
	}

	return b.String()
}

// --------------------------------------------------------------------------------------------- //

// urlEncodeBytes percent-encodes raw bytes, leaving only the unreserved
// set (A-Za-z0-9-._~) unescaped — the encoding BEP 3 requires for
// info_hash and peer_id, which are not valid UTF-8 in general.
func urlEncodeBytes(data []byte) string {
	const hex = "0123456789ABCDEF"

	var b strings.Builder

	for _, c := range data {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '-', c == '.', c == '_', c == '~':
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0x0f])
		}
	}

	return b.String()
}

// --------------------------------------------------------------------------------------------- //

func (p *Poller) poll(event Event) (trackerResponse, error) {
	url := p.announceURL(event)

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return trackerResponse{}, fmt.Errorf("tracker: building request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return trackerResponse{}, fmt.Errorf("tracker: GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	body := make([]byte, 0, 4096)
	buf := make([]byte, 4096)

	for {
		n, err := resp.Body.Read(buf)
		body = append(body, buf[:n]...)

		if err != nil {
			break
		}
	}

	root, n := bencode.Decode(body)
	if n == 0 || root.Kind != bencode.Dict {
		return trackerResponse{}, fmt.Errorf("tracker: malformed bencoded response from %s", url)
	}

	if reason, ok := bencode.Lookup(root, "failure reason"); ok && reason.Kind == bencode.String {
		return trackerResponse{}, fmt.Errorf("tracker: failure reason: %s", reason.Str)
	}

	// Optional extension fields the response may carry that this client
	// does not model directly — decoded with jackpal/bencode-go into a
	// loosely-typed map purely for observability, never displacing the
	// strict bencode package above for the fields this client relies on.
	var extras map[string]interface{}
	if err := bencodego.Unmarshal(bytes.NewReader(body), &extras); err == nil {
		if warn, ok := extras["warning message"].(string); ok && warn != "" {
			p.log.Infow("tracker: warning message", "warning", warn)
		}
	}

	out := trackerResponse{interval: 0}

	if iv, ok := bencode.Lookup(root, "interval"); ok && iv.Kind == bencode.Integer && iv.Int > 0 {
		out.interval = int(iv.Int)
	}

	peersValue, ok := bencode.Lookup(root, "peers")
	if ok && peersValue.Kind == bencode.List {
		for _, entry := range peersValue.List {
			if entry.Kind != bencode.Dict {
				continue
			}

			pe, ok := parsePeerEntry(entry)
			if ok {
				out.peers = append(out.peers, pe)
			}
		}
	}

	return out, nil
}

// --------------------------------------------------------------------------------------------- //

func parsePeerEntry(entry bencode.Value) (peerEntry, bool) {
	ipVal, ok := bencode.Lookup(entry, "ip")
	if !ok || ipVal.Kind != bencode.String {
		return peerEntry{}, false
	}

	portVal, ok := bencode.Lookup(entry, "port")
	if !ok || portVal.Kind != bencode.Integer || portVal.Int < 0 || portVal.Int > 65535 {
		return peerEntry{}, false
	}

	var id [20]byte
	if idVal, ok := bencode.Lookup(entry, "peer id"); ok && idVal.Kind == bencode.String {
		copy(id[:], idVal.Str)
	}

	return peerEntry{id: id, ip: string(ipVal.Str), port: int(portVal.Int)}, true
}

// --------------------------------------------------------------------------------------------- //

func (p *Poller) connectPeers(peers []peerEntry) {
	torrent := p.state.Torrent()

	for _, pe := range peers {
		addr := fmt.Sprintf("%s:%d", pe.ip, pe.port)

		conn, remoteID, err := handshake.Outbound(addr, torrent.InfoHash, p.state.PeerID())
		if err != nil {
			p.log.Debugw("tracker: peer handshake failed", "addr", addr, "err", err)
			continue
		}

		p.state.AddConnectedPeer(remoteID, conn)
		p.log.Infow("tracker: connected to peer", "addr", addr)
	}
}
