// Package live pushes chip scans to connected kiosk screens over
// websockets.
package live

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/websocket"

	"raceinfo/registry"
)

// TagRow is one kiosk line, keyed exactly like the legacy screen payload.
type TagRow struct {
	FirstName *string  `json:"FirstName,omitempty"`
	LastName  *string  `json:"LastName,omitempty"`
	ChipID    string   `json:"ChipId"`
	Bib       *string  `json:"Bib,omitempty"`
	Category  *string  `json:"Category,omitempty"`
	RaceDate  *string  `json:"RaceDate,omitempty"`
	Problem   []string `json:"problem,omitempty"`
}

// Frame is what goes over the wire. The kiosk frontend switches on the
// event name; "new_racer" with an empty data list clears the screen.
type Frame struct {
	Event string   `json:"event"`
	Data  []TagRow `json:"data"`
}

type peer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (p *peer) send(f Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enc.Encode(f)
}

// Hub tracks connected screens and the most recent scan. Safe for
// concurrent use.
type Hub struct {
	mu       sync.Mutex
	peers    map[*peer]struct{}
	lastChip string
	lastRows []TagRow
	lastSeen time.Time

	ttl  time.Duration
	tick time.Duration
	log  *zap.Logger
}

// NewHub builds a hub that clears screens after the chip has been idle
// for ttl. A zero ttl means the legacy ten seconds.
func NewHub(ttl time.Duration, log *zap.Logger) *Hub {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Hub{
		peers: make(map[*peer]struct{}),
		ttl:   ttl,
		tick:  time.Second,
		log:   log,
	}
}

// Handler upgrades kiosk connections. A new screen immediately gets the
// current rows; after that screens only listen, so the server side just
// drains the connection until it drops.
func (h *Hub) Handler() http.Handler {
	return websocket.Handler(func(conn *websocket.Conn) {
		p := &peer{enc: json.NewEncoder(conn)}
		h.add(p)
		defer h.remove(p)
		io.Copy(io.Discard, conn)
	})
}

func (h *Hub) add(p *peer) {
	h.mu.Lock()
	h.peers[p] = struct{}{}
	n := len(h.peers)
	rows := h.lastRows
	h.mu.Unlock()
	h.log.Info("kiosk connected", zap.Int("peers", n))

	if rows == nil {
		rows = []TagRow{}
	}
	if err := p.send(Frame{Event: "new_racer", Data: rows}); err != nil {
		h.log.Debug("kiosk write failed", zap.Error(err))
	}
}

func (h *Hub) remove(p *peer) {
	h.mu.Lock()
	delete(h.peers, p)
	n := len(h.peers)
	h.mu.Unlock()
	h.log.Info("kiosk disconnected", zap.Int("peers", n))
}

// Peers reports how many screens are connected.
func (h *Hub) Peers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// Scan records a chip read and pushes its rows to every screen.
func (h *Hub) Scan(chipID string, rows []TagRow) {
	h.mu.Lock()
	h.lastChip = chipID
	h.lastRows = rows
	h.lastSeen = time.Now()
	peers := h.peerList()
	h.mu.Unlock()

	h.broadcast(peers, Frame{Event: "new_racer", Data: rows})
}

// Run drives the idle expiry until ctx ends. Call it in a goroutine.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			h.expire()
		}
	}
}

func (h *Hub) expire() {
	h.mu.Lock()
	if h.lastChip == "" || time.Since(h.lastSeen) <= h.ttl {
		h.mu.Unlock()
		return
	}
	chip := h.lastChip
	h.lastChip = ""
	h.lastRows = nil
	peers := h.peerList()
	h.mu.Unlock()

	h.log.Info("expiring chip", zap.String("chipID", chip))
	h.broadcast(peers, Frame{Event: "new_racer", Data: []TagRow{}})
}

// peerList copies the peer set; callers hold h.mu.
func (h *Hub) peerList() []*peer {
	peers := make([]*peer, 0, len(h.peers))
	for p := range h.peers {
		peers = append(peers, p)
	}
	return peers
}

func (h *Hub) broadcast(peers []*peer, f Frame) {
	for _, p := range peers {
		if err := p.send(f); err != nil {
			h.log.Debug("kiosk write failed", zap.Error(err))
		}
	}
}

// RowsForChip flattens chip sightings into kiosk rows. Unknown chips get
// a single "Not registered" row; known rows with holes list the missing
// fields so the operator can fix the registration.
func RowsForChip(chipID string, sightings []registry.ChipSighting) []TagRow {
	if len(sightings) == 0 {
		return []TagRow{{ChipID: chipID, Problem: []string{"Not registered"}}}
	}
	rows := make([]TagRow, 0, len(sightings))
	for _, s := range sightings {
		row := TagRow{
			FirstName: s.Racer.FirstName,
			LastName:  s.Racer.LastName,
			ChipID:    chipID,
			Bib:       s.Bib,
			Category:  s.Category,
			RaceDate:  s.Race.Date,
		}
		row.Problem = missingFields(row)
		rows = append(rows, row)
	}
	return rows
}

func missingFields(r TagRow) []string {
	var missing []string
	if blank(r.FirstName) {
		missing = append(missing, "FirstName")
	}
	if blank(r.LastName) {
		missing = append(missing, "LastName")
	}
	if r.ChipID == "" {
		missing = append(missing, "ChipId")
	}
	if blank(r.Bib) {
		missing = append(missing, "Bib")
	}
	if blank(r.Category) {
		missing = append(missing, "Category")
	}
	if blank(r.RaceDate) {
		missing = append(missing, "RaceDate")
	}
	return missing
}

func blank(p *string) bool {
	return p == nil || *p == ""
}
