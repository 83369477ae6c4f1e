package live

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/net/websocket"

	"raceinfo/models"
	"raceinfo/registry"
)

func sp(s string) *string { return &s }

type wsClient struct {
	conn *websocket.Conn
	dec  *json.Decoder
}

// dialHub connects a screen and consumes the greeting frame, so the
// caller's next read is the first broadcast after connecting.
func dialHub(t *testing.T, url string) *wsClient {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(url, "http")
	conn, err := websocket.Dial(wsURL, "", url)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	c := &wsClient{conn: conn, dec: json.NewDecoder(conn)}
	g := c.read(t)
	require.Equal(t, "new_racer", g.Event)
	return c
}

func (c *wsClient) read(t *testing.T) Frame {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f Frame
	require.NoError(t, c.dec.Decode(&f))
	return f
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func TestHubBroadcastsScanToAllScreens(t *testing.T) {
	hub := NewHub(0, zap.NewNop())
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	a := dialHub(t, srv.URL)
	b := dialHub(t, srv.URL)
	require.Equal(t, 2, hub.Peers())

	hub.Scan("AA01", RowsForChip("AA01", nil))

	for _, c := range []*wsClient{a, b} {
		f := c.read(t)
		require.Equal(t, "new_racer", f.Event)
		require.Len(t, f.Data, 1)
		require.Equal(t, "AA01", f.Data[0].ChipID)
		require.Equal(t, []string{"Not registered"}, f.Data[0].Problem)
	}
}

func TestHubExpiresIdleChip(t *testing.T) {
	hub := NewHub(30*time.Millisecond, zap.NewNop())
	hub.tick = 10 * time.Millisecond
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	c := dialHub(t, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	hub.Scan("AA01", RowsForChip("AA01", nil))

	first := c.read(t)
	require.Len(t, first.Data, 1)

	// After the TTL the hub pushes an empty list to idle the screen.
	second := c.read(t)
	require.Equal(t, "new_racer", second.Event)
	require.Empty(t, second.Data)
}

func TestHubDropsClosedPeers(t *testing.T) {
	hub := NewHub(0, zap.NewNop())
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	c := dialHub(t, srv.URL)
	require.Equal(t, 1, hub.Peers())

	require.NoError(t, c.conn.Close())
	waitFor(t, func() bool { return hub.Peers() == 0 })
}

func TestHubGreetsNewScreenWithCurrentRows(t *testing.T) {
	hub := NewHub(0, zap.NewNop())
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	hub.Scan("AA01", RowsForChip("AA01", nil))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, err := websocket.Dial(wsURL, "", srv.URL)
	require.NoError(t, err)
	defer conn.Close()

	c := &wsClient{conn: conn, dec: json.NewDecoder(conn)}
	g := c.read(t)
	require.Equal(t, "new_racer", g.Event)
	require.Len(t, g.Data, 1)
	require.Equal(t, "AA01", g.Data[0].ChipID)
}

func TestRowsForChip(t *testing.T) {
	full := registry.ChipSighting{
		Participation: models.Participation{RaceID: 1, RacerID: 2, Bib: sp("12"), ChipID: sp("AA01"), Category: sp("5km Run")},
		Racer:         models.Racer{RacerID: 2, FirstName: sp("Ann"), LastName: sp("Ash")},
		Race:          models.Race{RaceID: 1, Date: sp("2026-02-28")},
	}
	rows := RowsForChip("AA01", []registry.ChipSighting{full})
	require.Len(t, rows, 1)
	require.Nil(t, rows[0].Problem)
	require.Equal(t, "Ann", *rows[0].FirstName)
	require.Equal(t, "2026-02-28", *rows[0].RaceDate)

	holes := full
	holes.Bib = nil
	holes.Category = sp("")
	rows = RowsForChip("AA01", []registry.ChipSighting{holes})
	require.Equal(t, []string{"Bib", "Category"}, rows[0].Problem)

	rows = RowsForChip("ZZ99", nil)
	require.Len(t, rows, 1)
	require.Equal(t, []string{"Not registered"}, rows[0].Problem)
}

func TestTagRowWireFormat(t *testing.T) {
	rows := RowsForChip("AA01", []registry.ChipSighting{{
		Participation: models.Participation{Bib: sp("12"), Category: sp("5km Run")},
		Racer:         models.Racer{FirstName: sp("Ann"), LastName: sp("Ash")},
		Race:          models.Race{Date: sp("2026-02-28")},
	}})
	b, err := json.Marshal(Frame{Event: "new_racer", Data: rows})
	require.NoError(t, err)

	// The kiosk frontend depends on these exact keys.
	s := string(b)
	require.Contains(t, s, `"event":"new_racer"`)
	require.Contains(t, s, `"ChipId":"AA01"`)
	require.Contains(t, s, `"FirstName":"Ann"`)
	require.Contains(t, s, `"RaceDate":"2026-02-28"`)
	require.NotContains(t, s, `"problem"`)
}
