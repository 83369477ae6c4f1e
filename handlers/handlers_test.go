package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/net/websocket"

	"raceinfo/live"
	"raceinfo/models"
	"raceinfo/registry"
)

func sp(s string) *string { return &s }

func request(method, target, body string) (*http.Request, *httptest.ResponseRecorder) {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	return req, httptest.NewRecorder()
}

func seedRace(t *testing.T, reg *registry.Registry, raceID int, name string) {
	t.Helper()
	_, err := reg.CreateRace(models.Race{RaceID: raceID, Name: sp(name), Date: sp("2026-02-28")})
	require.NoError(t, err)
}

func seedRacer(t *testing.T, reg *registry.Registry, first, last, email string) int {
	t.Helper()
	racer, err := reg.CreateRacer(models.Racer{FirstName: sp(first), LastName: sp(last), Email: sp(email)})
	require.NoError(t, err)
	return racer.RacerID
}

func TestHealth(t *testing.T) {
	h := New(registry.New(), nil, nil)
	e := echo.New()
	req, rec := request(http.MethodGet, "/health", "")

	require.NoError(t, h.Health(e.NewContext(req, rec)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK", rec.Body.String())
}

func TestCreateRace(t *testing.T) {
	h := New(registry.New(), nil, nil)
	e := echo.New()

	req, rec := request(http.MethodPost, "/api/races", `{"RaceId": 101, "Name": "Bay 10k", "City": "Cape Town"}`)
	require.NoError(t, h.CreateRace(e.NewContext(req, rec)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var race models.Race
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &race))
	require.Equal(t, 101, race.RaceID)
	require.Equal(t, "Bay 10k", *race.Name)

	// The wire format uses the schema's exact key names.
	require.Contains(t, rec.Body.String(), `"RaceId":101`)

	// Same id again conflicts.
	req, rec = request(http.MethodPost, "/api/races", `{"RaceId": 101, "Name": "Other"}`)
	err := h.CreateRace(e.NewContext(req, rec))
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	require.Equal(t, http.StatusConflict, he.Code)

	// A race without an id is rejected.
	req, rec = request(http.MethodPost, "/api/races", `{"Name": "No id"}`)
	err = h.CreateRace(e.NewContext(req, rec))
	require.ErrorAs(t, err, &he)
	require.Equal(t, http.StatusBadRequest, he.Code)
}

func TestGetRace(t *testing.T) {
	reg := registry.New()
	seedRace(t, reg, 101, "Bay 10k")
	h := New(reg, nil, nil)
	e := echo.New()

	req, rec := request(http.MethodGet, "/api/races/101", "")
	c := e.NewContext(req, rec)
	c.SetParamNames("raceID")
	c.SetParamValues("101")
	require.NoError(t, h.GetRace(c))
	require.Equal(t, http.StatusOK, rec.Code)

	req, rec = request(http.MethodGet, "/api/races/404", "")
	c = e.NewContext(req, rec)
	c.SetParamNames("raceID")
	c.SetParamValues("404")
	err := h.GetRace(c)
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	require.Equal(t, http.StatusNotFound, he.Code)

	req, rec = request(http.MethodGet, "/api/races/nope", "")
	c = e.NewContext(req, rec)
	c.SetParamNames("raceID")
	c.SetParamValues("nope")
	err = h.GetRace(c)
	require.ErrorAs(t, err, &he)
	require.Equal(t, http.StatusBadRequest, he.Code)
}

func TestCreateRacer(t *testing.T) {
	h := New(registry.New(), nil, nil)
	e := echo.New()

	req, rec := request(http.MethodPost, "/api/racers", `{"FirstName": "Ann", "LastName": "Ash", "Email": "ann@x.org"}`)
	require.NoError(t, h.CreateRacer(e.NewContext(req, rec)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var racer models.Racer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &racer))
	require.Equal(t, 1, racer.RacerID)

	// A caller-supplied RacerId does not stick.
	req, rec = request(http.MethodPost, "/api/racers", `{"RacerId": 99, "FirstName": "Ben", "LastName": "Burk", "Email": "ben@x.org"}`)
	require.NoError(t, h.CreateRacer(e.NewContext(req, rec)))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &racer))
	require.Equal(t, 2, racer.RacerID)

	// Full identity duplicates conflict.
	req, rec = request(http.MethodPost, "/api/racers", `{"FirstName": "Ann", "LastName": "Ash", "Email": "ann@x.org"}`)
	err := h.CreateRacer(e.NewContext(req, rec))
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	require.Equal(t, http.StatusConflict, he.Code)

	// Incomplete identities never conflict.
	req, rec = request(http.MethodPost, "/api/racers", `{"FirstName": "Ann", "LastName": "Ash"}`)
	require.NoError(t, h.CreateRacer(e.NewContext(req, rec)))
	req, rec = request(http.MethodPost, "/api/racers", `{"FirstName": "Ann", "LastName": "Ash"}`)
	require.NoError(t, h.CreateRacer(e.NewContext(req, rec)))
}

func TestEnrollUpdateWithdraw(t *testing.T) {
	reg := registry.New()
	seedRace(t, reg, 7, "Forest run")
	racerID := seedRacer(t, reg, "Ann", "Ash", "ann@x.org")
	h := New(reg, nil, nil)
	e := echo.New()

	enroll := func(body string) (*httptest.ResponseRecorder, error) {
		req, rec := request(http.MethodPost, "/api/races/7/participants", body)
		c := e.NewContext(req, rec)
		c.SetParamNames("raceID")
		c.SetParamValues("7")
		return rec, h.Enroll(c)
	}

	rec, err := enroll(`{"RacerId": 1, "Bib": "12", "ChipId": "AA01", "Category": "5km Run"}`)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, rec.Code)

	var he *echo.HTTPError
	_, err = enroll(`{"RacerId": 1}`)
	require.ErrorAs(t, err, &he)
	require.Equal(t, http.StatusConflict, he.Code)

	_, err = enroll(`{"RacerId": 42}`)
	require.ErrorAs(t, err, &he)
	require.Equal(t, http.StatusNotFound, he.Code)

	_, err = enroll(`{}`)
	require.ErrorAs(t, err, &he)
	require.Equal(t, http.StatusBadRequest, he.Code)

	// List shows the enrollment with racer details.
	req, lrec := request(http.MethodGet, "/api/races/7/participants", "")
	c := e.NewContext(req, lrec)
	c.SetParamNames("raceID")
	c.SetParamValues("7")
	require.NoError(t, h.Participants(c))
	var field []registry.Entrant
	require.NoError(t, json.Unmarshal(lrec.Body.Bytes(), &field))
	require.Len(t, field, 1)
	require.Equal(t, "Ann", *field[0].Racer.FirstName)
	require.Equal(t, "12", *field[0].Bib)

	// A partial update touches only the supplied fields.
	req, urec := request(http.MethodPut, "/api/races/7/participants/1", `{"Bib": "99"}`)
	c = e.NewContext(req, urec)
	c.SetParamNames("raceID", "racerID")
	c.SetParamValues("7", "1")
	require.NoError(t, h.UpdateParticipant(c))
	var part models.Participation
	require.NoError(t, json.Unmarshal(urec.Body.Bytes(), &part))
	require.Equal(t, "99", *part.Bib)
	require.Equal(t, "AA01", *part.ChipID)
	require.Equal(t, "5km Run", *part.Category)

	// Withdraw, then the enrollment is gone but both sides remain.
	req, wrec := request(http.MethodDelete, "/api/races/7/participants/1", "")
	c = e.NewContext(req, wrec)
	c.SetParamNames("raceID", "racerID")
	c.SetParamValues("7", "1")
	require.NoError(t, h.Withdraw(c))
	require.Equal(t, http.StatusNoContent, wrec.Code)

	req, grec := request(http.MethodGet, "/api/races/7/participants/1", "")
	c = e.NewContext(req, grec)
	c.SetParamNames("raceID", "racerID")
	c.SetParamValues("7", "1")
	err = h.GetParticipation(c)
	require.ErrorAs(t, err, &he)
	require.Equal(t, http.StatusNotFound, he.Code)

	_, ok := reg.GetRace(7)
	require.True(t, ok)
	_, ok = reg.GetRacer(racerID)
	require.True(t, ok)
}

func TestDeleteRaceCascades(t *testing.T) {
	reg := registry.New()
	seedRace(t, reg, 7, "Forest run")
	racerID := seedRacer(t, reg, "Ann", "Ash", "ann@x.org")
	_, err := reg.EnrollParticipant(models.Participation{RaceID: 7, RacerID: racerID})
	require.NoError(t, err)

	h := New(reg, nil, nil)
	e := echo.New()

	req, rec := request(http.MethodDelete, "/api/races/7", "")
	c := e.NewContext(req, rec)
	c.SetParamNames("raceID")
	c.SetParamValues("7")
	require.NoError(t, h.DeleteRace(c))
	require.Equal(t, http.StatusNoContent, rec.Code)

	_, ok := reg.GetParticipation(7, racerID)
	require.False(t, ok)
	_, ok = reg.GetRacer(racerID)
	require.True(t, ok)

	// Deleting again is a 404.
	req, rec = request(http.MethodDelete, "/api/races/7", "")
	c = e.NewContext(req, rec)
	c.SetParamNames("raceID")
	c.SetParamValues("7")
	err = h.DeleteRace(c)
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	require.Equal(t, http.StatusNotFound, he.Code)
}

func TestChips(t *testing.T) {
	reg := registry.New()
	seedRace(t, reg, 1, "Saturday 5k")
	racerID := seedRacer(t, reg, "Ann", "Ash", "ann@x.org")
	_, err := reg.EnrollParticipant(models.Participation{RaceID: 1, RacerID: racerID, ChipID: sp("AA01")})
	require.NoError(t, err)

	h := New(reg, nil, nil)
	e := echo.New()

	req, rec := request(http.MethodGet, "/api/chips/AA01", "")
	c := e.NewContext(req, rec)
	c.SetParamNames("chipID")
	c.SetParamValues("AA01")
	require.NoError(t, h.Chips(c))

	var hits []registry.ChipSighting
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hits))
	require.Len(t, hits, 1)
	require.Equal(t, "Saturday 5k", *hits[0].Race.Name)

	// Unknown chips return an empty list, not an error.
	req, rec = request(http.MethodGet, "/api/chips/ZZ99", "")
	c = e.NewContext(req, rec)
	c.SetParamNames("chipID")
	c.SetParamValues("ZZ99")
	require.NoError(t, h.Chips(c))
	require.Equal(t, "[]\n", rec.Body.String())
}

func TestTagRequiresChipID(t *testing.T) {
	h := New(registry.New(), nil, nil)
	e := echo.New()

	req, rec := request(http.MethodPost, "/api/tag", `{}`)
	err := h.Tag(e.NewContext(req, rec))
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	require.Equal(t, http.StatusBadRequest, he.Code)
}

func TestTagBroadcastsToKiosk(t *testing.T) {
	reg := registry.New()
	seedRace(t, reg, 1, "Saturday 5k")
	racerID := seedRacer(t, reg, "Ann", "Ash", "ann@x.org")
	_, err := reg.EnrollParticipant(models.Participation{RaceID: 1, RacerID: racerID, Bib: sp("12"), ChipID: sp("AA01"), Category: sp("5km Run")})
	require.NoError(t, err)

	hub := live.NewHub(0, zap.NewNop())
	h := New(reg, nil, hub)

	e := echo.New()
	e.POST("/api/tag", h.Tag)
	e.GET("/ws", echo.WrapHandler(hub.Handler()))
	srv := httptest.NewServer(e)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, err := websocket.Dial(wsURL, "", srv.URL)
	require.NoError(t, err)
	defer conn.Close()

	// The greeting frame confirms the screen is registered.
	dec := json.NewDecoder(conn)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var greeting live.Frame
	require.NoError(t, dec.Decode(&greeting))
	require.Equal(t, "new_racer", greeting.Event)
	require.Empty(t, greeting.Data)
	require.Equal(t, 1, hub.Peers())

	resp, err := http.Post(srv.URL+"/api/tag", "application/json", strings.NewReader(`{"chipid": "AA01"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ack map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ack))
	require.Equal(t, "ok", ack["status"])
	require.Equal(t, "AA01", ack["chipid"])

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame live.Frame
	require.NoError(t, dec.Decode(&frame))
	require.Equal(t, "new_racer", frame.Event)
	require.Len(t, frame.Data, 1)
	require.Equal(t, "Ann", *frame.Data[0].FirstName)
	require.Equal(t, "2026-02-28", *frame.Data[0].RaceDate)
	require.Empty(t, frame.Data[0].Problem)
}
