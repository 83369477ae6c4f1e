package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"raceinfo/db"
	"raceinfo/live"
	"raceinfo/registry"
)

// Handler holds shared dependencies used by all route handlers. The
// registry decides what is allowed; the store mirrors accepted changes;
// the hub fans scans out to kiosk screens.
type Handler struct {
	reg   *registry.Registry
	store *db.Store
	hub   *live.Hub
}

// New creates a Handler. store and hub may be nil when running without a
// database or without kiosk screens.
func New(reg *registry.Registry, store *db.Store, hub *live.Hub) *Handler {
	return &Handler{reg: reg, store: store, hub: hub}
}

// Health is the probe endpoint.
func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// httpError maps registry failures onto HTTP status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, registry.ErrRaceNotFound),
		errors.Is(err, registry.ErrRacerNotFound),
		errors.Is(err, registry.ErrParticipationNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, registry.ErrDuplicateRaceID),
		errors.Is(err, registry.ErrDuplicateIdentity),
		errors.Is(err, registry.ErrAlreadyEnrolled):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func intParam(c echo.Context, name string) (int, error) {
	n, err := strconv.Atoi(c.Param(name))
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, name+" must be an integer")
	}
	return n, nil
}
