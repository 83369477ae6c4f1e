package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"raceinfo/models"
)

// Racers returns all racers ordered by RacerId.
func (h *Handler) Racers(c echo.Context) error {
	return c.JSON(http.StatusOK, h.reg.ListRacers())
}

// GetRacer returns a single racer.
func (h *Handler) GetRacer(c echo.Context) error {
	racerID, err := intParam(c, "racerID")
	if err != nil {
		return err
	}
	racer, ok := h.reg.GetRacer(racerID)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "racer not found")
	}
	return c.JSON(http.StatusOK, racer)
}

// CreateRacer inserts a new racer. The RacerId is assigned here; any id in
// the request body is ignored.
func (h *Handler) CreateRacer(c echo.Context) error {
	var racer models.Racer
	if err := c.Bind(&racer); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	created, err := h.reg.CreateRacer(racer)
	if err != nil {
		return httpError(err)
	}
	if h.store != nil {
		if err := h.store.SaveRacer(c.Request().Context(), created); err != nil {
			return httpError(err)
		}
	}
	return c.JSON(http.StatusCreated, created)
}

// DeleteRacer removes a racer and all their participations.
func (h *Handler) DeleteRacer(c echo.Context) error {
	racerID, err := intParam(c, "racerID")
	if err != nil {
		return err
	}
	if err := h.reg.DeleteRacer(racerID); err != nil {
		return httpError(err)
	}
	if h.store != nil {
		if err := h.store.DeleteRacer(c.Request().Context(), racerID); err != nil {
			return httpError(err)
		}
	}
	return c.NoContent(http.StatusNoContent)
}
