package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"raceinfo/models"
)

// Races returns all races ordered by RaceId.
func (h *Handler) Races(c echo.Context) error {
	return c.JSON(http.StatusOK, h.reg.ListRaces())
}

// GetRace returns a single race.
func (h *Handler) GetRace(c echo.Context) error {
	raceID, err := intParam(c, "raceID")
	if err != nil {
		return err
	}
	race, ok := h.reg.GetRace(raceID)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "race not found")
	}
	return c.JSON(http.StatusOK, race)
}

// CreateRace inserts a new race under its caller-assigned RaceId.
func (h *Handler) CreateRace(c echo.Context) error {
	var race models.Race
	if err := c.Bind(&race); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if race.RaceID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "RaceId is required")
	}

	created, err := h.reg.CreateRace(race)
	if err != nil {
		return httpError(err)
	}
	if h.store != nil {
		if err := h.store.SaveRace(c.Request().Context(), created); err != nil {
			return httpError(err)
		}
	}
	return c.JSON(http.StatusCreated, created)
}

// DeleteRace removes a race and everything enrolled in it.
func (h *Handler) DeleteRace(c echo.Context) error {
	raceID, err := intParam(c, "raceID")
	if err != nil {
		return err
	}
	if err := h.reg.DeleteRace(raceID); err != nil {
		return httpError(err)
	}
	if h.store != nil {
		if err := h.store.DeleteRace(c.Request().Context(), raceID); err != nil {
			return httpError(err)
		}
	}
	return c.NoContent(http.StatusNoContent)
}
