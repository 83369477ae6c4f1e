package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"raceinfo/models"
)

type enrollRequest struct {
	RacerID  int     `json:"RacerId"`
	Bib      *string `json:"Bib"`
	ChipID   *string `json:"ChipId"`
	Category *string `json:"Category"`
}

type updateParticipantRequest struct {
	Bib      *string `json:"Bib"`
	ChipID   *string `json:"ChipId"`
	Category *string `json:"Category"`
}

// Participants returns a race's field with racer details, ordered by
// RacerId.
func (h *Handler) Participants(c echo.Context) error {
	raceID, err := intParam(c, "raceID")
	if err != nil {
		return err
	}
	field, err := h.reg.ListParticipants(raceID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, field)
}

// Enroll adds an existing racer to a race.
func (h *Handler) Enroll(c echo.Context) error {
	raceID, err := intParam(c, "raceID")
	if err != nil {
		return err
	}
	var req enrollRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.RacerID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "RacerId is required")
	}

	part := models.Participation{
		RaceID:   raceID,
		RacerID:  req.RacerID,
		Bib:      req.Bib,
		ChipID:   req.ChipID,
		Category: req.Category,
	}
	created, err := h.reg.EnrollParticipant(part)
	if err != nil {
		return httpError(err)
	}
	if h.store != nil {
		if err := h.store.SaveParticipation(c.Request().Context(), created); err != nil {
			return httpError(err)
		}
	}
	return c.JSON(http.StatusCreated, created)
}

// GetParticipation returns one enrollment.
func (h *Handler) GetParticipation(c echo.Context) error {
	raceID, err := intParam(c, "raceID")
	if err != nil {
		return err
	}
	racerID, err := intParam(c, "racerID")
	if err != nil {
		return err
	}
	part, ok := h.reg.GetParticipation(raceID, racerID)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "participation not found")
	}
	return c.JSON(http.StatusOK, part)
}

// UpdateParticipant patches an enrollment; absent fields are left alone.
func (h *Handler) UpdateParticipant(c echo.Context) error {
	raceID, err := intParam(c, "raceID")
	if err != nil {
		return err
	}
	racerID, err := intParam(c, "racerID")
	if err != nil {
		return err
	}
	var req updateParticipantRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	part := models.Participation{
		RaceID:   raceID,
		RacerID:  racerID,
		Bib:      req.Bib,
		ChipID:   req.ChipID,
		Category: req.Category,
	}
	updated, err := h.reg.UpdateParticipant(part)
	if err != nil {
		return httpError(err)
	}
	if h.store != nil {
		if err := h.store.SaveParticipation(c.Request().Context(), updated); err != nil {
			return httpError(err)
		}
	}
	return c.JSON(http.StatusOK, updated)
}

// Withdraw removes one racer from one race.
func (h *Handler) Withdraw(c echo.Context) error {
	raceID, err := intParam(c, "raceID")
	if err != nil {
		return err
	}
	racerID, err := intParam(c, "racerID")
	if err != nil {
		return err
	}
	if err := h.reg.DeleteParticipant(raceID, racerID); err != nil {
		return httpError(err)
	}
	if h.store != nil {
		if err := h.store.DeleteParticipation(c.Request().Context(), raceID, racerID); err != nil {
			return httpError(err)
		}
	}
	return c.NoContent(http.StatusNoContent)
}
