package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"raceinfo/live"
)

type tagRequest struct {
	ChipID *string `json:"chipid"`
}

// Tag receives a chip read from the timing reader, looks the chip up and
// broadcasts the result to every kiosk screen.
func (h *Handler) Tag(c echo.Context) error {
	var req tagRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ChipID == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "chipid required")
	}
	chip := *req.ChipID

	rows := live.RowsForChip(chip, h.reg.LookupChip(chip))
	if h.hub != nil {
		h.hub.Scan(chip, rows)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok", "chipid": chip})
}

// Chips returns every race a chip is registered in.
func (h *Handler) Chips(c echo.Context) error {
	chip := c.Param("chipID")
	if chip == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "chipID is required")
	}
	return c.JSON(http.StatusOK, h.reg.LookupChip(chip))
}
