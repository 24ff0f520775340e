package handler

import (
	"net/http"

	"github.com/Eursukkul/court-booking/internal/dto"
	"github.com/Eursukkul/court-booking/internal/models"
	"github.com/Eursukkul/court-booking/internal/service"
	"github.com/Eursukkul/court-booking/internal/timegrid"
	"github.com/labstack/echo/v4"
)

type FacilityHandler struct {
	svc service.FacilityService
}

func NewFacilityHandler(svc service.FacilityService) *FacilityHandler {
	return &FacilityHandler{svc: svc}
}

func (h *FacilityHandler) RegisterRoutes(g *echo.Group) {
	g.POST("", h.CreateFacility)
	g.GET("", h.ListFacilities)
	g.GET("/:id", h.GetFacility)
	g.PUT("/:id/hours", h.UpdateHours)
}

func (h *FacilityHandler) CreateFacility(c echo.Context) error {
	var req dto.CreateFacilityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if req.Name == "" || req.PricePerSlotCents <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "name and price_per_slot_cents (>0) are required")
	}
	open, err := timegrid.ParseClock(req.OpensAt)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "opens_at must be HH:MM")
	}
	closing := timegrid.Minute(timegrid.MinutesPerDay)
	if req.ClosesAt != "24:00" {
		if closing, err = timegrid.ParseClock(req.ClosesAt); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "closes_at must be HH:MM")
		}
	}

	f := &models.Facility{
		ID:                req.ID,
		Name:              req.Name,
		Sport:             req.Sport,
		OpenMinute:        int(open),
		CloseMinute:       int(closing),
		PricePerSlotCents: req.PricePerSlotCents,
		Currency:          req.Currency,
	}

	if err := h.svc.CreateFacility(c.Request().Context(), f); err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusCreated, dto.ToFacilityResponse(f))
}

func (h *FacilityHandler) GetFacility(c echo.Context) error {
	f, err := h.svc.GetFacility(c.Request().Context(), c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, dto.ToFacilityResponse(f))
}

func (h *FacilityHandler) ListFacilities(c echo.Context) error {
	facilities, err := h.svc.ListFacilities(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	resp := make([]dto.FacilityResponse, len(facilities))
	for i := range facilities {
		resp[i] = dto.ToFacilityResponse(&facilities[i])
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *FacilityHandler) UpdateHours(c echo.Context) error {
	var req dto.UpdateHoursRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	f, err := h.svc.UpdateHours(c.Request().Context(), c.Param("id"), req.OpensAt, req.ClosesAt)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, dto.ToFacilityResponse(f))
}
