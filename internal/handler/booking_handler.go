package handler

import (
	"errors"
	"net/http"

	"github.com/Eursukkul/court-booking/internal/dto"
	"github.com/Eursukkul/court-booking/internal/middleware"
	"github.com/Eursukkul/court-booking/internal/models"
	"github.com/Eursukkul/court-booking/internal/service"
	"github.com/labstack/echo/v4"
)

type BookingHandler struct {
	booking      service.BookingService
	cancellation service.CancellationService
	availability service.AvailabilityService
}

func NewBookingHandler(booking service.BookingService, cancellation service.CancellationService, availability service.AvailabilityService) *BookingHandler {
	return &BookingHandler{booking: booking, cancellation: cancellation, availability: availability}
}

// RegisterRoutes mounts the booking API. bookMw wraps only the create route.
func (h *BookingHandler) RegisterRoutes(g *echo.Group, bookMw ...echo.MiddlewareFunc) {
	facilities := g.Group("/facilities")
	facilities.GET("/:id/availability", h.GetAvailability)
	facilities.GET("/:id/bookings", h.ListBookings)
	facilities.POST("/:id/bookings", h.CreateBooking, bookMw...)

	g.GET("/bookings/:id", h.GetBooking)
	g.POST("/bookings/:id/cancel", h.CancelBooking)
}

func (h *BookingHandler) GetAvailability(c echo.Context) error {
	view, err := h.availability.Availability(c.Request().Context(), c.Param("id"), c.QueryParam("date"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, dto.ToAvailabilityResponse(view))
}

func (h *BookingHandler) CreateBooking(c echo.Context) error {
	var req dto.CreateBookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	userID := middleware.UserID(c)
	if userID == "" {
		userID = req.UserID
	}
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}
	if req.Date == "" || req.StartTime == "" || req.EndTime == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "date, start_time and end_time are required")
	}

	r, err := h.booking.Book(c.Request().Context(), service.BookRequest{
		FacilityID:    c.Param("id"),
		UserID:        userID,
		Date:          req.Date,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusCreated, dto.ToReservationResponse(r))
}

func (h *BookingHandler) ListBookings(c echo.Context) error {
	var status *models.ReservationStatus
	if s := c.QueryParam("status"); s != "" {
		rs, err := models.ParseReservationStatus(s)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		status = &rs
	}

	list, err := h.booking.ListReservations(c.Request().Context(), c.Param("id"), c.QueryParam("date"), status)
	if err != nil {
		return toHTTPError(err)
	}

	resp := make([]dto.ReservationResponse, len(list))
	for i := range list {
		resp[i] = dto.ToReservationResponse(&list[i])
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *BookingHandler) GetBooking(c echo.Context) error {
	r, err := h.booking.GetReservation(c.Request().Context(), c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, dto.ToReservationResponse(r))
}

func (h *BookingHandler) CancelBooking(c echo.Context) error {
	actor := service.Actor{UserID: middleware.UserID(c), Role: middleware.Role(c)}
	if actor.UserID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "caller identity is required")
	}

	r, err := h.cancellation.Cancel(c.Request().Context(), c.Param("id"), actor)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, dto.ToReservationResponse(r))
}

// toHTTPError maps service errors onto status codes. Anything unknown is a 500.
func toHTTPError(err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidInterval),
		errors.Is(err, service.ErrInvalidDate),
		errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrOutsideOperatingHours),
		errors.Is(err, service.ErrSlotInPast),
		errors.Is(err, service.ErrInvalidFacility):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrFacilityNotFound),
		errors.Is(err, service.ErrReservationNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrSlotConflict):
		return echo.NewHTTPError(http.StatusConflict, service.ErrSlotConflict.Error())
	case errors.Is(err, service.ErrInvalidStateTransition),
		errors.Is(err, service.ErrReservationExpired):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrCancellationWindowClosed):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrPaymentDeclined):
		return echo.NewHTTPError(http.StatusPaymentRequired, err.Error())
	case errors.Is(err, service.ErrPaymentUnavailable),
		errors.Is(err, service.ErrStoreUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
	}
}
