package provider

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/booking-api/internal/model"
	bookingsvc "github.com/jwalitptl/booking-api/internal/service/booking"
	"github.com/jwalitptl/booking-api/internal/service/provider"
	apperrors "github.com/jwalitptl/booking-api/pkg/errors"
	"github.com/jwalitptl/booking-api/pkg/httputil"
)

type Handler struct {
	providers *provider.Service
	bookings  *bookingsvc.Service
}

func NewHandler(providers *provider.Service, bookings *bookingsvc.Service) *Handler {
	return &Handler{providers: providers, bookings: bookings}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	providers := r.Group("/providers")
	{
		providers.POST("", h.CreateProvider)
		providers.GET("/:id", h.GetProvider)
		providers.GET("/:id/availability", h.GetAvailability)
		providers.GET("/:id/bookings", h.GetDayBookings)
		providers.GET("/:id/working-hours", h.GetWorkingHours)
		providers.PUT("/:id/working-hours", h.UpdateWorkingHours)
	}
}

func (h *Handler) CreateProvider(c *gin.Context) {
	var p model.Provider
	if err := c.ShouldBindJSON(&p); err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest("invalid request body", err))
		return
	}

	created, err := h.providers.Create(c.Request.Context(), &p)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, created)
}

func (h *Handler) GetProvider(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewValidation("id", "invalid provider id"))
		return
	}

	p, err := h.providers.Get(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, p)
}

// GetAvailability returns the provider's open slots for the date given
// as ?date=YYYY-MM-DD.
func (h *Handler) GetAvailability(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewValidation("id", "invalid provider id"))
		return
	}

	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewValidation("date", "date must be YYYY-MM-DD"))
		return
	}

	slots, err := h.bookings.ListProviderDay(c.Request.Context(), id, date.UTC())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{
		"date":  c.Query("date"),
		"slots": slots,
	})
}

// GetDayBookings returns the provider's scheduled bookings for the date
// given as ?date=YYYY-MM-DD.
func (h *Handler) GetDayBookings(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewValidation("id", "invalid provider id"))
		return
	}

	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewValidation("date", "date must be YYYY-MM-DD"))
		return
	}

	bookings, err := h.bookings.ListProviderBookings(c.Request.Context(), id, date.UTC())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{
		"date":     c.Query("date"),
		"bookings": bookings,
	})
}

func (h *Handler) GetWorkingHours(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewValidation("id", "invalid provider id"))
		return
	}

	hours, err := h.providers.GetWorkingHours(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, hours)
}

type workingHoursRequest struct {
	WorkingDays         []time.Weekday      `json:"working_days" binding:"required"`
	DayStartMinute      int                 `json:"day_start_minute"`
	DayEndMinute        int                 `json:"day_end_minute" binding:"required"`
	SlotDurationMinutes int                 `json:"slot_duration_minutes" binding:"required"`
	Breaks              []model.BreakWindow `json:"breaks"`
	Holidays            []string            `json:"holidays"`
}

func (h *Handler) UpdateWorkingHours(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewValidation("id", "invalid provider id"))
		return
	}

	var req workingHoursRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest("invalid request body", err))
		return
	}

	hours, err := model.NewWorkingHours(id, req.WorkingDays, req.DayStartMinute, req.DayEndMinute,
		req.SlotDurationMinutes, req.Breaks, req.Holidays)
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewValidation("working_hours", err.Error()))
		return
	}

	if err := h.providers.UpdateWorkingHours(c.Request.Context(), hours); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, hours)
}
