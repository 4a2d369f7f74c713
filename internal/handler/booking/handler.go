package booking

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/service/booking"
	apperrors "github.com/jwalitptl/booking-api/pkg/errors"
	"github.com/jwalitptl/booking-api/pkg/httputil"
	"github.com/jwalitptl/booking-api/pkg/metrics"
	"github.com/jwalitptl/booking-api/pkg/validator"
)

type Handler struct {
	service *booking.Service
	metrics *metrics.Metrics
}

func NewHandler(service *booking.Service, m *metrics.Metrics) *Handler {
	return &Handler{service: service, metrics: m}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	bookings := r.Group("/bookings")
	{
		bookings.POST("", h.RequestBooking)
		bookings.POST("/check", h.CheckSlot)
		bookings.POST("/alternatives", h.Alternatives)
		bookings.GET("/:id", h.GetBooking)
		bookings.POST("/:id/cancel", h.CancelBooking)
		bookings.POST("/:id/complete", h.CompleteBooking)
	}
	r.GET("/patients/:id/bookings", h.ListPatientBookings)
}

func (h *Handler) RequestBooking(c *gin.Context) {
	var req model.BookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest("invalid request body", err))
		return
	}
	if err := validator.Validate(&req); err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest("invalid request", err))
		return
	}

	start := time.Now()
	result, err := h.service.RequestBooking(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}
	h.metrics.BookingLatency.Observe(time.Since(start).Seconds())
	h.metrics.BookingAttempts.WithLabelValues(string(result.Outcome)).Inc()

	switch result.Outcome {
	case model.OutcomeCommitted:
		c.JSON(http.StatusCreated, httputil.Response{Success: true, Data: result})
	case model.OutcomeAlternativesOffered:
		h.metrics.BookingConflicts.Inc()
		h.metrics.AlternativesOffers.Observe(float64(len(result.Alternatives)))
		c.JSON(http.StatusConflict, httputil.Response{Success: false, Data: result})
	default:
		c.JSON(rejectionStatus(result.Reason), httputil.Response{Success: false, Data: result})
	}
}

type checkSlotRequest struct {
	ProviderID      uuid.UUID `json:"provider_id" binding:"required"`
	Start           time.Time `json:"start" binding:"required"`
	DurationMinutes int       `json:"duration_minutes" binding:"required"`
}

func (h *Handler) CheckSlot(c *gin.Context) {
	var req checkSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest("invalid request body", err))
		return
	}

	available, conflicting, err := h.service.CheckSlot(c.Request.Context(), req.ProviderID, req.Start, req.DurationMinutes)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, gin.H{
		"available":   available,
		"conflicting": conflicting,
	})
}

func (h *Handler) Alternatives(c *gin.Context) {
	var req model.BookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest("invalid request body", err))
		return
	}

	alternatives, err := h.service.Alternatives(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, alternatives)
}

func (h *Handler) GetBooking(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewValidation("id", "invalid booking id"))
		return
	}

	b, err := h.service.GetBooking(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, b)
}

type cancelRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *Handler) CancelBooking(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewValidation("id", "invalid booking id"))
		return
	}

	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest("invalid request body", err))
		return
	}

	b, err := h.service.CancelBooking(c.Request.Context(), id, req.Reason)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, b)
}

func (h *Handler) CompleteBooking(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewValidation("id", "invalid booking id"))
		return
	}

	b, err := h.service.CompleteBooking(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, b)
}

func (h *Handler) ListPatientBookings(c *gin.Context) {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewValidation("id", "invalid patient id"))
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}

	bookings, err := h.service.ListForPatient(c.Request.Context(), patientID, limit, (page-1)*limit)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithPagination(c, bookings, page, limit)
}

func rejectionStatus(reason string) int {
	switch reason {
	case booking.ReasonReferenceGeneration:
		return http.StatusServiceUnavailable
	case booking.ReasonTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadRequest
	}
}
