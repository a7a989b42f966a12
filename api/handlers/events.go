package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apierr "github.com/mailflux/mailflux/api/errors"
	"github.com/mailflux/mailflux/dto"
	"github.com/mailflux/mailflux/interfaces"
	"github.com/mailflux/mailflux/internal/enum"
	"github.com/mailflux/mailflux/internal/tracing"
	"github.com/mailflux/mailflux/internal/utils"
	"github.com/mailflux/mailflux/services"
)

type EventsHandler struct {
	services *services.Services
}

func NewEventsHandler(s *services.Services) *EventsHandler {
	return &EventsHandler{services: s}
}

func (h *EventsHandler) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "EventsHandler.List", c.Request.Header)
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		auth := utils.GetAuthContext(ctx)
		if auth == nil {
			respondError(c, span, apierr.Unauthorized("Missing authentication context"))
			return
		}

		filter := interfaces.EventFilter{
			Page:           intQuery(c, "page", 1),
			Limit:          intQuery(c, "limit", 50),
			EventType:      enum.EmailEventType(c.Query("eventType")),
			RecipientEmail: c.Query("recipientEmail"),
			MessageID:      c.Query("messageId"),
		}
		if filter.EventType != "" && !filter.EventType.IsValid() {
			respondError(c, span, apierr.Validation("Unknown event type: "+filter.EventType.String()))
			return
		}
		var err error
		if filter.StartDate, err = timeQuery(c, "startDate"); err != nil {
			respondError(c, span, apierr.Validation("Invalid startDate"))
			return
		}
		if filter.EndDate, err = timeQuery(c, "endDate"); err != nil {
			respondError(c, span, apierr.Validation("Invalid endDate"))
			return
		}

		events, total, err := h.services.EventService.List(ctx, auth.User.ID, filter)
		if err != nil {
			respondError(c, span, err)
			return
		}

		limit := filter.Limit
		if limit <= 0 || limit > 100 {
			limit = 100
		}
		c.JSON(http.StatusOK, gin.H{
			"data": events,
			"pagination": gin.H{
				"page":       filter.Page,
				"limit":      limit,
				"total":      total,
				"totalPages": (total + int64(limit) - 1) / int64(limit),
			},
		})
	}
}

func (h *EventsHandler) GetByMessage() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "EventsHandler.GetByMessage", c.Request.Header)
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		auth := utils.GetAuthContext(ctx)
		if auth == nil {
			respondError(c, span, apierr.Unauthorized("Missing authentication context"))
			return
		}

		messageID := c.Param("messageId")
		grouped, err := h.services.EventService.GetByMessageID(ctx, auth.User.ID, messageID)
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"messageId":  messageID,
			"recipients": grouped,
		})
	}
}

func (h *EventsHandler) Stats() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "EventsHandler.Stats", c.Request.Header)
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		auth := utils.GetAuthContext(ctx)
		if auth == nil {
			respondError(c, span, apierr.Unauthorized("Missing authentication context"))
			return
		}

		startDate, err := timeQuery(c, "startDate")
		if err != nil {
			respondError(c, span, apierr.Validation("Invalid startDate"))
			return
		}
		endDate, err := timeQuery(c, "endDate")
		if err != nil {
			respondError(c, span, apierr.Validation("Invalid endDate"))
			return
		}

		stats, err := h.services.EventService.Stats(ctx, auth.User.ID, startDate, endDate)
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

func (h *EventsHandler) Ingest() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "EventsHandler.Ingest", c.Request.Header)
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		auth := utils.GetAuthContext(ctx)
		if auth == nil {
			respondError(c, span, apierr.Unauthorized("Missing authentication context"))
			return
		}

		var request dto.IngestEventRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			respondError(c, span, apierr.Validation("Invalid request body: "+err.Error()))
			return
		}

		event, err := h.services.EventService.Ingest(ctx, auth, &request)
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusCreated, event)
	}
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}

func timeQuery(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
