package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	apierr "github.com/mailflux/mailflux/api/errors"
	"github.com/mailflux/mailflux/internal/tracing"
	"github.com/mailflux/mailflux/services"
)

type APIHandlers struct {
	Send         *SendHandler
	Events       *EventsHandler
	Suppressions *SuppressionsHandler
	Tracking     *TrackingHandler
	Me           *MeHandler
}

func InitHandlers(s *services.Services) *APIHandlers {
	return &APIHandlers{
		Send:         NewSendHandler(s),
		Events:       NewEventsHandler(s),
		Suppressions: NewSuppressionsHandler(s),
		Tracking:     NewTrackingHandler(s),
		Me:           NewMeHandler(),
	}
}

// respondError maps any failure onto the {error, message} wire shape.
func respondError(c *gin.Context, span opentracing.Span, err error) {
	appErr := apierr.From(err)
	tracing.TraceErr(span, err)
	c.JSON(appErr.StatusCode, appErr)
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP. Empty when
// neither header is present; the raw socket address is deliberately not used
// because the service sits behind a proxy.
func clientIP(c *gin.Context) string {
	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	return c.GetHeader("X-Real-IP")
}
