package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apierr "github.com/mailflux/mailflux/api/errors"
	"github.com/mailflux/mailflux/internal/tracing"
	"github.com/mailflux/mailflux/internal/utils"
	"github.com/mailflux/mailflux/services"
)

type TrackingHandler struct {
	services *services.Services
}

func NewTrackingHandler(s *services.Services) *TrackingHandler {
	return &TrackingHandler{services: s}
}

// Open serves the pixel. The GIF goes out whatever happens: unknown ids and
// backend faults must not break image loading in mail clients.
func (h *TrackingHandler) Open() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "TrackingHandler.Open", c.Request.Header)
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		h.services.TrackingService.RecordOpen(ctx, c.Param("id"), clientIP(c), c.GetHeader("User-Agent"))

		setNoStore(c)
		c.Data(http.StatusOK, "image/gif", utils.TransparentGIF)
	}
}

// Click redirects to the original URL and feeds the event stream on first
// touch. Unknown ids are a JSON 404.
func (h *TrackingHandler) Click() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "TrackingHandler.Click", c.Request.Header)
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		originalURL, found := h.services.TrackingService.RecordClick(ctx, c.Param("id"), clientIP(c), c.GetHeader("User-Agent"))
		if !found {
			appErr := apierr.NotFound("Tracking link not found")
			c.JSON(appErr.StatusCode, appErr)
			return
		}

		setNoStore(c)
		c.Redirect(http.StatusFound, originalURL)
	}
}

func setNoStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store, no-cache, must-revalidate, private")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
}
