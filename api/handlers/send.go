package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apierr "github.com/mailflux/mailflux/api/errors"
	"github.com/mailflux/mailflux/dto"
	"github.com/mailflux/mailflux/internal/tracing"
	"github.com/mailflux/mailflux/internal/utils"
	"github.com/mailflux/mailflux/services"
)

type SendHandler struct {
	services *services.Services
}

func NewSendHandler(s *services.Services) *SendHandler {
	return &SendHandler{services: s}
}

// Send is the accept-and-enqueue entry point: validate, render, filter
// suppressed recipients, rewrite, persist the intent, reserve quota, enqueue.
func (h *SendHandler) Send() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "SendHandler.Send", c.Request.Header)
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		auth := utils.GetAuthContext(ctx)
		if auth == nil {
			respondError(c, span, apierr.Unauthorized("Missing authentication context"))
			return
		}

		var request dto.SendEmailRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			respondError(c, span, apierr.Validation("Invalid request body: "+err.Error()))
			return
		}

		response, err := h.services.SendService.Send(ctx, auth, &request)
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, response)
	}
}
