package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apierr "github.com/mailflux/mailflux/api/errors"
	"github.com/mailflux/mailflux/interfaces"
	"github.com/mailflux/mailflux/internal/enum"
	"github.com/mailflux/mailflux/internal/models"
	"github.com/mailflux/mailflux/internal/tracing"
	"github.com/mailflux/mailflux/internal/utils"
	"github.com/mailflux/mailflux/services"
)

type SuppressionsHandler struct {
	services *services.Services
}

func NewSuppressionsHandler(s *services.Services) *SuppressionsHandler {
	return &SuppressionsHandler{services: s}
}

type addSuppressionRequest struct {
	Email    string                 `json:"email"`
	Reason   enum.SuppressionReason `json:"reason"`
	DomainID string                 `json:"domainId"`
	Metadata models.JSONMap         `json:"metadata"`
}

func (h *SuppressionsHandler) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "SuppressionsHandler.List", c.Request.Header)
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		auth := utils.GetAuthContext(ctx)
		if auth == nil {
			respondError(c, span, apierr.Unauthorized("Missing authentication context"))
			return
		}

		filter := interfaces.SuppressionFilter{
			Page:     intQuery(c, "page", 1),
			Limit:    intQuery(c, "limit", 50),
			Reason:   enum.SuppressionReason(c.Query("reason")),
			Email:    c.Query("email"),
			DomainID: c.Query("domainId"),
		}
		if filter.Reason != "" && !filter.Reason.IsValid() {
			respondError(c, span, apierr.Validation("Unknown suppression reason: "+filter.Reason.String()))
			return
		}

		suppressions, total, err := h.services.SuppressionService.List(ctx, auth.User.ID, filter)
		if err != nil {
			respondError(c, span, err)
			return
		}

		limit := filter.Limit
		if limit <= 0 || limit > 100 {
			limit = 100
		}
		c.JSON(http.StatusOK, gin.H{
			"data": suppressions,
			"pagination": gin.H{
				"page":       filter.Page,
				"limit":      limit,
				"total":      total,
				"totalPages": (total + int64(limit) - 1) / int64(limit),
			},
		})
	}
}

// Check answers whether a single address would be blocked for this tenant.
func (h *SuppressionsHandler) Check() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "SuppressionsHandler.Check", c.Request.Header)
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		auth := utils.GetAuthContext(ctx)
		if auth == nil {
			respondError(c, span, apierr.Unauthorized("Missing authentication context"))
			return
		}

		email := c.Query("email")
		if email == "" {
			respondError(c, span, apierr.Validation("email query parameter is required"))
			return
		}

		suppressed, err := h.services.SuppressionService.Check(ctx, auth.User.ID, []string{email}, &auth.Domain.ID)
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"email":      utils.NormalizeEmail(email),
			"suppressed": len(suppressed) > 0,
		})
	}
}

func (h *SuppressionsHandler) Add() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "SuppressionsHandler.Add", c.Request.Header)
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		auth := utils.GetAuthContext(ctx)
		if auth == nil {
			respondError(c, span, apierr.Unauthorized("Missing authentication context"))
			return
		}

		var request addSuppressionRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			respondError(c, span, apierr.Validation("Invalid request body: "+err.Error()))
			return
		}
		if request.Email == "" {
			respondError(c, span, apierr.Validation("email is required"))
			return
		}
		if request.Reason == "" {
			request.Reason = enum.SuppressionManual
		}
		if !request.Reason.IsValid() {
			respondError(c, span, apierr.Validation("Unknown suppression reason: "+request.Reason.String()))
			return
		}

		var domainID *string
		if request.DomainID != "" {
			domainID = utils.StringPtr(request.DomainID)
		}

		suppression, err := h.services.SuppressionService.Add(ctx, auth.User.ID, request.Email, request.Reason, "", domainID, request.Metadata)
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusCreated, suppression)
	}
}

func (h *SuppressionsHandler) Remove() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "SuppressionsHandler.Remove", c.Request.Header)
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		auth := utils.GetAuthContext(ctx)
		if auth == nil {
			respondError(c, span, apierr.Unauthorized("Missing authentication context"))
			return
		}

		deleted, err := h.services.SuppressionService.Remove(ctx, auth.User.ID, c.Param("id"))
		if err != nil {
			respondError(c, span, err)
			return
		}
		if !deleted {
			respondError(c, span, apierr.NotFound("Suppression not found"))
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func (h *SuppressionsHandler) Stats() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "SuppressionsHandler.Stats", c.Request.Header)
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		auth := utils.GetAuthContext(ctx)
		if auth == nil {
			respondError(c, span, apierr.Unauthorized("Missing authentication context"))
			return
		}

		total, byReason, err := h.services.SuppressionService.Stats(ctx, auth.User.ID)
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"total":    total,
			"byReason": byReason,
		})
	}
}
