package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apierr "github.com/mailflux/mailflux/api/errors"
	"github.com/mailflux/mailflux/internal/utils"
)

type MeHandler struct{}

func NewMeHandler() *MeHandler {
	return &MeHandler{}
}

// Get echoes the resolved identity so integrations can verify a key.
func (h *MeHandler) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := utils.GetAuthContext(c.Request.Context())
		if auth == nil {
			appErr := apierr.Unauthorized("Missing authentication context")
			c.JSON(appErr.StatusCode, appErr)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user": gin.H{
				"id":    auth.User.ID,
				"email": auth.User.Email,
				"name":  auth.User.Name,
			},
			"domain": gin.H{
				"id":          auth.Domain.ID,
				"name":        auth.Domain.Name,
				"txtVerified": auth.Domain.TxtVerified,
			},
			"apiKey": gin.H{
				"id":   auth.APIKey.ID,
				"name": auth.APIKey.Name,
			},
		})
	}
}
