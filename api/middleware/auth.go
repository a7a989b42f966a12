package middleware

import (
	"github.com/gin-gonic/gin"

	apierr "github.com/mailflux/mailflux/api/errors"
	"github.com/mailflux/mailflux/interfaces"
	"github.com/mailflux/mailflux/internal/utils"
)

// BearerAuthMiddleware resolves the Authorization header into an AuthContext
// and threads it through the request context. Handlers read it back with
// utils.GetAuthContext; no shared per-request store is involved.
func BearerAuthMiddleware(authService interfaces.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth, err := authService.Authenticate(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			appErr := apierr.From(err)
			c.AbortWithStatusJSON(appErr.StatusCode, appErr)
			return
		}

		c.Request = c.Request.WithContext(utils.WithAuthContext(c.Request.Context(), auth))
		c.Next()
	}
}
