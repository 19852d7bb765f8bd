package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-timetable-api/internal/models"
	appErrors "github.com/noah-isme/school-timetable-api/pkg/errors"
	"github.com/noah-isme/school-timetable-api/pkg/response"
)

// RequireCapability lets the request through when the token grants any of caps.
func RequireCapability(caps ...models.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			response.Abort(c, appErrors.ErrUnauthorized)
			return
		}
		for _, capability := range caps {
			if claims.HasCapability(capability) {
				c.Next()
				return
			}
		}
		response.Abort(c, appErrors.ErrForbidden)
	}
}

// RequireCapabilityOrSelf also admits the user named by the :param path parameter.
func RequireCapabilityOrSelf(param string, caps ...models.Capability) gin.HandlerFunc {
	check := RequireCapability(caps...)
	return func(c *gin.Context) {
		if claims, ok := Claims(c); ok && claims.UserID != "" && c.Param(param) == claims.UserID {
			c.Next()
			return
		}
		check(c)
	}
}
