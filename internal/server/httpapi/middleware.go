package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/blobvault/blobvault/internal/server/auth"
	"github.com/blobvault/blobvault/internal/server/services"
)

const principalContextKey = "principal"

// authMiddleware extracts the host-issued caller identity from the bearer
// token and stores it on the request context. The service trusts these
// claims; it never authenticates users itself.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "unauthorized", "message": "missing or invalid Authorization header"})
			return
		}

		claims, err := auth.ParseToken(strings.TrimPrefix(authHeader, "Bearer "), s.jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "unauthorized", "message": err.Error()})
			return
		}

		caller := services.Principal{UserID: claims.UserID}
		if claims.TenantID != "" {
			tenantID := claims.TenantID
			caller.TenantID = &tenantID
		}

		c.Set(principalContextKey, caller)
		c.Next()
	}
}

func callerFrom(c *gin.Context) services.Principal {
	v, _ := c.Get(principalContextKey)
	caller, _ := v.(services.Principal)
	return caller
}
