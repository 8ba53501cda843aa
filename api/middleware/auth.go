package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/farm-bi/internal/auth"
)

const (
	AuthorizationHeader = "Authorization"
	BearerPrefix        = "Bearer "
	ActorKey            = "actor"
	RoleKey             = "role"
)

func JWTAuth(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(AuthorizationHeader)
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing authorization header",
			})
			return
		}

		if !strings.HasPrefix(header, BearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid authorization header format",
			})
			return
		}

		token := strings.TrimPrefix(header, BearerPrefix)
		claims, err := authService.ValidateToken(token)
		if err != nil {
			message := "invalid token"
			if errors.Is(err, auth.ErrExpiredToken) {
				message = "token expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": message,
			})
			return
		}

		c.Set(ActorKey, claims.Actor)
		c.Set(RoleKey, claims.Role)

		c.Next()
	}
}

// RequireOperator rejects viewers on mutating routes. It must run after
// JWTAuth.
func RequireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(RoleKey) != auth.RoleOperator {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "operator role required",
			})
			return
		}
		c.Next()
	}
}

// GetActor is the operator name recorded on closes and snapshots.
func GetActor(c *gin.Context) string {
	return c.GetString(ActorKey)
}
