package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rentora-system/internal/database/models"
	"rentora-system/internal/utils"
)

const actorContextKey = "actor"

// JWTAuth resolves the bearer token into an Actor and stores it on the
// request context. Role and ownership enforcement happens in the services;
// this layer only authenticates.
func JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "missing bearer token",
			})
			return
		}

		claims, err := utils.ParseToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "invalid token",
			})
			return
		}

		c.Set(actorContextKey, models.Actor{
			UserID: claims.UserId,
			Role:   claims.Role,
		})
		c.Next()
	}
}

// ActorFrom extracts the authenticated actor placed by JWTAuth.
func ActorFrom(c *gin.Context) (models.Actor, bool) {
	v, ok := c.Get(actorContextKey)
	if !ok {
		return models.Actor{}, false
	}
	actor, ok := v.(models.Actor)
	return actor, ok
}
