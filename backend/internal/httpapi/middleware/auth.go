package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"collabsync/backend/internal/authservice"
)

// Auth validates the identity token locally and puts the claims into the
// request context. The token rides in the Authorization header, or in the
// token query parameter for websocket handshakes where browsers cannot set
// custom headers.
func Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractBearer(c.Request.Header.Get("Authorization"))
		if tokenString == "" {
			tokenString = strings.TrimSpace(c.Query("token"))
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "UNAUTHENTICATED",
				"message": "missing token",
			})
			return
		}

		claims, err := authservice.ParseToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "UNAUTHENTICATED",
				"message": "invalid token",
			})
			return
		}

		c.Set("participantId", claims.ParticipantID)
		c.Set("displayName", claims.DisplayName)
		c.Set("identifier", claims.Identifier)
		c.Next()
	}
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
