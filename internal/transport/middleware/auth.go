package middleware

import (
	"net/http"
	"strings"

	"github.com/ds124wfegd/timecapsule/pkg/auth"

	"github.com/gin-gonic/gin"
)

// UserIDKey is the gin context key holding the authenticated user id.
const UserIDKey = "userID"

type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

// AuthRequired rejects requests without a valid bearer token.
func AuthRequired(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			unauthorized(c, "Not authorized, no token")
			return
		}

		claims, err := tokens.Parse(strings.TrimSpace(token))
		if err != nil || claims.UserID == "" {
			unauthorized(c, "Not authorized, token failed")
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Next()
	}
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": message})
}
