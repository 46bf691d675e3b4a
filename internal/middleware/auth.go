package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/BruksfildServices01/slot-coordinator/internal/auth"
	"github.com/BruksfildServices01/slot-coordinator/internal/httperr"
)

const (
	ContextUserID = "userID"
	ContextToken  = "token"
)

// AuthMiddleware admits only bearer tokens of the user this coordinator
// acts for. With an empty secret the signature is left to the backend.
func AuthMiddleware(secret, userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			httperr.Unauthorized(c, "missing_authorization_header", "Authorization header is required.")
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			httperr.Unauthorized(c, "invalid_authorization_header", "Use a bearer token.")
			c.Abort()
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		subject, err := auth.UserID(tokenString, secret)
		if err != nil {
			httperr.Unauthorized(c, "invalid_token", "The token could not be verified.")
			c.Abort()
			return
		}
		if subject != userID {
			httperr.Unauthorized(c, "foreign_user", "The token belongs to another user.")
			c.Abort()
			return
		}

		c.Set(ContextUserID, subject)
		c.Set(ContextToken, tokenString)

		c.Next()
	}
}
