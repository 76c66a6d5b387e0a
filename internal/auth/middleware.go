package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/2ao1-1/todo-backend/internal/repo"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

const contextKeyUserID = "user_id"

// UserIDFromContext returns the current user ID set by RequireAuth. 0 if not set.
func UserIDFromContext(c *gin.Context) int64 {
	v, ok := c.Get(contextKeyUserID)
	if !ok {
		return 0
	}
	id, ok := v.(int64)
	if !ok {
		return 0
	}
	return id
}

// RequireAuth returns a middleware that verifies the bearer token, checks the
// user still exists, and sets the current user ID in context. Missing or
// invalid credentials respond with 401.
func RequireAuth(tokens *TokenManager, users repo.UserRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no token provided"})
			return
		}
		userID, err := tokens.Parse(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			if errors.Is(err, ErrExpiredToken) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token expired"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if _, err := users.GetByID(c.Request.Context(), userID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found or inactive"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth check failed"})
			return
		}
		c.Set(contextKeyUserID, userID)
		c.Next()
	}
}
