// Package middleware provides HTTP middleware for the Gin router.
//
// Go Learning Note — Middleware Pattern (Gin):
// In Gin, middleware is any gin.HandlerFunc. Each one runs, optionally calls
// c.Next() to hand control to the rest of the chain, and can call c.Abort()
// to stop it. Code after c.Next() runs once the handler has finished, which
// is how Metrics measures the request.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// UserIDKey is the gin context key MockAuth stores the caller's uid under.
const UserIDKey = "user_id"

// MockAuth extracts the caller's uid from the Authorization header.
// Format: "Bearer <uid>". Any non-empty uid is accepted.
//
// In production this would verify a Firebase ID token and take the uid from
// its claims; the handlers only ever see the uid.
func MockAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}

		uid := strings.TrimSpace(parts[1])
		if uid == "" || strings.ContainsAny(uid, "/ ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid user id"})
			return
		}

		c.Set(UserIDKey, uid)
		c.Next()
	}
}

// GetUserID returns the uid set by MockAuth, or "" on unauthenticated routes.
func GetUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}
