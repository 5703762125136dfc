package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/tarotlab/fortune-core/internal/pkg/jwt"
	"github.com/tarotlab/fortune-core/internal/pkg/response"
)

const (
	ContextKeyUserID = "user_id"
	ContextKeyEmail  = "user_email"

	bearerPrefix = "bearer "
)

// Auth rejects requests without a valid bearer token.
func Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			response.Unauthorized(c)
			return
		}
		claims, err := jwt.Parse(token)
		if err != nil {
			if errors.Is(err, jwtlib.ErrTokenExpired) {
				response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "token expired")
				return
			}
			response.Unauthorized(c)
			return
		}
		setClaims(c, claims)
		c.Next()
	}
}

// OptionalAuth identifies the caller when a valid token is present. Invalid
// or missing tokens leave the request anonymous.
func OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := BearerToken(c.GetHeader("Authorization")); token != "" {
			if claims, err := jwt.Parse(token); err == nil {
				setClaims(c, claims)
			}
		}
		c.Next()
	}
}

func setClaims(c *gin.Context, claims *jwt.Claims) {
	c.Set(ContextKeyUserID, claims.UserID)
	if claims.Email != "" {
		c.Set(ContextKeyEmail, claims.Email)
	}
}

func CurrentUserID(c *gin.Context) string { return c.GetString(ContextKeyUserID) }

func CurrentEmail(c *gin.Context) string { return c.GetString(ContextKeyEmail) }

func IsAuthenticated(c *gin.Context) bool { return CurrentUserID(c) != "" }

// BearerToken strips an optional case-insensitive "Bearer " prefix.
func BearerToken(header string) string {
	token := strings.TrimSpace(header)
	if len(token) >= len(bearerPrefix) && strings.EqualFold(token[:len(bearerPrefix)], bearerPrefix) {
		token = strings.TrimSpace(token[len(bearerPrefix):])
	}
	return token
}
