package middleware

import (
	"strings"

	"go_sitegen/internal/auth"
	"go_sitegen/internal/httpx"

	"github.com/gin-gonic/gin"
)

// AuthRequired validates the bearer token and stores claims on the context
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			httpx.FailErr(c, httpx.ErrUnauthorized("missing or malformed authorization header"))
			c.Abort()
			return
		}

		claims, err := auth.ParseToken(token)
		if err != nil {
			httpx.FailErr(c, httpx.ErrInvalidToken("invalid token"))
			c.Abort()
			return
		}

		c.Set("uid", claims.UID)
		c.Set("username", claims.Username)
		c.Set("role", claims.Role)

		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
