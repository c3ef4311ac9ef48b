package middleware

import (
	"net/http"
	"strings"

	problem "github.com/developer-overheid-nl/don-app-store/pkg/store_client/helpers/problem"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
)

const (
	ScopeRead  = "catalog:read"
	ScopeWrite = "catalog:write"
)

func RequireAccess(requiredScope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Een x-api-key is al door de gateway gevalideerd en geeft alleen leesrechten
		if c.GetHeader("x-api-key") != "" {
			if c.Request.Method != http.MethodGet {
				abort(c, problem.NewForbidden("x-api-key only grants read access"))
				return
			}

			c.Set("auth_method", "api_key")
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			abort(c, problem.NewUnauthorized("Missing or invalid Authorization header"))
			return
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if !hasScope(tokenStr, requiredScope) {
			abort(c, problem.NewForbidden("Access token missing required scope "+requiredScope))
			return
		}

		c.Set("auth_method", "jwt_token")
		c.Next()
	}
}

func abort(c *gin.Context, err problem.APIError) {
	c.Header("Content-Type", "application/problem+json")
	c.AbortWithStatusJSON(err.Status, err)
}

// hasScope reads the scope claim without verifying the signature; the
// gateway in front of the service has already done that.
func hasScope(tokenStr, requiredScope string) bool {
	token, _, err := new(jwt.Parser).ParseUnverified(tokenStr, jwt.MapClaims{})
	if err != nil {
		return false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return false
	}

	scopeStr, ok := claims["scope"].(string)
	if !ok {
		return false
	}

	for _, scope := range strings.Fields(scopeStr) {
		if scope == requiredScope {
			return true
		}
	}

	return false
}
