package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shoplytics/analytics_backend/config"
	"github.com/shoplytics/analytics_backend/models"
	"github.com/shoplytics/analytics_backend/utils"
)

// SessionMiddleware resolves the token header to its user and loads the
// tenant scope into the request context. Opaque session tokens are looked up
// in Redis; anything else is treated as a JWT. Requests without a token pass
// through; tenant-scoped handlers reject them individually.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.Request.Header.Get("token"))
		if token == "" {
			c.Next()
			return
		}

		user, ok := resolveSessionUser(c, token)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := utils.SetTokenInContext(c.Request.Context(), token)
		ctx = utils.SetUsernameInContext(ctx, user.Username)
		ctx = utils.SetUserIdInContext(ctx, user.ID)
		ctx = utils.SetTenantIdInContext(ctx, user.TenantId)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func resolveSessionUser(c *gin.Context, token string) (*models.User, bool) {
	username, exists, err := config.GetRedisValue("Token:" + token)
	if err == nil && exists {
		user := models.User{}
		cached, err := config.GetRedisObject("User:"+username, &user)
		if err == nil && cached {
			return &user, true
		}
		found, err := models.GetUserByUsername(c.Request.Context(), username)
		if err != nil {
			return nil, false
		}
		return found, true
	}

	// Not a session token; accept a valid JWT carrying the user id.
	validated, err := utils.JwtValidate(token)
	if err != nil || !validated.Valid {
		return nil, false
	}
	claims, ok := validated.Claims.(*utils.JwtCustomClaim)
	if !ok || claims.ID == 0 {
		return nil, false
	}
	user, err := models.GetUserById(c.Request.Context(), claims.ID)
	if err != nil {
		return nil, false
	}
	return user, true
}
