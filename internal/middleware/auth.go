package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hstudio-dev/glasschat/internal/auth"
	"github.com/hstudio-dev/glasschat/internal/models"
)

// Context keys for claims stored in gin.Context.
const (
	ContextKeyRole           = "role"
	ContextKeyConversationID = "conversation_id"
	ContextKeyEmail          = "email"
)

// AuthMiddleware validates the session token and stores its claims on the
// request context. WebSocket upgrades cannot set headers from the browser, so
// a ?token= query parameter is accepted as a fallback.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing authorization token",
			})
			return
		}

		claims, err := auth.ParseToken(tokenString, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			return
		}

		c.Set(ContextKeyRole, claims.Role)
		c.Set(ContextKeyConversationID, claims.ConversationID)
		c.Set(ContextKeyEmail, claims.Email)
		c.Next()
	}
}

// RequireAdmin gates registry and maintenance endpoints.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetRole(c) != models.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "administrator access required",
			})
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

func GetRole(c *gin.Context) models.Role {
	val, exists := c.Get(ContextKeyRole)
	if !exists {
		return ""
	}
	role, ok := val.(models.Role)
	if !ok {
		return ""
	}
	return role
}

// GetConversationID returns the conversation an end-user token is pinned to;
// empty for admin tokens.
func GetConversationID(c *gin.Context) string {
	val, exists := c.Get(ContextKeyConversationID)
	if !exists {
		return ""
	}
	id, ok := val.(string)
	if !ok {
		return ""
	}
	return id
}

func GetEmail(c *gin.Context) string {
	val, exists := c.Get(ContextKeyEmail)
	if !exists {
		return ""
	}
	email, ok := val.(string)
	if !ok {
		return ""
	}
	return email
}

// ConversationAccess resolves which conversation the caller may touch: an
// admin touches the one named in the path, an end-user only their own.
func ConversationAccess(c *gin.Context, pathID string) (string, bool) {
	if GetRole(c) == models.RoleAdmin {
		return pathID, pathID != ""
	}
	own := GetConversationID(c)
	return own, own != "" && (pathID == "" || pathID == own)
}
