package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"gymhub/api/internal/repository"
	"gymhub/api/internal/security"
)

const identityKey = "identity"

// Auth resolves the bearer access token into a security.Identity. A token
// whose owner no longer exists is rejected; a suspended owner is forbidden.
func Auth(tokens *security.TokenIssuer, users repository.UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
			return
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

		claims, err := tokens.VerifyAccess(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		}

		user, err := users.GetByID(c.Request.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
				return
			}
			_ = c.Error(err)
			AbortInternal(c)
			return
		}

		if !user.IsActive() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user_inactive"})
			return
		}

		identity := claims.Identity()
		c.Set(identityKey, &identity)

		c.Next()
	}
}

// SetIdentity stores identity in c the way Auth does.
func SetIdentity(c *gin.Context, identity *security.Identity) {
	c.Set(identityKey, identity)
}

// CurrentIdentity returns the identity resolved by Auth, or nil.
func CurrentIdentity(c *gin.Context) *security.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	identity, _ := v.(*security.Identity)
	return identity
}
