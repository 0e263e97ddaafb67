package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"gymhub/api/internal/models"
	"gymhub/api/internal/security"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Status  int
	Message string
}

func (d Decision) Allowed() bool { return d.Status == http.StatusOK }

// Decide applies the flat role model: super_admin passes every check, an
// empty list admits any authenticated caller, otherwise the caller's role
// must be listed.
func Decide(identity *security.Identity, required []models.Role) Decision {
	if identity == nil || identity.UserID == "" {
		return Decision{Status: http.StatusUnauthorized, Message: "unauthorized"}
	}
	if identity.Role == models.RoleSuperAdmin || len(required) == 0 {
		return Decision{Status: http.StatusOK}
	}
	for _, role := range required {
		if identity.Role == role {
			return Decision{Status: http.StatusOK}
		}
	}
	return Decision{
		Status:  http.StatusForbidden,
		Message: fmt.Sprintf("role %s is not permitted", identity.Role),
	}
}

func Authorize(roles ...models.Role) gin.HandlerFunc {
	required := append([]models.Role(nil), roles...)

	return func(c *gin.Context) {
		decision := Decide(CurrentIdentity(c), required)
		if !decision.Allowed() {
			c.AbortWithStatusJSON(decision.Status, gin.H{"error": decision.Message})
			return
		}
		c.Next()
	}
}
