package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vendaro/vendaro/pkg/models"
)

const identityContextKey = "vendaro.identity"

// BearerToken extracts the credential from an Authorization header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return strings.TrimSpace(h)
}

// Middleware authenticates every request through the resolver and
// injects the verified identity into the gin context. Requests without
// a valid credential are rejected before any handler runs.
func Middleware(resolver *Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c.Request)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing credential"})
			return
		}
		identity, err := resolver.Resolve(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(identityContextKey, identity)
		c.Next()
	}
}

// RequireRole gates a route group to the listed roles. It assumes
// Middleware already ran.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *gin.Context) {
		identity, ok := IdentityFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing credential"})
			return
		}
		if !allowed[identity.Role] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "role not permitted"})
			return
		}
		c.Next()
	}
}

// IdentityFrom returns the verified identity stored by Middleware.
func IdentityFrom(c *gin.Context) (identity models.Identity, ok bool) {
	v, exists := c.Get(identityContextKey)
	if !exists {
		return identity, false
	}
	identity, ok = v.(models.Identity)
	return identity, ok
}
