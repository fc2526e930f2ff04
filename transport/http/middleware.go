package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/blackhole-dns/warden/core"
	"github.com/blackhole-dns/warden/service"
)

// RequireAuth creates middleware that rejects requests without a valid
// session or bypass. The identity is stored in the context for handlers.
func RequireAuth(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := requestBody(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"key": "bad_request", "message": "Could not read request body", "hint": err.Error()},
			})
			return
		}

		ident := authService.Authenticate(c.Request.Context(), clientAddr(c), extractSID(c, body))
		if !ident.Authorized() {
			deleteSessionCookie(c)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"key": "unauthorized", "message": "Unauthorized", "hint": nil},
			})
			return
		}

		// The lookup renewed the session, so the refreshed expiry goes back
		// out in the cookie.
		if ident.State == core.StateSession {
			setSessionCookie(c, ident.SID, authService.SessionTimeout())
		}

		c.Set(identityKey, ident)

		c.Next()
	}
}
