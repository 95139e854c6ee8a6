package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/newsrec/internal/logger"
)

// AdminTokenHeader is the header checked by AdminAuth.
const AdminTokenHeader = "X-Admin-Token"

// AdminAuth rejects requests without the configured admin token. An empty
// token disables the check.
func AdminAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		got := c.GetHeader(AdminTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			logger.CtxWarn(c.Request.Context(), "Admin request rejected: client_ip=%s", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "invalid admin token"})
			return
		}
		c.Next()
	}
}
