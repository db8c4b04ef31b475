package clmiddleware

import (
	"trackapi/internal/models/clclientip"

	"github.com/gin-gonic/gin"
)

const clientIPKey = "clientIP"

// ClientContext résout l'adresse du client avant les handlers et le rate limiter
func ClientContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(clientIPKey, clclientip.FromContext(c))
		c.Next()
	}
}

// ClientIP relit l'adresse posée par ClientContext, ou la calcule si le
// middleware n'est pas installé
func ClientIP(c *gin.Context) string {
	if ip := c.GetString(clientIPKey); ip != "" {
		return ip
	}
	return clclientip.FromContext(c)
}
