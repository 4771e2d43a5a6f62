package middleware

import "github.com/gin-gonic/gin"

// ClientHeader lets an upstream route layer name the calling system so that
// limits apply per consumer rather than per proxy address.
const ClientHeader = "X-Catalog-Client"

// clientKey picks the limiter key: the declared client when present, otherwise the client IP.
func clientKey(c *gin.Context) string {
	if id := c.GetHeader(ClientHeader); id != "" {
		return "client:" + id
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}
