package middleware

import (
	"time"

	"github.com/bestruirui/tollfree/internal/utils/log"
	"github.com/gin-gonic/gin"
)

// Logger logs one line per request at debug level: method, path, status,
// latency, client IP.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		log.Debugf("%s %s -> %d (%s) from %s",
			c.Request.Method, path, c.Writer.Status(), time.Since(start), c.ClientIP())
	}
}
