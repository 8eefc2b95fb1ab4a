package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"policyhub/pkg/logger"
)

const traceIDHeader = "X-Trace-ID"

// RequestLogger assigns each request a trace ID and logs method, path,
// status, and latency on completion.
func RequestLogger(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(traceIDHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Set("traceID", traceID)
		c.Header(traceIDHeader, traceID)

		start := time.Now()
		c.Next()

		log := logger.New(serviceName, traceID)
		log.Info(fmt.Sprintf("%s %s -> %d (%s)",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start)))
	}
}
