package middleware

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/pretty"
)

// Logger logs one line per request with latency and, for mutating calls,
// a compacted copy of the body.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		var bodyStr string
		if c.Request.Method == http.MethodPost {
			bodyStr = getRequestBody(c)
		}

		c.Next()

		// Skip logging for 404 requests
		if c.Writer.Status() == http.StatusNotFound {
			return
		}

		latencyTime := time.Since(startTime)

		logMsg := fmt.Sprintf("[GIN] %v | %3d | %13v | %15s | %s | %s",
			startTime.Format("2006/01/02 - 15:04:05"),
			c.Writer.Status(),
			latencyTime,
			c.ClientIP(),
			c.Request.Method,
			c.Request.RequestURI,
		)

		if bodyStr != "" {
			logMsg += fmt.Sprintf("\nRequest Body: %s", bodyStr)
		}

		fmt.Println(logMsg)
	}
}

// getRequestBody gets request body content
func getRequestBody(c *gin.Context) string {
	var bodyBytes []byte
	if c.Request.Body != nil {
		bodyBytes, _ = io.ReadAll(c.Request.Body)
		// Reset request body since reading it clears it
		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
	}
	return CompressBody(string(bodyBytes))
}

// CompressBody strips whitespace from a JSON body and caps its length for
// the log line.
func CompressBody(body string) string {
	if len(body) == 0 {
		return ""
	}

	compressed := pretty.Ugly([]byte(body))
	if len(compressed) > 1000 {
		return string(compressed[:1000]) + "..."
	}
	return string(compressed)
}
