package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// DefaultMaxBodySize caps request bodies on the dev server
const DefaultMaxBodySize int64 = 1 << 20

// errorResponse mirrors the dispatcher's error envelope
type errorResponse struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Detail  map[string]interface{} `json:"detail"`
}

// Recovery turns a panic into a 500 response and logs it
func Recovery(logger *logrus.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.WithFields(logrus.Fields{
					"request_id": c.GetString(RequestIDKey),
					"method":     c.Request.Method,
					"path":       c.Request.URL.Path,
					"panic":      fmt.Sprint(rec),
				}).Error("Recovered from panic")

				c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{
					Message: "Internal server error",
					Error:   "InternalError",
					Detail:  map[string]interface{}{"requestId": c.GetString(RequestIDKey)},
				})
			}
		}()
		c.Next()
	}
}

// SecurityHeaders adds security headers to responses
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// RequestSizeLimit limits the size of request bodies
func RequestSizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, errorResponse{
				Message: "Request too large",
				Error:   "BadRequest",
				Detail: map[string]interface{}{
					"size":    c.Request.ContentLength,
					"maxSize": maxSize,
				},
			})
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}
