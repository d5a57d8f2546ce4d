package handlers

import (
	"context"
	_ "embed"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"rsvp-api/internal/middleware"
	"rsvp-api/internal/services"
	"rsvp-api/pkg/lambda"
)

// SwaggerDocPath is where the OpenAPI document is served
const SwaggerDocPath = "/swagger/doc.json"

//go:embed openapi.json
var openAPIDocument []byte

// RouterConfig holds configuration for setting up routes
type RouterConfig struct {
	Dispatcher  *Dispatcher
	Logger      *logrus.Logger
	ServiceName string
	Version     string
	// HealthCheck, when set, is consulted by GET /health
	HealthCheck func(ctx context.Context) error
}

// SetupRoutes mounts the dispatcher on the same paths API Gateway exposes
func SetupRoutes(router *gin.Engine, config *RouterConfig) {
	handler := GinHandler(config.Dispatcher)

	router.GET("/health", func(c *gin.Context) {
		if config.HealthCheck != nil {
			if err := config.HealthCheck(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": config.ServiceName,
					"version": config.Version,
					"error":   err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": config.ServiceName,
			"version": config.Version,
		})
	})

	router.GET("/swagger/*any", SwaggerHandler())

	rsvp := router.Group("/rsvp")
	{
		for _, path := range []string{"", lookupSuffix, updateSuffix} {
			rsvp.POST(path, handler)
			rsvp.OPTIONS(path, handler)
		}
	}
}

// SetupMiddleware configures global middleware
func SetupMiddleware(router *gin.Engine, logger *logrus.Logger) {
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(middleware.DefaultMaxBodySize))
	router.Use(middleware.StructuredLogger(logger))
	router.Use(middleware.PerformanceMonitor(logger, 0))
}

// SwaggerHandler serves the Swagger UI backed by the embedded OpenAPI document
func SwaggerHandler() gin.HandlerFunc {
	ui := ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL(SwaggerDocPath))
	return func(c *gin.Context) {
		if c.Param("any") == "/doc.json" {
			c.Data(http.StatusOK, "application/json; charset=utf-8", openAPIDocument)
			return
		}
		ui(c)
	}
}

// GinHandler adapts the dispatcher to gin
// @Summary Create, look up or update an RSVP
// @Description The last path segment selects the operation; OPTIONS answers the CORS pre-flight
// @Tags rsvp
// @Accept json
// @Produce json
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Failure 504 {object} ErrorResponse
// @Router /rsvp [post]
// @Router /rsvp/lookup [post]
// @Router /rsvp/update [post]
func GinHandler(d *Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			_ = c.Error(err)

			// Bodies without a Content-Length only hit the size limit while reading
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeResponse(c, d.respondJSON(http.StatusRequestEntityTooLarge, ErrorResponse{
					Message: "Request too large",
					Error:   string(services.KindBadRequest),
					Detail:  map[string]interface{}{"maxSize": tooLarge.Limit},
				}))
				return
			}
			// Truncated body; let the dispatcher report it as missing
			body = nil
		}

		writeResponse(c, d.Handle(c.Request.Context(), requestFromGin(c, body)))
	}
}

func writeResponse(c *gin.Context, resp *lambda.Response) {
	for key, value := range resp.Headers {
		c.Header(key, value)
	}
	c.Data(resp.StatusCode, resp.Headers["Content-Type"], resp.Body)
}

func requestFromGin(c *gin.Context, body []byte) *lambda.Request {
	headers := make(map[string]string, len(c.Request.Header))
	for key := range c.Request.Header {
		headers[key] = c.Request.Header.Get(key)
	}

	query := make(map[string]string)
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			query[key] = values[0]
		}
	}

	return &lambda.Request{
		Method:      c.Request.Method,
		Path:        c.Request.URL.Path,
		Headers:     headers,
		QueryParams: query,
		Body:        body,
		RequestID:   c.GetString(middleware.RequestIDKey),
	}
}
