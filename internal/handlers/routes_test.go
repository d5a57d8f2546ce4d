package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"rsvp-api/internal/middleware"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	return newTestRouterWithHealth(t, nil)
}

func newTestRouterWithHealth(t *testing.T, health func(ctx context.Context) error) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	d, _ := newTestDispatcher(t)
	router := gin.New()
	SetupMiddleware(router, logger)
	SetupRoutes(router, &RouterConfig{
		Dispatcher:  d,
		Logger:      logger,
		ServiceName: "rsvp-api",
		Version:     "test",
		HealthCheck: health,
	})
	return router
}

func TestRoutes_Health(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"healthy"`) {
		t.Errorf("Unexpected body %s", w.Body.String())
	}
}

func TestRoutes_CreateAndLookup(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/rsvp", strings.NewReader(createBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected CORS header on dev server response")
	}
	if w.Header().Get(middleware.RequestIDHeader) != "req-42" {
		t.Errorf("Expected request id echoed, got %q", w.Header().Get(middleware.RequestIDHeader))
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/rsvp/lookup", strings.NewReader(`{"email":"alice@example.com"}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 on lookup, got %d: %s", w.Code, w.Body.String())
	}

	var record map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &record); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if record["email"] != "alice@example.com" {
		t.Errorf("Unexpected record %v", record)
	}
}

func TestRoutes_Preflight(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/rsvp/update", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("Expected empty body, got %q", w.Body.String())
	}
	if w.Header().Get("Access-Control-Allow-Methods") != "OPTIONS,POST" {
		t.Errorf("Unexpected allow methods %q", w.Header().Get("Access-Control-Allow-Methods"))
	}
}

func TestRoutes_RequestTooLarge(t *testing.T) {
	router := newTestRouter(t)

	big := strings.Repeat("a", int(middleware.DefaultMaxBodySize)+1)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/rsvp", strings.NewReader(big)))

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected 413, got %d", w.Code)
	}
}

func TestRoutes_HealthUnavailable(t *testing.T) {
	router := newTestRouterWithHealth(t, func(context.Context) error {
		return errors.New("records table check failed")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "records table check failed") {
		t.Errorf("Expected the health error in the body, got %s", w.Body.String())
	}
}

func TestRoutes_ChunkedRequestTooLarge(t *testing.T) {
	router := newTestRouter(t)

	// No Content-Length, so only the body reader can enforce the limit
	big := io.MultiReader(strings.NewReader(`{"pad":"`), strings.NewReader(strings.Repeat("a", int(middleware.DefaultMaxBodySize))), strings.NewReader(`"}`))
	req := httptest.NewRequest(http.MethodPost, "/rsvp", big)
	req.ContentLength = -1

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("Expected 413, got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected CORS headers on the 413 response")
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if body["message"] != "Request too large" {
		t.Errorf("Unexpected body %v", body)
	}
}

func TestRoutes_Swagger(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, SwaggerDocPath, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for the OpenAPI document, got %d", w.Code)
	}

	var doc struct {
		Paths map[string]interface{} `json:"paths"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("Invalid OpenAPI document: %v", err)
	}
	for _, path := range []string{"/rsvp", "/rsvp/lookup", "/rsvp/update"} {
		if _, ok := doc.Paths[path]; !ok {
			t.Errorf("Expected %s in the OpenAPI document", path)
		}
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for the Swagger UI, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), SwaggerDocPath) {
		t.Error("Expected the UI to point at the embedded document")
	}
}
