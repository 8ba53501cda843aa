package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/farm-bi/api/middleware"
	"github.com/OldStager01/farm-bi/internal/auth"
)

func newRouter(svc *auth.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.TraceID(), middleware.SecurityHeaders())

	protected := r.Group("/", middleware.JWTAuth(svc))
	protected.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"actor": middleware.GetActor(c)})
	})
	protected.POST("/close", middleware.RequireOperator(), middleware.RequestSizeLimit(16), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestJWTAuth(t *testing.T) {
	now := time.Date(2025, 2, 5, 9, 0, 0, 0, time.UTC)
	svc := auth.NewService(auth.Config{Secret: "s3cret", Duration: time.Hour, Now: func() time.Time { return now }})
	operator, err := svc.GenerateToken("ana", auth.RoleOperator)
	require.NoError(t, err)
	viewer, err := svc.GenerateToken("luis", auth.RoleViewer)
	require.NoError(t, err)

	r := newRouter(svc)

	tests := []struct {
		name   string
		method string
		path   string
		header string
		body   string
		want   int
	}{
		{"missing header", http.MethodGet, "/whoami", "", "", http.StatusUnauthorized},
		{"not bearer", http.MethodGet, "/whoami", "Basic abc", "", http.StatusUnauthorized},
		{"bad token", http.MethodGet, "/whoami", "Bearer nope", "", http.StatusUnauthorized},
		{"viewer reads", http.MethodGet, "/whoami", "Bearer " + viewer, "", http.StatusOK},
		{"viewer cannot close", http.MethodPost, "/close", "Bearer " + viewer, "{}", http.StatusForbidden},
		{"operator closes", http.MethodPost, "/close", "Bearer " + operator, "{}", http.StatusNoContent},
		{"body too large", http.MethodPost, "/close", "Bearer " + operator, strings.Repeat("x", 64), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.header != "" {
				req.Header.Set(middleware.AuthorizationHeader, tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			assert.NotEmpty(t, w.Header().Get(middleware.TraceIDHeader))
			assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		})
	}
}

func TestTraceID_KeepsIncomingHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.TraceID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, middleware.GetTraceID(c)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.TraceIDHeader, "trace-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "trace-42", w.Body.String())
	assert.Equal(t, "trace-42", w.Header().Get(middleware.TraceIDHeader))
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.CORS(middleware.DefaultCORSConfig("https://panel.finca.co")))
	r.GET("/periods", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantAllow  string
	}{
		{"same origin", http.MethodGet, "", http.StatusOK, ""},
		{"allowed origin", http.MethodGet, "https://panel.finca.co", http.StatusOK, "https://panel.finca.co"},
		{"allowed preflight", http.MethodOptions, "https://panel.finca.co", http.StatusNoContent, "https://panel.finca.co"},
		{"foreign origin", http.MethodGet, "https://evil.example", http.StatusOK, ""},
		{"foreign preflight", http.MethodOptions, "https://evil.example", http.StatusForbidden, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/periods", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantAllow, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestDefaultCORSConfig_AnyOrigin(t *testing.T) {
	cfg := middleware.DefaultCORSConfig()
	assert.Equal(t, []string{"*"}, cfg.AllowOrigins)
	assert.Contains(t, cfg.ExposeHeaders, middleware.TraceIDHeader)
}
