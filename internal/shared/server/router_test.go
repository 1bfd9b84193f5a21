package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"catastro-backend/internal/history"
	"catastro-backend/internal/services/health"
	"catastro-backend/internal/shared/config"
)

func TestAddr(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ":8080"},
		{in: "9090", want: ":9090"},
		{in: ":7070", want: ":7070"},
	}
	for _, tt := range tests {
		if got := Addr(tt.in); got != tt.want {
			t.Fatalf("Addr(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewRouterMountsRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := config.Config{CloudProject: "catastro-dev", CORSAllowOrigin: []string{"http://localhost:3000"}}
	r := NewRouter(RouterDeps{
		Config:         cfg,
		HealthHandler:  health.NewHandler(health.NewService(cfg, nil)),
		HistoryHandler: history.NewHandler(history.NewMemoryRepo(10)),
	})

	tests := []struct {
		path string
		want int
	}{
		{path: "/api/v1/health", want: http.StatusOK},
		{path: "/api/v1/extractions", want: http.StatusOK},
		{path: "/metrics", want: http.StatusOK},
		{path: "/api/v1/nope", want: http.StatusNotFound},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.path, func(t *testing.T) {
			resp := httptest.NewRecorder()
			r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if resp.Code != tt.want {
				t.Fatalf("GET %s: expected %d, got %d", tt.path, tt.want, resp.Code)
			}
			if resp.Header().Get("X-Request-Id") == "" {
				t.Fatalf("expected X-Request-Id header")
			}
		})
	}
}
