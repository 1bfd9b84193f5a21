package history

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newHistoryRouter(repo Repo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(repo).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func TestListExtractions(t *testing.T) {
	repo := NewMemoryRepo(10)
	base := time.Date(2024, 8, 15, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_ = repo.Append(context.Background(), sampleRecord(i, base))
	}

	resp := httptest.NewRecorder()
	newHistoryRouter(repo).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/extractions?limit=2", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body struct {
		Items []struct {
			ID             string  `json:"id"`
			ProcessingTime float64 `json:"processing_time"`
		} `json:"items"`
		Count int `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 2 || body.Items[0].ID != "rec-02" {
		t.Fatalf("unexpected body: %+v", body)
	}
	if body.Items[0].ProcessingTime != 1.5 {
		t.Fatalf("expected processing_time 1.5, got %v", body.Items[0].ProcessingTime)
	}
}

func TestListExtractionsRejectsBadLimit(t *testing.T) {
	resp := httptest.NewRecorder()
	newHistoryRouter(NewMemoryRepo(1)).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/extractions?limit=abc", nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
