package history

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"catastro-backend/internal/shared/server/respond"
)

// Handler exposes the extraction history.
type Handler struct {
	Repo Repo
}

// NewHandler constructs a Handler.
func NewHandler(repo Repo) *Handler {
	return &Handler{Repo: repo}
}

// RegisterRoutes attaches history routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/extractions", h.list)
}

type recordResponse struct {
	ID             string   `json:"id"`
	DocumentID     string   `json:"document_id,omitempty"`
	DocumentType   string   `json:"document_type"`
	FileName       string   `json:"file_name,omitempty"`
	SizeBytes      int64    `json:"size_bytes"`
	Checksum       string   `json:"checksum,omitempty"`
	Status         Status   `json:"status"`
	BackendUsed    string   `json:"backend_used,omitempty"`
	ErrorKind      string   `json:"error,omitempty"`
	Confidence     *float64 `json:"confidence,omitempty"`
	Attempts       int      `json:"attempts"`
	ProcessingTime float64  `json:"processing_time"`
	CreatedAt      string   `json:"created_at"`
}

type listResponse struct {
	Items []recordResponse `json:"items"`
	Count int              `json:"count"`
}

func (h *Handler) list(c *gin.Context) {
	limit := DefaultListLimit
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respond.Error(c, http.StatusBadRequest, "validation_error", "limit must be a positive integer", nil)
			return
		}
		limit = parsed
	}

	records, err := h.Repo.ListRecent(c.Request.Context(), limit)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "history_unavailable", "failed to list extractions", nil)
		return
	}

	items := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, toResponse(rec))
	}
	respond.OK(c, listResponse{Items: items, Count: len(items)})
}

func toResponse(rec Record) recordResponse {
	return recordResponse{
		ID:             rec.ID,
		DocumentID:     rec.DocumentID,
		DocumentType:   rec.DocumentType,
		FileName:       rec.FileName,
		SizeBytes:      rec.SizeBytes,
		Checksum:       rec.Checksum,
		Status:         rec.Status,
		BackendUsed:    rec.BackendUsed,
		ErrorKind:      rec.ErrorKind,
		Confidence:     rec.Confidence,
		Attempts:       rec.Attempts,
		ProcessingTime: rec.ProcessingTime.Seconds(),
		CreatedAt:      rec.CreatedAt.UTC().Format(time.RFC3339),
	}
}
