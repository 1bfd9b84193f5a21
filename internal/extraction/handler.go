package extraction

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"catastro-backend/internal/documents"
	"catastro-backend/internal/shared/server/middleware"
	"catastro-backend/internal/shared/server/respond"
	"catastro-backend/internal/shared/telemetry"
)

// multipartOverhead leaves room for boundaries and form fields on top of
// the file size limit.
const multipartOverhead = 1 << 20

// Handler wires the extraction endpoint to the service.
type Handler struct {
	Svc      *Service
	MaxBytes int64
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, maxBytes int64) *Handler {
	return &Handler{Svc: svc, MaxBytes: maxBytes}
}

// RegisterRoutes attaches extraction routes to the router group. Panics in
// the given middlewares or the handler are rendered as an Envelope.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, middlewares ...gin.HandlerFunc) {
	handlers := []gin.HandlerFunc{middleware.RecoveryWith(h.writePanic)}
	handlers = append(append(handlers, middlewares...), h.extract)
	rg.POST("/extract", handlers...)
}

// WriteRateLimited renders a throttled extraction request as an Envelope.
// It matches middleware.RateLimitConfig.OnLimit.
func (h *Handler) WriteRateLimited(c *gin.Context, retryAfter time.Duration) {
	telemetry.Info("extraction.rate_limited", map[string]any{
		"request_id":     middleware.RequestIDFromContext(c),
		"retry_after_ms": retryAfter.Milliseconds(),
	})
	h.writeOutcome(c, Failed(Failure{Kind: KindRateLimited, Message: "rate limit exceeded"}))
}

func (h *Handler) writePanic(c *gin.Context, _ any) {
	out := Failed(Failure{Kind: KindInternal, Message: "panic"})
	out.DocumentID = c.GetString(middleware.DocumentIDKey)
	h.writeOutcome(c, out)
}

func (h *Handler) extract(c *gin.Context) {
	ctx := c.Request.Context()
	declaredType := c.Query("document_type")

	var out Outcome
	switch pref, prefErr := ParsePreference(c.Query("backend")); {
	case h.Svc.ConfigErr != nil:
		out = h.Svc.Process(ctx, documents.Upload{DeclaredType: declaredType}, pref)
	case prefErr != nil:
		out = h.Svc.Reject(ctx, documents.Upload{DeclaredType: declaredType}, prefErr)
	default:
		out = h.processUpload(c, declaredType, pref)
	}

	fields := map[string]any{
		"request_id":  middleware.RequestIDFromContext(c),
		"document_id": out.DocumentID,
		"success":     out.OK(),
		"attempts":    len(out.Attempts),
	}
	if fail, ok := out.Failure(); ok {
		fields["error_kind"] = string(fail.Kind)
	}
	telemetry.Info("extraction.response", fields)
	c.Set(middleware.DocumentIDKey, out.DocumentID)
	h.writeOutcome(c, out)
}

// writeOutcome is the single exit for every /extract response.
func (h *Handler) writeOutcome(c *gin.Context, out Outcome) {
	terminal := stateSucceeded
	if fail, ok := out.Failure(); ok {
		c.Set(middleware.ErrorKindKey, string(fail.Kind))
		terminal = stateFailed
	}
	c.Set(middleware.StatusTransitionKey, stateReceived+"->"+terminal)

	lang := MatchLanguage(c.GetHeader("Accept-Language"))
	respond.Localized(c, HTTPStatus(out), lang, NewEnvelope(out, lang))
}

func (h *Handler) processUpload(c *gin.Context, declaredType string, pref Preference) Outcome {
	ctx := c.Request.Context()
	maxBytes := h.MaxBytes
	if maxBytes <= 0 {
		maxBytes = documents.DefaultMaxBytes
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+multipartOverhead)

	fileHeader, err := c.FormFile("file")
	if strings.TrimSpace(declaredType) == "" {
		declaredType = c.PostForm("document_type")
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return h.Svc.Reject(ctx, documents.Upload{DeclaredType: declaredType},
				&documents.InvalidInputError{Reason: documents.ReasonSizeLimit})
		}
		return h.Svc.Process(ctx, documents.Upload{DeclaredType: declaredType}, pref)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return h.Svc.Reject(ctx, documents.Upload{Filename: fileHeader.Filename, DeclaredType: declaredType},
			&documents.InvalidInputError{Reason: documents.ReasonMissingFile})
	}
	defer file.Close()

	return h.Svc.Process(ctx, documents.Upload{
		Filename:     fileHeader.Filename,
		DeclaredType: declaredType,
		Body:         file,
	}, pref)
}
