package insights

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"pixelpharm-backend/internal/llm"
	"pixelpharm-backend/internal/shared/server/middleware"
	"pixelpharm-backend/internal/shared/server/respond"
	"pixelpharm-backend/internal/shared/util"
)

type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/insights", h.generate)
	rg.GET("/insights", h.list)
	rg.GET("/insights/:id", h.get)
}

type generateRequest struct {
	Kind string `json:"kind"`
}

type insightResponse struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	Title     string          `json:"title"`
	Summary   string          `json:"summary"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Model     string          `json:"model,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

func toResponse(in Insight) insightResponse {
	return insightResponse{
		ID:        in.ID,
		Kind:      in.Kind,
		Title:     in.Title,
		Summary:   in.Summary,
		Payload:   in.Payload,
		Model:     in.Model,
		CreatedAt: in.CreatedAt,
	}
}

func (h *Handler) generate(c *gin.Context) {
	var req generateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
			return
		}
	}
	kind, ok := ParseKind(req.Kind)
	if !ok {
		respond.Error(c, http.StatusBadRequest, "validation_error", "kind must be health_insight or medical_review", nil)
		return
	}
	insight, err := h.Svc.Generate(c.Request.Context(), middleware.UserIDFromContext(c), kind)
	if err != nil {
		writeError(c, err, "failed to generate insight")
		return
	}
	respond.JSON(c, http.StatusCreated, toResponse(insight))
}

func (h *Handler) list(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	limit, offset = util.ClampPage(limit, offset, 20, 50)

	var kind Kind
	if raw := c.Query("kind"); raw != "" {
		parsed, ok := ParseKind(raw)
		if !ok {
			respond.Error(c, http.StatusBadRequest, "validation_error", "kind must be health_insight or medical_review", nil)
			return
		}
		kind = parsed
	}
	items, err := h.Svc.List(c.Request.Context(), middleware.UserIDFromContext(c), kind, limit, offset)
	if err != nil {
		writeError(c, err, "failed to list insights")
		return
	}
	out := make([]insightResponse, 0, len(items))
	for _, in := range items {
		out = append(out, toResponse(in))
	}
	respond.List(c, out, limit, offset)
}

func (h *Handler) get(c *gin.Context) {
	insight, err := h.Svc.Get(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"))
	if err != nil {
		writeError(c, err, "failed to fetch insight")
		return
	}
	respond.OK(c, toResponse(insight))
}

func writeError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, ErrNoData):
		respond.Error(c, http.StatusConflict, "no_data", "no biomarker results to summarize yet", nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "insight not found", nil)
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, llm.ErrNotConfigured):
		respond.Error(c, http.StatusServiceUnavailable, "llm_unavailable", "insight generation is not configured", nil)
	case errors.Is(err, ErrUnparseable), errors.Is(err, llm.ErrEmptyResponse):
		respond.Error(c, http.StatusBadGateway, "llm_error", "the model reply could not be used", nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respond.Error(c, http.StatusGatewayTimeout, "timeout", "insight generation timed out", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", message, nil)
	}
}
