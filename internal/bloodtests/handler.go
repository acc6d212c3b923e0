package bloodtests

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"pixelpharm-backend/internal/biomarkers"
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
	rg.GET("/blood-tests", h.list)
	rg.GET("/blood-tests/:id", h.get)
	rg.GET("/biomarkers", h.latest)
	rg.GET("/biomarkers/:name/history", h.history)
}

type resultResponse struct {
	ID         string          `json:"id"`
	UploadID   string          `json:"uploadId"`
	TestDate   string          `json:"testDate,omitempty"`
	LabName    string          `json:"labName,omitempty"`
	Engine     string          `json:"engine"`
	CreatedAt  time.Time       `json:"createdAt"`
	Biomarkers json.RawMessage `json:"biomarkers,omitempty"`
	Values     []valueResponse `json:"values,omitempty"`
}

type valueResponse struct {
	ID             string            `json:"id"`
	ResultID       string            `json:"resultId"`
	Name           string            `json:"name"`
	Value          *float64          `json:"value"`
	ValueText      string            `json:"valueText"`
	Unit           string            `json:"unit"`
	ReferenceRange string            `json:"referenceRange,omitempty"`
	RefLow         *float64          `json:"refLow,omitempty"`
	RefHigh        *float64          `json:"refHigh,omitempty"`
	Status         biomarkers.Status `json:"status"`
	IsAbnormal     bool              `json:"isAbnormal"`
	Confidence     float64           `json:"confidence"`
	Page           int               `json:"page,omitempty"`
	Category       string            `json:"category,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
}

func toResultResponse(r Result) resultResponse {
	return resultResponse{
		ID:        r.ID,
		UploadID:  r.UploadID,
		TestDate:  r.TestDate,
		LabName:   r.LabName,
		Engine:    r.Engine,
		CreatedAt: r.CreatedAt,
	}
}

func toValueResponses(values []Value) []valueResponse {
	out := make([]valueResponse, 0, len(values))
	for _, v := range values {
		out = append(out, valueResponse{
			ID:             v.ID,
			ResultID:       v.ResultID,
			Name:           v.Name,
			Value:          v.Value,
			ValueText:      v.ValueText,
			Unit:           v.Unit,
			ReferenceRange: v.ReferenceRange,
			RefLow:         v.RefLow,
			RefHigh:        v.RefHigh,
			Status:         v.Status,
			IsAbnormal:     v.IsAbnormal,
			Confidence:     v.Confidence,
			Page:           v.Page,
			Category:       v.Category,
			CreatedAt:      v.CreatedAt,
		})
	}
	return out
}

func (h *Handler) list(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	limit, offset = util.ClampPage(limit, offset, 20, 50)

	results, err := h.Svc.List(c.Request.Context(), middleware.UserIDFromContext(c), limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list blood tests", nil)
		return
	}
	items := make([]resultResponse, 0, len(results))
	for _, r := range results {
		items = append(items, toResultResponse(r))
	}
	respond.List(c, items, limit, offset)
}

func (h *Handler) get(c *gin.Context) {
	res, values, err := h.Svc.Get(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "blood test not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch blood test", nil)
		return
	}
	out := toResultResponse(res)
	out.Biomarkers = res.Biomarkers
	out.Values = toValueResponses(values)
	respond.OK(c, out)
}

func (h *Handler) latest(c *gin.Context) {
	values, err := h.Svc.Latest(c.Request.Context(), middleware.UserIDFromContext(c))
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list biomarkers", nil)
		return
	}
	respond.OK(c, gin.H{"items": toValueResponses(values)})
}

func (h *Handler) history(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	values, err := h.Svc.History(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("name"), limit)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			respond.Error(c, http.StatusBadRequest, "invalid_input", err.Error(), nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load biomarker history", nil)
		return
	}
	respond.OK(c, gin.H{"name": c.Param("name"), "items": toValueResponses(values)})
}
