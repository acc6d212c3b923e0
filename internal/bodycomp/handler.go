package bodycomp

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

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
	rg.GET("/body-composition", h.list)
	rg.GET("/body-composition/:id", h.get)
}

type resultResponse struct {
	ID        string    `json:"id"`
	UploadID  string    `json:"uploadId"`
	Engine    string    `json:"engine"`
	CreatedAt time.Time `json:"createdAt"`
	Measurements
}

func toResponse(r Result) resultResponse {
	return resultResponse{
		ID:           r.ID,
		UploadID:     r.UploadID,
		Engine:       r.Engine,
		CreatedAt:    r.CreatedAt,
		Measurements: r.Measurements,
	}
}

func (h *Handler) list(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	limit, offset = util.ClampPage(limit, offset, 20, 50)

	results, err := h.Svc.List(c.Request.Context(), middleware.UserIDFromContext(c), limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list body composition results", nil)
		return
	}
	items := make([]resultResponse, 0, len(results))
	for _, r := range results {
		items = append(items, toResponse(r))
	}
	respond.List(c, items, limit, offset)
}

func (h *Handler) get(c *gin.Context) {
	res, err := h.Svc.Get(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "body composition result not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch body composition result", nil)
		return
	}
	respond.OK(c, toResponse(res))
}
