package processing

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"pixelpharm-backend/internal/shared/server/middleware"
	"pixelpharm-backend/internal/shared/server/respond"
	"pixelpharm-backend/internal/uploads"
)

type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/uploads/:id/process", h.start)
	rg.GET("/uploads/:id/processing", h.attempts)
	rg.POST("/process", h.processByKey)
	rg.GET("/processing/:id", h.get)
}

type recordResponse struct {
	ID             string    `json:"id"`
	UploadID       string    `json:"uploadId"`
	Engine         string    `json:"engine"`
	Model          string    `json:"model,omitempty"`
	Status         string    `json:"status"`
	RawResponse    string    `json:"rawResponse,omitempty"`
	ErrorCode      string    `json:"errorCode,omitempty"`
	ErrorMessage   string    `json:"errorMessage,omitempty"`
	BiomarkerCount int       `json:"biomarkerCount"`
	DurationMs     int64     `json:"durationMs"`
	CreatedAt      time.Time `json:"createdAt"`
}

func toRecordResponse(r Record, withRaw bool) recordResponse {
	out := recordResponse{
		ID:             r.ID,
		UploadID:       r.UploadID,
		Engine:         r.Engine,
		Model:          r.Model,
		Status:         r.Status,
		ErrorCode:      r.ErrorCode,
		ErrorMessage:   r.ErrorMessage,
		BiomarkerCount: r.BiomarkerCount,
		DurationMs:     r.DurationMs,
		CreatedAt:      r.CreatedAt,
	}
	if withRaw {
		out.RawResponse = r.RawResponse
	}
	return out
}

type processByKeyRequest struct {
	S3Key      string `json:"s3Key"`
	FileName   string `json:"fileName"`
	MimeType   string `json:"mimeType"`
	UploadType string `json:"uploadType"`
}

func (h *Handler) start(c *gin.Context) {
	c.Set("uploadId", c.Param("id"))
	upload, err := h.Svc.Start(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"))
	if err != nil {
		writeError(c, err, "failed to start processing")
		return
	}
	respond.JSON(c, http.StatusAccepted, uploads.ToResponse(upload))
}

func (h *Handler) processByKey(c *gin.Context) {
	var req processByKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
		return
	}
	uploadType, ok := uploads.ParseType(req.UploadType)
	if !ok {
		respond.Error(c, http.StatusBadRequest, "validation_error", "uploadType must be blood_test, body_composition or other", nil)
		return
	}
	upload, err := h.Svc.ProcessByKey(c.Request.Context(), ByKeyInput{
		UserID:     middleware.UserIDFromContext(c),
		StorageKey: req.S3Key,
		FileName:   req.FileName,
		MimeType:   req.MimeType,
		UploadType: uploadType,
	})
	if err != nil {
		writeError(c, err, "failed to start processing")
		return
	}
	c.Set("uploadId", upload.ID)
	respond.JSON(c, http.StatusAccepted, uploads.ToResponse(upload))
}

func (h *Handler) attempts(c *gin.Context) {
	c.Set("uploadId", c.Param("id"))
	records, err := h.Svc.Attempts(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"))
	if err != nil {
		writeError(c, err, "failed to list processing attempts")
		return
	}
	items := make([]recordResponse, 0, len(records))
	for _, r := range records {
		items = append(items, toRecordResponse(r, false))
	}
	respond.OK(c, gin.H{"uploadId": c.Param("id"), "items": items})
}

func (h *Handler) get(c *gin.Context) {
	rec, err := h.Svc.Record(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"))
	if err != nil {
		writeError(c, err, "failed to fetch processing record")
		return
	}
	respond.OK(c, toRecordResponse(rec, true))
}

func writeError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, uploads.ErrInvalidInput):
		msg := strings.TrimPrefix(err.Error(), ErrInvalidInput.Error()+": ")
		msg = strings.TrimPrefix(msg, uploads.ErrInvalidInput.Error()+": ")
		respond.Error(c, http.StatusBadRequest, "validation_error", msg, nil)
	case errors.Is(err, uploads.ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "upload not found", nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "processing record not found", nil)
	case errors.Is(err, ErrInProgress):
		respond.Error(c, http.StatusConflict, "in_progress", "upload is already being processed", nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respond.Error(c, http.StatusRequestTimeout, "timeout", "request canceled", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", message, nil)
	}
}
