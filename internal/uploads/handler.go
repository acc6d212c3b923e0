package uploads

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"pixelpharm-backend/internal/shared/server/middleware"
	"pixelpharm-backend/internal/shared/server/respond"
	"pixelpharm-backend/internal/usage"
)

// multipart overhead on top of the file itself
const maxRequestBytes = MaxUploadBytes + 1<<20

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches upload routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/uploads", h.upload)
	rg.POST("/uploads/presign", h.presign)
	rg.POST("/uploads/from-s3", h.createFromS3)
	rg.GET("/uploads", h.list)
	rg.GET("/uploads/:id", h.get)
}

func (h *Handler) upload(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBytes)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respond.Error(c, http.StatusRequestEntityTooLarge, "payload_too_large", "file exceeds 10MB", nil)
			return
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}
	if fileHeader.Size > MaxUploadBytes {
		respond.Error(c, http.StatusRequestEntityTooLarge, "payload_too_large", "file exceeds 10MB", nil)
		return
	}
	uploadType, ok := ParseType(c.PostForm("uploadType"))
	if !ok {
		respond.Error(c, http.StatusBadRequest, "validation_error", "uploadType must be blood_test, body_composition or other", nil)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()

	upload, err := h.Svc.Upload(c.Request.Context(), UploadInput{
		UserID:     userID,
		FileName:   fileHeader.Filename,
		UploadType: uploadType,
		Body:       file,
	})
	if err != nil {
		writeError(c, err, "failed to upload file")
		return
	}
	c.Set("uploadId", upload.ID)
	respond.JSON(c, http.StatusCreated, ToResponse(upload))
}

func (h *Handler) presign(c *gin.Context) {
	var req presignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	contentType := strings.TrimSpace(req.ContentType)
	if contentType == "" {
		contentType = strings.TrimSpace(req.MimeType)
	}

	out, err := h.Svc.Presign(c.Request.Context(), PresignInput{
		UserID:      middleware.UserIDFromContext(c),
		FileName:    strings.TrimSpace(req.FileName),
		ContentType: contentType,
		SizeBytes:   req.SizeBytes,
	})
	if err != nil {
		writeError(c, err, "failed to generate upload url")
		return
	}
	respond.JSON(c, http.StatusOK, presignResponse{
		UploadURL:        out.UploadURL,
		S3Key:            out.Key,
		ExpiresInSeconds: out.ExpiresInSeconds,
	})
}

func (h *Handler) createFromS3(c *gin.Context) {
	var req createFromS3Request
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	uploadType, ok := ParseType(req.UploadType)
	if !ok {
		respond.Error(c, http.StatusBadRequest, "validation_error", "uploadType must be blood_test, body_composition or other", nil)
		return
	}

	upload, err := h.Svc.CreateFromS3(c.Request.Context(), FromS3Input{
		UserID:           middleware.UserIDFromContext(c),
		Key:              req.S3Key,
		OriginalFileName: req.OriginalFileName,
		ContentType:      req.ContentType,
		SizeBytes:        req.SizeBytes,
		UploadType:       uploadType,
	})
	if err != nil {
		writeError(c, err, "failed to register upload")
		return
	}
	c.Set("uploadId", upload.ID)
	respond.JSON(c, http.StatusCreated, ToResponse(upload))
}

func (h *Handler) list(c *gin.Context) {
	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if limit < 0 {
		limit = 0
	}
	if limit > 50 {
		limit = 50
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	if offset < 0 {
		offset = 0
	}

	items, err := h.Svc.List(c.Request.Context(), middleware.UserIDFromContext(c), limit, offset)
	if err != nil {
		writeError(c, err, "failed to list uploads")
		return
	}
	resp := make([]UploadResponse, 0, len(items))
	for _, u := range items {
		resp = append(resp, ToResponse(u))
	}
	respond.List(c, resp, limit, offset)
}

func (h *Handler) get(c *gin.Context) {
	id := c.Param("id")
	c.Set("uploadId", id)
	upload, err := h.Svc.Get(c.Request.Context(), middleware.UserIDFromContext(c), id)
	if err != nil {
		writeError(c, err, "failed to fetch upload")
		return
	}
	respond.JSON(c, http.StatusOK, ToResponse(upload))
}

func writeError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, usage.ErrLimitReached):
		respond.Error(c, http.StatusTooManyRequests, "limit_reached", "upload limit reached for the current period", nil)
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", strings.TrimPrefix(err.Error(), ErrInvalidInput.Error()+": "), nil)
	case errors.Is(err, ErrUnsupportedType):
		respond.Error(c, http.StatusUnsupportedMediaType, "unsupported_media_type", "file type is not supported", nil)
	case errors.Is(err, ErrTooLarge):
		respond.Error(c, http.StatusRequestEntityTooLarge, "payload_too_large", "file exceeds 10MB", nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "upload not found", nil)
	case errors.Is(err, ErrPresignUnavailable):
		respond.Error(c, http.StatusServiceUnavailable, "presign_unavailable", "presigned uploads are not configured", nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respond.Error(c, http.StatusRequestTimeout, "timeout", "request canceled", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", message, nil)
	}
}
