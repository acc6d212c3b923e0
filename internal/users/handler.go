package users

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pixelpharm-backend/internal/shared/server/middleware"
	"pixelpharm-backend/internal/shared/server/respond"
)

type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/me", h.me)
}

func (h *Handler) me(c *gin.Context) {
	if h.Svc == nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "service unavailable", nil)
		return
	}
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
		return
	}
	user, err := h.Svc.UpsertFromClaims(c.Request.Context(), User{
		ID:       userID,
		Email:    middleware.UserEmailFromContext(c),
		FullName: middleware.UserNameFromContext(c),
		Plan:     middleware.UserPlanFromContext(c),
	})
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load user", nil)
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{
		"id":                 user.ID,
		"email":              user.Email,
		"fullName":           user.FullName,
		"plan":               user.Plan,
		"subscriptionStatus": user.SubscriptionStatus,
		"isGuest":            middleware.IsGuest(c),
		"createdAt":          user.CreatedAt,
	})
}
