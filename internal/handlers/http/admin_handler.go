package http

import (
	"net/http"

	"murmur/internal/core/domain"
	"murmur/internal/core/services"
	"murmur/internal/infrastructure/middleware"
	"murmur/pkg/errors"

	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	admin *services.AdminService
}

func NewAdminHandler(admin *services.AdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

type setActiveRequest struct {
	IsActive *bool `json:"isActive"`
}

func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.admin.ListUsers(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	respond(c, http.StatusOK, users)
}

func (h *AdminHandler) SetActive(c *gin.Context) {
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsActive == nil {
		_ = c.Error(errors.NewInvalidInputError("isActive is required"))
		return
	}

	actor, _ := middleware.IdentityFromContext(c)
	user, err := h.admin.SetActive(c.Request.Context(), actor, domain.UserID(c.Param("id")), *req.IsActive)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respond(c, http.StatusOK, user)
}

func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.admin.Stats(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	respond(c, http.StatusOK, stats)
}
