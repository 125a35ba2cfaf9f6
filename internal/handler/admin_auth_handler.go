package handler

import (
	"errors"
	"net/http"

	"loyalty/internal/service"

	"github.com/gin-gonic/gin"
)

type AdminAuthHandler struct {
	authSvc *service.AuthService
}

func NewAdminAuthHandler(authSvc *service.AuthService) *AdminAuthHandler {
	return &AdminAuthHandler{authSvc: authSvc}
}

type adminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AdminAuthHandler) Login(c *gin.Context) {
	var req adminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token, admin, err := h.authSvc.AdminLogin(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"admin": gin.H{"id": admin.ID, "username": admin.Username, "real_name": admin.RealName},
	})
}
