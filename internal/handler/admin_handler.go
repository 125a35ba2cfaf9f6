package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"loyalty/internal/models"
	"loyalty/internal/repository"
	"loyalty/internal/service"

	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	points     *service.PointsService
	settlement *service.SettlementService
	auditRepo  *repository.AuditLogRepository
}

func NewAdminHandler(points *service.PointsService, settlement *service.SettlementService, auditRepo *repository.AuditLogRepository) *AdminHandler {
	return &AdminHandler{points: points, settlement: settlement, auditRepo: auditRepo}
}

func (h *AdminHandler) audit(c *gin.Context, action, resource, resourceID, detail string) {
	var adminID *uint
	if v, ok := c.Get("user_id"); ok {
		id := v.(uint)
		adminID = &id
	}
	_ = h.auditRepo.Create(&models.AuditLog{
		AdminID:    adminID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Detail:     detail,
		IP:         c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	})
}

type adjustPointsRequest struct {
	UserID uint   `json:"user_id" binding:"required"`
	Delta  int64  `json:"delta" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

// AdjustPoints manually grants or deducts points for a user.
func (h *AdminHandler) AdjustPoints(c *gin.Context) {
	var req adjustPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	newBalance, err := h.points.AdjustPoints(req.UserID, req.Delta, req.Reason)
	switch {
	case err == nil:
		h.audit(c, "points_adjust", "user", strconv.FormatUint(uint64(req.UserID), 10),
			fmt.Sprintf("delta=%d reason=%s", req.Delta, req.Reason))
		c.JSON(http.StatusOK, gin.H{"user_id": req.UserID, "new_balance": newBalance})
	case errors.Is(err, repository.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	case errors.Is(err, repository.ErrInsufficientBalance):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "insufficient balance"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "adjustment failed"})
	}
}

type refundOrderRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// RefundOrder reverses a paid order and its point award.
func (h *AdminHandler) RefundOrder(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}
	var req refundOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	order, err := h.settlement.RefundOrder(uint(id), req.Reason)
	switch {
	case err == nil:
		h.audit(c, "order_refund", "order", order.OrderNo, req.Reason)
		c.JSON(http.StatusOK, order)
	case errors.Is(err, repository.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
	case errors.Is(err, service.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": "order is not paid"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refund failed"})
	}
}

// CancelOrder closes a pending order before payment.
func (h *AdminHandler) CancelOrder(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}
	err = h.settlement.CancelOrder(uint(id))
	switch {
	case err == nil:
		h.audit(c, "order_cancel", "order", c.Param("id"), "")
		c.JSON(http.StatusOK, gin.H{"cancelled": true})
	case errors.Is(err, repository.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
	case errors.Is(err, service.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": "order is not pending"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cancel failed"})
	}
}

// VerifyBalance checks the ledger-sum invariant for one user.
func (h *AdminHandler) VerifyBalance(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	ok, err := h.points.VerifyBalance(uint(id))
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verification failed"})
	default:
		c.JSON(http.StatusOK, gin.H{"user_id": id, "consistent": ok})
	}
}
