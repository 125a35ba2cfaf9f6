package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"loyalty/config"
	"loyalty/internal/middleware"
	"loyalty/internal/models"
	"loyalty/internal/repository"
	"loyalty/internal/service"

	"github.com/gin-gonic/gin"
)

type OrderHandler struct {
	cfg        *config.Config
	orders     *repository.OrderRepository
	users      *repository.UserRepository
	merchants  *repository.MerchantRepository
	settlement *service.SettlementService
}

func NewOrderHandler(cfg *config.Config, orders *repository.OrderRepository, users *repository.UserRepository, merchants *repository.MerchantRepository, settlement *service.SettlementService) *OrderHandler {
	return &OrderHandler{cfg: cfg, orders: orders, users: users, merchants: merchants, settlement: settlement}
}

type createOrderRequest struct {
	MerchantID  uint   `json:"merchant_id" binding:"required"`
	AmountCents int64  `json:"amount_cents" binding:"required,gt=0"`
	Description string `json:"description"`
}

// Create opens a pending order. The point award is fixed here from the
// current ratio; later ratio changes never touch existing orders.
func (h *OrderHandler) Create(c *gin.Context) {
	userID := middleware.GetUserID(c)
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := h.users.GetByID(userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if !user.IsActive() {
		c.JSON(http.StatusForbidden, gin.H{"error": "user suspended"})
		return
	}
	merchant, err := h.merchants.GetByID(req.MerchantID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "merchant not found"})
		return
	}
	if !merchant.IsActive() {
		c.JSON(http.StatusForbidden, gin.H{"error": "merchant not active"})
		return
	}

	now := time.Now()
	order := &models.PaymentOrder{
		UserID:        userID,
		MerchantID:    merchant.ID,
		AmountCents:   req.AmountCents,
		PointsAwarded: req.AmountCents / 100 * h.cfg.Points.Ratio,
		Description:   req.Description,
		ExpiredAt:     now.Add(h.cfg.Points.OrderExpiry),
	}
	if err := h.orders.Create(order); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "order creation failed"})
		return
	}
	c.JSON(http.StatusCreated, order)
}

// Get returns one order, first reactively expiring it if its payment
// deadline has passed.
func (h *OrderHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}
	if _, err := h.settlement.ExpireIfOverdue(uint(id)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "order lookup failed"})
		return
	}
	order, err := h.orders.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "order lookup failed"})
		return
	}
	if order.UserID != middleware.GetUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.JSON(http.StatusOK, order)
}

// List returns the authenticated user's order history.
func (h *OrderHandler) List(c *gin.Context) {
	userID := middleware.GetUserID(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	orders, total, err := h.orders.ListByUser(userID, page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "order lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "total": total})
}
