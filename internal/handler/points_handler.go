package handler

import (
	"net/http"
	"strconv"

	"loyalty/internal/domain"
	"loyalty/internal/middleware"
	"loyalty/internal/service"

	"github.com/gin-gonic/gin"
)

type PointsHandler struct {
	points *service.PointsService
}

func NewPointsHandler(points *service.PointsService) *PointsHandler {
	return &PointsHandler{points: points}
}

// GetBalance returns the current user's balance summary.
func (h *PointsHandler) GetBalance(c *gin.Context) {
	userID := middleware.GetUserID(c)
	summary, err := h.points.Summary(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "balance lookup failed"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetHistory returns the current user's ledger entries, optionally
// filtered by category.
func (h *PointsHandler) GetHistory(c *gin.Context) {
	userID := middleware.GetUserID(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	category := domain.PointsCategory(c.Query("category"))
	if category != "" && !category.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category"})
		return
	}
	records, total, err := h.points.History(userID, category, page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "total": total})
}
