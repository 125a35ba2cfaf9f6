package handler

import (
	"errors"
	"net/http"

	"loyalty/internal/repository"
	"loyalty/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// PaymentCallback is the confirmation payload from the payment provider.
// Delivery is at-least-once: the same confirmation may arrive several
// times and must settle the order exactly once.
type PaymentCallback struct {
	OrderNo       string `json:"order_no"`
	TransactionID string `json:"transaction_id"`
	TotalFee      int64  `json:"total_fee"`
	ResultCode    string `json:"result_code"`
}

type PaymentWebhookHandler struct {
	orders     *repository.OrderRepository
	settlement *service.SettlementService
	log        *logrus.Logger
}

func NewPaymentWebhookHandler(orders *repository.OrderRepository, settlement *service.SettlementService, log *logrus.Logger) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{orders: orders, settlement: settlement, log: log}
}

// Handle processes a payment confirmation. Unknown orders and duplicate
// confirmations are acknowledged with 200 so the provider stops retrying;
// only a persistence failure returns 5xx to trigger a redelivery.
func (h *PaymentWebhookHandler) Handle(c *gin.Context) {
	var payload PaymentCallback
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if payload.OrderNo == "" {
		h.log.Warn("payment callback without order_no, acknowledging")
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}
	log := h.log.WithFields(logrus.Fields{
		"order_no":       payload.OrderNo,
		"transaction_id": payload.TransactionID,
	})

	order, err := h.orders.GetByOrderNo(payload.OrderNo)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			log.Warn("payment callback for unknown order")
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	if payload.ResultCode != "SUCCESS" {
		log.WithField("result_code", payload.ResultCode).Info("non-success payment callback, no state change")
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}
	if payload.TotalFee != order.AmountCents {
		log.WithFields(logrus.Fields{
			"expected": order.AmountCents,
			"actual":   payload.TotalFee,
		}).Error("payment callback amount mismatch")
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount mismatch"})
		return
	}

	settled, err := h.settlement.SettlePayment(order.ID, payload.TransactionID)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"received": true, "points_awarded": settled.PointsAwarded})
	case errors.Is(err, service.ErrAlreadySettled):
		log.Info("duplicate payment callback, order already settled")
		c.JSON(http.StatusOK, gin.H{"received": true, "already_settled": true})
	case errors.Is(err, service.ErrOrderClosed):
		log.Warn("payment callback for closed order")
		c.JSON(http.StatusOK, gin.H{"received": true, "order_closed": true})
	case errors.Is(err, repository.ErrOrderNotFound):
		c.JSON(http.StatusOK, gin.H{"received": true})
	default:
		log.WithError(err).Error("settlement failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "settlement failed"})
	}
}
