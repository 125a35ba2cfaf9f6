package repository

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"loyalty/internal/domain"
	"loyalty/internal/models"

	"gorm.io/gorm"
)

var ErrOrderNotFound = errors.New("order not found")

// OrderRepository owns the payment_orders table. Status only ever changes
// through the MarkXxx conditional updates below: each issues a single
// UPDATE guarded by the expected current status and reports the affected
// row count, so a stale caller observes zero rows instead of clobbering a
// transition that already happened.
type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// GenerateOrderNo builds an order number the payment provider echoes back
// in callbacks: NO + unix millis + 3 random digits.
func GenerateOrderNo(now time.Time) string {
	return fmt.Sprintf("NO%d%03d", now.UnixMilli(), rand.Intn(1000))
}

func (r *OrderRepository) Create(o *models.PaymentOrder) error {
	if o.OrderNo == "" {
		o.OrderNo = GenerateOrderNo(time.Now())
	}
	if o.Status == "" {
		o.Status = domain.OrderPending
	}
	return r.db.Create(o).Error
}

func (r *OrderRepository) GetByID(id uint) (*models.PaymentOrder, error) {
	var o models.PaymentOrder
	if err := r.db.First(&o, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepository) GetByOrderNo(orderNo string) (*models.PaymentOrder, error) {
	var o models.PaymentOrder
	if err := r.db.Where("order_no = ?", orderNo).First(&o).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &o, nil
}

// MarkPaid performs the pending->paid transition. Zero affected rows means
// the order was missing or no longer pending; the caller decides what that
// means. Runs on the caller's transaction handle.
func (r *OrderRepository) MarkPaid(tx *gorm.DB, id uint, transactionID string, paidAt time.Time) (int64, error) {
	res := tx.Model(&models.PaymentOrder{}).
		Where("id = ? AND status = ?", id, domain.OrderPending).
		Updates(map[string]interface{}{
			"status":         domain.OrderPaid,
			"transaction_id": transactionID,
			"paid_at":        paidAt,
		})
	return res.RowsAffected, res.Error
}

// MarkRefunded performs the paid->refunded transition.
func (r *OrderRepository) MarkRefunded(tx *gorm.DB, id uint) (int64, error) {
	res := tx.Model(&models.PaymentOrder{}).
		Where("id = ? AND status = ?", id, domain.OrderPaid).
		Update("status", domain.OrderRefunded)
	return res.RowsAffected, res.Error
}

// MarkCancelled performs the pending->cancelled transition.
func (r *OrderRepository) MarkCancelled(tx *gorm.DB, id uint) (int64, error) {
	res := tx.Model(&models.PaymentOrder{}).
		Where("id = ? AND status = ?", id, domain.OrderPending).
		Update("status", domain.OrderCancelled)
	return res.RowsAffected, res.Error
}

// MarkExpired flips a pending order whose deadline has passed. The
// expired_at guard keeps a premature call from expiring a live order.
func (r *OrderRepository) MarkExpired(tx *gorm.DB, id uint, now time.Time) (int64, error) {
	res := tx.Model(&models.PaymentOrder{}).
		Where("id = ? AND status = ? AND expired_at <= ?", id, domain.OrderPending, now).
		Update("status", domain.OrderExpired)
	return res.RowsAffected, res.Error
}

func (r *OrderRepository) ListByUser(userID uint, page, pageSize int) ([]models.PaymentOrder, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	q := r.db.Model(&models.PaymentOrder{}).Where("user_id = ?", userID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var orders []models.PaymentOrder
	err := q.Order("created_at DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&orders).Error
	return orders, total, err
}

// ListByMerchant returns a merchant's paid orders in the given window,
// plus the total amount received.
func (r *OrderRepository) ListByMerchant(merchantID uint, from, to *time.Time, page, pageSize int) ([]models.PaymentOrder, int64, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	filter := func() *gorm.DB {
		q := r.db.Model(&models.PaymentOrder{}).
			Where("merchant_id = ? AND status = ?", merchantID, domain.OrderPaid)
		if from != nil {
			q = q.Where("paid_at >= ?", from)
		}
		if to != nil {
			q = q.Where("paid_at <= ?", to)
		}
		return q
	}
	var total int64
	if err := filter().Count(&total).Error; err != nil {
		return nil, 0, 0, err
	}
	var totalAmount int64
	if err := filter().Select("COALESCE(SUM(amount_cents), 0)").Scan(&totalAmount).Error; err != nil {
		return nil, 0, 0, err
	}
	var orders []models.PaymentOrder
	err := filter().Order("paid_at DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&orders).Error
	return orders, total, totalAmount, err
}
