package service

import (
	"errors"
	"fmt"
	"time"

	"loyalty/config"
	"loyalty/internal/domain"
	"loyalty/internal/models"
	"loyalty/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	// ErrAlreadySettled means the order was settled by an earlier call.
	// Expected under duplicate webhook delivery; callers treat it as
	// success, not failure.
	ErrAlreadySettled = errors.New("order already settled")

	// ErrOrderClosed means the order was cancelled or expired before
	// payment confirmation arrived.
	ErrOrderClosed = errors.New("order closed")

	// ErrInvalidState means the requested transition is not allowed from
	// the order's current state.
	ErrInvalidState = errors.New("invalid order state for transition")
)

// SettlementService is the only component that performs points-affecting
// order transitions. Each public method is one transaction: the guarded
// status update and the ledger/balance effect commit together or not at
// all. Idempotency comes from the conditional update itself, so duplicate
// delivery degrades to a reported no-op instead of a double award.
type SettlementService struct {
	db     *gorm.DB
	orders *repository.OrderRepository
	points *repository.PointsRepository
	cfg    *config.PointsConfig
	log    *logrus.Logger
}

func NewSettlementService(db *gorm.DB, orders *repository.OrderRepository, points *repository.PointsRepository, cfg *config.PointsConfig, log *logrus.Logger) *SettlementService {
	return &SettlementService{db: db, orders: orders, points: points, cfg: cfg, log: log}
}

// SettlePayment transitions a pending order to paid and awards its points.
// Exactly one call wins for a given order; the rest observe zero affected
// rows and come back with ErrAlreadySettled or ErrOrderClosed, having
// written nothing.
func (s *SettlementService) SettlePayment(orderID uint, transactionID string) (*models.PaymentOrder, error) {
	var settled models.PaymentOrder
	err := s.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		affected, err := s.orders.MarkPaid(tx, orderID, transactionID, now)
		if err != nil {
			return err
		}
		if affected == 0 {
			return s.classifySettleConflict(tx, orderID)
		}
		if err := tx.First(&settled, orderID).Error; err != nil {
			return err
		}
		var expiresAt *time.Time
		if s.cfg.ExpiryDays > 0 {
			e := now.AddDate(0, 0, s.cfg.ExpiryDays)
			expiresAt = &e
		}
		_, err = s.points.ApplyDelta(tx, settled.UserID, settled.PointsAwarded,
			domain.CategoryPaymentReward, &settled.ID,
			fmt.Sprintf("points for order %s", settled.OrderNo), expiresAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"order_id": settled.ID,
		"order_no": settled.OrderNo,
		"user_id":  settled.UserID,
		"points":   settled.PointsAwarded,
	}).Info("order settled")
	return &settled, nil
}

// classifySettleConflict explains a zero-row MarkPaid. A concurrent
// settlement may have committed after this transaction's snapshot was
// taken, so a still-pending status here is also reported as already
// settled rather than closed.
func (s *SettlementService) classifySettleConflict(tx *gorm.DB, orderID uint) error {
	var o models.PaymentOrder
	if err := tx.First(&o, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return repository.ErrOrderNotFound
		}
		return err
	}
	switch o.Status {
	case domain.OrderCancelled, domain.OrderExpired:
		return ErrOrderClosed
	default:
		return ErrAlreadySettled
	}
}

// RefundOrder transitions a paid order to refunded and appends the
// compensating ledger entry. The reversal is unconditional: it may drive
// the balance negative if the points were spent in the meantime.
func (s *SettlementService) RefundOrder(orderID uint, reason string) (*models.PaymentOrder, error) {
	var refunded models.PaymentOrder
	err := s.db.Transaction(func(tx *gorm.DB) error {
		affected, err := s.orders.MarkRefunded(tx, orderID)
		if err != nil {
			return err
		}
		if affected == 0 {
			var o models.PaymentOrder
			if err := tx.First(&o, orderID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return repository.ErrOrderNotFound
				}
				return err
			}
			return ErrInvalidState
		}
		if err := tx.First(&refunded, orderID).Error; err != nil {
			return err
		}
		desc := fmt.Sprintf("refund of order %s", refunded.OrderNo)
		if reason != "" {
			desc = fmt.Sprintf("%s: %s", desc, reason)
		}
		_, err = s.points.ApplyDelta(tx, refunded.UserID, -refunded.PointsAwarded,
			domain.CategoryRefundReversal, &refunded.ID, desc, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"order_id": refunded.ID,
		"order_no": refunded.OrderNo,
		"user_id":  refunded.UserID,
		"points":   -refunded.PointsAwarded,
		"reason":   reason,
	}).Info("order refunded")
	return &refunded, nil
}

// CancelOrder closes a pending order without any ledger effect.
func (s *SettlementService) CancelOrder(orderID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		affected, err := s.orders.MarkCancelled(tx, orderID)
		if err != nil {
			return err
		}
		if affected == 0 {
			var o models.PaymentOrder
			if err := tx.First(&o, orderID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return repository.ErrOrderNotFound
				}
				return err
			}
			return ErrInvalidState
		}
		return nil
	})
}

// ExpireIfOverdue reactively flips a pending order past its deadline into
// expired. There is no background sweep for orders; this runs whenever an
// order is read. Returns true if this call performed the transition.
func (s *SettlementService) ExpireIfOverdue(orderID uint) (bool, error) {
	var expired bool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		affected, err := s.orders.MarkExpired(tx, orderID, time.Now())
		if err != nil {
			return err
		}
		expired = affected > 0
		return nil
	})
	if expired {
		s.log.WithField("order_id", orderID).Info("order expired")
	}
	return expired, err
}
