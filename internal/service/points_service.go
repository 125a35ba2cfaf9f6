package service

import (
	"errors"
	"fmt"
	"time"

	"loyalty/internal/domain"
	"loyalty/internal/models"
	"loyalty/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var ErrInvalidAmount = errors.New("points amount must be positive")

// PointsService handles order-independent point movements: manual admin
// adjustments, mall spending, and the expired-points sweep. Every mutation
// goes through the ledger's ApplyDelta inside one transaction, so the
// balance check and the write cannot race with a concurrent movement on
// the same user.
type PointsService struct {
	db     *gorm.DB
	users  *repository.UserRepository
	points *repository.PointsRepository
	log    *logrus.Logger
}

func NewPointsService(db *gorm.DB, users *repository.UserRepository, points *repository.PointsRepository, log *logrus.Logger) *PointsService {
	return &PointsService{db: db, users: users, points: points, log: log}
}

// AdjustPoints grants (delta > 0) or deducts (delta < 0) points manually.
// Deductions that would leave the balance negative are rejected without
// writing anything.
func (s *PointsService) AdjustPoints(userID uint, delta int64, reason string) (int64, error) {
	var newBalance int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		record, err := s.points.ApplyDelta(tx, userID, delta,
			domain.CategoryAdminAdjust, nil, reason, nil)
		if err != nil {
			return err
		}
		newBalance = record.BalanceAfter
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.log.WithFields(logrus.Fields{
		"user_id": userID,
		"delta":   delta,
		"balance": newBalance,
		"reason":  reason,
	}).Info("points adjusted")
	return newBalance, nil
}

// SpendPoints deducts points for a mall purchase. Reserved for the points
// mall; the deduction fails on insufficient balance.
func (s *PointsService) SpendPoints(userID uint, points int64, description string, orderID *uint) (int64, error) {
	if points <= 0 {
		return 0, ErrInvalidAmount
	}
	var newBalance int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		record, err := s.points.ApplyDelta(tx, userID, -points,
			domain.CategoryMallConsumption, orderID, description, nil)
		if err != nil {
			return err
		}
		newBalance = record.BalanceAfter
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.log.WithFields(logrus.Fields{
		"user_id": userID,
		"points":  points,
		"balance": newBalance,
	}).Info("points spent")
	return newBalance, nil
}

type BalanceSummary struct {
	Balance        int64 `json:"balance"`
	TotalEarned    int64 `json:"total_earned"`
	TotalSpent     int64 `json:"total_spent"`
	ExpiringPoints int64 `json:"expiring_points"`
}

// Summary returns the materialized balance plus ledger aggregates,
// including points expiring within 30 days.
func (s *PointsService) Summary(userID uint) (*BalanceSummary, error) {
	user, err := s.users.GetByID(userID)
	if err != nil {
		return nil, err
	}
	earned, err := s.points.TotalEarned(userID)
	if err != nil {
		return nil, err
	}
	spent, err := s.points.TotalSpent(userID)
	if err != nil {
		return nil, err
	}
	expiring, err := s.points.ExpiringPoints(userID, 30*24*time.Hour, time.Now())
	if err != nil {
		return nil, err
	}
	return &BalanceSummary{
		Balance:        user.PointsBalance,
		TotalEarned:    earned,
		TotalSpent:     spent,
		ExpiringPoints: expiring,
	}, nil
}

func (s *PointsService) History(userID uint, category domain.PointsCategory, page, pageSize int) ([]models.PointsRecord, int64, error) {
	return s.points.History(userID, category, page, pageSize)
}

// VerifyBalance recomputes one user's balance from the ledger and compares
// it with the materialized value.
func (s *PointsService) VerifyBalance(userID uint) (bool, error) {
	return s.points.VerifyBalance(userID)
}

// ProcessExpiredPoints deducts points whose expiry has passed. Each user is
// handled in its own transaction; one failing user does not abort the
// sweep. The deduction is capped at the current balance so the ledger-sum
// invariant holds, and already-deducted expiries are excluded by the
// outstanding query, so re-running the sweep is safe.
func (s *PointsService) ProcessExpiredPoints(now time.Time) (int, error) {
	outstanding, err := s.points.ListExpiredOutstanding(now)
	if err != nil {
		return 0, err
	}
	processed := 0
	for _, row := range outstanding {
		deducted := false
		err := s.db.Transaction(func(tx *gorm.DB) error {
			var user models.User
			if err := tx.First(&user, row.UserID).Error; err != nil {
				return err
			}
			deduct := row.Outstanding
			if user.PointsBalance < deduct {
				deduct = user.PointsBalance
			}
			if deduct <= 0 {
				return nil
			}
			_, err := s.points.ApplyDelta(tx, row.UserID, -deduct,
				domain.CategoryExpiredDeduct, nil,
				fmt.Sprintf("%d points expired", row.Outstanding), nil)
			if err == nil {
				deducted = true
			}
			return err
		})
		if err != nil {
			// Insufficient balance means a concurrent spend shrank the
			// balance between our read and the write; pick it up next run.
			if errors.Is(err, repository.ErrInsufficientBalance) {
				continue
			}
			s.log.WithFields(logrus.Fields{
				"user_id": row.UserID,
				"error":   err,
			}).Error("expired points deduction failed")
			continue
		}
		if deducted {
			processed++
		}
	}
	if processed > 0 {
		s.log.WithField("users", processed).Info("expired points processed")
	}
	return processed, nil
}
