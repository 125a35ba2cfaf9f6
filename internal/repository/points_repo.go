package repository

import (
	"errors"
	"time"

	"loyalty/internal/domain"
	"loyalty/internal/models"

	"gorm.io/gorm"
)

var (
	ErrInsufficientBalance = errors.New("insufficient points balance")
	ErrUserNotFound        = errors.New("user not found")
)

// PointsRepository is the append-only points ledger plus the materialized
// balance on the user row. The two are only ever written together, inside
// a transaction opened by the caller.
type PointsRepository struct {
	db *gorm.DB
}

func NewPointsRepository(db *gorm.DB) *PointsRepository {
	return &PointsRepository{db: db}
}

// ApplyDelta appends one ledger entry and moves the user's balance by the
// same amount. It must run inside the caller's transaction: tx is the
// transaction handle, never the root DB.
//
// The balance update is a single conditional UPDATE with an arithmetic
// expression, so two concurrent deltas on the same user cannot lose an
// update. Negative deltas that would drive the balance below zero are
// rejected, except for refund reversals: a refund must reverse its grant
// unconditionally even if the points were already spent.
func (r *PointsRepository) ApplyDelta(tx *gorm.DB, userID uint, delta int64, category domain.PointsCategory, orderID *uint, description string, expiresAt *time.Time) (*models.PointsRecord, error) {
	q := tx.Model(&models.User{}).Where("id = ?", userID)
	if delta < 0 && category != domain.CategoryRefundReversal {
		q = q.Where("points_balance + ? >= 0", delta)
	}
	res := q.Update("points_balance", gorm.Expr("points_balance + ?", delta))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := tx.Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, ErrUserNotFound
		}
		return nil, ErrInsufficientBalance
	}

	var user models.User
	if err := tx.First(&user, userID).Error; err != nil {
		return nil, err
	}
	record := &models.PointsRecord{
		UserID:       userID,
		OrderID:      orderID,
		PointsChange: delta,
		BalanceAfter: user.PointsBalance,
		Category:     category,
		Description:  description,
		ExpiresAt:    expiresAt,
	}
	if err := tx.Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

// SumDeltas recomputes a user's balance from the ledger. Only used for
// verification; reads always go through the materialized balance.
func (r *PointsRepository) SumDeltas(userID uint) (int64, error) {
	var sum int64
	err := r.db.Model(&models.PointsRecord{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(points_change), 0)").
		Scan(&sum).Error
	return sum, err
}

// VerifyBalance checks the ledger-sum invariant for one user.
func (r *PointsRepository) VerifyBalance(userID uint) (bool, error) {
	var user models.User
	if err := r.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrUserNotFound
		}
		return false, err
	}
	sum, err := r.SumDeltas(userID)
	if err != nil {
		return false, err
	}
	return sum == user.PointsBalance, nil
}

// History returns a user's ledger entries, newest first, optionally
// filtered by category.
func (r *PointsRepository) History(userID uint, category domain.PointsCategory, page, pageSize int) ([]models.PointsRecord, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	q := r.db.Model(&models.PointsRecord{}).Where("user_id = ?", userID)
	if category != "" {
		q = q.Where("category = ?", category)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var records []models.PointsRecord
	err := q.Order("created_at DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&records).Error
	return records, total, err
}

// TotalEarned sums all positive deltas for a user.
func (r *PointsRepository) TotalEarned(userID uint) (int64, error) {
	var sum int64
	err := r.db.Model(&models.PointsRecord{}).
		Where("user_id = ? AND points_change > 0", userID).
		Select("COALESCE(SUM(points_change), 0)").
		Scan(&sum).Error
	return sum, err
}

// TotalSpent sums the magnitude of all negative deltas for a user.
func (r *PointsRepository) TotalSpent(userID uint) (int64, error) {
	var sum int64
	err := r.db.Model(&models.PointsRecord{}).
		Where("user_id = ? AND points_change < 0", userID).
		Select("COALESCE(SUM(-points_change), 0)").
		Scan(&sum).Error
	return sum, err
}

// ExpiringPoints sums positive entries that expire within the window but
// have not expired yet.
func (r *PointsRepository) ExpiringPoints(userID uint, within time.Duration, now time.Time) (int64, error) {
	var sum int64
	err := r.db.Model(&models.PointsRecord{}).
		Where("user_id = ? AND points_change > 0 AND expires_at IS NOT NULL AND expires_at > ? AND expires_at <= ?",
			userID, now, now.Add(within)).
		Select("COALESCE(SUM(points_change), 0)").
		Scan(&sum).Error
	return sum, err
}

// ExpiredOutstanding lists users whose expired positive entries have not
// been fully offset by expired_deduct entries, with the outstanding amount
// per user. Summing past deductions back in makes the sweep idempotent:
// re-running it does not deduct the same expiry twice.
type ExpiredOutstanding struct {
	UserID      uint
	Outstanding int64
}

func (r *PointsRepository) ListExpiredOutstanding(now time.Time) ([]ExpiredOutstanding, error) {
	var rows []ExpiredOutstanding
	err := r.db.Raw(`
		SELECT user_id,
		       SUM(CASE
		             WHEN points_change > 0 AND expires_at IS NOT NULL AND expires_at <= ? THEN points_change
		             WHEN category = ? THEN points_change
		             ELSE 0
		           END) AS outstanding
		FROM points_records
		GROUP BY user_id
		HAVING outstanding > 0`,
		now, domain.CategoryExpiredDeduct,
	).Scan(&rows).Error
	return rows, err
}
