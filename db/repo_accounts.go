package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Gin_postgres_redis_lending/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FindAccountStatus 没有记录的用户视为 0 次、未封禁
func (r *Repo) FindAccountStatus(ctx context.Context, userID string) (*models.UserAccountStatus, error) {
	var st models.UserAccountStatus
	err := r.DB.WithContext(ctx).First(&st, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.UserAccountStatus{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *Repo) ListBlockedAccounts(ctx context.Context) ([]models.UserAccountStatus, error) {
	var sts []models.UserAccountStatus
	err := r.DB.WithContext(ctx).
		Where("blocked = ?", true).
		Order("blocked_at DESC").
		Find(&sts).Error
	return sts, err
}

func (r *Repo) ListPenalties(ctx context.Context, userID string) ([]models.PenaltyRecord, error) {
	var ps []models.PenaltyRecord
	q := r.DB.WithContext(ctx).Order("created_at DESC")
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	err := q.Find(&ps).Error
	return ps, err
}

func (r *Repo) LogUnblock(ctx context.Context, entry *models.UnblockLog) error {
	if err := r.DB.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("insert unblock log: %w", err)
	}
	return nil
}

func (r *Repo) ListUnblockLogs(ctx context.Context, userID string) ([]models.UnblockLog, error) {
	var ls []models.UnblockLog
	err := r.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&ls).Error
	return ls, err
}

// FindPenaltyByLoan 没有记录时返回 nil, nil
func (r *Repo) FindPenaltyByLoan(ctx context.Context, loanID string) (*models.PenaltyRecord, error) {
	var p models.PenaltyRecord
	err := r.DB.WithContext(ctx).First(&p, "loan_id = ?", loanID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) CreatePenalty(ctx context.Context, p *models.PenaltyRecord) error {
	return r.DB.WithContext(ctx).Create(p).Error
}

// ensureAccountStatus 没有行时插入一行 0 次
func (r *Repo) ensureAccountStatus(ctx context.Context, userID string) error {
	return r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.UserAccountStatus{UserID: userID}).Error
}

// AddStrikes strikes = strikes + n，数据库里原子自增
func (r *Repo) AddStrikes(ctx context.Context, userID string, n int) error {
	if err := r.ensureAccountStatus(ctx, userID); err != nil {
		return err
	}
	return r.DB.WithContext(ctx).Model(&models.UserAccountStatus{}).
		Where("user_id = ?", userID).
		Update("strikes", gorm.Expr("strikes + ?", n)).Error
}

// BlockIfOverThreshold 只在未封禁且 strikes >= threshold 时封禁，返回是否本次封禁
func (r *Repo) BlockIfOverThreshold(ctx context.Context, userID string, threshold int, reason string, at time.Time, by string) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&models.UserAccountStatus{}).
		Where("user_id = ? AND blocked = ? AND strikes >= ?", userID, false, threshold).
		Updates(map[string]interface{}{
			"blocked":      true,
			"block_reason": reason,
			"blocked_at":   at,
			"blocked_by":   by,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repo) ClearBlock(ctx context.Context, userID string, resetStrikes bool) error {
	if err := r.ensureAccountStatus(ctx, userID); err != nil {
		return err
	}
	set := map[string]interface{}{
		"blocked":      false,
		"block_reason": nil,
		"blocked_at":   nil,
		"blocked_by":   nil,
	}
	if resetStrikes {
		set["strikes"] = 0
	}
	return r.DB.WithContext(ctx).Model(&models.UserAccountStatus{}).
		Where("user_id = ?", userID).
		Updates(set).Error
}
