package db

import (
	"context"
	"time"

	"Gin_postgres_redis_lending/models"
)

type LoanFilter struct {
	UserID string
	ItemID string
	Status string // "", "active", "returned"
}

func (r *Repo) FindLoanByID(ctx context.Context, id string) (*models.Loan, error) {
	var l models.Loan
	if err := r.DB.WithContext(ctx).First(&l, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *Repo) ListLoans(ctx context.Context, f LoanFilter) ([]models.Loan, error) {
	q := r.DB.WithContext(ctx).Model(&models.Loan{}).Order("checkout_date DESC, created_at DESC")
	if f.UserID != "" {
		q = q.Where("borrower_id = ?", f.UserID)
	}
	if f.ItemID != "" {
		q = q.Where("item_id = ?", f.ItemID)
	}
	switch f.Status {
	case string(models.LoanActive), string(models.LoanReturned):
		q = q.Where("status = ?", f.Status)
	}
	var ls []models.Loan
	if err := q.Find(&ls).Error; err != nil {
		return nil, err
	}
	return ls, nil
}

// ActiveLoansDueBefore 未归还且到期日早于 day 的借用（逾期）
func (r *Repo) ActiveLoansDueBefore(ctx context.Context, day time.Time) ([]models.Loan, error) {
	var ls []models.Loan
	err := r.DB.WithContext(ctx).
		Where("status = ? AND due_date < ?", models.LoanActive, day).
		Order("due_date ASC").
		Find(&ls).Error
	return ls, err
}

// ActiveLoansDueOn 未归还且到期日落在 [day, day+1) 的借用
func (r *Repo) ActiveLoansDueOn(ctx context.Context, day time.Time) ([]models.Loan, error) {
	var ls []models.Loan
	err := r.DB.WithContext(ctx).
		Where("status = ? AND due_date >= ? AND due_date < ?", models.LoanActive, day, day.AddDate(0, 0, 1)).
		Order("due_date ASC").
		Find(&ls).Error
	return ls, err
}

func (r *Repo) CreateLoan(ctx context.Context, l *models.Loan) error {
	return r.DB.WithContext(ctx).Create(l).Error
}

// MarkLoanReturned active → returned；false 表示已归还
func (r *Repo) MarkLoanReturned(ctx context.Context, id, by string, at time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&models.Loan{}).
		Where("id = ? AND status = ?", id, models.LoanActive).
		Updates(map[string]interface{}{
			"status":      models.LoanReturned,
			"returned_at": at,
			"returned_by": by,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
