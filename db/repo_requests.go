package db

import (
	"context"
	"time"

	"Gin_postgres_redis_lending/models"
)

type RequestFilter struct {
	UserID string
	ItemID string
	Status string
	Page   int
	Size   int
}

type PagedRequests struct {
	Total    int64            `json:"total"`
	Requests []models.Request `json:"requests"`
}

func (r *Repo) FindRequestByID(ctx context.Context, id string) (*models.Request, error) {
	var rq models.Request
	if err := r.DB.WithContext(ctx).First(&rq, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rq, nil
}

func (r *Repo) ListRequests(ctx context.Context, f RequestFilter) (*PagedRequests, error) {
	page, size := normalizePage(f.Page, f.Size, 200)

	q := r.DB.WithContext(ctx).Model(&models.Request{})
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.ItemID != "" {
		q = q.Where("item_id = ?", f.ItemID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, err
	}
	var rs []models.Request
	if err := q.Order("created_at DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&rs).Error; err != nil {
		return nil, err
	}
	return &PagedRequests{Total: total, Requests: rs}, nil
}

func (r *Repo) CreateRequest(ctx context.Context, rq *models.Request) error {
	return r.DB.WithContext(ctx).Create(rq).Error
}

// DecideRequest pending → status，条件更新；false 表示已被别人处理
func (r *Repo) DecideRequest(ctx context.Context, id string, status models.RequestStatus, decidedBy string, at time.Time, note string) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&models.Request{}).
		Where("id = ? AND status = ?", id, models.RequestPending).
		Updates(map[string]interface{}{
			"status":        status,
			"decided_by":    decidedBy,
			"decided_at":    at,
			"decision_note": note,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DeleteRequest 传入 status 时只删除处于这些状态的行（条件删除）
func (r *Repo) DeleteRequest(ctx context.Context, id string, status ...models.RequestStatus) (int64, error) {
	q := r.DB.WithContext(ctx).Where("id = ?", id)
	if len(status) > 0 {
		q = q.Where("status IN ?", status)
	}
	res := q.Delete(&models.Request{})
	return res.RowsAffected, res.Error
}

func (r *Repo) CountPendingRequests(ctx context.Context, itemID string) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.Request{}).
		Where("item_id = ? AND status = ?", itemID, models.RequestPending).
		Count(&n).Error
	return n, err
}
