package db

import (
	"context"
	"fmt"
	"time"

	"Gin_postgres_redis_lending/models"

	"gorm.io/gorm/clause"
)

func (r *Repo) FindRepairTicket(ctx context.Context, id string) (*models.RepairTicket, error) {
	var t models.RepairTicket
	if err := r.DB.WithContext(ctx).Preload("Units").First(&t, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repo) ListRepairTickets(ctx context.Context, itemID, status string) ([]models.RepairTicket, error) {
	q := r.DB.WithContext(ctx).Preload("Units").Order("created_at DESC")
	if itemID != "" {
		q = q.Where("item_id = ?", itemID)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var ts []models.RepairTicket
	err := q.Find(&ts).Error
	return ts, err
}

// CreateRepairTicket 先插工单再插关联行
func (r *Repo) CreateRepairTicket(ctx context.Context, t *models.RepairTicket) error {
	if err := r.DB.WithContext(ctx).Omit(clause.Associations).Create(t).Error; err != nil {
		return err
	}
	if len(t.Units) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Create(&t.Units).Error
}

// CloseRepairTicket in_progress → status；false 表示工单已关闭
func (r *Repo) CloseRepairTicket(ctx context.Context, id string, status models.RepairStatus, by string, at time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&models.RepairTicket{}).
		Where("id = ? AND status = ?", id, models.RepairInProgress).
		Updates(map[string]interface{}{
			"status":    status,
			"closed_by": by,
			"closed_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repo) FindUnitsByIDs(ctx context.Context, ids []string) ([]models.Unit, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var us []models.Unit
	err := r.DB.WithContext(ctx).Where("id IN ?", ids).Order("code").Find(&us).Error
	return us, err
}

// unclaimedRepairPredicate 单元没有被任何 in_progress 工单引用
// （关联表、单元上的 repair_ticket_id、旧版文本列三种来源都算引用）
var unclaimedRepairPredicate = fmt.Sprintf(`
	NOT EXISTS (
		SELECT 1 FROM %[1]s tu JOIN %[2]s t ON t.id = tu.ticket_id
		WHERE tu.unit_id = %[3]s.id AND t.status = 'in_progress'
	)
	AND NOT EXISTS (
		SELECT 1 FROM %[2]s t
		WHERE t.id = %[3]s.repair_ticket_id AND t.status = 'in_progress'
	)
	AND NOT EXISTS (
		SELECT 1 FROM %[2]s t
		WHERE t.status = 'in_progress' AND t.legacy_unit_ids LIKE '%%' || CAST(%[3]s.id AS TEXT) || '%%'
	)`, models.RepairTicketUnitTable, models.RepairTicketTable, models.UnitTable)

// UnclaimedRepairUnits 处于 in_repair 但不属于任何进行中工单的单元；itemID 为空表示全部物品
func (r *Repo) UnclaimedRepairUnits(ctx context.Context, itemID string) ([]models.Unit, error) {
	q := r.DB.WithContext(ctx).
		Where("state = ?", models.UnitInRepair).
		Where(unclaimedRepairPredicate)
	if itemID != "" {
		q = q.Where("item_id = ?", itemID)
	}
	var us []models.Unit
	err := q.Order("code").Find(&us).Error
	return us, err
}

// ReleaseUnclaimedRepairUnit 重新检查谓词后才把单元放回 available
func (r *Repo) ReleaseUnclaimedRepairUnit(ctx context.Context, unitID string) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&models.Unit{}).
		Where("id = ? AND state = ?", unitID, models.UnitInRepair).
		Where(unclaimedRepairPredicate).
		Updates(map[string]interface{}{
			"state":            models.UnitAvailable,
			"repair_ticket_id": nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
