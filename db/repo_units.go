package db

import (
	"context"

	"Gin_postgres_redis_lending/models"

	"gorm.io/gorm"
)

// UnitGuard 条件更新的前置条件：状态必须等于 State，指针列必须等于期望值
type UnitGuard struct {
	State     models.UnitState
	ItemID    string  // 非空时额外要求 item 匹配
	Column    string  // reserved_request_id / current_loan_id / repair_ticket_id，空表示不检查
	Expected  *string // Column 的期望值；nil 表示要求 IS NULL
	AnyTarget bool    // true 时不检查 Column 的值
}

// CASUnit UPDATE ... WHERE id = ? AND state = ? [AND col = ?]
// 返回是否真的更新了一行。0 行表示前置条件已不成立。
func (r *Repo) CASUnit(ctx context.Context, unitID string, g UnitGuard, set map[string]interface{}) (bool, error) {
	q := r.DB.WithContext(ctx).Model(&models.Unit{}).
		Where("id = ? AND state = ?", unitID, g.State)
	if g.ItemID != "" {
		q = q.Where("item_id = ?", g.ItemID)
	}
	if g.Column != "" && !g.AnyTarget {
		if g.Expected == nil {
			q = q.Where(g.Column + " IS NULL")
		} else {
			q = q.Where(g.Column+" = ?", *g.Expected)
		}
	}
	res := q.Updates(set)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// AvailableUnits 某物品下可用的单元，按编码排序（自动分配时取第一个）
func (r *Repo) AvailableUnits(ctx context.Context, itemID string) ([]models.Unit, error) {
	var us []models.Unit
	err := r.DB.WithContext(ctx).
		Where("item_id = ? AND state = ?", itemID, models.UnitAvailable).
		Order("code").
		Find(&us).Error
	return us, err
}

func (r *Repo) CreateUnits(ctx context.Context, units []models.Unit) error {
	if len(units) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Create(&units).Error
}

// CountUnitsNotIn 物品下状态不在 states 里的单元数
func (r *Repo) CountUnitsNotIn(ctx context.Context, itemID string, states ...models.UnitState) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.Unit{}).
		Where("item_id = ? AND state NOT IN ?", itemID, states).
		Count(&n).Error
	return n, err
}

func (r *Repo) AdjustItemTotal(ctx context.Context, itemID string, delta int) error {
	return r.DB.WithContext(ctx).Model(&models.Item{}).
		Where("id = ?", itemID).
		Update("total_units", gorm.Expr("total_units + ?", delta)).Error
}

// DeleteItem 先删单元再删物品（不依赖数据库级联是否开启）
func (r *Repo) DeleteItem(ctx context.Context, itemID string) (int64, error) {
	if err := r.DB.WithContext(ctx).Where("item_id = ?", itemID).Delete(&models.Unit{}).Error; err != nil {
		return 0, err
	}
	res := r.DB.WithContext(ctx).Where("id = ?", itemID).Delete(&models.Item{})
	return res.RowsAffected, res.Error
}
