// db/repo_catalog.go
package db

import (
	"Gin_postgres_redis_lending/models"
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Items

// CreateItem 只写物品本身，单元走 CreateUnits（关联写入默认 ON CONFLICT DO NOTHING，会吞掉重复编码）
func (r *Repo) CreateItem(ctx context.Context, it *models.Item) error {
	return r.DB.WithContext(ctx).Omit(clause.Associations).Create(it).Error
}

func (r *Repo) FindItemByID(ctx context.Context, id string) (*models.Item, error) {
	var it models.Item
	if err := r.DB.WithContext(ctx).First(&it, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *Repo) FindUnitByID(ctx context.Context, id string) (*models.Unit, error) {
	var u models.Unit
	if err := r.DB.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) ListUnits(ctx context.Context, itemID string) ([]models.Unit, error) {
	var us []models.Unit
	err := r.DB.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("code").
		Find(&us).Error
	return us, err
}

// ItemStockRow 每个物品按单元状态汇总
type ItemStockRow struct {
	ItemID     string            `json:"itemId"`
	Name       string            `json:"name"`
	Category   string            `json:"category,omitempty"`
	LoanPolicy models.LoanPolicy `json:"loanPolicy"`
	Total      int               `json:"total"`
	Available  int               `json:"available"`
	Reserved   int               `json:"reserved"`
	Loaned     int               `json:"loaned"`
	InRepair   int               `json:"inRepair"`
}

func (r *Repo) stockQuery(ctx context.Context) *gorm.DB {
	return r.DB.WithContext(ctx).
		Table(models.ItemTable + " i").
		Select(`
			i.id AS item_id, i.name, i.category, i.loan_policy,
			COUNT(u.id) AS total,
			COALESCE(SUM(CASE WHEN u.state = 'available' THEN 1 ELSE 0 END), 0) AS available,
			COALESCE(SUM(CASE WHEN u.state = 'reserved'  THEN 1 ELSE 0 END), 0) AS reserved,
			COALESCE(SUM(CASE WHEN u.state = 'loaned'    THEN 1 ELSE 0 END), 0) AS loaned,
			COALESCE(SUM(CASE WHEN u.state = 'in_repair' THEN 1 ELSE 0 END), 0) AS in_repair
		`).
		Joins("LEFT JOIN " + models.UnitTable + " u ON u.item_id = i.id").
		Group("i.id, i.name, i.category, i.loan_policy")
}

func (r *Repo) ListItemsWithStock(ctx context.Context) ([]ItemStockRow, error) {
	var rows []ItemStockRow
	err := r.stockQuery(ctx).Order("i.name").Scan(&rows).Error
	return rows, err
}

func (r *Repo) ItemStock(ctx context.Context, itemID string) (*ItemStockRow, error) {
	var rows []ItemStockRow
	if err := r.stockQuery(ctx).Where("i.id = ?", itemID).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// LowStock 可用单元数 <= threshold 的物品（只统计至少有一个单元的物品）
func (r *Repo) LowStock(ctx context.Context, threshold int) ([]ItemStockRow, error) {
	var rows []ItemStockRow
	err := r.stockQuery(ctx).
		Having("COUNT(u.id) > 0 AND COALESCE(SUM(CASE WHEN u.state = 'available' THEN 1 ELSE 0 END), 0) <= ?", threshold).
		Order("available ASC, i.name").
		Scan(&rows).Error
	return rows, err
}
