package lending

import (
	"context"
	"strings"

	"Gin_postgres_redis_lending/db"
	"Gin_postgres_redis_lending/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type NewItem struct {
	Name       string
	Category   string
	CourseTags []string
	LoanPolicy models.LoanPolicy
	UnitCodes  []string
}

// CreateItem 新建物品并按编码生成单元，total = 单元数
func (e *Engine) CreateItem(ctx context.Context, in NewItem, actor Caller) (it *models.Item, err error) {
	defer func() { e.observe("create_item", err) }()

	if err := e.requirePrivileged(actor, "managing the catalog"); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("name", "required")
	}
	if in.LoanPolicy == "" {
		in.LoanPolicy = models.PolicyEither
	}
	if !in.LoanPolicy.Valid() {
		return nil, invalid("loanPolicy", "unknown policy "+string(in.LoanPolicy))
	}
	codes := dedupe(in.UnitCodes)
	if len(codes) != len(nonEmptyTrimmed(in.UnitCodes)) {
		return nil, invalid("unitCodes", "duplicate unit code")
	}

	it = &models.Item{
		ID:         uuid.NewString(),
		Name:       name,
		Category:   strings.TrimSpace(in.Category),
		CourseTags: strings.Join(nonEmptyTrimmed(in.CourseTags), ","),
		LoanPolicy: in.LoanPolicy,
		TotalUnits: len(codes),
	}
	for _, c := range codes {
		it.Units = append(it.Units, models.Unit{
			ID:     uuid.NewString(),
			ItemID: it.ID,
			Code:   c,
			State:  models.UnitAvailable,
		})
	}
	err = e.repo.Transaction(ctx, func(tx *db.Repo) error {
		if err := tx.CreateItem(ctx, it); err != nil {
			return err
		}
		if err := tx.CreateUnits(ctx, it.Units); err != nil {
			if db.IsUniqueViolation(err) {
				return conflictf("unit code already exists")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.WithFields(log.Fields{"item": it.ID, "units": len(codes)}).Info("item created")
	return it, nil
}

// AddUnits 给已有物品追加单元
func (e *Engine) AddUnits(ctx context.Context, itemID string, codes []string, actor Caller) (units []models.Unit, err error) {
	defer func() { e.observe("add_units", err) }()

	if err := e.requirePrivileged(actor, "managing the catalog"); err != nil {
		return nil, err
	}
	clean := dedupe(codes)
	if len(clean) == 0 {
		return nil, invalid("unitCodes", "at least one code is required")
	}
	err = e.repo.Transaction(ctx, func(tx *db.Repo) error {
		if _, err := tx.FindItemByID(ctx, itemID); err != nil {
			return notFound(err, "item", itemID)
		}
		for _, c := range clean {
			units = append(units, models.Unit{
				ID:     uuid.NewString(),
				ItemID: itemID,
				Code:   c,
				State:  models.UnitAvailable,
			})
		}
		if err := tx.CreateUnits(ctx, units); err != nil {
			if db.IsUniqueViolation(err) {
				return conflictf("unit code already exists")
			}
			return err
		}
		return tx.AdjustItemTotal(ctx, itemID, len(units))
	})
	if err != nil {
		return nil, err
	}
	return units, nil
}

// DeleteItem 级联删除单元；有单元不在 available 或仍有待审批申请时拒绝
func (e *Engine) DeleteItem(ctx context.Context, itemID string, actor Caller) (err error) {
	defer func() { e.observe("delete_item", err) }()

	if err := e.requirePrivileged(actor, "managing the catalog"); err != nil {
		return err
	}
	return e.repo.Transaction(ctx, func(tx *db.Repo) error {
		if _, err := tx.FindItemByID(ctx, itemID); err != nil {
			return notFound(err, "item", itemID)
		}
		busy, err := tx.CountUnitsNotIn(ctx, itemID, models.UnitAvailable)
		if err != nil {
			return err
		}
		if busy > 0 {
			return conflictf("%d unit(s) are reserved, loaned or in repair", busy)
		}
		pending, err := tx.CountPendingRequests(ctx, itemID)
		if err != nil {
			return err
		}
		if pending > 0 {
			return conflictf("item has %d pending request(s)", pending)
		}
		n, err := tx.DeleteItem(ctx, itemID)
		if err != nil {
			return err
		}
		if n == 0 {
			return &NotFoundError{Entity: "item", ID: itemID}
		}
		return nil
	})
}

func nonEmptyTrimmed(ss []string) []string {
	var out []string
	for _, s := range ss {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
