package lending

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"Gin_postgres_redis_lending/db"
	"Gin_postgres_redis_lending/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type OpenRepair struct {
	ItemID      string
	UnitIDs     []string
	Description string
	Priority    models.RepairPriority
}

// OpenRepair 单元必须 available 且属于该物品；已在维修返回 ConflictError
func (e *Engine) OpenRepair(ctx context.Context, in OpenRepair, actor Caller) (t *models.RepairTicket, err error) {
	defer func() { e.observe("open_repair", err) }()

	if err := e.requirePrivileged(actor, "opening repair tickets"); err != nil {
		return nil, err
	}
	ids := dedupe(in.UnitIDs)
	if len(ids) == 0 {
		return nil, invalid("unitIds", "at least one unit is required")
	}
	if in.Priority == "" {
		in.Priority = models.PriorityNormal
	}
	if !in.Priority.Valid() {
		return nil, invalid("priority", "unknown priority "+string(in.Priority))
	}

	err = e.repo.Transaction(ctx, func(tx *db.Repo) error {
		if _, err := tx.FindItemByID(ctx, in.ItemID); err != nil {
			return notFound(err, "item", in.ItemID)
		}
		for _, id := range ids {
			u, err := tx.FindUnitByID(ctx, id)
			if err != nil {
				return notFound(err, "unit", id)
			}
			if u.ItemID != in.ItemID {
				return invalid("unitIds", "unit "+u.Code+" does not belong to item")
			}
			if u.State == models.UnitInRepair {
				return conflictf("unit %s is already in repair", u.Code)
			}
		}
		var err error
		t, err = e.openTicketTx(ctx, tx, in.ItemID, ids, in.Description, in.Priority, actor.UserID)
		if err != nil {
			return err
		}
		units := Units(tx)
		for _, id := range ids {
			if err := units.SendToRepair(ctx, id, t.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.WithFields(log.Fields{"ticket": t.ID, "item": in.ItemID, "units": len(ids)}).Info("repair opened")
	return t, nil
}

// openTicketTx 只写工单和关联行，单元状态由调用方转换
func (e *Engine) openTicketTx(ctx context.Context, tx *db.Repo, itemID string, unitIDs []string, desc string, prio models.RepairPriority, by string) (*models.RepairTicket, error) {
	t := &models.RepairTicket{
		ID:          uuid.NewString(),
		ItemID:      itemID,
		Status:      models.RepairInProgress,
		Priority:    prio,
		Description: desc,
		OpenedBy:    by,
	}
	for _, id := range unitIDs {
		t.Units = append(t.Units, models.RepairTicketUnit{TicketID: t.ID, UnitID: id})
	}
	if err := tx.CreateRepairTicket(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

type CloseResult struct {
	Ticket    *models.RepairTicket `json:"ticket"`
	Released  []string             `json:"released"`
	Recovered bool                 `json:"recovered"` // 关联表缺失，按旧数据恢复
}

// CloseRepair 关闭工单（completed / cancelled），释放工单下全部单元。
// 单元集合从关联表读取；关联表为空时按旧文本列、再按 item + in_repair 关联恢复，
// 恢复成功只记 IntegrityRecoverableError 日志，恢复失败才返回。
func (e *Engine) CloseRepair(ctx context.Context, ticketID string, outcome models.RepairStatus, actor Caller) (res *CloseResult, err error) {
	defer func() { e.observe("close_repair", err) }()

	if err := e.requirePrivileged(actor, "closing repair tickets"); err != nil {
		return nil, err
	}
	if outcome != models.RepairCompleted && outcome != models.RepairCancelled {
		return nil, invalid("outcome", "must be completed or cancelled")
	}

	now := e.now().UTC()
	res = &CloseResult{}
	err = e.repo.Transaction(ctx, func(tx *db.Repo) error {
		t, err := tx.FindRepairTicket(ctx, ticketID)
		if err != nil {
			return notFound(err, "repair ticket", ticketID)
		}
		if t.Status != models.RepairInProgress {
			return conflictf("repair ticket is already %s", t.Status)
		}
		ok, err := tx.CloseRepairTicket(ctx, t.ID, outcome, actor.UserID, now)
		if err != nil {
			return err
		}
		if !ok {
			return conflictf("repair ticket already closed")
		}
		t.Status = outcome
		t.ClosedBy = &actor.UserID
		t.ClosedAt = &now
		res.Ticket = t

		if len(t.Units) == 0 {
			released, err := e.recoverTicketUnits(ctx, tx, t)
			if err != nil {
				return err
			}
			res.Released = released
			res.Recovered = true
			return nil
		}

		units := Units(tx)
		for _, tu := range t.Units {
			freed, err := e.returnTicketUnit(ctx, tx, units, t, tu.UnitID)
			if err != nil {
				return err
			}
			if freed {
				res.Released = append(res.Released, tu.UnitID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.WithFields(log.Fields{
		"ticket":    res.Ticket.ID,
		"outcome":   outcome,
		"released":  len(res.Released),
		"recovered": res.Recovered,
	}).Info("repair closed")
	return res, nil
}

// returnTicketUnit 正常按工单指针释放；单元已不在维修（被清扫过）则跳过；
// 单元上没有指针的旧数据按 item 释放。
func (e *Engine) returnTicketUnit(ctx context.Context, tx *db.Repo, units UnitRegistry, t *models.RepairTicket, unitID string) (bool, error) {
	err := units.ReturnFromRepair(ctx, unitID, t.ID)
	if err == nil {
		return true, nil
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		e.log.WithFields(log.Fields{"ticket": t.ID, "unit": unitID}).Warn("repair ticket references a missing unit")
		return false, nil
	}
	if !IsConflict(err) {
		return false, err
	}
	u, ferr := tx.FindUnitByID(ctx, unitID)
	if ferr != nil {
		return false, ferr
	}
	switch {
	case u.State != models.UnitInRepair:
		return false, nil
	case u.RepairTicketID == nil:
		if err := units.returnLegacyRepair(ctx, unitID, t.ItemID); err != nil {
			return false, err
		}
		return true, nil
	}
	// 单元属于另一张工单
	return false, err
}

// recoverTicketUnits 关联表为空时的恢复路径
func (e *Engine) recoverTicketUnits(ctx context.Context, tx *db.Repo, t *models.RepairTicket) ([]string, error) {
	integrity := &IntegrityRecoverableError{TicketID: t.ID, Detail: "ticket has no unit rows"}

	// 1) 旧版文本列
	var cands []models.Unit
	legacy, perr := parseLegacyUnitIDs(t.LegacyUnitIDs)
	if perr != nil {
		integrity.Detail = "legacy unit list is malformed"
		integrity.Err = perr
	}
	if len(legacy) > 0 {
		us, err := tx.FindUnitsByIDs(ctx, legacy)
		if err != nil {
			return nil, &IntegrityRecoverableError{TicketID: t.ID, Detail: "recovery lookup failed", Err: err}
		}
		for _, u := range us {
			if u.ItemID == t.ItemID && u.State == models.UnitInRepair {
				cands = append(cands, u)
			}
		}
	}
	// 2) item + in_repair，且没有被其他进行中的工单认领（本工单已在事务里关闭）
	if len(cands) == 0 {
		us, err := tx.UnclaimedRepairUnits(ctx, t.ItemID)
		if err != nil {
			return nil, &IntegrityRecoverableError{TicketID: t.ID, Detail: "recovery lookup failed", Err: err}
		}
		for _, u := range us {
			if u.RepairTicketID == nil || *u.RepairTicketID == t.ID {
				cands = append(cands, u)
			}
		}
	}
	if len(cands) == 0 {
		integrity.Detail += "; no in-repair units could be correlated"
		return nil, integrity
	}

	units := Units(tx)
	var released []string
	for _, u := range cands {
		if err := units.returnLegacyRepair(ctx, u.ID, t.ItemID); err != nil {
			if IsConflict(err) {
				continue
			}
			return nil, &IntegrityRecoverableError{TicketID: t.ID, Detail: "recovery release failed", Err: err}
		}
		released = append(released, u.ID)
	}
	if len(released) == 0 {
		integrity.Detail += "; correlated units were already released"
		return nil, integrity
	}
	e.log.WithFields(log.Fields{
		"ticket":   t.ID,
		"item":     t.ItemID,
		"released": released,
	}).WithError(integrity).Warn("recovered repair ticket units")
	return released, nil
}

// parseLegacyUnitIDs 旧格式可能是 JSON 数组，也可能是逗号分隔
func parseLegacyUnitIDs(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" || s == "[]" {
		return nil, nil
	}
	if strings.HasPrefix(s, "[") {
		var ids []string
		if err := json.Unmarshal([]byte(s), &ids); err != nil {
			return nil, err
		}
		return dedupe(ids), nil
	}
	var ids []string
	for _, p := range strings.Split(s, ",") {
		p = strings.Trim(strings.TrimSpace(p), `"'`)
		if _, err := uuid.Parse(p); err == nil {
			ids = append(ids, p)
		}
	}
	if len(ids) == 0 {
		return nil, errors.New("no unit ids in legacy list")
	}
	return dedupe(ids), nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
