package lending

import (
	"context"
	"errors"

	"Gin_postgres_redis_lending/db"
	"Gin_postgres_redis_lending/models"
	"Gin_postgres_redis_lending/notify"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type NewRequest struct {
	UserID    string
	ItemID    string
	UnitID    *string // 可选，指定单元时立即预约
	Range     DateRange
	UsageType *models.UsageType
	Note      string
}

// CreateRequest 封禁检查 → 策略校验 → （可选）预约单元 → 写入 pending 申请 → 通知管理员
func (e *Engine) CreateRequest(ctx context.Context, in NewRequest) (rq *models.Request, err error) {
	defer func() { e.observe("create_request", err) }()

	// 封禁用户在任何写操作之前被拒绝
	if err := e.EnsureNotBlocked(ctx, in.UserID); err != nil {
		return nil, err
	}
	item, err := e.repo.FindItemByID(ctx, in.ItemID)
	if err != nil {
		return nil, notFound(err, "item", in.ItemID)
	}
	usage, err := ResolveUsage(item.LoanPolicy, in.UsageType, in.Range, e.Today())
	if err != nil {
		return nil, err
	}

	rq = &models.Request{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		ItemID:    item.ID,
		UnitID:    in.UnitID,
		StartDate: in.Range.Start,
		EndDate:   in.Range.End,
		UsageType: &usage,
		Status:    models.RequestPending,
		Note:      in.Note,
	}

	err = e.repo.Transaction(ctx, func(tx *db.Repo) error {
		if in.UnitID != nil {
			unit, err := tx.FindUnitByID(ctx, *in.UnitID)
			if err != nil {
				return notFound(err, "unit", *in.UnitID)
			}
			if unit.ItemID != item.ID {
				return invalid("unitId", "unit does not belong to item")
			}
			if err := Units(tx).Reserve(ctx, unit.ID, rq.ID); err != nil {
				return asUnavailable(unit.ID, err)
			}
		}
		if err := tx.CreateRequest(ctx, rq); err != nil {
			if db.IsUniqueViolation(err) && in.UnitID != nil {
				return &UnitUnavailableError{UnitID: *in.UnitID, Cause: conflictf("unit already has a pending request")}
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.WithFields(log.Fields{"request": rq.ID, "item": item.ID, "user": in.UserID}).Info("request created")
	e.emit(notify.Event{
		Type:     notify.RequestCreated,
		ToAdmins: true,
		Subject:  "New borrow request: " + item.Name,
		Payload: map[string]any{
			"requestId": rq.ID,
			"itemId":    item.ID,
			"item":      item.Name,
			"userId":    in.UserID,
			"startDate": rq.StartDate.Format("2006-01-02"),
			"endDate":   rq.EndDate.Format("2006-01-02"),
			"usageType": usage,
		},
	})
	return rq, nil
}

func asUnavailable(unitID string, err error) error {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return &UnitUnavailableError{UnitID: unitID, Cause: ce}
	}
	return err
}

// cancelTx 申请人的删除带 status = pending 条件，rq 可能是事务外读到的旧状态
func (e *Engine) cancelTx(ctx context.Context, tx *db.Repo, rq *models.Request, privileged bool) (bool, error) {
	var guard []models.RequestStatus
	if !privileged {
		guard = []models.RequestStatus{models.RequestPending}
	}
	n, err := tx.DeleteRequest(ctx, rq.ID, guard...)
	if err != nil {
		return false, err
	}
	if n == 0 {
		cur, err := tx.FindRequestByID(ctx, rq.ID)
		if err != nil {
			// 并发撤销
			return false, notFound(err, "request", rq.ID)
		}
		return false, conflictf("request is already %s", cur.Status)
	}
	if rq.UnitID == nil {
		return false, nil
	}
	err = Units(tx).Release(ctx, *rq.UnitID, rq.ID)
	switch {
	case err == nil:
		return true, nil
	case IsConflict(err):
		// 已批准（单元已借出）或已被清扫释放
		return false, nil
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return false, nil
	}
	return false, err
}

// CancelRequest 申请人只能撤销 pending；管理员任何状态都能删。
// 单元只在仍被这条申请预约时释放，已释放不算错误。
func (e *Engine) CancelRequest(ctx context.Context, requestID string, caller Caller) (err error) {
	defer func() { e.observe("cancel_request", err) }()

	rq, err := e.repo.FindRequestByID(ctx, requestID)
	if err != nil {
		return notFound(err, "request", requestID)
	}
	privileged := e.IsPrivileged(caller)
	if !privileged {
		if rq.UserID != caller.UserID {
			return &ForbiddenError{Reason: "not the owner of this request"}
		}
		if rq.Status != models.RequestPending {
			return conflictf("request is already %s", rq.Status)
		}
	}

	var released bool
	err = e.repo.Transaction(ctx, func(tx *db.Repo) error {
		var err error
		released, err = e.cancelTx(ctx, tx, rq, privileged)
		return err
	})
	if err != nil {
		return err
	}

	e.log.WithFields(log.Fields{
		"request":  rq.ID,
		"by":       caller.UserID,
		"status":   rq.Status,
		"released": released,
	}).Info("request cancelled")
	ev := notify.Event{
		Type:    notify.RequestCancelled,
		Subject: "Borrow request cancelled",
		Payload: map[string]any{"requestId": rq.ID, "itemId": rq.ItemID, "by": caller.UserID},
	}
	if caller.UserID == rq.UserID {
		ev.ToAdmins = true
	} else {
		ev.To = nonEmpty(e.usernameOf(ctx, rq.UserID))
	}
	e.emit(ev)
	return nil
}
