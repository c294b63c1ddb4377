package lending

import (
	"context"

	"Gin_postgres_redis_lending/db"
	"Gin_postgres_redis_lending/models"
	"Gin_postgres_redis_lending/notify"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type Decision struct {
	Request *models.Request `json:"request"`
	Loan    *models.Loan    `json:"loan,omitempty"`
}

var errAlreadyDecided = conflictf("already decided")

// Decide pending → approved | rejected，终态不可再改。
//
// approved：同一事务里写 Loan 并把单元 reserved → loaned（未指定单元则自动分配），
// 任一步失败整体回滚。rejected：释放预约的单元。
func (e *Engine) Decide(ctx context.Context, requestID string, outcome models.RequestStatus, decider Caller, note string) (dec *Decision, err error) {
	defer func() { e.observe("decide", err) }()

	if err := e.requirePrivileged(decider, "deciding requests"); err != nil {
		return nil, err
	}
	if outcome != models.RequestApproved && outcome != models.RequestRejected {
		return nil, invalid("outcome", "must be approved or rejected")
	}
	rq, err := e.repo.FindRequestByID(ctx, requestID)
	if err != nil {
		return nil, notFound(err, "request", requestID)
	}
	if rq.Status != models.RequestPending {
		return nil, &AlreadyDecidedError{RequestID: rq.ID, Status: string(rq.Status)}
	}

	now := e.now().UTC()
	dec = &Decision{}
	err = e.repo.Transaction(ctx, func(tx *db.Repo) error {
		ok, err := tx.DecideRequest(ctx, rq.ID, outcome, decider.UserID, now, note)
		if err != nil {
			return err
		}
		if !ok {
			return errAlreadyDecided
		}
		if outcome == models.RequestRejected {
			return e.rejectTx(ctx, tx, rq)
		}
		loan, err := e.approveTx(ctx, tx, rq)
		if err != nil {
			return err
		}
		dec.Loan = loan
		return nil
	})
	if err != nil {
		return nil, err
	}

	rq.Status = outcome
	rq.DecidedBy = &decider.UserID
	rq.DecidedAt = &now
	rq.DecisionNote = note
	dec.Request = rq

	fields := log.Fields{"request": rq.ID, "outcome": outcome, "by": decider.UserID}
	if dec.Loan != nil {
		fields["loan"] = dec.Loan.ID
	}
	e.log.WithFields(fields).Info("request decided")

	payload := map[string]any{"requestId": rq.ID, "itemId": rq.ItemID, "outcome": outcome, "note": note}
	if dec.Loan != nil {
		payload["loanId"] = dec.Loan.ID
		payload["dueDate"] = dec.Loan.DueDate.Format("2006-01-02")
	}
	e.emit(notify.Event{
		Type:    notify.RequestDecided,
		To:      nonEmpty(e.usernameOf(ctx, rq.UserID)),
		Subject: "Your borrow request was " + string(outcome),
		Payload: payload,
	})
	return dec, nil
}

func (e *Engine) rejectTx(ctx context.Context, tx *db.Repo, rq *models.Request) error {
	if rq.UnitID == nil {
		return nil
	}
	err := Units(tx).Release(ctx, *rq.UnitID, rq.ID)
	if err != nil && IsConflict(err) {
		// 单元已不被这条申请持有（例如已被清扫），拒绝本身仍然有效
		e.log.WithFields(log.Fields{"request": rq.ID, "unit": *rq.UnitID}).
			Warn("rejected request no longer held its unit")
		return nil
	}
	return err
}

func (e *Engine) approveTx(ctx context.Context, tx *db.Repo, rq *models.Request) (*models.Loan, error) {
	borrower, err := tx.FindUserByID(ctx, rq.UserID)
	if err != nil {
		return nil, notFound(err, "user", rq.UserID)
	}
	loan := &models.Loan{
		ID:           uuid.NewString(),
		ItemID:       rq.ItemID,
		UnitID:       rq.UnitID,
		BorrowerID:   borrower.ID,
		BorrowerName: borrower.DisplayName,
		CheckoutDate: rq.StartDate,
		DueDate:      rq.EndDate,
		Status:       models.LoanActive,
		RequestID:    &rq.ID,
		Note:         rq.Note,
	}
	units := Units(tx)

	if rq.UnitID == nil {
		unit, err := units.allocate(ctx, rq.ItemID, loan.ID)
		if err != nil {
			return nil, err
		}
		loan.UnitID = &unit.ID
		if err := tx.CreateLoan(ctx, loan); err != nil {
			return nil, loanInsertErr(err)
		}
		return loan, nil
	}

	if err := tx.CreateLoan(ctx, loan); err != nil {
		return nil, loanInsertErr(err)
	}
	if err := units.CommitLoan(ctx, *rq.UnitID, rq.ID, loan.ID); err != nil {
		if IsConflict(err) {
			return nil, errAlreadyDecided
		}
		return nil, err
	}
	return loan, nil
}

// 唯一索引（request_id / 单元唯一在借）冲突说明别人已经处理过
func loanInsertErr(err error) error {
	if db.IsUniqueViolation(err) {
		return errAlreadyDecided
	}
	return err
}
