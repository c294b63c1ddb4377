package lending

import (
	"context"

	"Gin_postgres_redis_lending/db"
	"Gin_postgres_redis_lending/models"
	"Gin_postgres_redis_lending/notify"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type DirectLoan struct {
	ItemID     string
	UnitID     *string // 为空时自动分配
	BorrowerID string
	Range      DateRange
	Note       string
}

// CreateDirect 管理员直接登记借出，不经过申请。只校验日期区间，不套用途规则。
func (e *Engine) CreateDirect(ctx context.Context, in DirectLoan, actor Caller) (loan *models.Loan, err error) {
	defer func() { e.observe("create_direct_loan", err) }()

	if err := e.requirePrivileged(actor, "direct loans"); err != nil {
		return nil, err
	}
	if err := CheckRange(in.Range); err != nil {
		return nil, err
	}
	item, err := e.repo.FindItemByID(ctx, in.ItemID)
	if err != nil {
		return nil, notFound(err, "item", in.ItemID)
	}
	borrower, err := e.repo.FindUserByID(ctx, in.BorrowerID)
	if err != nil {
		return nil, notFound(err, "user", in.BorrowerID)
	}

	loan = &models.Loan{
		ID:           uuid.NewString(),
		ItemID:       item.ID,
		BorrowerID:   borrower.ID,
		BorrowerName: borrower.DisplayName,
		CheckoutDate: in.Range.Start,
		DueDate:      in.Range.End,
		Status:       models.LoanActive,
		Note:         in.Note,
	}
	err = e.repo.Transaction(ctx, func(tx *db.Repo) error {
		units := Units(tx)
		if in.UnitID != nil {
			unit, err := tx.FindUnitByID(ctx, *in.UnitID)
			if err != nil {
				return notFound(err, "unit", *in.UnitID)
			}
			if unit.ItemID != item.ID {
				return invalid("unitId", "unit does not belong to item")
			}
			if err := units.CheckoutDirect(ctx, unit.ID, loan.ID); err != nil {
				return asUnavailable(unit.ID, err)
			}
			loan.UnitID = &unit.ID
		} else {
			unit, err := units.allocate(ctx, item.ID, loan.ID)
			if err != nil {
				return err
			}
			loan.UnitID = &unit.ID
		}
		if err := tx.CreateLoan(ctx, loan); err != nil {
			if db.IsUniqueViolation(err) {
				return conflictf("unit already on an active loan")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.WithFields(log.Fields{"loan": loan.ID, "unit": *loan.UnitID, "borrower": borrower.ID}).Info("direct loan created")
	return loan, nil
}

type ReturnOptions struct {
	// ToRepair 归还时单元直接进入维修，开一张新工单
	ToRepair          bool
	RepairDescription string
	RepairPriority    models.RepairPriority
	// AutoPenalty 逾期时在同一事务里登记罚分
	AutoPenalty bool
}

type ReturnResult struct {
	Loan           *models.Loan   `json:"loan"`
	LateDays       int            `json:"lateDays"`
	RepairTicketID *string        `json:"repairTicketId,omitempty"`
	Penalty        *PenaltyResult `json:"penalty,omitempty"`

	// 借用期间已经手工罚过，自动罚分跳过
	AlreadyPenalized bool `json:"alreadyPenalized,omitempty"`
}

// ReturnLoan active → returned，单元 loaned → available（或转修）。
// lateDays = max(0, ceil((now - due) / 1 day))
func (e *Engine) ReturnLoan(ctx context.Context, loanID string, opts ReturnOptions, actor Caller) (res *ReturnResult, err error) {
	defer func() { e.observe("return_loan", err) }()

	if err := e.requirePrivileged(actor, "returning loans"); err != nil {
		return nil, err
	}
	if opts.ToRepair {
		if opts.RepairPriority == "" {
			opts.RepairPriority = models.PriorityNormal
		}
		if !opts.RepairPriority.Valid() {
			return nil, invalid("priority", "unknown priority "+string(opts.RepairPriority))
		}
	}

	now := e.now().UTC()
	res = &ReturnResult{}
	err = e.repo.Transaction(ctx, func(tx *db.Repo) error {
		loan, err := tx.FindLoanByID(ctx, loanID)
		if err != nil {
			return notFound(err, "loan", loanID)
		}
		ok, err := tx.MarkLoanReturned(ctx, loan.ID, actor.UserID, now)
		if err != nil {
			return err
		}
		if !ok {
			return conflictf("loan %s already returned", loan.ID)
		}
		loan.Status = models.LoanReturned
		loan.ReturnedAt = &now
		loan.ReturnedBy = &actor.UserID
		res.Loan = loan
		res.LateDays = LateDays(loan.DueDate, now, e.loc)

		if loan.UnitID != nil {
			if opts.ToRepair {
				t, err := e.openTicketTx(ctx, tx, loan.ItemID, []string{*loan.UnitID}, opts.RepairDescription, opts.RepairPriority, actor.UserID)
				if err != nil {
					return err
				}
				if err := Units(tx).SendLoanedToRepair(ctx, *loan.UnitID, loan.ID, t.ID); err != nil {
					return err
				}
				res.RepairTicketID = &t.ID
			} else if err := Units(tx).FreeFromLoan(ctx, *loan.UnitID, loan.ID); err != nil {
				return err
			}
		}

		if opts.AutoPenalty && res.LateDays > 0 {
			existing, err := tx.FindPenaltyByLoan(ctx, loan.ID)
			if err != nil {
				return err
			}
			if existing != nil {
				res.AlreadyPenalized = true
				return nil
			}
			p, err := e.assignPenaltyTx(ctx, tx, PenaltyInput{
				UserID:    loan.BorrowerID,
				LoanID:    loan.ID,
				DelayDays: res.LateDays,
			}, actor.UserID)
			if err != nil {
				return err
			}
			res.Penalty = p
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.WithFields(log.Fields{
		"loan":     res.Loan.ID,
		"lateDays": res.LateDays,
		"repair":   res.RepairTicketID != nil,
	}).Info("loan returned")
	e.emit(notify.Event{
		Type:    notify.LoanReturned,
		To:      nonEmpty(e.usernameOf(ctx, res.Loan.BorrowerID)),
		Subject: "Loan returned",
		Payload: map[string]any{
			"loanId":   res.Loan.ID,
			"itemId":   res.Loan.ItemID,
			"dueDate":  res.Loan.DueDate.Format("2006-01-02"),
			"lateDays": res.LateDays,
		},
	})
	e.afterPenalty(ctx, res.Penalty)
	return res, nil
}

// Overdue 到期日早于今天仍未归还
func (e *Engine) Overdue(ctx context.Context) ([]models.Loan, error) {
	return e.repo.ActiveLoansDueBefore(ctx, e.Today())
}

func (e *Engine) DueToday(ctx context.Context) ([]models.Loan, error) {
	return e.repo.ActiveLoansDueOn(ctx, e.Today())
}

func (e *Engine) DueTomorrow(ctx context.Context) ([]models.Loan, error) {
	return e.repo.ActiveLoansDueOn(ctx, e.Today().AddDate(0, 0, 1))
}

// LowStock 可用单元数 <= threshold 的物品
func (e *Engine) LowStock(ctx context.Context, threshold int) ([]db.ItemStockRow, error) {
	if threshold < 0 {
		return nil, invalid("threshold", "must not be negative")
	}
	return e.repo.LowStock(ctx, threshold)
}
