package lending

import (
	"context"
	"fmt"

	"Gin_postgres_redis_lending/db"
	"Gin_postgres_redis_lending/metrics"
	"Gin_postgres_redis_lending/models"
	"Gin_postgres_redis_lending/notify"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// CalculateStrikes 0 → 0, 1–3 → 1, 4–7 → 2, >=8 → 3
func CalculateStrikes(delayDays int) int {
	switch {
	case delayDays <= 0:
		return 0
	case delayDays <= 3:
		return 1
	case delayDays <= 7:
		return 2
	}
	return 3
}

type PenaltyInput struct {
	UserID    string
	LoanID    string
	DelayDays int
	Reason    string
}

type PenaltyResult struct {
	Record       *models.PenaltyRecord     `json:"record"`
	Status       *models.UserAccountStatus `json:"status"`
	NewlyBlocked bool                      `json:"newlyBlocked"`
}

// AssignPenalty 一个事务：查重 → 写记录 → 加次数 → 达到阈值自动封禁
func (e *Engine) AssignPenalty(ctx context.Context, in PenaltyInput, actor Caller) (res *PenaltyResult, err error) {
	defer func() { e.observe("assign_penalty", err) }()

	if err := e.requirePrivileged(actor, "assigning penalties"); err != nil {
		return nil, err
	}
	if in.DelayDays < 0 {
		return nil, invalid("delayDays", "must not be negative")
	}
	loan, err := e.repo.FindLoanByID(ctx, in.LoanID)
	if err != nil {
		return nil, notFound(err, "loan", in.LoanID)
	}
	if in.UserID == "" {
		in.UserID = loan.BorrowerID
	}
	if loan.BorrowerID != in.UserID {
		return nil, invalid("userId", "loan belongs to another borrower")
	}

	err = e.repo.Transaction(ctx, func(tx *db.Repo) error {
		var err error
		res, err = e.assignPenaltyTx(ctx, tx, in, actor.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.afterPenalty(ctx, res)
	return res, nil
}

func (e *Engine) assignPenaltyTx(ctx context.Context, tx *db.Repo, in PenaltyInput, by string) (*PenaltyResult, error) {
	existing, err := tx.FindPenaltyByLoan(ctx, in.LoanID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &DuplicatePenaltyError{LoanID: in.LoanID}
	}

	strikes := CalculateStrikes(in.DelayDays)
	reason := in.Reason
	if reason == "" {
		reason = fmt.Sprintf("returned %d day(s) late", in.DelayDays)
	}
	rec := &models.PenaltyRecord{
		ID:         uuid.NewString(),
		UserID:     in.UserID,
		LoanID:     in.LoanID,
		DelayDays:  in.DelayDays,
		Strikes:    strikes,
		Reason:     reason,
		AssignedBy: by,
	}
	if err := tx.CreatePenalty(ctx, rec); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, &DuplicatePenaltyError{LoanID: in.LoanID}
		}
		return nil, err
	}
	if err := tx.AddStrikes(ctx, in.UserID, strikes); err != nil {
		return nil, err
	}
	blocked, err := tx.BlockIfOverThreshold(ctx, in.UserID, models.StrikeBlockThreshold,
		fmt.Sprintf("reached %d strikes", models.StrikeBlockThreshold), e.now().UTC(), by)
	if err != nil {
		return nil, err
	}
	st, err := tx.FindAccountStatus(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	return &PenaltyResult{Record: rec, Status: st, NewlyBlocked: blocked}, nil
}

func (e *Engine) afterPenalty(ctx context.Context, res *PenaltyResult) {
	if res == nil || !res.NewlyBlocked {
		return
	}
	metrics.UsersBlocked.Inc()
	e.log.WithFields(log.Fields{
		"user":    res.Status.UserID,
		"strikes": res.Status.Strikes,
	}).Warn("user blocked")
	e.emit(notify.Event{
		Type:     notify.UserBlocked,
		To:       nonEmpty(e.usernameOf(ctx, res.Status.UserID)),
		ToAdmins: true,
		Subject:  "Borrowing suspended",
		Payload: map[string]any{
			"userId":  res.Status.UserID,
			"strikes": res.Status.Strikes,
			"loanId":  res.Record.LoanID,
		},
	})
}

// Unblock 显式解封，可选清零次数；同一事务写审计日志
func (e *Engine) Unblock(ctx context.Context, userID string, resetStrikes bool, actor Caller, reason string) (st *models.UserAccountStatus, err error) {
	defer func() { e.observe("unblock", err) }()

	if err := e.requirePrivileged(actor, "unblocking users"); err != nil {
		return nil, err
	}
	if _, err := e.repo.FindUserByID(ctx, userID); err != nil {
		return nil, notFound(err, "user", userID)
	}

	err = e.repo.Transaction(ctx, func(tx *db.Repo) error {
		before, err := tx.FindAccountStatus(ctx, userID)
		if err != nil {
			return err
		}
		if err := tx.ClearBlock(ctx, userID, resetStrikes); err != nil {
			return err
		}
		entry := &models.UnblockLog{
			ID:            uuid.NewString(),
			UserID:        userID,
			ActorID:       actor.UserID,
			StrikesBefore: before.Strikes,
			ResetStrikes:  resetStrikes,
		}
		if reason != "" {
			entry.Reason = &reason
		}
		if err := tx.LogUnblock(ctx, entry); err != nil {
			return err
		}
		st, err = tx.FindAccountStatus(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.log.WithFields(log.Fields{"user": userID, "actor": actor.UserID, "reset": resetStrikes}).Info("user unblocked")
	return st, nil
}

// EnsureNotBlocked 借用入口的封禁检查
func (e *Engine) EnsureNotBlocked(ctx context.Context, userID string) error {
	st, err := e.repo.FindAccountStatus(ctx, userID)
	if err != nil {
		return err
	}
	if st.Blocked {
		reason := ""
		if st.BlockReason != nil {
			reason = *st.BlockReason
		}
		return &UserBlockedError{UserID: userID, Strikes: st.Strikes, Reason: reason}
	}
	return nil
}

func (e *Engine) AccountStatus(ctx context.Context, userID string) (*models.UserAccountStatus, error) {
	return e.repo.FindAccountStatus(ctx, userID)
}
