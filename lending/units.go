package lending

import (
	"context"

	"Gin_postgres_redis_lending/db"
	"Gin_postgres_redis_lending/models"
)

const (
	colReservedRequest = "reserved_request_id"
	colCurrentLoan     = "current_loan_id"
	colRepairTicket    = "repair_ticket_id"
)

// UnitRegistry 单元状态机。每个转换都是 compare-and-set：
// 源状态（以及期望的指针）不匹配时更新 0 行，返回 ConflictError。
//
//	available → reserved → loaned → available
//	available → in_repair → available
//	loaned    → in_repair            (仅归还时转修)
type UnitRegistry struct {
	repo *db.Repo
}

// Units 绑定到给定 repo，事务内传 tx
func Units(repo *db.Repo) UnitRegistry { return UnitRegistry{repo: repo} }

func (u UnitRegistry) cas(ctx context.Context, unitID string, g db.UnitGuard, set map[string]interface{}, action string) error {
	ok, err := u.repo.CASUnit(ctx, unitID, g, set)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	// 区分不存在和状态不符
	cur, err := u.repo.FindUnitByID(ctx, unitID)
	if err != nil {
		return notFound(err, "unit", unitID)
	}
	return conflictf("cannot %s unit %s: state is %s", action, cur.Code, cur.State)
}

func (u UnitRegistry) Reserve(ctx context.Context, unitID, requestID string) error {
	return u.cas(ctx, unitID,
		db.UnitGuard{State: models.UnitAvailable},
		map[string]interface{}{"state": models.UnitReserved, colReservedRequest: requestID},
		"reserve")
}

func (u UnitRegistry) Release(ctx context.Context, unitID, expectedRequestID string) error {
	return u.cas(ctx, unitID,
		db.UnitGuard{State: models.UnitReserved, Column: colReservedRequest, Expected: &expectedRequestID},
		map[string]interface{}{"state": models.UnitAvailable, colReservedRequest: nil},
		"release")
}

func (u UnitRegistry) CommitLoan(ctx context.Context, unitID, expectedRequestID, loanID string) error {
	return u.cas(ctx, unitID,
		db.UnitGuard{State: models.UnitReserved, Column: colReservedRequest, Expected: &expectedRequestID},
		map[string]interface{}{"state": models.UnitLoaned, colReservedRequest: nil, colCurrentLoan: loanID},
		"commit loan on")
}

// CheckoutDirect available → loaned，不经过预约
func (u UnitRegistry) CheckoutDirect(ctx context.Context, unitID, loanID string) error {
	return u.cas(ctx, unitID,
		db.UnitGuard{State: models.UnitAvailable},
		map[string]interface{}{"state": models.UnitLoaned, colCurrentLoan: loanID},
		"check out")
}

func (u UnitRegistry) FreeFromLoan(ctx context.Context, unitID, expectedLoanID string) error {
	return u.cas(ctx, unitID,
		db.UnitGuard{State: models.UnitLoaned, Column: colCurrentLoan, Expected: &expectedLoanID},
		map[string]interface{}{"state": models.UnitAvailable, colCurrentLoan: nil},
		"free")
}

func (u UnitRegistry) SendToRepair(ctx context.Context, unitID, ticketID string) error {
	return u.cas(ctx, unitID,
		db.UnitGuard{State: models.UnitAvailable},
		map[string]interface{}{"state": models.UnitInRepair, colRepairTicket: ticketID},
		"send to repair")
}

// SendLoanedToRepair 归还时直接转修
func (u UnitRegistry) SendLoanedToRepair(ctx context.Context, unitID, expectedLoanID, ticketID string) error {
	return u.cas(ctx, unitID,
		db.UnitGuard{State: models.UnitLoaned, Column: colCurrentLoan, Expected: &expectedLoanID},
		map[string]interface{}{"state": models.UnitInRepair, colCurrentLoan: nil, colRepairTicket: ticketID},
		"send to repair")
}

func (u UnitRegistry) ReturnFromRepair(ctx context.Context, unitID, expectedTicketID string) error {
	return u.cas(ctx, unitID,
		db.UnitGuard{State: models.UnitInRepair, Column: colRepairTicket, Expected: &expectedTicketID},
		map[string]interface{}{"state": models.UnitAvailable, colRepairTicket: nil},
		"return from repair")
}

// returnLegacyRepair 旧数据单元上没有工单指针，只按 item + 状态匹配
func (u UnitRegistry) returnLegacyRepair(ctx context.Context, unitID, itemID string) error {
	return u.cas(ctx, unitID,
		db.UnitGuard{State: models.UnitInRepair, ItemID: itemID, Column: colRepairTicket, AnyTarget: true},
		map[string]interface{}{"state": models.UnitAvailable, colRepairTicket: nil},
		"return from repair")
}

// allocate 取该物品第一个可用单元直接借出；并发下被抢就试下一个
func (u UnitRegistry) allocate(ctx context.Context, itemID, loanID string) (*models.Unit, error) {
	cands, err := u.repo.AvailableUnits(ctx, itemID)
	if err != nil {
		return nil, err
	}
	for i := range cands {
		err := u.CheckoutDirect(ctx, cands[i].ID, loanID)
		if err == nil {
			return &cands[i], nil
		}
		if !IsConflict(err) {
			return nil, err
		}
	}
	return nil, &UnitUnavailableError{Cause: conflictf("no available unit for item %s", itemID)}
}
