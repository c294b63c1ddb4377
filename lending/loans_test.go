package lending

import (
	"testing"

	"Gin_postgres_redis_lending/models"
	"Gin_postgres_redis_lending/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 到期 2025-01-10，2025-01-15 归还 → 逾期 5 天 → 2 次
func TestReturnLateAssignsPenalty(t *testing.T) {
	f := newFixture(t)
	alice := f.borrower("alice@example.edu")
	it := f.item(models.PolicyEither, "OSC-1")
	loan := f.directLoan(alice, it.ID, "2025-01-08", "2025-01-10")

	f.clock.Set("2025-01-15T16:30:00Z")
	res, err := f.eng.ReturnLoan(f.ctx, loan.ID, ReturnOptions{AutoPenalty: true}, f.admin)
	require.NoError(t, err)
	assert.Equal(t, 5, res.LateDays)
	require.NotNil(t, res.Penalty)
	assert.Equal(t, 5, res.Penalty.Record.DelayDays)
	assert.Equal(t, 2, res.Penalty.Record.Strikes)
	assert.Equal(t, 2, res.Penalty.Status.Strikes)

	assert.Equal(t, models.LoanReturned, res.Loan.Status)
	u := f.unit(*loan.UnitID)
	assert.Equal(t, models.UnitAvailable, u.State)
	assert.Nil(t, u.CurrentLoanID)

	evs := f.events.OfType(notify.LoanReturned)
	require.Len(t, evs, 1)
	assert.Equal(t, 5, evs[0].Payload["lateDays"])
}

func TestReturnOnTime(t *testing.T) {
	f := newFixture(t)
	alice := f.borrower("alice@example.edu")
	it := f.item(models.PolicyEither, "OSC-1")
	loan := f.directLoan(alice, it.ID, "2025-01-06", "2025-01-08")

	f.clock.Set("2025-01-08T23:00:00Z")
	res, err := f.eng.ReturnLoan(f.ctx, loan.ID, ReturnOptions{AutoPenalty: true}, f.admin)
	require.NoError(t, err)
	assert.Equal(t, 0, res.LateDays)
	assert.Nil(t, res.Penalty)

	// 第二次归还是冲突，不会再次释放单元
	_, err = f.eng.ReturnLoan(f.ctx, loan.ID, ReturnOptions{}, f.admin)
	assert.True(t, IsConflict(err))
}

func TestReturnToRepair(t *testing.T) {
	f := newFixture(t)
	alice := f.borrower("alice@example.edu")
	it := f.item(models.PolicyEither, "OSC-1")
	loan := f.directLoan(alice, it.ID, "2025-01-06", "2025-01-08")

	res, err := f.eng.ReturnLoan(f.ctx, loan.ID, ReturnOptions{ToRepair: true, RepairDescription: "cracked screen", RepairPriority: models.PriorityHigh}, f.admin)
	require.NoError(t, err)
	require.NotNil(t, res.RepairTicketID)

	u := f.unit(*loan.UnitID)
	assert.Equal(t, models.UnitInRepair, u.State)
	assert.Nil(t, u.CurrentLoanID)
	require.NotNil(t, u.RepairTicketID)
	assert.Equal(t, *res.RepairTicketID, *u.RepairTicketID)

	ticket, err := f.repo.FindRepairTicket(f.ctx, *res.RepairTicketID)
	require.NoError(t, err)
	assert.Equal(t, models.RepairInProgress, ticket.Status)
	assert.Equal(t, models.PriorityHigh, ticket.Priority)
	require.Len(t, ticket.Units, 1)
	assert.Equal(t, u.ID, ticket.Units[0].UnitID)
}

func TestCreateDirectLoan(t *testing.T) {
	f := newFixture(t)
	alice := f.borrower("alice@example.edu")
	it := f.item(models.PolicyExternalOnly, "OSC-1", "OSC-2")

	// 直借不套用途规则：外借物品当天借当天还也可以
	pinned := it.Units[1].ID
	loan, err := f.eng.CreateDirect(f.ctx, DirectLoan{ItemID: it.ID, UnitID: &pinned, BorrowerID: alice.UserID, Range: rng("2025-01-06", "2025-01-06")}, f.admin)
	require.NoError(t, err)
	assert.Nil(t, loan.RequestID)
	assert.Equal(t, models.UnitLoaned, f.unit(pinned).State)

	_, err = f.eng.CreateDirect(f.ctx, DirectLoan{ItemID: it.ID, UnitID: &pinned, BorrowerID: alice.UserID, Range: rng("2025-01-06", "2025-01-06")}, f.admin)
	var ue *UnitUnavailableError
	require.ErrorAs(t, err, &ue)

	_, err = f.eng.CreateDirect(f.ctx, DirectLoan{ItemID: it.ID, BorrowerID: alice.UserID, Range: rng("2025-01-07", "2025-01-06")}, f.admin)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = f.eng.CreateDirect(f.ctx, DirectLoan{ItemID: it.ID, BorrowerID: alice.UserID, Range: rng("2025-01-06", "2025-01-07")}, alice)
	var fe *ForbiddenError
	require.ErrorAs(t, err, &fe)
}

func TestDueProjections(t *testing.T) {
	f := newFixture(t) // 今天 2025-01-06
	alice := f.borrower("alice@example.edu")
	it := f.item(models.PolicyEither, "U-1", "U-2", "U-3", "U-4")

	overdue := f.directLoan(alice, it.ID, "2025-01-01", "2025-01-05")
	today := f.directLoan(alice, it.ID, "2025-01-02", "2025-01-06")
	tomorrow := f.directLoan(alice, it.ID, "2025-01-03", "2025-01-07")
	returned := f.directLoan(alice, it.ID, "2025-01-01", "2025-01-03")
	_, err := f.eng.ReturnLoan(f.ctx, returned.ID, ReturnOptions{}, f.admin)
	require.NoError(t, err)

	ids := func(ls []models.Loan) []string {
		var out []string
		for _, l := range ls {
			out = append(out, l.ID)
		}
		return out
	}

	got, err := f.eng.Overdue(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{overdue.ID}, ids(got))

	got, err = f.eng.DueToday(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{today.ID}, ids(got))

	got, err = f.eng.DueTomorrow(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{tomorrow.ID}, ids(got))
}

func TestLowStock(t *testing.T) {
	f := newFixture(t)
	alice := f.borrower("alice@example.edu")
	busy := f.item(models.PolicyEither, "B-1", "B-2")
	f.item(models.PolicyEither, "I-1", "I-2", "I-3")
	f.directLoan(alice, busy.ID, "2025-01-06", "2025-01-07")

	rows, err := f.eng.LowStock(f.ctx, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, busy.ID, rows[0].ItemID)
	assert.Equal(t, 2, rows[0].Total)
	assert.Equal(t, 1, rows[0].Available)
	assert.Equal(t, 1, rows[0].Loaned)

	rows, err = f.eng.LowStock(f.ctx, 3)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	_, err = f.eng.LowStock(f.ctx, -1)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

// 借用期间已手工罚分：归还照常完成，不重复罚分
func TestReturnAfterManualPenalty(t *testing.T) {
	f := newFixture(t)
	alice := f.borrower("alice@example.edu")
	it := f.item(models.PolicyEither, "OSC-1")
	loan := f.directLoan(alice, it.ID, "2025-01-02", "2025-01-03")

	_, err := f.eng.AssignPenalty(f.ctx, PenaltyInput{LoanID: loan.ID, DelayDays: 3}, f.admin)
	require.NoError(t, err)

	f.clock.Set("2025-01-08T10:00:00Z")
	res, err := f.eng.ReturnLoan(f.ctx, loan.ID, ReturnOptions{AutoPenalty: true}, f.admin)
	require.NoError(t, err)
	assert.Equal(t, 5, res.LateDays)
	assert.True(t, res.AlreadyPenalized)
	assert.Nil(t, res.Penalty)

	stored, err := f.repo.FindLoanByID(f.ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanReturned, stored.Status)
	assert.Equal(t, models.UnitAvailable, f.unit(*loan.UnitID).State)

	st, err := f.eng.AccountStatus(f.ctx, alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Strikes)
	ps, err := f.repo.ListPenalties(f.ctx, alice.UserID)
	require.NoError(t, err)
	assert.Len(t, ps, 1)
}
