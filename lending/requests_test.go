package lending

import (
	"testing"

	"Gin_postgres_redis_lending/db"
	"Gin_postgres_redis_lending/models"
	"Gin_postgres_redis_lending/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRequestPinnedUnitReserves(t *testing.T) {
	f := newFixture(t)
	alice := f.borrower("alice@example.edu")
	it := f.item(models.PolicyExternalOnly, "OSC-1")
	unitID := it.Units[0].ID

	rq, err := f.eng.CreateRequest(f.ctx, NewRequest{
		UserID: alice.UserID, ItemID: it.ID, UnitID: &unitID,
		Range: rng("2025-01-07", "2025-01-09"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, rq.Status)
	require.NotNil(t, rq.UsageType)
	assert.Equal(t, models.UsageExternal, *rq.UsageType)

	u := f.unit(unitID)
	assert.Equal(t, models.UnitReserved, u.State)
	require.NotNil(t, u.ReservedRequestID)
	assert.Equal(t, rq.ID, *u.ReservedRequestID)

	evs := f.events.OfType(notify.RequestCreated)
	require.Len(t, evs, 1)
	assert.True(t, evs[0].ToAdmins)
}

func TestCreateRequestUnavailableUnit(t *testing.T) {
	f := newFixture(t)
	alice := f.borrower("alice@example.edu")
	bob := f.borrower("bob@example.edu")
	it := f.item(models.PolicyExternalOnly, "OSC-1")
	unitID := it.Units[0].ID

	_, err := f.eng.CreateRequest(f.ctx, NewRequest{UserID: alice.UserID, ItemID: it.ID, UnitID: &unitID, Range: rng("2025-01-07", "2025-01-08")})
	require.NoError(t, err)

	_, err = f.eng.CreateRequest(f.ctx, NewRequest{UserID: bob.UserID, ItemID: it.ID, UnitID: &unitID, Range: rng("2025-01-07", "2025-01-08")})
	var ue *UnitUnavailableError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, unitID, ue.UnitID)
	assert.True(t, IsConflict(err))

	// 失败的申请不落库
	page, err := f.repo.ListRequests(f.ctx, dbRequestsOf(bob.UserID))
	require.NoError(t, err)
	assert.EqualValues(t, 0, page.Total)
}

func TestCreateRequestUnitFromOtherItem(t *testing.T) {
	f := newFixture(t)
	alice := f.borrower("alice@example.edu")
	a := f.item(models.PolicyExternalOnly, "A-1")
	b := f.item(models.PolicyExternalOnly, "B-1")

	_, err := f.eng.CreateRequest(f.ctx, NewRequest{UserID: alice.UserID, ItemID: a.ID, UnitID: &b.Units[0].ID, Range: rng("2025-01-07", "2025-01-08")})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, models.UnitAvailable, f.unit(b.Units[0].ID).State)
}

func TestCreateRequestPolicyRules(t *testing.T) {
	f := newFixture(t)
	alice := f.borrower("alice@example.edu")
	ext := f.item(models.PolicyExternalOnly, "E-1")
	in := f.item(models.PolicyInternalOnly, "I-1")
	either := f.item(models.PolicyEither, "X-1")

	cases := []struct {
		name  string
		item  string
		rng   DateRange
		usage *models.UsageType
		field string
	}{
		{"external starts today", ext.ID, rng("2025-01-06", "2025-01-07"), nil, "startDate"},
		{"external too long", ext.ID, rng("2025-01-07", "2025-01-11"), nil, "endDate"},
		{"internal spans days", in.ID, rng("2025-01-06", "2025-01-07"), nil, "endDate"},
		{"either without usage", either.ID, rng("2025-01-07", "2025-01-08"), nil, "usageType"},
		{"either internal multi-day", either.ID, rng("2025-01-07", "2025-01-08"), usage(models.UsageInternal), "endDate"},
		{"end before start", ext.ID, rng("2025-01-09", "2025-01-08"), nil, "endDate"},
		{"usage not allowed", in.ID, rng("2025-01-06", "2025-01-06"), usage(models.UsageExternal), "usageType"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.eng.CreateRequest(f.ctx, NewRequest{UserID: alice.UserID, ItemID: tc.item, Range: tc.rng, UsageType: tc.usage})
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}

	_, err := f.eng.CreateRequest(f.ctx, NewRequest{UserID: alice.UserID, ItemID: in.ID, Range: rng("2025-01-06", "2025-01-06")})
	assert.NoError(t, err)
	_, err = f.eng.CreateRequest(f.ctx, NewRequest{UserID: alice.UserID, ItemID: either.ID, Range: rng("2025-01-07", "2025-01-10"), UsageType: usage(models.UsageExternal)})
	assert.NoError(t, err)
}

func TestCreateRequestUnknownItem(t *testing.T) {
	f := newFixture(t)
	alice := f.borrower("alice@example.edu")
	_, err := f.eng.CreateRequest(f.ctx, NewRequest{UserID: alice.UserID, ItemID: "00000000-0000-0000-0000-000000000000", Range: rng("2025-01-07", "2025-01-08")})
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "item", nf.Entity)
}

func TestCancelRequestByOwner(t *testing.T) {
	f := newFixture(t)
	alice := f.borrower("alice@example.edu")
	it := f.item(models.PolicyExternalOnly, "OSC-1")
	unitID := it.Units[0].ID

	rq, err := f.eng.CreateRequest(f.ctx, NewRequest{UserID: alice.UserID, ItemID: it.ID, UnitID: &unitID, Range: rng("2025-01-07", "2025-01-08")})
	require.NoError(t, err)

	require.NoError(t, f.eng.CancelRequest(f.ctx, rq.ID, alice))
	assert.Equal(t, models.UnitAvailable, f.unit(unitID).State)
	assert.Nil(t, f.unit(unitID).ReservedRequestID)

	// 第二次撤销：请求已不存在，不会二次释放
	err = f.eng.CancelRequest(f.ctx, rq.ID, alice)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, 1, f.stock(it.ID).Available)
}

func TestCancelRequestOwnership(t *testing.T) {
	f := newFixture(t)
	alice := f.borrower("alice@example.edu")
	mallory := f.borrower("mallory@example.edu")
	it := f.item(models.PolicyExternalOnly, "OSC-1")

	rq, err := f.eng.CreateRequest(f.ctx, NewRequest{UserID: alice.UserID, ItemID: it.ID, Range: rng("2025-01-07", "2025-01-08")})
	require.NoError(t, err)

	err = f.eng.CancelRequest(f.ctx, rq.ID, mallory)
	var fe *ForbiddenError
	require.ErrorAs(t, err, &fe)

	_, err = f.eng.Decide(f.ctx, rq.ID, models.RequestRejected, f.admin, "")
	require.NoError(t, err)

	// 申请人不能撤销已决定的申请，管理员可以
	err = f.eng.CancelRequest(f.ctx, rq.ID, alice)
	assert.True(t, IsConflict(err))
	require.NoError(t, f.eng.CancelRequest(f.ctx, rq.ID, f.admin))
	assert.Len(t, f.events.OfType(notify.RequestCancelled), 1)
}

func TestAdminCancelApprovedRequestKeepsLoan(t *testing.T) {
	f := newFixture(t)
	alice := f.borrower("alice@example.edu")
	it := f.item(models.PolicyExternalOnly, "OSC-1")
	unitID := it.Units[0].ID

	rq, err := f.eng.CreateRequest(f.ctx, NewRequest{UserID: alice.UserID, ItemID: it.ID, UnitID: &unitID, Range: rng("2025-01-07", "2025-01-08")})
	require.NoError(t, err)
	dec, err := f.eng.Decide(f.ctx, rq.ID, models.RequestApproved, f.admin, "")
	require.NoError(t, err)

	require.NoError(t, f.eng.CancelRequest(f.ctx, rq.ID, f.admin))
	u := f.unit(unitID)
	assert.Equal(t, models.UnitLoaned, u.State)
	require.NotNil(t, u.CurrentLoanID)
	assert.Equal(t, dec.Loan.ID, *u.CurrentLoanID)
}

// 申请人读到 pending 后、删除前管理员已批准：删除必须落空，借用与申请都保留
func TestOwnerCancelAfterConcurrentApproval(t *testing.T) {
	f := newFixture(t)
	alice := f.borrower("alice@example.edu")
	it := f.item(models.PolicyExternalOnly, "OSC-1")
	unitID := it.Units[0].ID

	rq, err := f.eng.CreateRequest(f.ctx, NewRequest{UserID: alice.UserID, ItemID: it.ID, UnitID: &unitID, Range: rng("2025-01-07", "2025-01-08")})
	require.NoError(t, err)
	stale, err := f.repo.FindRequestByID(f.ctx, rq.ID)
	require.NoError(t, err)
	require.Equal(t, models.RequestPending, stale.Status)

	dec, err := f.eng.Decide(f.ctx, rq.ID, models.RequestApproved, f.admin, "")
	require.NoError(t, err)

	err = f.repo.Transaction(f.ctx, func(tx *db.Repo) error {
		_, err := f.eng.cancelTx(f.ctx, tx, stale, false)
		return err
	})
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Reason, string(models.RequestApproved))

	stored, err := f.repo.FindRequestByID(f.ctx, rq.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestApproved, stored.Status)
	u := f.unit(unitID)
	assert.Equal(t, models.UnitLoaned, u.State)
	require.NotNil(t, u.CurrentLoanID)
	assert.Equal(t, dec.Loan.ID, *u.CurrentLoanID)

	n, err := f.repo.DeleteRequest(f.ctx, rq.ID, models.RequestPending)
	require.NoError(t, err)
	assert.Zero(t, n)
}
