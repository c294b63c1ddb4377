package lending

import (
	"context"
	"io"
	"testing"
	"time"

	"Gin_postgres_redis_lending/db"
	"Gin_postgres_redis_lending/db/dbtest"
	"Gin_postgres_redis_lending/models"
	"Gin_postgres_redis_lending/notify"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func (c *clock) Set(s string) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	c.t = t
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	repo   *db.Repo
	eng    *Engine
	events *notify.Recorder
	clock  *clock
	admin  Caller
}

func quietLogger() *log.Logger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

// newFixture 默认时间 2025-01-06 09:00 UTC（周一）
func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := dbtest.Repo(t)
	clk := &clock{}
	clk.Set("2025-01-06T09:00:00Z")
	rec := &notify.Recorder{}
	f := &fixture{
		t:      t,
		ctx:    context.Background(),
		repo:   repo,
		events: rec,
		clock:  clk,
		eng: NewEngine(Deps{
			Repo:     repo,
			Notifier: rec,
			Log:      quietLogger(),
			Now:      clk.Now,
		}),
	}
	admin := f.user("admin@example.edu", models.RoleAdmin)
	f.admin = Caller{UserID: admin.ID, Role: admin.Role}
	return f
}

func (f *fixture) user(username, role string) *models.User {
	f.t.Helper()
	u := &models.User{ID: uuid.NewString(), Username: username, DisplayName: username, Role: role}
	require.NoError(f.t, f.repo.CreateUser(f.ctx, u))
	return u
}

func (f *fixture) borrower(username string) Caller {
	u := f.user(username, models.RoleUser)
	return Caller{UserID: u.ID, Role: u.Role}
}

func (f *fixture) item(policy models.LoanPolicy, codes ...string) *models.Item {
	f.t.Helper()
	it, err := f.eng.CreateItem(f.ctx, NewItem{Name: "Oscilloscope", LoanPolicy: policy, UnitCodes: codes}, f.admin)
	require.NoError(f.t, err)
	return it
}

func (f *fixture) unit(id string) *models.Unit {
	f.t.Helper()
	u, err := f.repo.FindUnitByID(f.ctx, id)
	require.NoError(f.t, err)
	return u
}

func (f *fixture) stock(itemID string) *db.ItemStockRow {
	f.t.Helper()
	row, err := f.repo.ItemStock(f.ctx, itemID)
	require.NoError(f.t, err)
	require.NotNil(f.t, row)
	return row
}

func date(s string) time.Time {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func rng(start, end string) DateRange { return DateRange{Start: date(start), End: date(end)} }

func usage(u models.UsageType) *models.UsageType { return &u }

func ptr(s string) *string { return &s }

func dbRequestsOf(userID string) db.RequestFilter { return db.RequestFilter{UserID: userID} }

func loanFilterOf(userID string) db.LoanFilter { return db.LoanFilter{UserID: userID} }
