package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"Gin_postgres_redis_lending/app"
	"Gin_postgres_redis_lending/controllers"
	"Gin_postgres_redis_lending/db"
	"Gin_postgres_redis_lending/db/dbtest"
	"Gin_postgres_redis_lending/lending"
	"Gin_postgres_redis_lending/models"
	"Gin_postgres_redis_lending/notify"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userHeader = "X-Test-User"

// headerAuth 用请求头里的用户 ID 代替 Redis 会话
func headerAuth(repo *db.Repo) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := repo.FindUserByID(c.Request.Context(), c.GetHeader(userHeader))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, app.H{"error": "unauthorized"})
			return
		}
		app.SetCaller(c, lending.Caller{UserID: u.ID, Role: u.Role}, u.Username)
		c.Next()
	}
}

type server struct {
	t      *testing.T
	repo   *db.Repo
	router *gin.Engine
	now    time.Time
	events *notify.Recorder
	admin  *models.User
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	quiet := log.New()
	quiet.SetOutput(io.Discard)

	s := &server{t: t, repo: dbtest.Repo(t), events: &notify.Recorder{}}
	s.setNow("2025-01-06T09:00:00Z")
	eng := lending.NewEngine(lending.Deps{
		Repo:     s.repo,
		Notifier: s.events,
		Log:      quiet,
		Now:      func() time.Time { return s.now },
	})
	srv := &controllers.Srv{Engine: eng, Repo: s.repo, Cfg: app.Config{LowStockThreshold: 1}}
	s.router = gin.New()
	Mount(s.router, srv, headerAuth(s.repo))
	s.admin = s.user("admin@example.edu", models.RoleAdmin)
	return s
}

func (s *server) setNow(v string) {
	tm, err := time.Parse(time.RFC3339, v)
	require.NoError(s.t, err)
	s.now = tm
}

func (s *server) user(username, role string) *models.User {
	u := &models.User{ID: uuid.NewString(), Username: username, DisplayName: username, Role: role}
	require.NoError(s.t, s.repo.CreateUser(context.Background(), u))
	return u
}

func (s *server) do(method, path string, as *models.User, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if as != nil {
		req.Header.Set(userHeader, as.ID)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (s *server) createItem(policy models.LoanPolicy, codes ...string) models.Item {
	w := s.do(http.MethodPost, "/admin/items", s.admin, app.H{
		"name": "Oscilloscope", "loanPolicy": policy, "unitCodes": codes,
	})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.Item](s.t, w)
}

func TestRequestApproveReturnFlow(t *testing.T) {
	s := newServer(t)
	alice := s.user("alice@example.edu", models.RoleUser)
	it := s.createItem(models.PolicyExternalOnly, "OSC-1")
	require.Len(t, it.Units, 1)

	w := s.do(http.MethodPost, "/api/requests", alice, app.H{
		"itemId": it.ID, "unitId": it.Units[0].ID, "startDate": "2025-01-07", "endDate": "2025-01-09",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rq := decode[models.Request](t, w)
	assert.Equal(t, models.RequestPending, rq.Status)

	// 普通用户不能审批
	w = s.do(http.MethodPost, "/admin/requests/"+rq.ID+"/decision", alice, app.H{"outcome": "approved"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/admin/requests/"+rq.ID+"/decision", s.admin, app.H{"outcome": "approved"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	dec := decode[lending.Decision](t, w)
	require.NotNil(t, dec.Loan)
	assert.Equal(t, alice.ID, dec.Loan.BorrowerID)
	assert.Equal(t, "2025-01-09", dec.Loan.DueDate.UTC().Format("2006-01-02"))

	w = s.do(http.MethodPost, "/admin/requests/"+rq.ID+"/decision", s.admin, app.H{"outcome": "rejected"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodGet, "/api/me/loans?status=active", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	mine := decode[struct {
		Items []models.Loan `json:"items"`
	}](t, w)
	require.Len(t, mine.Items, 1)

	s.setNow("2025-01-12T10:00:00Z")
	w = s.do(http.MethodPost, "/admin/loans/"+dec.Loan.ID+"/return", s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	ret := decode[lending.ReturnResult](t, w)
	assert.Equal(t, 3, ret.LateDays)
	require.NotNil(t, ret.Penalty)
	assert.Equal(t, 1, ret.Penalty.Record.Strikes)

	w = s.do(http.MethodGet, "/api/me/account", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	acct := decode[struct {
		Status    models.UserAccountStatus `json:"status"`
		Penalties []models.PenaltyRecord   `json:"penalties"`
	}](t, w)
	assert.Equal(t, 1, acct.Status.Strikes)
	assert.False(t, acct.Status.Blocked)
	assert.Len(t, acct.Penalties, 1)

	assert.Len(t, s.events.OfType(notify.LoanReturned), 1)
}

func TestBlockedUserAndUnblock(t *testing.T) {
	s := newServer(t)
	bob := s.user("bob@example.edu", models.RoleUser)
	it := s.createItem(models.PolicyEither, "M-1", "M-2")

	w := s.do(http.MethodPost, "/admin/loans", s.admin, app.H{
		"itemId": it.ID, "userName": bob.Username, "startDate": "2025-01-01", "endDate": "2025-01-02",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	loan := decode[models.Loan](t, w)

	w = s.do(http.MethodPost, "/admin/penalties", s.admin, app.H{"loanId": loan.ID, "delayDays": 10})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	pen := decode[lending.PenaltyResult](t, w)
	assert.True(t, pen.NewlyBlocked)

	w = s.do(http.MethodPost, "/admin/penalties", s.admin, app.H{"loanId": loan.ID, "delayDays": 1})
	assert.Equal(t, http.StatusConflict, w.Code)

	req := app.H{"itemId": it.ID, "startDate": "2025-01-06", "endDate": "2025-01-06", "usageType": "internal"}
	w = s.do(http.MethodPost, "/api/requests", bob, req)
	assert.Equal(t, http.StatusLocked, w.Code)
	body := decode[app.H](t, w)
	assert.EqualValues(t, 3, body["strikes"])

	w = s.do(http.MethodGet, "/admin/users/blocked", s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), bob.ID)

	w = s.do(http.MethodPost, "/admin/users/"+bob.ID+"/unblock", s.admin, app.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/admin/users/"+bob.ID+"/unblock", s.admin, app.H{"reason": "paid fine", "resetStrikes": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/api/requests", bob, req)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/admin/users/"+bob.ID+"/account", s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	acct := decode[struct {
		UnblockLogs []models.UnblockLog `json:"unblockLogs"`
	}](t, w)
	require.Len(t, acct.UnblockLogs, 1)
	assert.Equal(t, 3, acct.UnblockLogs[0].StrikesBefore)
}

func TestErrorStatusMapping(t *testing.T) {
	s := newServer(t)
	alice := s.user("alice@example.edu", models.RoleUser)
	it := s.createItem(models.PolicyExternalOnly, "OSC-1")

	w := s.do(http.MethodGet, "/api/items", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/api/requests", alice, app.H{"itemId": it.ID, "startDate": "2025-13-01", "endDate": "2025-01-09"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "startDate", decode[app.H](t, w)["field"])

	// 外借开始日必须是明天以后
	w = s.do(http.MethodPost, "/api/requests", alice, app.H{"itemId": it.ID, "startDate": "2025-01-06", "endDate": "2025-01-07"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/admin/requests/"+uuid.NewString()+"/decision", s.admin, app.H{"outcome": "approved"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/api/items/"+uuid.NewString(), alice, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/admin/loans/due?window=weekly", s.admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/admin/items/low-stock?threshold=-1", s.admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 有待审批申请时不能删除物品
	w = s.do(http.MethodPost, "/api/requests", alice, app.H{"itemId": it.ID, "startDate": "2025-01-07", "endDate": "2025-01-08"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = s.do(http.MethodDelete, "/admin/items/"+it.ID, s.admin, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRepairAndSweepEndpoints(t *testing.T) {
	s := newServer(t)
	it := s.createItem(models.PolicyEither, "OSC-1", "OSC-2")

	w := s.do(http.MethodPost, "/admin/repairs", s.admin, app.H{
		"itemId": it.ID, "unitIds": []string{it.Units[0].ID}, "description": "probe broken", "priority": "high",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	ticket := decode[models.RepairTicket](t, w)

	w = s.do(http.MethodGet, "/admin/items/low-stock", s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), it.ID)

	w = s.do(http.MethodPost, "/admin/sweep", s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decode[app.H](t, w)["total"])

	w = s.do(http.MethodPost, "/admin/repairs/"+ticket.ID+"/close", s.admin, app.H{"outcome": "in_progress"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/admin/repairs/"+ticket.ID+"/close", s.admin, app.H{"outcome": "completed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[lending.CloseResult](t, w)
	assert.Equal(t, []string{it.Units[0].ID}, res.Released)

	w = s.do(http.MethodGet, "/api/items/"+it.ID, s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode[struct {
		Item db.ItemStockRow `json:"item"`
	}](t, w)
	assert.Equal(t, 2, detail.Item.Available)
}
