// controllers/srv.go
package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"Gin_postgres_redis_lending/app"
	"Gin_postgres_redis_lending/db"
	"Gin_postgres_redis_lending/lending"
	"Gin_postgres_redis_lending/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type Srv struct {
	Engine    *lending.Engine
	Repo      *db.Repo
	AppSess   *session.AppSessionStore
	WebOrigin string
	Cfg       app.Config
}

func GetSrv(a *app.App) *Srv {
	return &Srv{
		Engine:    a.Engine,
		Repo:      a.Repo,
		AppSess:   a.AppSessions(),
		WebOrigin: a.Config.WebOrigin,
		Cfg:       a.Config,
	}
}

// --- helpers ---

// 统一设置业务会话 Cookie
func (s *Srv) setAppCookie(w http.ResponseWriter, sessionID string, maxAge time.Duration) {
	secure := strings.HasPrefix(s.WebOrigin, "https://")
	http.SetCookie(w, &http.Cookie{
		Name:     app.AppSessionCookie,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
		MaxAge:   int(maxAge / time.Second),
	})
}

// 登录成功：创建会话 + 记录登录时间
func (s *Srv) issueSession(ctx context.Context, w http.ResponseWriter, userID, role string) error {
	if err := s.Repo.TouchUserLogin(ctx, userID); err != nil {
		log.WithError(err).WithField("user", userID).Warn("touch login failed")
	}
	id := uuid.NewString()
	if err := s.AppSess.Create(ctx, id, userID, role); err != nil {
		return err
	}
	s.setAppCookie(w, id, s.AppSess.TTL())
	return nil
}

// caller 取当前身份；中间件没有注入时直接 401
func caller(c *gin.Context) (lending.Caller, bool) {
	cl, ok := app.CallerFrom(c)
	if !ok || cl.UserID == "" {
		c.JSON(http.StatusUnauthorized, app.H{"error": "unauthorized"})
		return lending.Caller{}, false
	}
	return cl, true
}

// respondErr 核心错误 → HTTP 状态码
func respondErr(c *gin.Context, err error) {
	var (
		ve  *lending.ValidationError
		nf  *lending.NotFoundError
		fe  *lending.ForbiddenError
		be  *lending.UserBlockedError
		dpe *lending.DuplicatePenaltyError
		ie  *lending.IntegrityRecoverableError
	)
	switch {
	case errors.As(err, &be):
		c.JSON(http.StatusLocked, app.H{"error": err.Error(), "strikes": be.Strikes, "reason": be.Reason})
	case errors.As(err, &dpe):
		c.JSON(http.StatusConflict, app.H{"error": err.Error(), "loanId": dpe.LoanID})
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error(), "field": ve.Field})
	case errors.As(err, &fe):
		c.JSON(http.StatusForbidden, app.H{"error": err.Error()})
	case lending.IsConflict(err):
		c.JSON(http.StatusConflict, app.H{"error": err.Error()})
	case errors.As(err, &nf):
		c.JSON(http.StatusNotFound, app.H{"error": err.Error()})
	case errors.As(err, &ie):
		log.WithError(err).WithField("ticket", ie.TicketID).Error("repair ticket unrecoverable")
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error(), "ticketId": ie.TicketID})
	default:
		log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		c.JSON(http.StatusInternalServerError, app.H{"error": "internal error"})
	}
}

// 请求里的日期统一是 YYYY-MM-DD
type dateRangeIn struct {
	StartDate string `json:"startDate" binding:"required"`
	EndDate   string `json:"endDate" binding:"required"`
}

func (in dateRangeIn) parse() (lending.DateRange, error) {
	start, err := lending.ParseDate(in.StartDate)
	if err != nil {
		return lending.DateRange{}, &lending.ValidationError{Field: "startDate", Reason: "expected YYYY-MM-DD"}
	}
	end, err := lending.ParseDate(in.EndDate)
	if err != nil {
		return lending.DateRange{}, &lending.ValidationError{Field: "endDate", Reason: "expected YYYY-MM-DD"}
	}
	return lending.DateRange{Start: start, End: end}, nil
}

func optString(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}
