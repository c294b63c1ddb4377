// Package lending 借用核心：单元状态机、申请与审批、借还、维修、罚分与封禁、一致性清扫。
// 所有跨行的状态变化都在一个数据库事务里完成，单元状态转换一律用条件更新。
package lending

import (
	"context"
	"time"

	"Gin_postgres_redis_lending/db"
	"Gin_postgres_redis_lending/metrics"
	"Gin_postgres_redis_lending/notify"

	log "github.com/sirupsen/logrus"
)

type Deps struct {
	Repo       *db.Repo
	Notifier   notify.Dispatcher
	Log        log.FieldLogger
	Now        func() time.Time
	Location   *time.Location // 业务日期所在时区，默认 UTC
	Privileges Privileges
}

type Engine struct {
	repo  *db.Repo
	notif notify.Dispatcher
	log   log.FieldLogger
	now   func() time.Time
	loc   *time.Location
	priv  Privileges
}

func NewEngine(d Deps) *Engine {
	e := &Engine{
		repo:  d.Repo,
		notif: d.Notifier,
		log:   d.Log,
		now:   d.Now,
		loc:   d.Location,
		priv:  d.Privileges,
	}
	if e.notif == nil {
		e.notif = notify.Nop{}
	}
	if e.log == nil {
		e.log = log.StandardLogger()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.loc == nil {
		e.loc = time.UTC
	}
	if e.priv == nil {
		e.priv = NewRolePolicy()
	}
	return e
}

func (e *Engine) Repo() *db.Repo { return e.repo }

// Today 业务时区下的今天（UTC 零点表示）
func (e *Engine) Today() time.Time { return DateOf(e.now(), e.loc) }

func (e *Engine) IsPrivileged(c Caller) bool { return e.priv.IsPrivileged(c.Role) }

func (e *Engine) Privileges() Privileges { return e.priv }

func (e *Engine) requirePrivileged(c Caller, action string) error {
	if !e.IsPrivileged(c) {
		return &ForbiddenError{Reason: action + " requires an administrator"}
	}
	return nil
}

// observe 记录操作结果。用法：defer func() { e.observe("op", err) }()
func (e *Engine) observe(op string, err error) {
	outcome := Outcome(err)
	metrics.LifecycleOperations.WithLabelValues(op, outcome).Inc()
	if outcome == "error" {
		e.log.WithFields(log.Fields{"op": op}).WithError(err).Error("lending operation failed")
	}
}

// emit 事务提交后调用；投递失败只记日志
func (e *Engine) emit(ev notify.Event) {
	if ev.At.IsZero() {
		ev.At = e.now().UTC()
	}
	if err := e.notif.Notify(context.Background(), ev); err != nil {
		metrics.NotificationFailures.WithLabelValues("engine", string(ev.Type)).Inc()
		e.log.WithFields(log.Fields{"event": ev.Type}).WithError(err).Warn("notify failed")
	}
}

// usernameOf 通知收件人；查不到时返回空串，不影响主流程
func (e *Engine) usernameOf(ctx context.Context, userID string) string {
	u, err := e.repo.FindUserByID(ctx, userID)
	if err != nil {
		return ""
	}
	return u.Username
}

func nonEmpty(ss ...string) []string {
	var out []string
	for _, s := range ss {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
