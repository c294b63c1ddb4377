package app

import (
	"context"
	"net/http"

	"Gin_postgres_redis_lending/lending"
	"Gin_postgres_redis_lending/models"
	"Gin_postgres_redis_lending/session"

	"github.com/gin-gonic/gin"
)

const AppSessionCookie = "app_session"

const (
	ctxUserID   = "userID"
	ctxUsername = "username"
	ctxCaller   = "caller"
)

// SessionResolver 由 session.AppSessionStore 实现
type SessionResolver interface {
	Get(ctx context.Context, id string) (*session.AppSession, error)
	Delete(ctx context.Context, id string) error
}

type UserLookup interface {
	FindUserByID(ctx context.Context, id string) (*models.User, error)
}

// AuthRequired 会话 → 用户 → Caller。角色以数据库为准，会话里的角色只是缓存。
func AuthRequired(sessions SessionResolver, users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		ck, err := c.Request.Cookie(AppSessionCookie)
		if err != nil || ck.Value == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "unauthorized"})
			return
		}
		as, err := sessions.Get(c.Request.Context(), ck.Value)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "invalid session"})
			return
		}

		// 确认用户仍存在
		u, err := users.FindUserByID(c.Request.Context(), as.UserID)
		if err != nil {
			_ = sessions.Delete(c.Request.Context(), ck.Value)
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "unauthorized"})
			return
		}
		SetCaller(c, lending.Caller{UserID: u.ID, Role: u.Role}, u.Username)
		c.Next()
	}
}

// SetCaller 测试里也用它注入身份
func SetCaller(c *gin.Context, caller lending.Caller, username string) {
	c.Set(ctxUserID, caller.UserID)
	c.Set(ctxUsername, username)
	c.Set(ctxCaller, caller)
}

func CallerFrom(c *gin.Context) (lending.Caller, bool) {
	v, ok := c.Get(ctxCaller)
	if !ok {
		return lending.Caller{}, false
	}
	caller, ok := v.(lending.Caller)
	return caller, ok
}

// AdminOnly 只通过 Privileges 判断，不比较角色字面量
func AdminOnly(priv lending.Privileges) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := CallerFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "unauthorized"})
			return
		}
		if !priv.IsPrivileged(caller.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
