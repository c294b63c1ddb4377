package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"Gin_postgres_redis_lending/app"
	"Gin_postgres_redis_lending/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type UserController struct{ *Srv }

func GetUserController(s *Srv) *UserController { return &UserController{Srv: s} }

// GET /api/users?q=alice&page=1&size=20
func (uc *UserController) ListUsers(c *gin.Context) {
	q := c.Query("q")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	res, err := uc.Repo.ListUsers(c.Request.Context(), q, page, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, app.H{
		"total": res.Total,
		"users": res.Users,
	})
}

// GET /api/users/:id
func (uc *UserController) GetUser(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid"})
		return
	}
	user, err := uc.Repo.FindUserByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, app.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
		return
	}
	st, err := uc.Engine.AccountStatus(c.Request.Context(), id)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{
		"user":    user,
		"account": st,
	})
}

// PUT /api/users/:id/role {"role": "admin"|"user"}
func (uc *UserController) SetRole(c *gin.Context) {
	id := c.Param("id")
	var in struct {
		Role string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}
	if in.Role != models.RoleAdmin && in.Role != models.RoleUser {
		c.JSON(http.StatusBadRequest, app.H{"error": "unknown role"})
		return
	}
	// 不允许给自己降权，避免锁死
	if cl, ok := app.CallerFrom(c); ok && cl.UserID == id && in.Role != models.RoleAdmin {
		c.JSON(http.StatusBadRequest, app.H{"error": "cannot demote yourself"})
		return
	}
	if _, err := uc.Repo.FindUserByID(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusNotFound, app.H{"error": "user not found"})
		return
	}
	if err := uc.Repo.SetUserRole(c.Request.Context(), id, in.Role); err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
		return
	}
	// 撤销该用户的所有会话，下次登录拿到新角色
	if uc.AppSess != nil {
		_ = uc.AppSess.RevokeAllForUser(c.Request.Context(), id)
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// GET /api/me
func (uc *UserController) Whoami(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	u, err := uc.Repo.FindUserByID(c.Request.Context(), cl.UserID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, app.H{"error": "unauthorized"})
		return
	}
	st, err := uc.Engine.AccountStatus(c.Request.Context(), cl.UserID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{
		"user":    u,
		"isAdmin": uc.Engine.IsPrivileged(cl),
		"account": st,
	})
}

// POST /auth/dev-login {"username": "...", "displayName": "..."}
// 仅 DEV_LOGIN=true 时注册；账号不存在则创建
func (uc *UserController) DevLogin(c *gin.Context) {
	var in struct {
		Username    string `json:"username" binding:"required"`
		DisplayName string `json:"displayName"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	u, err := uc.Repo.FindUserByUsername(ctx, in.Username)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		name := strings.TrimSpace(in.DisplayName)
		if name == "" {
			name = in.Username
		}
		u = &models.User{ID: uuid.NewString(), Username: in.Username, DisplayName: name}
		if isAdminEmail(uc.Cfg.AdminEmails, in.Username) {
			u.Role = models.RoleAdmin
		}
		err = uc.Repo.CreateUser(ctx, u)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
		return
	}
	if err := uc.issueSession(ctx, c.Writer, u.ID, u.Role); err != nil {
		log.WithError(err).Error("issue session failed")
		c.JSON(http.StatusInternalServerError, app.H{"error": "session unavailable"})
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "user": u})
}

// POST /auth/logout 删 Redis 会话，Cookie 置空
func (uc *UserController) Logout(c *gin.Context) {
	if ck, err := c.Request.Cookie(app.AppSessionCookie); err == nil && ck.Value != "" {
		_ = uc.AppSess.Delete(c.Request.Context(), ck.Value)
	}
	uc.setAppCookie(c.Writer, "", -time.Second) // MaxAge<0 即删除
	c.JSON(http.StatusOK, app.H{"ok": true})
}

func isAdminEmail(admins []string, username string) bool {
	email := strings.ToLower(strings.TrimSpace(username))
	for _, a := range admins {
		if a == email {
			return true
		}
	}
	return false
}
