package controllers

import (
	"net/http"

	"Gin_postgres_redis_lending/app"
	"Gin_postgres_redis_lending/lending"

	"github.com/gin-gonic/gin"
)

// AccountController 罚分、封禁与解封
type AccountController struct{ *Srv }

func NewAccountController(s *Srv) *AccountController { return &AccountController{Srv: s} }

type penaltyIn struct {
	UserID    string `json:"userId"`
	LoanID    string `json:"loanId" binding:"required"`
	DelayDays *int   `json:"delayDays" binding:"required"` // 0 合法
	Reason    string `json:"reason"`
}

// POST /admin/penalties
func (ac *AccountController) AssignPenalty(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	var in penaltyIn
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}
	res, err := ac.Engine.AssignPenalty(c.Request.Context(), lending.PenaltyInput{
		UserID:    in.UserID,
		LoanID:    in.LoanID,
		DelayDays: *in.DelayDays,
		Reason:    in.Reason,
	}, cl)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

type unblockRequest struct {
	Reason       string `json:"reason" binding:"required"`
	ResetStrikes bool   `json:"resetStrikes"`
}

// POST /admin/users/:id/unblock
func (ac *AccountController) Unblock(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	var req unblockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "need unblock reason"})
		return
	}
	st, err := ac.Engine.Unblock(c.Request.Context(), c.Param("id"), req.ResetStrikes, cl, req.Reason)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "status": st})
}

// GET /admin/users/:id/account  次数、封禁状态、罚分记录、解封日志
func (ac *AccountController) Account(c *gin.Context) {
	ac.account(c, c.Param("id"), true)
}

// GET /api/me/account
func (ac *AccountController) MyAccount(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	ac.account(c, cl.UserID, false)
}

func (ac *AccountController) account(c *gin.Context, userID string, withLogs bool) {
	ctx := c.Request.Context()
	st, err := ac.Engine.AccountStatus(ctx, userID)
	if err != nil {
		respondErr(c, err)
		return
	}
	ps, err := ac.Repo.ListPenalties(ctx, userID)
	if err != nil {
		respondErr(c, err)
		return
	}
	out := app.H{"status": st, "penalties": ps}
	if withLogs {
		logs, err := ac.Repo.ListUnblockLogs(ctx, userID)
		if err != nil {
			respondErr(c, err)
			return
		}
		out["unblockLogs"] = logs
	}
	c.JSON(http.StatusOK, out)
}

// GET /admin/users/blocked
func (ac *AccountController) ListBlocked(c *gin.Context) {
	rows, err := ac.Repo.ListBlockedAccounts(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"items": rows})
}
