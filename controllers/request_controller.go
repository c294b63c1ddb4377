package controllers

import (
	"net/http"
	"strconv"

	"Gin_postgres_redis_lending/app"
	"Gin_postgres_redis_lending/db"
	"Gin_postgres_redis_lending/lending"
	"Gin_postgres_redis_lending/models"

	"github.com/gin-gonic/gin"
)

type RequestController struct{ *Srv }

func NewRequestController(s *Srv) *RequestController { return &RequestController{Srv: s} }

type createRequestIn struct {
	ItemID string `json:"itemId" binding:"required"`
	UnitID string `json:"unitId"`
	dateRangeIn
	UsageType string `json:"usageType"`
	Note      string `json:"note"`
}

// POST /api/requests
func (rc *RequestController) Create(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	var in createRequestIn
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}
	rng, err := in.parse()
	if err != nil {
		respondErr(c, err)
		return
	}
	var usage *models.UsageType
	if in.UsageType != "" {
		u := models.UsageType(in.UsageType)
		usage = &u
	}
	rq, err := rc.Engine.CreateRequest(c.Request.Context(), lending.NewRequest{
		UserID:    cl.UserID,
		ItemID:    in.ItemID,
		UnitID:    optString(in.UnitID),
		Range:     rng,
		UsageType: usage,
		Note:      in.Note,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, rq)
}

// GET /api/requests/mine?status=&page=&size=
func (rc *RequestController) ListMine(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	rc.list(c, cl.UserID)
}

// GET /admin/requests?userId=&itemId=&status=&page=&size=
func (rc *RequestController) ListAll(c *gin.Context) {
	rc.list(c, c.Query("userId"))
}

func (rc *RequestController) list(c *gin.Context, userID string) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	res, err := rc.Repo.ListRequests(c.Request.Context(), db.RequestFilter{
		UserID: userID,
		ItemID: c.Query("itemId"),
		Status: c.Query("status"),
		Page:   page,
		Size:   size,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// DELETE /api/requests/:id
// 本人只能取消 pending 的申请；管理员可以取消任意状态
func (rc *RequestController) Cancel(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	if err := rc.Engine.CancelRequest(c.Request.Context(), c.Param("id"), cl); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}

type decideIn struct {
	Outcome string `json:"outcome" binding:"required"` // approved | rejected
	Note    string `json:"note"`
}

// POST /admin/requests/:id/decision
func (rc *RequestController) Decide(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	var in decideIn
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}
	dec, err := rc.Engine.Decide(c.Request.Context(), c.Param("id"), models.RequestStatus(in.Outcome), cl, in.Note)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, dec)
}
