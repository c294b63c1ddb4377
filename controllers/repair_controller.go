package controllers

import (
	"net/http"

	"Gin_postgres_redis_lending/app"
	"Gin_postgres_redis_lending/lending"
	"Gin_postgres_redis_lending/models"

	"github.com/gin-gonic/gin"
)

type RepairController struct{ *Srv }

func NewRepairController(s *Srv) *RepairController { return &RepairController{Srv: s} }

type openRepairIn struct {
	ItemID      string   `json:"itemId" binding:"required"`
	UnitIDs     []string `json:"unitIds" binding:"required"`
	Description string   `json:"description"`
	Priority    string   `json:"priority"`
}

// POST /admin/repairs
func (rc *RepairController) Open(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	var in openRepairIn
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}
	t, err := rc.Engine.OpenRepair(c.Request.Context(), lending.OpenRepair{
		ItemID:      in.ItemID,
		UnitIDs:     in.UnitIDs,
		Description: in.Description,
		Priority:    models.RepairPriority(in.Priority),
	}, cl)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// POST /admin/repairs/:id/close {"outcome": "completed"|"cancelled"}
func (rc *RepairController) Close(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	var in struct {
		Outcome string `json:"outcome" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}
	res, err := rc.Engine.CloseRepair(c.Request.Context(), c.Param("id"), models.RepairStatus(in.Outcome), cl)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /admin/repairs?itemId=&status=
func (rc *RepairController) List(c *gin.Context) {
	ts, err := rc.Repo.ListRepairTickets(c.Request.Context(), c.Query("itemId"), c.Query("status"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"items": ts})
}

// POST /admin/sweep 手动触发一次一致性清扫
func (rc *RepairController) Sweep(c *gin.Context) {
	res, err := rc.Engine.SweepOrphanedUnits(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "result": res, "total": res.Total()})
}
