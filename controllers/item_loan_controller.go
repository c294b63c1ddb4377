// controllers/item_loan_controller.go
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

type ItemController struct{ *Srv }

func NewItemController(s *Srv) *ItemController { return &ItemController{Srv: s} }

type createItemIn struct {
	Name       string   `json:"name" binding:"required"`
	Category   string   `json:"category"`
	CourseTags []string `json:"courseTags"`
	LoanPolicy string   `json:"loanPolicy"`
	UnitCodes  []string `json:"unitCodes"`
}

// 管理员创建物品（可带单元编码）
func (ic *ItemController) CreateItem(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	var in createItemIn
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}
	it, err := ic.Engine.CreateItem(c.Request.Context(), lending.NewItem{
		Name:       in.Name,
		Category:   in.Category,
		CourseTags: in.CourseTags,
		LoanPolicy: models.LoanPolicy(in.LoanPolicy),
		UnitCodes:  in.UnitCodes,
	}, cl)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, it)
}

// POST /admin/items/:id/units  {"codes": ["OSC-4"]}
func (ic *ItemController) AddUnits(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	var in struct {
		Codes []string `json:"codes" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}
	units, err := ic.Engine.AddUnits(c.Request.Context(), c.Param("id"), in.Codes, cl)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, app.H{"units": units})
}

func (ic *ItemController) DeleteItem(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	if err := ic.Engine.DeleteItem(c.Request.Context(), c.Param("id"), cl); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// 列表（含各状态单元数）
func (ic *ItemController) ListItems(c *gin.Context) {
	rows, err := ic.Repo.ListItemsWithStock(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"items": rows})
}

// 单个物品 + 单元明细
func (ic *ItemController) GetItem(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	stock, err := ic.Repo.ItemStock(ctx, id)
	if err != nil {
		respondErr(c, err)
		return
	}
	if stock == nil {
		c.JSON(http.StatusNotFound, app.H{"error": "item not found"})
		return
	}
	units, err := ic.Repo.ListUnits(ctx, id)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"item": stock, "units": units})
}

// GET /admin/items/low-stock?threshold=1
func (ic *ItemController) LowStock(c *gin.Context) {
	threshold := ic.Cfg.LowStockThreshold
	if v := c.Query("threshold"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, app.H{"error": "threshold must be an integer"})
			return
		}
		threshold = n
	}
	rows, err := ic.Engine.LowStock(c.Request.Context(), threshold)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"items": rows, "threshold": threshold})
}

type AdminBorrowReq struct {
	ItemID     string `json:"itemId" binding:"required"`
	UnitID     string `json:"unitId,omitempty"`
	BorrowerID string `json:"borrowerId,omitempty"`
	UserName   string `json:"userName,omitempty"`
	dateRangeIn
	Note string `json:"note,omitempty"`
}

// 管理员直接借出，不经过申请
func (ic *ItemController) AdminBorrow(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	var req AdminBorrowReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	rng, err := req.parse()
	if err != nil {
		respondErr(c, err)
		return
	}

	// 没给 borrowerId 时用 username 查
	borrower := req.BorrowerID
	if borrower == "" {
		if req.UserName == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "borrowerId or userName is required"})
			return
		}
		user, err := ic.Repo.FindUserByUsername(c.Request.Context(), req.UserName)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		borrower = user.ID
	}

	loan, err := ic.Engine.CreateDirect(c.Request.Context(), lending.DirectLoan{
		ItemID:     req.ItemID,
		UnitID:     optString(req.UnitID),
		BorrowerID: borrower,
		Range:      rng,
		Note:       req.Note,
	}, cl)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, loan)
}

type AdminReturnReq struct {
	ToRepair          bool   `json:"toRepair"`
	RepairDescription string `json:"repairDescription,omitempty"`
	RepairPriority    string `json:"repairPriority,omitempty"`
	AutoPenalty       *bool  `json:"autoPenalty,omitempty"` // 默认 true
}

// POST /admin/loans/:loanId/return
func (ic *ItemController) AdminReturn(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	var req AdminReturnReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
	}
	auto := req.AutoPenalty == nil || *req.AutoPenalty

	res, err := ic.Engine.ReturnLoan(c.Request.Context(), c.Param("loanId"), lending.ReturnOptions{
		ToRepair:          req.ToRepair,
		RepairDescription: req.RepairDescription,
		RepairPriority:    models.RepairPriority(req.RepairPriority),
		AutoPenalty:       auto,
	}, cl)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// 借还记录 ?status=active|returned&userId=&itemId=
func (ic *ItemController) ListLoans(c *gin.Context) {
	ls, err := ic.Repo.ListLoans(c.Request.Context(), db.LoanFilter{
		UserID: c.Query("userId"),
		ItemID: c.Query("itemId"),
		Status: c.Query("status"),
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"items": ls})
}

// 普通用户：查看自己的借用
func (ic *ItemController) ListMyLoans(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	ls, err := ic.Repo.ListLoans(c.Request.Context(), db.LoanFilter{UserID: cl.UserID, Status: c.Query("status")})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"items": ls})
}

// GET /admin/loans/due?window=overdue|today|tomorrow
func (ic *ItemController) DueLoans(c *gin.Context) {
	var (
		ls  []models.Loan
		err error
	)
	window := c.DefaultQuery("window", "overdue")
	switch window {
	case "overdue":
		ls, err = ic.Engine.Overdue(c.Request.Context())
	case "today":
		ls, err = ic.Engine.DueToday(c.Request.Context())
	case "tomorrow":
		ls, err = ic.Engine.DueTomorrow(c.Request.Context())
	default:
		c.JSON(http.StatusBadRequest, app.H{"error": "window must be overdue, today or tomorrow"})
		return
	}
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"window": window, "items": ls})
}
