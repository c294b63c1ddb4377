package routes

import (
	"time"

	"Gin_postgres_redis_lending/app"
	"Gin_postgres_redis_lending/controllers"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine, a *app.App) {
	s := controllers.GetSrv(a)
	authMW := app.AuthRequired(a.AppSessions(), s.Repo)
	seenMW := app.TouchLastSeen(s.Repo, a.RDB, 5*time.Minute)
	Mount(r, s, authMW, seenMW)
}

// Mount 只依赖 Srv 与认证中间件，测试里可以换成直接注入身份的中间件
func Mount(r *gin.Engine, s *controllers.Srv, authMW gin.HandlerFunc, extra ...gin.HandlerFunc) {
	uc := controllers.GetUserController(s)
	itemCtl := controllers.NewItemController(s)
	reqCtl := controllers.NewRequestController(s)
	repairCtl := controllers.NewRepairController(s)
	accCtl := controllers.NewAccountController(s)

	adminMW := app.AdminOnly(s.Engine.Privileges())
	userMW := append([]gin.HandlerFunc{authMW}, extra...)
	adminChain := append(append([]gin.HandlerFunc{}, userMW...), adminMW)

	// ------------------------------
	// 登录 / 登出
	// ------------------------------
	auth := r.Group("/auth")
	{
		if s.Cfg.DevLogin {
			auth.POST("/dev-login", uc.DevLogin)
		}
		auth.POST("/logout", authMW, uc.Logout)
	}

	// ------------------------------
	// 普通用户
	// ------------------------------
	me := r.Group("/api/me", userMW...)
	{
		me.GET("", uc.Whoami)
		me.GET("/account", accCtl.MyAccount)
		me.GET("/loans", itemCtl.ListMyLoans) // ?status=active|returned
	}

	items := r.Group("/api/items", userMW...)
	{
		items.GET("", itemCtl.ListItems)
		items.GET("/:id", itemCtl.GetItem)
	}

	requests := r.Group("/api/requests", userMW...)
	{
		requests.POST("", reqCtl.Create)
		requests.GET("/mine", reqCtl.ListMine)
		requests.DELETE("/:id", reqCtl.Cancel)
	}

	// ------------------------------
	// 用户管理（仅管理员）
	// ------------------------------
	users := r.Group("/api/users", adminChain...)
	{
		users.GET("", uc.ListUsers) // ?q=&page=&size=
		users.GET("/:id", uc.GetUser)
		users.PUT("/:id/role", uc.SetRole)
	}

	// ------------------------------
	// 管理端
	// ------------------------------
	admin := r.Group("/admin", adminChain...)
	{
		admin.POST("/items", itemCtl.CreateItem)
		admin.POST("/items/:id/units", itemCtl.AddUnits)
		admin.DELETE("/items/:id", itemCtl.DeleteItem)
		admin.GET("/items/low-stock", itemCtl.LowStock)

		admin.GET("/requests", reqCtl.ListAll)
		admin.POST("/requests/:id/decision", reqCtl.Decide)

		admin.POST("/loans", itemCtl.AdminBorrow)
		admin.GET("/loans", itemCtl.ListLoans)
		admin.GET("/loans/due", itemCtl.DueLoans) // ?window=overdue|today|tomorrow
		admin.POST("/loans/:loanId/return", itemCtl.AdminReturn)

		admin.GET("/repairs", repairCtl.List)
		admin.POST("/repairs", repairCtl.Open)
		admin.POST("/repairs/:id/close", repairCtl.Close)
		admin.POST("/sweep", repairCtl.Sweep)

		admin.POST("/penalties", accCtl.AssignPenalty)
		admin.GET("/users/blocked", accCtl.ListBlocked)
		admin.GET("/users/:id/account", accCtl.Account)
		admin.POST("/users/:id/unblock", accCtl.Unblock)
	}
}
