package app

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"Gin_postgres_redis_lending/db"
	"Gin_postgres_redis_lending/lending"
	"Gin_postgres_redis_lending/metrics"
	"Gin_postgres_redis_lending/models"
	"Gin_postgres_redis_lending/notify"
	"Gin_postgres_redis_lending/session"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// 简化别名，便于 handlers 调用
type Ctx = gin.Context
type H = gin.H

const ServiceName = "lending-service"

// App 聚合各依赖
type App struct {
	Router *gin.Engine
	DB     *gorm.DB
	RDB    *redis.Client
	Repo   *db.Repo
	Engine *lending.Engine
	Config Config

	appSess  *session.AppSessionStore
	notifier *notify.Async
}

// Config 从环境变量读取
type Config struct {
	DB                db.Config
	RedisAddr         string
	RedisPwd          string
	WebOrigin         string
	SessionTTL        time.Duration
	AdminEmails       []string
	Port              string
	Location          *time.Location
	SweepInterval     time.Duration
	LowStockThreshold int
	WebhookURL        string
	SMTP              notify.SMTPConfig
	LogLevel          log.Level
	DevLogin          bool // 仅开发环境：按用户名直接签发会话
}

func (a *App) AppSessions() *session.AppSessionStore { return a.appSess }

func MustNew() *App {
	cfg := loadConfig()
	setupLogging(cfg.LogLevel)

	// --- DB: Postgres ---
	dbConn, err := db.ConnectDB(cfg.DB)
	if err != nil {
		log.WithError(err).Fatal("database unavailable")
	}
	repo := db.NewRepo(dbConn)

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPwd, DB: 0})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.WithError(err).Fatal("redis unavailable")
	}

	BootstrapAdmins(ctx, cfg, repo)

	notifier := notify.NewAsync(buildDispatcher(cfg), "default", 10*time.Second, log.StandardLogger())
	engine := lending.NewEngine(lending.Deps{
		Repo:       repo,
		Notifier:   notifier,
		Log:        log.WithField("component", "lending"),
		Location:   cfg.Location,
		Privileges: lending.NewRolePolicy(models.RoleAdmin),
	})

	// --- Gin ---
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), metrics.PrometheusMiddleware(ServiceName))
	useCORS(r, cfg.WebOrigin)
	return &App{
		Router:   r,
		DB:       dbConn,
		RDB:      rdb,
		Repo:     repo,
		Engine:   engine,
		Config:   cfg,
		appSess:  session.NewAppSessionStore(rdb, cfg.SessionTTL),
		notifier: notifier,
	}
}

// buildDispatcher 日志总是开启；配置了 SMTP / webhook 再追加
func buildDispatcher(cfg Config) notify.Dispatcher {
	ds := notify.Multi{notify.Logger{Log: log.WithField("component", "notify")}}
	if cfg.SMTP.Host != "" {
		ds = append(ds, notify.NewMailer(cfg.SMTP, cfg.AdminEmails, log.StandardLogger()))
	}
	if cfg.WebhookURL != "" {
		ds = append(ds, notify.NewWebhook(cfg.WebhookURL, 3*time.Second))
	}
	return ds
}

// Close 等待后台通知投递完，再关连接
func (a *App) Close() {
	a.notifier.Wait()
	_ = a.RDB.Close()
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func setupLogging(level log.Level) {
	log.SetFormatter(&log.JSONFormatter{})
	log.SetLevel(level)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		})
		if uid, ok := c.Get(ctxUserID); ok {
			entry = entry.WithField("user", uid)
		}
		if c.Writer.Status() >= 500 {
			entry.Error("request failed")
			return
		}
		entry.Debug("request")
	}
}

func loadConfig() Config {
	get := func(k, def string) string {
		v := strings.TrimSpace(os.Getenv(k))
		if v == "" {
			return def
		}
		return v
	}
	ttl := 24 * time.Hour
	if n, err := strconv.Atoi(get("SESSION_TTL_SECONDS", "")); err == nil && n > 0 {
		ttl = time.Duration(n) * time.Second
	}
	sweep := 15 * time.Minute
	if d, err := time.ParseDuration(get("SWEEP_INTERVAL", "15m")); err == nil && d > 0 {
		sweep = d
	}
	low, err := strconv.Atoi(get("LOW_STOCK_THRESHOLD", "1"))
	if err != nil || low < 0 {
		low = 1
	}
	loc, err := time.LoadLocation(get("TIME_ZONE", "UTC"))
	if err != nil {
		log.WithError(err).Warn("unknown TIME_ZONE, falling back to UTC")
		loc = time.UTC
	}
	level, err := log.ParseLevel(get("LOG_LEVEL", "info"))
	if err != nil {
		level = log.InfoLevel
	}
	adminsCSV := os.Getenv("ADMIN_EMAILS") // 例如: "admin@ex.com,ops@ex.com"
	var admins []string
	for _, s := range strings.Split(adminsCSV, ",") {
		if t := strings.TrimSpace(s); t != "" {
			admins = append(admins, strings.ToLower(t))
		}
	}
	return Config{
		DB: db.Config{
			Host:     get("DB_HOST", "127.0.0.1"),
			User:     get("DB_USER", "postgres"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     get("DB_NAME", "lending"),
			Port:     get("DB_PORT", "5432"),
			SSLMode:  get("DB_SSLMODE", "disable"),
		},
		RedisAddr:         get("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPwd:          os.Getenv("REDIS_PASSWORD"),
		WebOrigin:         get("WEB_ORIGIN", "http://localhost:5173"),
		SessionTTL:        ttl,
		AdminEmails:       admins,
		Port:              get("PORT", "3001"),
		Location:          loc,
		SweepInterval:     sweep,
		LowStockThreshold: low,
		WebhookURL:        os.Getenv("NOTIFY_WEBHOOK_URL"),
		SMTP:              notify.SMTPConfigFromEnv(),
		LogLevel:          level,
		DevLogin:          get("DEV_LOGIN", "false") == "true",
	}
}
