package db

import (
	"Gin_postgres_redis_lending/models"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config Postgres 连接参数
type Config struct {
	Host     string
	User     string
	Password string
	Name     string
	Port     string
	SSLMode  string
}

func (c Config) DSN() string {
	ssl := c.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.Host, c.User, c.Password, c.Name, c.Port, ssl,
	)
}

func ConnectDB(cfg Config) (*gorm.DB, error) {
	conn, err := Open(postgres.Open(cfg.DSN()))
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(conn); err != nil {
		return nil, fmt.Errorf("migrate models: %w", err)
	}
	log.Info("Database connected")
	return conn, nil
}

// Open 统一打开方式：开启错误翻译，唯一键冲突返回 gorm.ErrDuplicatedKey
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	return gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         newGormLogger(log.StandardLogger()),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
}

// newGormLogger 慢查询与错误写入 logrus；查无记录是正常分支，不记录
func newGormLogger(w logger.Writer) logger.Interface {
	return logger.New(w, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Item{},
		&models.Unit{},
		&models.Request{},
		&models.Loan{},
		&models.RepairTicket{},
		&models.RepairTicketUnit{},
		&models.PenaltyRecord{},
		&models.UserAccountStatus{},
		&models.UnblockLog{},
	); err != nil {
		return err
	}

	stmts := []string{
		// 同一单元最多一条未归还的借用
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s_one_active_per_unit
		  ON %s (unit_id)
		  WHERE status = 'active' AND unit_id IS NOT NULL`, models.LoanTable, models.LoanTable),
		// 同一单元最多被一条待审批申请锁定
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s_one_pending_per_unit
		  ON %s (unit_id)
		  WHERE status = 'pending' AND unit_id IS NOT NULL`, models.RequestTable, models.RequestTable),
		// 到期查询
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_active_due
		  ON %s (due_date)
		  WHERE status = 'active'`, models.LoanTable, models.LoanTable),
	}
	for _, s := range stmts {
		if err := db.Exec(s).Error; err != nil {
			return err
		}
	}
	return nil
}
