// Package dbtest 测试用的内存 SQLite，结构与生产库相同（同一个 Migrate）。
package dbtest

import (
	"fmt"
	"testing"

	"Gin_postgres_redis_lending/db"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Open 每个测试一个独立的内存库。只开一个连接：事务内必须使用 tx，否则会死锁。
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	conn, err := db.Open(sqlite.Open(dsn))
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Migrate(conn))
	return conn
}

// Repo Open + NewRepo
func Repo(t testing.TB) *db.Repo {
	return db.NewRepo(Open(t))
}
