// app/bootstrap.go
package app

import (
	"context"

	"Gin_postgres_redis_lending/models"

	log "github.com/sirupsen/logrus"
)

type AdminPromoter interface {
	PromoteByUsername(ctx context.Context, usernames []string, role string) (int64, error)
}

// BootstrapAdmins ADMIN_EMAILS 里的账号启动时提升为管理员。
// 之后的权限判断只看角色，不再比较邮箱。
func BootstrapAdmins(ctx context.Context, cfg Config, repo AdminPromoter) {
	if len(cfg.AdminEmails) == 0 {
		log.Info("ADMIN_EMAILS empty, skipping admin bootstrap")
		return
	}
	n, err := repo.PromoteByUsername(ctx, cfg.AdminEmails, models.RoleAdmin)
	if err != nil {
		log.WithError(err).Warn("admin bootstrap failed")
		return
	}
	log.WithFields(log.Fields{"promoted": n, "configured": len(cfg.AdminEmails)}).Info("[BOOTSTRAP] admin roles synced")
}
