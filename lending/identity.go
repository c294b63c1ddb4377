package lending

import "Gin_postgres_redis_lending/models"

// Caller 由认证层提供，核心逻辑直接信任
type Caller struct {
	UserID string
	Role   string
}

// Privileges 唯一的权限判断入口
type Privileges interface {
	IsPrivileged(role string) bool
}

// RolePolicy 按角色名单判断
type RolePolicy struct {
	roles map[string]struct{}
}

var _ Privileges = RolePolicy{}

func NewRolePolicy(roles ...string) RolePolicy {
	if len(roles) == 0 {
		roles = []string{models.RoleAdmin}
	}
	m := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		m[r] = struct{}{}
	}
	return RolePolicy{roles: m}
}

func (p RolePolicy) IsPrivileged(role string) bool {
	_, ok := p.roles[role]
	return ok
}
