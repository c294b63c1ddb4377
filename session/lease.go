package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lease 基于 SetNX 的简单租约：多副本时只有一个拿到执行权
type Lease struct {
	rdb   redis.Cmdable
	key   string
	owner string
}

func NewLease(rdb redis.Cmdable, name string) *Lease {
	return &Lease{rdb: rdb, key: "lease:" + name, owner: uuid.NewString()}
}

// TryAcquire 拿到返回 true；ttl 到期自动释放，防止持有者崩溃后永远占用
func (l *Lease) TryAcquire(ctx context.Context, ttl time.Duration) (bool, error) {
	return l.rdb.SetNX(ctx, l.key, l.owner, ttl).Result()
}

// 只删除自己持有的租约
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

func (l *Lease) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.rdb, []string{l.key}, l.owner).Err()
}
