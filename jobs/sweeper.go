package jobs

import (
	"context"
	"time"

	"Gin_postgres_redis_lending/lending"

	log "github.com/sirupsen/logrus"
)

// Sweeper 抽象出来便于测试
type Sweeper interface {
	SweepOrphanedUnits(ctx context.Context) (*lending.SweepResult, error)
}

// Locker 多副本互斥；nil 表示单实例，直接执行
type Locker interface {
	TryAcquire(ctx context.Context, ttl time.Duration) (bool, error)
	Release(ctx context.Context) error
}

type SweepJob struct {
	Sweeper  Sweeper
	Lease    Locker
	Interval time.Duration
	Log      log.FieldLogger
}

// Start 按间隔执行清扫，ctx 取消后退出；返回的 channel 在 goroutine 结束时关闭
func (j *SweepJob) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if j.Log == nil {
		j.Log = log.StandardLogger()
	}
	if j.Interval <= 0 {
		j.Interval = 15 * time.Minute
	}
	go func() {
		defer close(done)
		j.Log.WithField("interval", j.Interval.String()).Info("sweeper started")

		ticker := time.NewTicker(j.Interval)
		defer ticker.Stop()
		for {
			j.RunOnce(ctx)
			select {
			case <-ctx.Done():
				j.Log.Info("sweeper stopped")
				return
			case <-ticker.C:
			}
		}
	}()
	return done
}

// RunOnce 执行一次；拿不到租约就跳过
func (j *SweepJob) RunOnce(ctx context.Context) {
	if j.Log == nil {
		j.Log = log.StandardLogger()
	}
	if j.Lease != nil {
		ok, err := j.Lease.TryAcquire(ctx, j.Interval)
		if err != nil {
			j.Log.WithError(err).Warn("sweeper lease unavailable, skipping run")
			return
		}
		if !ok {
			j.Log.Debug("another instance holds the sweeper lease")
			return
		}
		// 租约保留到 TTL 结束，同一间隔内其他副本不会重复清扫
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	res, err := j.Sweeper.SweepOrphanedUnits(runCtx)
	if err != nil {
		j.Log.WithError(err).Error("sweep failed")
		if j.Lease != nil {
			_ = j.Lease.Release(context.Background())
		}
		return
	}
	j.Log.WithFields(log.Fields{
		"repair":      len(res.RepairReverted),
		"reservation": len(res.ReservationReverted),
		"took":        res.Took.String(),
	}).Info("sweep completed")
}
