package notify

import (
	"context"
	"sync"
	"time"

	"Gin_postgres_redis_lending/metrics"

	log "github.com/sirupsen/logrus"
)

// Async 在后台 goroutine 投递，立即返回 nil。失败只记日志和指标。
type Async struct {
	inner   Dispatcher
	name    string
	timeout time.Duration
	log     log.FieldLogger
	wg      sync.WaitGroup
}

func NewAsync(inner Dispatcher, name string, timeout time.Duration, logger log.FieldLogger) *Async {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Async{inner: inner, name: name, timeout: timeout, log: logger}
}

func (a *Async) Notify(_ context.Context, ev Event) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		// 请求上下文可能已结束，投递用独立超时
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := a.inner.Notify(ctx, ev); err != nil {
			metrics.NotificationFailures.WithLabelValues(a.name, string(ev.Type)).Inc()
			a.log.WithFields(log.Fields{
				"dispatcher": a.name,
				"event":      ev.Type,
			}).WithError(err).Warn("notification delivery failed")
		}
	}()
	return nil
}

// Wait 等待已发出的投递结束，关停时调用
func (a *Async) Wait() { a.wg.Wait() }
