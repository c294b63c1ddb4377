package notify

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Multi 并发投递到所有 dispatcher，收集全部错误
type Multi []Dispatcher

func (m Multi) Notify(ctx context.Context, ev Event) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, d := range m {
		d := d
		g.Go(func() error {
			if err := d.Notify(gctx, ev); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			// 一个失败不取消其他投递
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
