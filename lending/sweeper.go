package lending

import (
	"context"
	"time"

	"Gin_postgres_redis_lending/metrics"
	"Gin_postgres_redis_lending/models"

	log "github.com/sirupsen/logrus"
)

type SweepResult struct {
	RepairReverted      []string      `json:"repairReverted"`
	ReservationReverted []string      `json:"reservationReverted"`
	Took                time.Duration `json:"took"`
}

func (r *SweepResult) Total() int { return len(r.RepairReverted) + len(r.ReservationReverted) }

// SweepOrphanedUnits 把孤立的单元放回 available：
//   - in_repair 但没有任何进行中的工单引用
//   - reserved 但申请已不存在或不再 pending
//
// 每个单元的更新都会在 UPDATE 里重新检查谓词，所以可以重复、并发执行，
// 扫描和更新之间新开的工单不会被误伤。
func (e *Engine) SweepOrphanedUnits(ctx context.Context) (res *SweepResult, err error) {
	defer func() { e.observe("sweep", err) }()

	start := time.Now()
	res = &SweepResult{}

	repairs, err := e.repo.UnclaimedRepairUnits(ctx, "")
	if err != nil {
		return nil, err
	}
	for _, u := range repairs {
		ok, err := e.repo.ReleaseUnclaimedRepairUnit(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			res.RepairReverted = append(res.RepairReverted, u.ID)
			e.logSwept(u, "repair")
		}
	}

	reservations, err := e.repo.OrphanedReservations(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range reservations {
		ok, err := e.repo.ReleaseOrphanedReservation(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			res.ReservationReverted = append(res.ReservationReverted, u.ID)
			e.logSwept(u, "reservation")
		}
	}

	metrics.SweptUnits.WithLabelValues("repair").Add(float64(len(res.RepairReverted)))
	metrics.SweptUnits.WithLabelValues("reservation").Add(float64(len(res.ReservationReverted)))
	res.Took = time.Since(start)
	if res.Total() > 0 {
		e.log.WithFields(log.Fields{
			"repair":      len(res.RepairReverted),
			"reservation": len(res.ReservationReverted),
			"took":        res.Took.String(),
		}).Info("sweep reverted orphaned units")
	}
	return res, nil
}

func (e *Engine) logSwept(u models.Unit, kind string) {
	e.log.WithFields(log.Fields{"unit": u.ID, "code": u.Code, "item": u.ItemID, "kind": kind}).
		Warn("orphaned unit reverted to available")
}
