package db

import (
	"context"
	"fmt"

	"Gin_postgres_redis_lending/models"
)

// 预约指针指向的申请不存在或已不是 pending
var orphanReservationPredicate = fmt.Sprintf(`
	NOT EXISTS (
		SELECT 1 FROM %[1]s r
		WHERE r.id = %[2]s.reserved_request_id AND r.status = 'pending'
	)`, models.RequestTable, models.UnitTable)

func (r *Repo) OrphanedReservations(ctx context.Context) ([]models.Unit, error) {
	var us []models.Unit
	err := r.DB.WithContext(ctx).
		Where("state = ?", models.UnitReserved).
		Where(orphanReservationPredicate).
		Order("code").
		Find(&us).Error
	return us, err
}

func (r *Repo) ReleaseOrphanedReservation(ctx context.Context, unitID string) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&models.Unit{}).
		Where("id = ? AND state = ?", unitID, models.UnitReserved).
		Where(orphanReservationPredicate).
		Updates(map[string]interface{}{
			"state":               models.UnitAvailable,
			"reserved_request_id": nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
