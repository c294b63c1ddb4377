package lending

import (
	"time"

	"Gin_postgres_redis_lending/models"
)

// MaxExternalDays 外借最长天数（结束日 - 开始日）
const MaxExternalDays = 3

// ResolveUsage 按物品策略校验日期区间，返回最终的用途。
//   - external_only: 开始日 >= 明天，且天数 <= MaxExternalDays
//   - internal_only: 开始日 == 结束日，且不早于今天
//   - either:        必须声明用途，再按对应规则校验
func ResolveUsage(policy models.LoanPolicy, usage *models.UsageType, r DateRange, today time.Time) (models.UsageType, error) {
	if r.Start.IsZero() || r.End.IsZero() {
		return "", invalid("dateRange", "start and end dates are required")
	}
	if r.End.Before(r.Start) {
		return "", invalid("endDate", "must not be before start date")
	}

	var want models.UsageType
	switch policy {
	case models.PolicyExternalOnly:
		want = models.UsageExternal
	case models.PolicyInternalOnly:
		want = models.UsageInternal
	case models.PolicyEither:
		if usage == nil || *usage == "" {
			return "", invalid("usageType", "required for this item")
		}
		want = *usage
	default:
		return "", invalid("loanPolicy", "unknown policy "+string(policy))
	}
	if usage != nil && *usage != "" && *usage != want {
		return "", invalid("usageType", "item does not allow "+string(*usage)+" use")
	}

	switch want {
	case models.UsageExternal:
		if r.Start.Before(today.AddDate(0, 0, 1)) {
			return "", invalid("startDate", "external loans must start tomorrow or later")
		}
		if r.Days() > MaxExternalDays {
			return "", invalid("endDate", "external loans last at most 3 days")
		}
	case models.UsageInternal:
		if !r.Start.Equal(r.End) {
			return "", invalid("endDate", "internal loans start and end on the same day")
		}
		if r.Start.Before(today) {
			return "", invalid("startDate", "must not be in the past")
		}
	default:
		return "", invalid("usageType", "unknown usage "+string(want))
	}
	return want, nil
}

// CheckRange 管理员直借只校验区间本身
func CheckRange(r DateRange) error {
	if r.Start.IsZero() || r.End.IsZero() {
		return invalid("dateRange", "start and end dates are required")
	}
	if r.End.Before(r.Start) {
		return invalid("endDate", "must not be before start date")
	}
	return nil
}
