package lending

import (
	"math"
	"time"
)

const day = 24 * time.Hour

// DateOf 取 t 在 loc 下的日历日期，统一存成 UTC 零点
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate 解析 YYYY-MM-DD
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", s, time.UTC)
}

// DateRange 闭区间 [Start, End]，按日历日
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Days 结束日与开始日相差的天数，同一天为 0
func (r DateRange) Days() int {
	return daysBetween(r.Start, r.End)
}

func daysBetween(from, to time.Time) int {
	return int(math.Round(to.Sub(from).Hours() / 24))
}

// LateDays max(0, ceil((returned - due) / 1 day))，两端都先折算成日历日
func LateDays(due, returned time.Time, loc *time.Location) int {
	d := DateOf(returned, loc).Sub(DateOf(due, time.UTC))
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(float64(d) / float64(day)))
}
