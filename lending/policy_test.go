package lending

import (
	"testing"
	"time"

	"Gin_postgres_redis_lending/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveUsage(t *testing.T) {
	today := date("2025-01-06")

	u, err := ResolveUsage(models.PolicyExternalOnly, nil, rng("2025-01-07", "2025-01-10"), today)
	require.NoError(t, err)
	assert.Equal(t, models.UsageExternal, u)

	u, err = ResolveUsage(models.PolicyInternalOnly, nil, rng("2025-01-06", "2025-01-06"), today)
	require.NoError(t, err)
	assert.Equal(t, models.UsageInternal, u)

	u, err = ResolveUsage(models.PolicyEither, usage(models.UsageInternal), rng("2025-01-08", "2025-01-08"), today)
	require.NoError(t, err)
	assert.Equal(t, models.UsageInternal, u)

	_, err = ResolveUsage(models.PolicyInternalOnly, nil, rng("2025-01-05", "2025-01-05"), today)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "startDate", ve.Field)

	_, err = ResolveUsage(models.PolicyExternalOnly, nil, DateRange{}, today)
	require.ErrorAs(t, err, &ve)

	_, err = ResolveUsage("weekly", nil, rng("2025-01-07", "2025-01-07"), today)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "loanPolicy", ve.Field)
}

func TestLateDays(t *testing.T) {
	due := date("2025-01-10")
	at := func(s string) time.Time {
		ts, err := time.Parse(time.RFC3339, s)
		require.NoError(t, err)
		return ts
	}
	assert.Equal(t, 0, LateDays(due, at("2025-01-09T12:00:00Z"), time.UTC))
	assert.Equal(t, 0, LateDays(due, at("2025-01-10T23:59:00Z"), time.UTC))
	assert.Equal(t, 1, LateDays(due, at("2025-01-11T00:01:00Z"), time.UTC))
	assert.Equal(t, 5, LateDays(due, at("2025-01-15T08:00:00Z"), time.UTC))

	// 业务时区决定"哪一天"：UTC 1 月 11 日 03:00 在纽约仍是 1 月 10 日
	ny := time.FixedZone("EST", -5*3600)
	assert.Equal(t, 0, LateDays(due, at("2025-01-11T03:00:00Z"), ny))
}

func TestDateOfAndRange(t *testing.T) {
	ts, err := time.Parse(time.RFC3339, "2025-01-06T23:30:00-05:00")
	require.NoError(t, err)
	assert.Equal(t, date("2025-01-07"), DateOf(ts, time.UTC))
	assert.Equal(t, 3, rng("2025-01-07", "2025-01-10").Days())
	assert.Equal(t, 0, rng("2025-01-07", "2025-01-07").Days())

	_, err = ParseDate("2025-13-01")
	assert.Error(t, err)
}
