package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeriod(t *testing.T) {
	for _, valid := range []string{"ALL_TIME", "MONTHLY", "WEEKLY"} {
		p, err := ParsePeriod(valid)
		require.NoError(t, err)
		assert.Equal(t, Period(valid), p)
	}

	for _, invalid := range []string{"", "weekly", "DAILY", "all_time"} {
		_, err := ParsePeriod(invalid)
		assert.ErrorIs(t, err, ErrInvalidPeriod, "input=%q", invalid)
	}
}

func TestWindowStart(t *testing.T) {
	now := time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)

	_, ok := PeriodAllTime.WindowStart(now)
	assert.False(t, ok, "ALL_TIME has no qualifying window")

	monthly, ok := PeriodMonthly.WindowStart(now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), monthly)

	weekly, ok := PeriodWeekly.WindowStart(now)
	require.True(t, ok)
	assert.Equal(t, now.Add(-7*24*time.Hour), weekly)
}

func TestWindowStartNormalizesZone(t *testing.T) {
	// 01:00 on July 1st in UTC+3 is still June 30th in UTC, so the
	// monthly window must open on June 1st.
	loc := time.FixedZone("UTC+3", 3*3600)
	now := time.Date(2024, 7, 1, 1, 0, 0, 0, loc)

	monthly, ok := PeriodMonthly.WindowStart(now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), monthly)
}

func TestDayOfAndNextReset(t *testing.T) {
	at := time.Date(2024, 6, 15, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), DayOf(at))
	assert.Equal(t, time.Date(2024, 6, 16, 0, 0, 0, 0, time.UTC), NextReset(at))

	// Month boundary
	last := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), NextReset(last))
}
