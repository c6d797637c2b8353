package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagewatch/pagewatch/errors"
)

func at(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02 15:04", value)
	require.NoError(t, err)
	return ts
}

func TestParseCronRejectsBadExpressions(t *testing.T) {
	bad := []string{
		"",
		"* * * *",
		"* * * * * *",
		"60 * * * *",
		"* 24 * * *",
		"* * 0 * *",
		"* * * 13 *",
		"* * * * 7",
		"*/0 * * * *",
		"5-1 * * * *",
		"abc * * * *",
	}
	for _, expr := range bad {
		_, err := ParseCron(expr)
		require.Error(t, err, "expression %q", expr)
		assert.True(t, errors.Is(err, errors.ErrInvalidConfig), "expression %q", expr)
	}
}

func TestEveryFiveMinutes(t *testing.T) {
	c, err := ParseCron("*/5 * * * *")
	require.NoError(t, err)

	assert.True(t, c.Matches(at(t, "2026-08-24 10:00")))
	assert.True(t, c.Matches(at(t, "2026-08-24 10:05")))
	assert.True(t, c.Matches(at(t, "2026-08-24 10:55")))
	assert.False(t, c.Matches(at(t, "2026-08-24 10:03")))
}

func TestDailyAtNineThirty(t *testing.T) {
	c, err := ParseCron("30 9 * * *")
	require.NoError(t, err)

	assert.True(t, c.Matches(at(t, "2026-08-24 09:30")))
	assert.False(t, c.Matches(at(t, "2026-08-24 09:31")))
	assert.False(t, c.Matches(at(t, "2026-08-24 10:30")))
}

func TestWeekdayRange(t *testing.T) {
	// 2026-08-24 is a Monday.
	c, err := ParseCron("0 9 * * 1-5")
	require.NoError(t, err)

	assert.True(t, c.Matches(at(t, "2026-08-24 09:00")))  // Monday
	assert.True(t, c.Matches(at(t, "2026-08-28 09:00")))  // Friday
	assert.False(t, c.Matches(at(t, "2026-08-29 09:00"))) // Saturday
	assert.False(t, c.Matches(at(t, "2026-08-30 09:00"))) // Sunday
}

func TestSundayIsZero(t *testing.T) {
	c, err := ParseCron("0 12 * * 0")
	require.NoError(t, err)

	assert.True(t, c.Matches(at(t, "2026-08-30 12:00")))  // Sunday
	assert.False(t, c.Matches(at(t, "2026-08-24 12:00"))) // Monday
}

func TestMinuteList(t *testing.T) {
	c, err := ParseCron("0,15,30,45 * * * *")
	require.NoError(t, err)

	assert.True(t, c.Matches(at(t, "2026-08-24 08:15")))
	assert.True(t, c.Matches(at(t, "2026-08-24 08:45")))
	assert.False(t, c.Matches(at(t, "2026-08-24 08:20")))
}

func TestSteppedRange(t *testing.T) {
	c, err := ParseCron("0 9-17/2 * * *")
	require.NoError(t, err)

	assert.True(t, c.Matches(at(t, "2026-08-24 09:00")))
	assert.True(t, c.Matches(at(t, "2026-08-24 11:00")))
	assert.True(t, c.Matches(at(t, "2026-08-24 17:00")))
	assert.False(t, c.Matches(at(t, "2026-08-24 10:00")))
	assert.False(t, c.Matches(at(t, "2026-08-24 18:00")))
}

func TestDayOfMonthAndMonth(t *testing.T) {
	c, err := ParseCron("0 0 1 1 *")
	require.NoError(t, err)

	assert.True(t, c.Matches(at(t, "2027-01-01 00:00")))
	assert.False(t, c.Matches(at(t, "2026-08-24 00:00")))
	assert.False(t, c.Matches(at(t, "2027-01-02 00:00")))
}
