package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAdvancePeriodMonthly(t *testing.T) {
	assert.Equal(t, date(2026, time.February, 15), AdvancePeriod(date(2026, time.January, 15), IntervalMonth, 1))
	assert.Equal(t, date(2026, time.April, 15), AdvancePeriod(date(2026, time.January, 15), IntervalMonth, 3))
}

func TestAdvancePeriodMonthEndNormalization(t *testing.T) {
	// Jan 31 + 1 month normalizes past the short month.
	assert.Equal(t, date(2026, time.March, 3), AdvancePeriod(date(2026, time.January, 31), IntervalMonth, 1))
}

func TestAdvancePeriodYearly(t *testing.T) {
	assert.Equal(t, date(2027, time.January, 15), AdvancePeriod(date(2026, time.January, 15), IntervalYear, 1))
}

func TestAdvancePeriodDailyAndWeekly(t *testing.T) {
	assert.Equal(t, date(2026, time.January, 16), AdvancePeriod(date(2026, time.January, 15), IntervalDay, 1))
	assert.Equal(t, date(2026, time.January, 29), AdvancePeriod(date(2026, time.January, 15), IntervalWeek, 2))
}

func TestAdvancePeriodZeroCountDefaultsToOne(t *testing.T) {
	assert.Equal(t, date(2026, time.February, 15), AdvancePeriod(date(2026, time.January, 15), IntervalMonth, 0))
}

func TestNextPeriod(t *testing.T) {
	plan := SubscriptionPlan{Interval: IntervalMonth, IntervalCount: 1}
	start, end := plan.NextPeriod(date(2026, time.January, 15))
	assert.Equal(t, date(2026, time.January, 15), start)
	assert.Equal(t, date(2026, time.February, 15), end)
}
