package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextRun(t *testing.T) {
	// Tuesday
	from := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		expr string
		from time.Time
		want time.Time
	}{
		{"every minute", "* * * * *", from, time.Date(2026, 3, 10, 12, 1, 0, 0, time.UTC)},
		{"seconds truncated", "* * * * *", from.Add(45 * time.Second), time.Date(2026, 3, 10, 12, 1, 0, 0, time.UTC)},
		{"later today", "30 12 * * *", from, time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)},
		{"tomorrow", "0 9 * * *", from, time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)},
		{"strictly after from", "0 12 * * *", from, time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)},
		{"first of month", "0 0 1 * *", from, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)},
		{"monday is zero", "0 8 * * 0", from, time.Date(2026, 3, 16, 8, 0, 0, 0, time.UTC)},
		{"sunday is six", "15 6 * * 6", from, time.Date(2026, 3, 15, 6, 15, 0, 0, time.UTC)},
		{"new year", "0 0 1 1 *", from, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"leap day", "0 0 29 2 *", from, time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC)},
		{"unparseable field is a wildcard", "x 9 * * *", from, time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)},
		{"out of range field is a wildcard", "60 * * * *", from, time.Date(2026, 3, 10, 12, 1, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := NextRun(tc.expr, tc.from)
			require.True(t, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNextRun_NoMatch(t *testing.T) {
	from := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	for _, expr := range []string{"", "* * * *", "* * * * * *", "0 0 31 2 *", "0 0 30 2 *"} {
		t.Run(expr, func(t *testing.T) {
			got, ok := NextRun(expr, from)
			assert.False(t, ok)
			assert.True(t, got.IsZero())
		})
	}
}

func TestNextRun_RespectsLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	from := time.Date(2026, 3, 10, 23, 30, 0, 0, loc)

	got, ok := NextRun("0 0 * * *", from)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, loc), got)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("0 6 * * 0"))
	assert.True(t, Valid("  0   6 * *  0 "))
	assert.False(t, Valid("0 6 * *"))
	assert.False(t, Valid("@daily"))
}
