package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedNow is a Friday.
var fixedNow = time.Date(2024, time.March, 15, 10, 30, 0, 0, time.UTC)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestResolveRelative(t *testing.T) {
	t.Parallel()

	tests := []struct {
		token string
		start time.Time
		end   time.Time
	}{
		{"today", date(2024, 3, 15), date(2024, 3, 16)},
		{"Yesterday", date(2024, 3, 14), date(2024, 3, 15)},
		{"tomorrow", date(2024, 3, 16), date(2024, 3, 17)},
		{"this day", date(2024, 3, 15), date(2024, 3, 16)},
		{"this week", date(2024, 3, 11), date(2024, 3, 18)},
		{"last week", date(2024, 3, 4), date(2024, 3, 11)},
		{"next week", date(2024, 3, 18), date(2024, 3, 25)},
		{"this month", date(2024, 3, 1), date(2024, 4, 1)},
		{"next month", date(2024, 4, 1), date(2024, 5, 1)},
		{"this quarter", date(2024, 1, 1), date(2024, 4, 1)},
		{"last year", date(2023, 1, 1), date(2024, 1, 1)},
		{"last 30 days", fixedNow.Add(-30 * 24 * time.Hour), fixedNow},
		{"last 1 day", fixedNow.Add(-24 * time.Hour), fixedNow},
		{"next 2 weeks", fixedNow, fixedNow.Add(14 * 24 * time.Hour)},
		{"last 90 minutes", fixedNow.Add(-90 * time.Minute), fixedNow},
		{"last 3 months", fixedNow.AddDate(0, -3, 0), fixedNow},
		{"next 1 year", fixedNow, fixedNow.AddDate(1, 0, 0)},
		{"last 36h", fixedNow.Add(-36 * time.Hour), fixedNow},
		{"next  1w2d", fixedNow, fixedNow.Add(9 * 24 * time.Hour)},
	}

	for _, tt := range tests {
		r, err := ResolveRelative(tt.token, fixedNow)
		require.NoError(t, err, tt.token)
		assert.True(t, tt.start.Equal(r.Start), "%s: start %s, want %s", tt.token, r.Start, tt.start)
		assert.True(t, tt.end.Equal(r.End), "%s: end %s, want %s", tt.token, r.End, tt.end)
	}
}

func TestResolveRelativeRejects(t *testing.T) {
	t.Parallel()

	for _, token := range []string{"", "someday", "last", "last 0 days", "last -3 days", "last 3 fortnights", "this decade", "every week", "last x"} {
		_, err := ResolveRelative(token, fixedNow)
		require.ErrorIs(t, err, errUnknownRelative, token)
	}
}

func TestResolveRelativeFollowsLocation(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+9", 9*3600)
	// 2024-03-15 20:00 UTC is already the 16th in UTC+9.
	now := time.Date(2024, time.March, 15, 20, 0, 0, 0, time.UTC).In(loc)
	r, err := ResolveRelative("today", now)
	require.NoError(t, err)
	assert.True(t, time.Date(2024, time.March, 16, 0, 0, 0, 0, loc).Equal(r.Start))
}

func TestCompileRelative(t *testing.T) {
	t.Parallel()

	clock := WithClock(func() time.Time { return fixedNow })

	cc := compileDoc(t, `{"created_at":{"relative":"today"}}`, clock)
	assert.Equal(t, "(created_at >= $1 AND created_at < $2)", cc.SQL)
	assert.Equal(t, []any{date(2024, 3, 15), date(2024, 3, 16)}, cc.Parameters)

	cc = compileDoc(t, `{"status":"paid","created_at":{"last":7}}`, clock)
	assert.Equal(t, "(status = $1 AND (created_at >= $2 AND created_at < $3))", cc.SQL)
	assert.Equal(t, []any{"paid", fixedNow.Add(-7 * 24 * time.Hour), fixedNow}, cc.Parameters)

	cc = compileDoc(t, `{"created_at":{"today":true,"negate":true}}`, clock)
	assert.Equal(t, "NOT ((created_at >= $1 AND created_at < $2))", cc.SQL)
}

func TestCompileRelativeWithLocation(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC-5", -5*3600)
	cc := compileDoc(t, `{"created_at":{"today":true}}`,
		WithClock(func() time.Time { return fixedNow }),
		WithLocation(loc),
	)
	require.Len(t, cc.Parameters, 2)
	start := cc.Parameters[0].(time.Time)
	assert.True(t, time.Date(2024, time.March, 15, 0, 0, 0, 0, loc).Equal(start))
}
