package schedtime_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hfs/afd-sub007/internal/schedtime"
)

func mustParseRFC3339(t *testing.T, s string) time.Time {
	t.Helper()
	tm, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return tm
}

func TestEvaluateEmptyIsNow(t *testing.T) {
	now := mustParseRFC3339(t, "2026-07-31T10:15:00Z")
	got, err := schedtime.Evaluate("", now)
	require.NoError(t, err)
	require.Equal(t, now, got)
}

func TestEvaluateHHMM(t *testing.T) {
	now := mustParseRFC3339(t, "2026-07-31T10:15:00Z")
	got, err := schedtime.Evaluate("0930", now)
	require.NoError(t, err)
	require.Equal(t, 2026, got.Year())
	require.Equal(t, time.July, got.Month())
	require.Equal(t, 31, got.Day())
	require.Equal(t, 9, got.Hour())
	require.Equal(t, 30, got.Minute())
}

func TestEvaluateDDhhmm(t *testing.T) {
	now := mustParseRFC3339(t, "2026-07-31T10:15:00Z")
	got, err := schedtime.Evaluate("150930", now)
	require.NoError(t, err)
	require.Equal(t, 15, got.Day())
	require.Equal(t, time.July, got.Month())
}

func TestEvaluateDDhhmmZeroDayUsesCurrent(t *testing.T) {
	now := mustParseRFC3339(t, "2026-07-31T10:15:00Z")
	got, err := schedtime.Evaluate("000930", now)
	require.NoError(t, err)
	require.Equal(t, 31, got.Day())
}

func TestEvaluateMMDDhhmm(t *testing.T) {
	now := mustParseRFC3339(t, "2026-07-31T10:15:00Z")
	got, err := schedtime.Evaluate("03150930", now)
	require.NoError(t, err)
	require.Equal(t, time.March, got.Month())
	require.Equal(t, 15, got.Day())
	require.Equal(t, 9, got.Hour())
	require.Equal(t, 30, got.Minute())
}

func TestEvaluateRelativeMinutes(t *testing.T) {
	now := mustParseRFC3339(t, "2026-07-31T10:15:00Z")
	got, err := schedtime.Evaluate("-30", now)
	require.NoError(t, err)
	require.Equal(t, now.Add(-30*time.Minute), got)
}

func TestEvaluateRelativeHHMM(t *testing.T) {
	now := mustParseRFC3339(t, "2026-07-31T10:15:00Z")
	got, err := schedtime.Evaluate("-0130", now)
	require.NoError(t, err)
	require.Equal(t, now.Add(-(1*time.Hour + 30*time.Minute)), got)
}

func TestEvaluateInvalidLength(t *testing.T) {
	_, err := schedtime.Evaluate("12345", time.Now())
	require.Error(t, err)
}

func TestEvaluateOutOfRangeHour(t *testing.T) {
	_, err := schedtime.Evaluate("2599", time.Now())
	require.Error(t, err)
}

func TestFormatMMDDhhmm(t *testing.T) {
	now := mustParseRFC3339(t, "2026-07-31T10:05:00Z")
	require.Equal(t, "07311005", schedtime.Format(now))
}
