package lockwindow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLockedAtAnchorsOnFirstOfMonth(t *testing.T) {
	cases := []struct {
		name      string
		createdAt time.Time
		want      time.Time
	}{
		{"mid month", time.Date(2024, 3, 15, 13, 45, 0, 0, time.UTC), time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		{"last day of month", time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC), time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"first instant", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)},
		{"november rolls year", time.Date(2024, 11, 20, 8, 0, 0, 0, time.UTC), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"december rolls year", time.Date(2024, 12, 31, 8, 0, 0, 0, time.UTC), time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
		{"leap february", time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC), time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.True(t, tc.want.Equal(LockedAt(tc.createdAt)), "got %s", LockedAt(tc.createdAt))
		})
	}
}

func TestIsLockedBoundaryMillisecond(t *testing.T) {
	createdAt := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	boundary := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	require.False(t, IsLocked(createdAt, createdAt))
	require.False(t, IsLocked(createdAt, boundary.Add(-time.Millisecond)))
	require.True(t, IsLocked(createdAt, boundary))
	require.True(t, IsLocked(createdAt, boundary.Add(time.Millisecond)))
	require.True(t, IsLocked(createdAt, boundary.AddDate(5, 0, 0)))
}

func TestIsLockedUsesCreatedAtLocation(t *testing.T) {
	loc := time.FixedZone("WIB", 7*60*60)
	createdAt := time.Date(2024, 1, 31, 23, 30, 0, 0, loc)
	boundary := time.Date(2024, 3, 1, 0, 0, 0, 0, loc)

	require.False(t, IsLocked(createdAt, boundary.Add(-time.Nanosecond).UTC()))
	require.True(t, IsLocked(createdAt, boundary.UTC()))
}

func TestRemaining(t *testing.T) {
	createdAt := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	require.Equal(t, 24*time.Hour, Remaining(createdAt, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)))
	require.Zero(t, Remaining(createdAt, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)))
}
