package lessons_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edutrack-uz/portal-client/lessons"
)

func statusPtr(s lessons.AttendanceStatus) *lessons.AttendanceStatus { return &s }

func TestDeriveAttendanceState(t *testing.T) {
	opens := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	closes := opens.Add(15 * time.Minute)

	tests := []struct {
		name   string
		status *lessons.AttendanceStatus
		now    time.Time
		want   lessons.AttendanceState
	}{
		{"undecided inside window", nil, opens.Add(time.Minute), lessons.StateOpen},
		{"undecided one second before close", nil, closes.Add(-time.Second), lessons.StateOpen},
		{"undecided at close instant", nil, closes, lessons.StateExpired},
		{"undecided after close", nil, closes.Add(time.Hour), lessons.StateExpired},
		{"attended verdict inside window", statusPtr(lessons.StatusAttended), opens.Add(time.Minute), lessons.StateAttended},
		{"attended verdict after close", statusPtr(lessons.StatusAttended), closes.Add(time.Hour), lessons.StateAttended},
		{"absent verdict after close", statusPtr(lessons.StatusAbsent), closes.Add(time.Hour), lessons.StateAbsent},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := lessons.AttendanceWindow{OpensAt: opens, ClosesAt: closes, Status: tc.status}
			require.Equal(t, tc.want, lessons.DeriveAttendanceState(w, tc.now))
		})
	}
}

func TestRemaining(t *testing.T) {
	closes := time.Date(2026, 3, 2, 10, 15, 0, 0, time.UTC)
	w := lessons.AttendanceWindow{ClosesAt: closes}

	require.Equal(t, 30*time.Second, lessons.Remaining(w, closes.Add(-30*time.Second)))
	require.Equal(t, time.Duration(0), lessons.Remaining(w, closes))
	require.Equal(t, time.Duration(0), lessons.Remaining(w, closes.Add(time.Minute)))
}

func TestFormatRemaining(t *testing.T) {
	require.Equal(t, "00:00:30", lessons.FormatRemaining(30*time.Second))
	require.Equal(t, "00:14:59", lessons.FormatRemaining(14*time.Minute+59*time.Second))
	require.Equal(t, "01:00:00", lessons.FormatRemaining(time.Hour))
	require.Equal(t, "27:05:09", lessons.FormatRemaining(27*time.Hour+5*time.Minute+9*time.Second))
	require.Equal(t, "00:00:00", lessons.FormatRemaining(-time.Second))
}

func TestAssignmentOpen(t *testing.T) {
	deadline := time.Date(2026, 3, 9, 23, 59, 59, 0, time.UTC)
	a := lessons.Assignment{Deadline: deadline}

	require.True(t, a.Open(deadline.Add(-time.Hour)))
	require.True(t, a.Open(deadline)) // deadline itself is inclusive
	require.False(t, a.Open(deadline.Add(time.Second)))
}
