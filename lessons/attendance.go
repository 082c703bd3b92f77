package lessons

import (
	"fmt"
	"time"
)

// AttendanceState is the derived state of an attendance window.
type AttendanceState string

const (
	StateOpen       AttendanceState = "open"
	StateSubmitting AttendanceState = "submitting"
	StateAttended   AttendanceState = "attended"
	StateAbsent     AttendanceState = "absent"
	StateExpired    AttendanceState = "expired"
)

// DeriveAttendanceState computes the window state at instant now. The
// server status dominates the clock: once a verdict exists the deadline
// no longer matters. Only an undecided window can expire locally.
func DeriveAttendanceState(w AttendanceWindow, now time.Time) AttendanceState {
	if w.Status != nil {
		switch *w.Status {
		case StatusAttended:
			return StateAttended
		case StatusAbsent:
			return StateAbsent
		}
	}
	if !now.Before(w.ClosesAt) {
		return StateExpired
	}
	return StateOpen
}

// Remaining returns the non-negative duration until the window closes.
func Remaining(w AttendanceWindow, now time.Time) time.Duration {
	d := w.ClosesAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// FormatRemaining renders a duration as HH:MM:SS for display.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
