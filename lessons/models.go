package lessons

import (
	"time"

	"github.com/edutrack-uz/portal-client/transport"
)

// AttendanceStatus is the server-authoritative outcome of an attendance
// window. A nil status means the window is still undecided.
type AttendanceStatus string

const (
	StatusAttended AttendanceStatus = "attended"
	StatusAbsent   AttendanceStatus = "absent"
)

// AttendanceWindow is the time range during which the student may
// submit a keyword to be marked present.
type AttendanceWindow struct {
	TrackID     int64             `json:"track_id"`
	LessonTopic string            `json:"lesson_topic"`
	Number      int               `json:"number"`
	OpensAt     time.Time         `json:"opens_at"`
	ClosesAt    time.Time         `json:"closes_at"`
	Status      *AttendanceStatus `json:"status"`
}

// Attachment is a file or link attached to an assignment or submission.
type Attachment struct {
	Name      string `json:"name"`
	Link      string `json:"link,omitempty"`
	Size      int64  `json:"size,omitempty"`
	Extension string `json:"extension,omitempty"`
	Type      string `json:"type,omitempty"`
}

// SubmissionStatus is the teacher's verdict on a submission.
type SubmissionStatus string

const (
	SubmissionApproved  SubmissionStatus = "approved"
	SubmissionRejected  SubmissionStatus = "rejected"
	SubmissionPending   SubmissionStatus = "pending"
	SubmissionSubmitted SubmissionStatus = "submitted"
)

// Submission is one homework hand-in. The server returns them
// newest-first.
type Submission struct {
	ID             int64            `json:"id"`
	Status         SubmissionStatus `json:"status"`
	Comment        string           `json:"comment,omitempty"`
	TeacherComment string           `json:"teacher_comment,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	Attachments    []Attachment     `json:"attachments"`
}

// Assignment is a homework task with its submission history.
type Assignment struct {
	ID            int64        `json:"id"`
	Number        int          `json:"number"`
	Description   string       `json:"description"`
	Topic         string       `json:"topic"`
	StartDatetime time.Time    `json:"start_datetime"`
	Deadline      time.Time    `json:"deadline"`
	Attachments   []Attachment `json:"attachments"`
	Submissions   []Submission `json:"submissions"`
}

// Open reports whether the assignment still accepts submissions at
// instant now. The deadline itself is inclusive.
func (a Assignment) Open(now time.Time) bool {
	return !a.Deadline.Before(now)
}

// LessonsResponse is the /api/lessons/ shape: the live attendance
// window plus the current assignment and the read-only history.
type LessonsResponse struct {
	transport.Envelope
	Data struct {
		Attendance  AttendanceWindow `json:"attendance"`
		Assignments struct {
			Current  *Assignment  `json:"current"`
			Previous []Assignment `json:"previous"`
		} `json:"assignments"`
	} `json:"data"`
}

// MarkAttendanceResponse is the /api/attendance/mark/ shape.
type MarkAttendanceResponse struct {
	transport.Envelope
	Data struct {
		XP      int    `json:"xp"`
		Coins   int    `json:"coins"`
		Message string `json:"message"`
	} `json:"data"`
}

// SubmissionResponse is the /api/bot/submit-assignment/ shape.
type SubmissionResponse struct {
	transport.Envelope
	SubmissionID int64 `json:"submission_id"`
}
