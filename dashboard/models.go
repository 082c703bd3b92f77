package dashboard

import "time"

// Teacher is a course teacher shown on the dashboard.
type Teacher struct {
	Name        string `json:"name"`
	Image       string `json:"image"`
	ChannelLink string `json:"channel_link"`
}

// ProgressCounter is a marked/due/total counter with its percentage.
type ProgressCounter struct {
	Percentage float64 `json:"percentage"`
	Marked     int     `json:"marked"`
	Approved   int     `json:"approved"`
	Due        int     `json:"due"`
	Total      int     `json:"total"`
}

// Course is the course snapshot inside the enrollment.
type Course struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Logo        string    `json:"logo"`
	Teachers    []Teacher `json:"teachers"`
	Days        struct {
		Passed int `json:"passed"`
		Total  int `json:"total"`
	} `json:"days"`
	Attendance  ProgressCounter `json:"attendance"`
	Assignments ProgressCounter `json:"assignments"`
	Completion  float64         `json:"completion"`
}

// CurriculumLesson is one row of the curriculum table.
type CurriculumLesson struct {
	ID            int64     `json:"id"`
	Number        int       `json:"number"`
	Topic         string    `json:"topic"`
	StartDatetime time.Time `json:"start_datetime"`
	Duration      string    `json:"duration"`
	Status        *string   `json:"status"` // "attended", "absent" or null for upcoming
}

// UpcomingLesson points at the next scheduled lesson, when one exists.
type UpcomingLesson struct {
	ID     int64     `json:"id"`
	Number int       `json:"number"`
	Topic  string    `json:"topic"`
	Starts time.Time `json:"starts"`
}

// Enrollment is the student's standing in the course: identity,
// balances, ranking and the full curriculum.
type Enrollment struct {
	ID             int64              `json:"id"`
	FullName       string             `json:"full_name"`
	TotalPoints    int                `json:"total_points"`
	Balance        int                `json:"balance"`
	Rank           int                `json:"rank"`
	LastRank       int                `json:"last_rank"`
	AccessCode     string             `json:"access_code"`
	Course         Course             `json:"course"`
	Curriculum     []CurriculumLesson `json:"curriculum"`
	UpcomingLesson *UpcomingLesson    `json:"upcoming_lesson,omitempty"`
}

// Ranking is one leaderboard row.
type Ranking struct {
	Rank   int    `json:"rank"`
	Name   string `json:"name"`
	Points int    `json:"points"`
	AvgXP  string `json:"avg_xp"`
	IsMe   bool   `json:"is_current_user,omitempty"`
}
