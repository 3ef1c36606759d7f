package timetable

import (
	"errors"
	"time"

	"classportal/internal/schedule"
)

// Profile is a portal account: a student tied to a batch, or an admin.
type Profile struct {
	ID           string    `json:"id"`
	FullName     string    `json:"full_name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	BatchID      *string   `json:"batch_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Batch is a cohort of students sharing one weekly timetable.
type Batch struct {
	ID        string `json:"id"`
	YearLevel int    `json:"year_level"`
	BatchName string `json:"batch_name"`
}

// Announcement is a portal-wide notice.
type Announcement struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Syllabus links a year level to its syllabus document. One per year.
type Syllabus struct {
	ID        string `json:"id"`
	YearLevel int    `json:"year_level"`
	URL       string `json:"syllabus_url"`
}

// TodayClass pairs a scheduled class with the student's mark for it, if any.
type TodayClass struct {
	Entry  schedule.Entry   `json:"entry"`
	Record *schedule.Record `json:"record,omitempty"`
}

// TodayView is a student's day: either a holiday notice or the day's classes.
type TodayView struct {
	Date    string            `json:"date"`
	Holiday *schedule.Holiday `json:"holiday,omitempty"`
	Classes []TodayClass      `json:"classes"`
}

// Sentinel errors surfaced to handlers.
var (
	ErrNotFound      = errors.New("not found")
	ErrScheduleClash = errors.New("a class already occupies that batch, day and slot")
	ErrDuplicateMark = errors.New("attendance already marked for this class today")
	ErrInvalidSlot   = errors.New("slot start must be before end")
	ErrBadStatus     = errors.New("status must be present or absent")
)
