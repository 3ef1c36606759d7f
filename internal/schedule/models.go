package schedule

import (
	"sort"
	"time"
)

// DateFormat is the wire format for calendar dates throughout the portal.
const DateFormat = "2006-01-02"

// TimeSlot is a named period of the school day.
type TimeSlot struct {
	ID         string `json:"id"`
	PeriodName string `json:"period_name"`
	StartTime  string `json:"start_time"` // wall clock, "HH:MM" or "HH:MM:SS"
	EndTime    string `json:"end_time"`
}

// Subject is a taught course.
type Subject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// Teacher identifies a staff member. A class may have none assigned.
type Teacher struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Entry is one recurring weekly class for a batch: a subject taught in a
// time slot on a given day of the week.
type Entry struct {
	ID        string   `json:"id"`
	BatchID   string   `json:"batch_id"`
	DayOfWeek int      `json:"day_of_week"` // Monday=1 .. Sunday=7
	Slot      TimeSlot `json:"time_slot"`
	Subject   Subject  `json:"subject"`
	Teacher   *Teacher `json:"teacher,omitempty"`
}

// Holiday cancels all classes on one calendar date.
type Holiday struct {
	Date     string `json:"date"` // DateFormat
	Occasion string `json:"occasion"`
}

// Record is one self-reported attendance mark.
type Record struct {
	ID         string `json:"id"`
	StudentID  string `json:"student_id"`
	ScheduleID string `json:"schedule_id"`
	Date       string `json:"attendance_date"` // DateFormat
	Status     string `json:"status"`          // StatusPresent or StatusAbsent
}

// Attendance record statuses.
const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
)

// Weekday maps t's day of week to Monday=1 .. Sunday=7. The caller is
// responsible for having t in the reference location already.
func Weekday(t time.Time) int {
	if wd := int(t.Weekday()); wd != 0 {
		return wd
	}
	return 7
}

// DayEntries returns the entries scheduled on the given weekday, ordered by
// slot start time. Starts are compared as parsed minutes, not strings, so an
// unpadded hour like "9:00" still sorts before "10:00". Malformed starts sort
// first and are reported when the caller parses the slot itself.
func DayEntries(timetable []Entry, weekday int) []Entry {
	var out []Entry
	for _, e := range timetable {
		if e.DayOfWeek == weekday {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		si, _ := ParseClock(out[i].Slot.StartTime)
		sj, _ := ParseClock(out[j].Slot.StartTime)
		return si < sj
	})
	return out
}

// FindHoliday returns the first holiday on the given date, if any.
func FindHoliday(holidays []Holiday, date string) *Holiday {
	for i := range holidays {
		if holidays[i].Date == date {
			return &holidays[i]
		}
	}
	return nil
}
