package schedule

import (
	"math"
	"time"
)

// DuplicatePolicy controls how multiple present records for the same class
// occurrence are counted.
type DuplicatePolicy string

// Duplicate policies.
const (
	// DuplicatesSum counts every present record. This matches the portal's
	// historical behavior; attended can exceed held on dirty data.
	DuplicatesSum DuplicatePolicy = "sum"
	// DuplicatesDistinct counts at most one present record per
	// (schedule, date) pair.
	DuplicatesDistinct DuplicatePolicy = "distinct"
)

// ParseDuplicatePolicy maps a config string to a policy, defaulting to sum.
func ParseDuplicatePolicy(s string) DuplicatePolicy {
	if s == string(DuplicatesDistinct) {
		return DuplicatesDistinct
	}
	return DuplicatesSum
}

// SubjectSummary is one subject's attendance tally for a student.
type SubjectSummary struct {
	SubjectID  string  `json:"subject_id"`
	Subject    string  `json:"subject"`
	Held       int     `json:"held"`
	Attended   int     `json:"attended"`
	Percentage float64 `json:"percentage"`
}

// Summary is a student's per-subject attendance, ordered by the subject's
// first appearance in the timetable. Skipped counts present records whose
// schedule entry is not in the timetable snapshot (deleted or cross-batch).
type Summary struct {
	Subjects []SubjectSummary `json:"subjects"`
	Skipped  int              `json:"skipped,omitempty"`
}

// Summarize walks every calendar day from semesterStart through today,
// counting how many sessions each subject held (holidays cancel the whole
// day) and how many the student attended. Dates are compared by calendar day;
// the caller supplies both bounds in the reference timezone.
func Summarize(timetable []Entry, holidays []Holiday, semesterStart, today time.Time, records []Record, policy DuplicatePolicy) Summary {
	index := make(map[string]int, len(timetable))
	var subjects []SubjectSummary
	for _, e := range timetable {
		if _, ok := index[e.Subject.ID]; !ok {
			index[e.Subject.ID] = len(subjects)
			subjects = append(subjects, SubjectSummary{SubjectID: e.Subject.ID, Subject: e.Subject.Name})
		}
	}

	holidaySet := make(map[string]struct{}, len(holidays))
	for _, h := range holidays {
		holidaySet[h.Date] = struct{}{}
	}

	byWeekday := make(map[int][]int)
	for _, e := range timetable {
		byWeekday[e.DayOfWeek] = append(byWeekday[e.DayOfWeek], index[e.Subject.ID])
	}

	start := truncateDay(semesterStart)
	end := truncateDay(today)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if _, off := holidaySet[d.Format(DateFormat)]; off {
			continue
		}
		for _, si := range byWeekday[Weekday(d)] {
			subjects[si].Held++
		}
	}

	bySchedule := make(map[string]int, len(timetable))
	for _, e := range timetable {
		bySchedule[e.ID] = index[e.Subject.ID]
	}

	summary := Summary{}
	seen := make(map[string]struct{})
	for _, r := range records {
		if r.Status != StatusPresent {
			continue
		}
		si, ok := bySchedule[r.ScheduleID]
		if !ok {
			summary.Skipped++
			continue
		}
		if policy == DuplicatesDistinct {
			key := r.ScheduleID + "|" + r.Date
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		subjects[si].Attended++
	}

	for i := range subjects {
		if subjects[i].Held > 0 {
			pct := float64(subjects[i].Attended) / float64(subjects[i].Held) * 100
			subjects[i].Percentage = math.Round(pct*10) / 10
		}
	}
	summary.Subjects = subjects
	return summary
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
