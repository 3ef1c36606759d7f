package schedule

import (
	"errors"
	"time"
)

// DayStatus classifies a calendar day for a batch.
type DayStatus string

// Day statuses.
const (
	StatusSchoolDay DayStatus = "school_day"
	StatusWeekend   DayStatus = "weekend"
	StatusHoliday   DayStatus = "holiday"
)

// DayInfo is the resolved view of "now" against a weekly timetable: the day's
// status plus the running and upcoming class, when there are any.
type DayInfo struct {
	Status   DayStatus `json:"status"`
	Occasion string    `json:"occasion,omitempty"`
	Current  *Entry    `json:"current_class,omitempty"`
	Next     *Entry    `json:"next_class,omitempty"`
}

// ErrNoLocation is returned when Resolve is called without a reference
// location; falling back to the host zone would make "today" machine-dependent.
var ErrNoLocation = errors.New("schedule: reference location required")

// Resolve classifies now against a batch's timetable and holiday calendar.
// All day-of-week and time-of-day math happens in loc, the portal's reference
// timezone. Holidays win over weekends; Sundays are always off; Saturdays are
// off only when the batch has no Saturday classes. Entries are evaluated in
// start-time order, not caller order, so on overlapping slots the current
// class is the one that started earliest.
func Resolve(now time.Time, loc *time.Location, timetable []Entry, holidays []Holiday) (DayInfo, error) {
	if loc == nil {
		return DayInfo{}, ErrNoLocation
	}
	local := now.In(loc)
	today := local.Format(DateFormat)

	if h := FindHoliday(holidays, today); h != nil {
		return DayInfo{Status: StatusHoliday, Occasion: h.Occasion}, nil
	}

	weekday := Weekday(local)
	if weekday == 7 {
		return DayInfo{Status: StatusWeekend, Occasion: "Sunday"}, nil
	}

	entries := DayEntries(timetable, weekday)
	if weekday == 6 && len(entries) == 0 {
		return DayInfo{Status: StatusWeekend, Occasion: "Saturday"}, nil
	}

	nowMinutes := local.Hour()*60 + local.Minute()
	info := DayInfo{Status: StatusSchoolDay}

	// entries are sorted by start time, so the first entry past nowMinutes is
	// the next class and the first containing slot wins on overlap.
	for i := range entries {
		start, err := ParseClock(entries[i].Slot.StartTime)
		if err != nil {
			return DayInfo{}, err
		}
		end, err := ParseClock(entries[i].Slot.EndTime)
		if err != nil {
			return DayInfo{}, err
		}
		if info.Current == nil && start <= nowMinutes && nowMinutes < end {
			info.Current = &entries[i]
		}
		if info.Next == nil && start > nowMinutes {
			info.Next = &entries[i]
		}
	}
	return info, nil
}
