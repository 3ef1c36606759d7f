package timetable

import (
	"context"
	"errors"
	"testing"
	"time"

	"classportal/internal/schedule"
)

var ist = time.FixedZone("IST", 5*3600+30*60)

type fakeStore struct {
	profile   *Profile
	timetable []schedule.Entry
	holidays  []schedule.Holiday
	records   []schedule.Record

	inserted       []schedule.Record
	timetableCalls int
}

func (f *fakeStore) GetProfile(ctx context.Context, id string) (*Profile, error) {
	return f.profile, nil
}

func (f *fakeStore) BatchTimetable(ctx context.Context, batchID string) ([]schedule.Entry, error) {
	f.timetableCalls++
	return f.timetable, nil
}

func (f *fakeStore) ListHolidays(ctx context.Context) ([]schedule.Holiday, error) {
	return f.holidays, nil
}

func (f *fakeStore) StudentRecords(ctx context.Context, studentID string) ([]schedule.Record, error) {
	return f.records, nil
}

func (f *fakeStore) RecordOn(ctx context.Context, studentID, scheduleID, date string) (*schedule.Record, error) {
	for i := range f.records {
		if f.records[i].ScheduleID == scheduleID && f.records[i].Date == date {
			return &f.records[i], nil
		}
	}
	return nil, nil
}

func (f *fakeStore) InsertRecord(ctx context.Context, rec schedule.Record) (schedule.Record, error) {
	rec.ID = "rec-new"
	f.inserted = append(f.inserted, rec)
	return rec, nil
}

func (f *fakeStore) GetRecord(ctx context.Context, id, studentID string) (*schedule.Record, error) {
	for i := range f.records {
		if f.records[i].ID == id && f.records[i].StudentID == studentID {
			return &f.records[i], nil
		}
	}
	return nil, nil
}

func (f *fakeStore) UpdateRecordStatus(ctx context.Context, id, studentID, status string) error {
	for i := range f.records {
		if f.records[i].ID == id {
			f.records[i].Status = status
			return nil
		}
	}
	return ErrNotFound
}

type fakeCache struct {
	data map[string]string
	dels []string
}

func newFakeCache() *fakeCache { return &fakeCache{data: map[string]string{}} }

func (c *fakeCache) Get(ctx context.Context, key string) (string, error) {
	return c.data[key], nil
}

func (c *fakeCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.data[key] = value
	return nil
}

func (c *fakeCache) Del(ctx context.Context, key string) error {
	delete(c.data, key)
	c.dels = append(c.dels, key)
	return nil
}

func testEntry(id, subject string, day int, start, end string) schedule.Entry {
	return schedule.Entry{
		ID:        id,
		BatchID:   "batch-1",
		DayOfWeek: day,
		Slot:      schedule.TimeSlot{ID: "slot-" + id, PeriodName: "P", StartTime: start, EndTime: end},
		Subject:   schedule.Subject{ID: "sub-" + subject, Name: subject},
	}
}

func pinNow(t *testing.T, at time.Time) {
	t.Helper()
	nowFunc = func() time.Time { return at }
	t.Cleanup(func() { nowFunc = time.Now })
}

func studentStore() *fakeStore {
	batchID := "batch-1"
	return &fakeStore{
		profile: &Profile{ID: "student-1", Role: "student", BatchID: &batchID},
		timetable: []schedule.Entry{
			testEntry("1", "Math", 1, "09:00", "10:00"),
			testEntry("2", "Physics", 1, "11:00", "12:00"),
		},
	}
}

func newTestService(store *fakeStore, cache Cache) *Service {
	semStart := time.Date(2025, 8, 18, 0, 0, 0, 0, ist)
	return NewService(store, cache, ist, semStart, schedule.DuplicatesSum, time.Minute)
}

func TestTodayPairsRecords(t *testing.T) {
	// 2025-08-25 is a Monday.
	pinNow(t, time.Date(2025, 8, 25, 8, 0, 0, 0, ist))
	store := studentStore()
	store.records = []schedule.Record{
		{ID: "r1", StudentID: "student-1", ScheduleID: "1", Date: "2025-08-25", Status: schedule.StatusPresent},
		{ID: "r2", StudentID: "student-1", ScheduleID: "1", Date: "2025-08-18", Status: schedule.StatusAbsent},
	}
	svc := newTestService(store, newFakeCache())

	view, err := svc.Today(context.Background(), "student-1")
	if err != nil {
		t.Fatalf("Today() error = %v", err)
	}
	if view.Holiday != nil {
		t.Fatalf("Holiday = %+v, want nil", view.Holiday)
	}
	if len(view.Classes) != 2 {
		t.Fatalf("classes = %d, want 2", len(view.Classes))
	}
	if view.Classes[0].Record == nil || view.Classes[0].Record.ID != "r1" {
		t.Errorf("first class record = %+v, want r1 (today's mark only)", view.Classes[0].Record)
	}
	if view.Classes[1].Record != nil {
		t.Errorf("second class record = %+v, want nil", view.Classes[1].Record)
	}
}

func TestTodayHoliday(t *testing.T) {
	pinNow(t, time.Date(2025, 8, 25, 8, 0, 0, 0, ist))
	store := studentStore()
	store.holidays = []schedule.Holiday{{Date: "2025-08-25", Occasion: "Festival"}}
	svc := newTestService(store, newFakeCache())

	view, err := svc.Today(context.Background(), "student-1")
	if err != nil {
		t.Fatalf("Today() error = %v", err)
	}
	if view.Holiday == nil || view.Holiday.Occasion != "Festival" {
		t.Errorf("Holiday = %+v, want Festival", view.Holiday)
	}
	if len(view.Classes) != 0 {
		t.Errorf("classes = %d, want 0 on a holiday", len(view.Classes))
	}
}

func TestSummaryCaches(t *testing.T) {
	pinNow(t, time.Date(2025, 8, 25, 8, 0, 0, 0, ist))
	store := studentStore()
	cache := newFakeCache()
	svc := newTestService(store, cache)

	first, err := svc.Summary(context.Background(), "student-1")
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	// Mon 18 + Mon 25 for both Monday subjects.
	if first.Subjects[0].Held != 2 {
		t.Errorf("Held = %d, want 2", first.Subjects[0].Held)
	}
	calls := store.timetableCalls

	second, err := svc.Summary(context.Background(), "student-1")
	if err != nil {
		t.Fatalf("Summary() second call error = %v", err)
	}
	if store.timetableCalls != calls {
		t.Errorf("cache miss on second call: timetable loads %d -> %d", calls, store.timetableCalls)
	}
	if len(second.Subjects) != len(first.Subjects) {
		t.Errorf("cached summary differs: %+v vs %+v", second, first)
	}
}

func TestMarkAttendance(t *testing.T) {
	pinNow(t, time.Date(2025, 8, 25, 9, 30, 0, 0, ist))

	t.Run("bad status", func(t *testing.T) {
		svc := newTestService(studentStore(), newFakeCache())
		if _, err := svc.MarkAttendance(context.Background(), "student-1", "1", "late"); err != ErrBadStatus {
			t.Errorf("error = %v, want ErrBadStatus", err)
		}
	})

	t.Run("class not on the student's timetable", func(t *testing.T) {
		svc := newTestService(studentStore(), newFakeCache())
		if _, err := svc.MarkAttendance(context.Background(), "student-1", "other-batch-class", schedule.StatusPresent); err != ErrNotFound {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})

	t.Run("duplicate same-day mark", func(t *testing.T) {
		store := studentStore()
		store.records = []schedule.Record{
			{ID: "r1", StudentID: "student-1", ScheduleID: "1", Date: "2025-08-25", Status: schedule.StatusPresent},
		}
		svc := newTestService(store, newFakeCache())
		if _, err := svc.MarkAttendance(context.Background(), "student-1", "1", schedule.StatusAbsent); err != ErrDuplicateMark {
			t.Errorf("error = %v, want ErrDuplicateMark", err)
		}
		if len(store.inserted) != 0 {
			t.Errorf("inserted %d records, want 0", len(store.inserted))
		}
	})

	t.Run("success drops cached summary", func(t *testing.T) {
		store := studentStore()
		cache := newFakeCache()
		cache.data["portal:summary:student-1:2025-08-25"] = "{}"
		svc := newTestService(store, cache)

		rec, err := svc.MarkAttendance(context.Background(), "student-1", "1", schedule.StatusPresent)
		if err != nil {
			t.Fatalf("MarkAttendance() error = %v", err)
		}
		if rec.Date != "2025-08-25" || rec.Status != schedule.StatusPresent {
			t.Errorf("record = %+v, want today's present mark", rec)
		}
		if _, still := cache.data["portal:summary:student-1:2025-08-25"]; still {
			t.Error("cached summary not invalidated after mark")
		}
	})
}

func TestToggleAttendance(t *testing.T) {
	pinNow(t, time.Date(2025, 8, 25, 9, 30, 0, 0, ist))
	store := studentStore()
	store.records = []schedule.Record{
		{ID: "r1", StudentID: "student-1", ScheduleID: "1", Date: "2025-08-25", Status: schedule.StatusPresent},
	}
	svc := newTestService(store, newFakeCache())

	rec, err := svc.ToggleAttendance(context.Background(), "student-1", "r1")
	if err != nil {
		t.Fatalf("ToggleAttendance() error = %v", err)
	}
	if rec.Status != schedule.StatusAbsent {
		t.Errorf("Status = %q, want absent", rec.Status)
	}
	if store.records[0].Status != schedule.StatusAbsent {
		t.Errorf("stored status = %q, want absent", store.records[0].Status)
	}

	if _, err := svc.ToggleAttendance(context.Background(), "student-1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestLiveInfo(t *testing.T) {
	pinNow(t, time.Date(2025, 8, 25, 9, 30, 0, 0, ist))
	svc := newTestService(studentStore(), newFakeCache())

	info, err := svc.LiveInfo(context.Background(), "batch-1")
	if err != nil {
		t.Fatalf("LiveInfo() error = %v", err)
	}
	if info.Status != schedule.StatusSchoolDay {
		t.Errorf("Status = %v, want school day", info.Status)
	}
	if info.Current == nil || info.Current.Subject.Name != "Math" {
		t.Errorf("Current = %+v, want Math", info.Current)
	}
	if info.Next == nil || info.Next.Subject.Name != "Physics" {
		t.Errorf("Next = %+v, want Physics", info.Next)
	}
}
