package timetable

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"classportal/internal/schedule"
)

// Store is the slice of the repository the service needs. *Repository
// satisfies it; tests supply a fake.
type Store interface {
	GetProfile(ctx context.Context, id string) (*Profile, error)
	BatchTimetable(ctx context.Context, batchID string) ([]schedule.Entry, error)
	ListHolidays(ctx context.Context) ([]schedule.Holiday, error)
	StudentRecords(ctx context.Context, studentID string) ([]schedule.Record, error)
	RecordOn(ctx context.Context, studentID, scheduleID, date string) (*schedule.Record, error)
	InsertRecord(ctx context.Context, rec schedule.Record) (schedule.Record, error)
	GetRecord(ctx context.Context, id, studentID string) (*schedule.Record, error)
	UpdateRecordStatus(ctx context.Context, id, studentID, status string) error
}

// Cache holds computed summaries. Get returns "" with a nil error on a miss.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// RedisCache adapts a redis client to the Cache interface.
type RedisCache struct {
	Client *redis.Client
}

// Get returns the cached value or "" when absent.
func (c RedisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

// Set stores a value with TTL.
func (c RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.Client.Set(ctx, key, value, ttl).Err()
}

// Del drops a key.
func (c RedisCache) Del(ctx context.Context, key string) error {
	return c.Client.Del(ctx, key).Err()
}

// nowFunc is swapped in tests to pin "today".
var nowFunc = time.Now

// Service loads snapshots from the store and runs the schedule core over
// them. All time decisions use the reference location, never the host zone.
type Service struct {
	store         Store
	cache         Cache
	loc           *time.Location
	semesterStart time.Time
	policy        schedule.DuplicatePolicy
	cacheTTL      time.Duration
}

// NewService creates a service backed by a store and a summary cache.
func NewService(store Store, cache Cache, loc *time.Location, semesterStart time.Time, policy schedule.DuplicatePolicy, cacheTTL time.Duration) *Service {
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &Service{
		store:         store,
		cache:         cache,
		loc:           loc,
		semesterStart: semesterStart,
		policy:        policy,
		cacheTTL:      cacheTTL,
	}
}

// LiveInfo resolves the current and next class for a batch right now.
func (s *Service) LiveInfo(ctx context.Context, batchID string) (schedule.DayInfo, error) {
	timetable, err := s.store.BatchTimetable(ctx, batchID)
	if err != nil {
		return schedule.DayInfo{}, err
	}
	holidays, err := s.store.ListHolidays(ctx)
	if err != nil {
		return schedule.DayInfo{}, err
	}
	return schedule.Resolve(nowFunc(), s.loc, timetable, holidays)
}

// Today returns the student's classes for today with their marks, or the
// holiday occupying the date.
func (s *Service) Today(ctx context.Context, studentID string) (TodayView, error) {
	profile, err := s.store.GetProfile(ctx, studentID)
	if err != nil {
		return TodayView{}, err
	}
	if profile == nil || profile.BatchID == nil {
		return TodayView{}, ErrNotFound
	}

	now := nowFunc().In(s.loc)
	today := now.Format(schedule.DateFormat)
	view := TodayView{Date: today}

	holidays, err := s.store.ListHolidays(ctx)
	if err != nil {
		return TodayView{}, err
	}
	if h := schedule.FindHoliday(holidays, today); h != nil {
		view.Holiday = h
		return view, nil
	}

	timetable, err := s.store.BatchTimetable(ctx, *profile.BatchID)
	if err != nil {
		return TodayView{}, err
	}
	records, err := s.store.StudentRecords(ctx, studentID)
	if err != nil {
		return TodayView{}, err
	}

	for _, e := range schedule.DayEntries(timetable, schedule.Weekday(now)) {
		tc := TodayClass{Entry: e}
		for i := range records {
			if records[i].ScheduleID == e.ID && records[i].Date == today {
				tc.Record = &records[i]
				break
			}
		}
		view.Classes = append(view.Classes, tc)
	}
	return view, nil
}

// Summary returns the student's per-subject attendance, serving from cache
// when fresh. The key is date-scoped: a new day means new held counts.
func (s *Service) Summary(ctx context.Context, studentID string) (schedule.Summary, error) {
	today := nowFunc().In(s.loc)
	key := summaryKey(studentID, today.Format(schedule.DateFormat))

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, key); err != nil {
			log.Printf("summary cache get failed: %v", err)
		} else if cached != "" {
			var sum schedule.Summary
			if err := json.Unmarshal([]byte(cached), &sum); err == nil {
				return sum, nil
			}
		}
	}

	sum, err := s.computeSummary(ctx, studentID, today)
	if err != nil {
		return schedule.Summary{}, err
	}
	s.storeSummary(ctx, key, sum)
	return sum, nil
}

// RefreshSummary recomputes a student's summary and overwrites the cache.
// The worker calls this after every attendance mark.
func (s *Service) RefreshSummary(ctx context.Context, studentID string) (schedule.Summary, error) {
	today := nowFunc().In(s.loc)
	sum, err := s.computeSummary(ctx, studentID, today)
	if err != nil {
		return schedule.Summary{}, err
	}
	s.storeSummary(ctx, summaryKey(studentID, today.Format(schedule.DateFormat)), sum)
	return sum, nil
}

func (s *Service) computeSummary(ctx context.Context, studentID string, today time.Time) (schedule.Summary, error) {
	profile, err := s.store.GetProfile(ctx, studentID)
	if err != nil {
		return schedule.Summary{}, err
	}
	if profile == nil || profile.BatchID == nil {
		return schedule.Summary{}, ErrNotFound
	}
	timetable, err := s.store.BatchTimetable(ctx, *profile.BatchID)
	if err != nil {
		return schedule.Summary{}, err
	}
	holidays, err := s.store.ListHolidays(ctx)
	if err != nil {
		return schedule.Summary{}, err
	}
	records, err := s.store.StudentRecords(ctx, studentID)
	if err != nil {
		return schedule.Summary{}, err
	}
	return schedule.Summarize(timetable, holidays, s.semesterStart, today, records, s.policy), nil
}

func (s *Service) storeSummary(ctx context.Context, key string, sum schedule.Summary) {
	if s.cache == nil {
		return
	}
	buf, err := json.Marshal(sum)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, string(buf), s.cacheTTL); err != nil {
		log.Printf("summary cache set failed: %v", err)
	}
}

// MarkAttendance records a present/absent mark for today. The class must be
// on the student's own timetable and not already marked.
func (s *Service) MarkAttendance(ctx context.Context, studentID, scheduleID, status string) (schedule.Record, error) {
	if status != schedule.StatusPresent && status != schedule.StatusAbsent {
		return schedule.Record{}, ErrBadStatus
	}
	profile, err := s.store.GetProfile(ctx, studentID)
	if err != nil {
		return schedule.Record{}, err
	}
	if profile == nil || profile.BatchID == nil {
		return schedule.Record{}, ErrNotFound
	}
	timetable, err := s.store.BatchTimetable(ctx, *profile.BatchID)
	if err != nil {
		return schedule.Record{}, err
	}
	found := false
	for _, e := range timetable {
		if e.ID == scheduleID {
			found = true
			break
		}
	}
	if !found {
		return schedule.Record{}, ErrNotFound
	}

	today := nowFunc().In(s.loc).Format(schedule.DateFormat)
	if existing, err := s.store.RecordOn(ctx, studentID, scheduleID, today); err != nil {
		return schedule.Record{}, err
	} else if existing != nil {
		return *existing, ErrDuplicateMark
	}

	rec, err := s.store.InsertRecord(ctx, schedule.Record{
		StudentID:  studentID,
		ScheduleID: scheduleID,
		Date:       today,
		Status:     status,
	})
	if err != nil {
		return schedule.Record{}, err
	}
	s.dropSummary(ctx, studentID, today)
	return rec, nil
}

// ToggleAttendance flips an existing mark between present and absent.
func (s *Service) ToggleAttendance(ctx context.Context, studentID, recordID string) (schedule.Record, error) {
	rec, err := s.store.GetRecord(ctx, recordID, studentID)
	if err != nil {
		return schedule.Record{}, err
	}
	if rec == nil {
		return schedule.Record{}, ErrNotFound
	}
	next := schedule.StatusPresent
	if rec.Status == schedule.StatusPresent {
		next = schedule.StatusAbsent
	}
	if err := s.store.UpdateRecordStatus(ctx, recordID, studentID, next); err != nil {
		return schedule.Record{}, err
	}
	rec.Status = next
	s.dropSummary(ctx, studentID, nowFunc().In(s.loc).Format(schedule.DateFormat))
	return *rec, nil
}

func (s *Service) dropSummary(ctx context.Context, studentID, date string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, summaryKey(studentID, date)); err != nil {
		log.Printf("summary cache del failed: %v", err)
	}
}

func summaryKey(studentID, date string) string {
	return "portal:summary:" + studentID + ":" + date
}
