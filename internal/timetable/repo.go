package timetable

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"classportal/internal/schedule"
)

// Repository persists portal data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// --- profiles ---

// GetProfileByEmail returns the profile for a login attempt, nil when unknown.
func (r *Repository) GetProfileByEmail(ctx context.Context, email string) (*Profile, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, full_name, email, password_hash, role, batch_id, created_at
		FROM profiles WHERE email = $1
	`, email)
	return scanProfile(row)
}

// GetProfile returns a profile by id, nil when unknown.
func (r *Repository) GetProfile(ctx context.Context, id string) (*Profile, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, full_name, email, password_hash, role, batch_id, created_at
		FROM profiles WHERE id = $1
	`, id)
	return scanProfile(row)
}

func scanProfile(row *sql.Row) (*Profile, error) {
	var p Profile
	var batchID sql.NullString
	if err := row.Scan(&p.ID, &p.FullName, &p.Email, &p.PasswordHash, &p.Role, &batchID, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if batchID.Valid {
		p.BatchID = &batchID.String
	}
	return &p, nil
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, profileID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (profile_id, token, expires_at)
		VALUES ($1, $2, $3)
	`, profileID, token, expiresAt)
	return err
}

// --- batches ---

// ListBatches returns all batches ordered by year level.
func (r *Repository) ListBatches(ctx context.Context) ([]Batch, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, year_level, batch_name FROM batches ORDER BY year_level, batch_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Batch
	for rows.Next() {
		var b Batch
		if err := rows.Scan(&b.ID, &b.YearLevel, &b.BatchName); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// InsertBatch creates a batch.
func (r *Repository) InsertBatch(ctx context.Context, yearLevel int, name string) (Batch, error) {
	b := Batch{ID: uuid.NewString(), YearLevel: yearLevel, BatchName: name}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO batches (id, year_level, batch_name) VALUES ($1, $2, $3)
	`, b.ID, b.YearLevel, b.BatchName)
	return b, err
}

// DeleteBatch removes a batch.
func (r *Repository) DeleteBatch(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "batches", id)
}

// --- teachers ---

// ListTeachers returns all teachers by name.
func (r *Repository) ListTeachers(ctx context.Context) ([]schedule.Teacher, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM teachers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []schedule.Teacher
	for rows.Next() {
		var t schedule.Teacher
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// InsertTeacher creates a teacher.
func (r *Repository) InsertTeacher(ctx context.Context, name string) (schedule.Teacher, error) {
	t := schedule.Teacher{ID: uuid.NewString(), Name: name}
	_, err := r.db.ExecContext(ctx, `INSERT INTO teachers (id, name) VALUES ($1, $2)`, t.ID, t.Name)
	return t, err
}

// DeleteTeacher removes a teacher; schedules keep a null teacher.
func (r *Repository) DeleteTeacher(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "teachers", id)
}

// --- subjects ---

// ListSubjects returns all subjects by name.
func (r *Repository) ListSubjects(ctx context.Context) ([]schedule.Subject, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, code FROM subjects ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []schedule.Subject
	for rows.Next() {
		var s schedule.Subject
		if err := rows.Scan(&s.ID, &s.Name, &s.Code); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// InsertSubject creates a subject.
func (r *Repository) InsertSubject(ctx context.Context, name, code string) (schedule.Subject, error) {
	s := schedule.Subject{ID: uuid.NewString(), Name: name, Code: code}
	_, err := r.db.ExecContext(ctx, `INSERT INTO subjects (id, name, code) VALUES ($1, $2, $3)`, s.ID, s.Name, s.Code)
	return s, err
}

// DeleteSubject removes a subject.
func (r *Repository) DeleteSubject(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "subjects", id)
}

// --- time slots ---

// ListTimeSlots returns all slots ordered by start time.
func (r *Repository) ListTimeSlots(ctx context.Context) ([]schedule.TimeSlot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, period_name, start_time::text, end_time::text
		FROM time_slots ORDER BY start_time
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []schedule.TimeSlot
	for rows.Next() {
		var s schedule.TimeSlot
		if err := rows.Scan(&s.ID, &s.PeriodName, &s.StartTime, &s.EndTime); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// InsertTimeSlot creates a slot after validating the clock strings.
func (r *Repository) InsertTimeSlot(ctx context.Context, periodName, startTime, endTime string) (schedule.TimeSlot, error) {
	start, err := schedule.ParseClock(startTime)
	if err != nil {
		return schedule.TimeSlot{}, err
	}
	end, err := schedule.ParseClock(endTime)
	if err != nil {
		return schedule.TimeSlot{}, err
	}
	if start >= end {
		return schedule.TimeSlot{}, ErrInvalidSlot
	}
	s := schedule.TimeSlot{ID: uuid.NewString(), PeriodName: periodName, StartTime: startTime, EndTime: endTime}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO time_slots (id, period_name, start_time, end_time) VALUES ($1, $2, $3, $4)
	`, s.ID, s.PeriodName, s.StartTime, s.EndTime)
	return s, err
}

// DeleteTimeSlot removes a slot.
func (r *Repository) DeleteTimeSlot(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "time_slots", id)
}

// --- holidays ---

// ListHolidays returns the holiday calendar.
func (r *Repository) ListHolidays(ctx context.Context) ([]schedule.Holiday, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT holiday_date::text, occasion FROM holidays ORDER BY holiday_date
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []schedule.Holiday
	for rows.Next() {
		var h schedule.Holiday
		if err := rows.Scan(&h.Date, &h.Occasion); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// InsertHoliday creates a holiday; one per date.
func (r *Repository) InsertHoliday(ctx context.Context, date, occasion string) (schedule.Holiday, error) {
	h := schedule.Holiday{Date: date, Occasion: occasion}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO holidays (id, holiday_date, occasion)
		VALUES ($1, $2, $3)
		ON CONFLICT (holiday_date) DO NOTHING
	`, uuid.NewString(), h.Date, h.Occasion)
	return h, err
}

// DeleteHoliday removes the holiday on a date.
func (r *Repository) DeleteHoliday(ctx context.Context, date string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM holidays WHERE holiday_date = $1`, date)
	return err
}

// --- announcements ---

// ListAnnouncements returns announcements newest first.
func (r *Repository) ListAnnouncements(ctx context.Context, limit int) ([]Announcement, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, content, created_at
		FROM announcements ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Announcement
	for rows.Next() {
		var a Announcement
		if err := rows.Scan(&a.ID, &a.Title, &a.Content, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// InsertAnnouncement publishes a new announcement.
func (r *Repository) InsertAnnouncement(ctx context.Context, title, content string) (Announcement, error) {
	a := Announcement{ID: uuid.NewString(), Title: title, Content: content}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO announcements (id, title, content) VALUES ($1, $2, $3)
		RETURNING created_at
	`, a.ID, a.Title, a.Content)
	if err := row.Scan(&a.CreatedAt); err != nil {
		return Announcement{}, err
	}
	return a, nil
}

// UpdateAnnouncement edits an existing announcement.
func (r *Repository) UpdateAnnouncement(ctx context.Context, id, title, content string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE announcements SET title = $2, content = $3 WHERE id = $1
	`, id, title, content)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAnnouncement removes an announcement.
func (r *Repository) DeleteAnnouncement(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "announcements", id)
}

// --- syllabuses ---

// ListSyllabuses returns syllabus links by year level.
func (r *Repository) ListSyllabuses(ctx context.Context) ([]Syllabus, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, year_level, syllabus_url FROM syllabuses ORDER BY year_level
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Syllabus
	for rows.Next() {
		var s Syllabus
		if err := rows.Scan(&s.ID, &s.YearLevel, &s.URL); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpsertSyllabus sets the syllabus link for a year level. Each year has one.
func (r *Repository) UpsertSyllabus(ctx context.Context, yearLevel int, url string) (Syllabus, error) {
	s := Syllabus{ID: uuid.NewString(), YearLevel: yearLevel, URL: url}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO syllabuses (id, year_level, syllabus_url)
		VALUES ($1, $2, $3)
		ON CONFLICT (year_level) DO UPDATE SET syllabus_url = EXCLUDED.syllabus_url
	`, s.ID, s.YearLevel, s.URL)
	return s, err
}

// DeleteSyllabus removes a syllabus link.
func (r *Repository) DeleteSyllabus(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "syllabuses", id)
}

// --- schedules ---

// BatchTimetable returns a batch's weekly timetable with slot, subject and
// teacher joined in, ordered by day then start time.
func (r *Repository) BatchTimetable(ctx context.Context, batchID string) ([]schedule.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.batch_id, s.day_of_week,
		       ts.id, ts.period_name, ts.start_time::text, ts.end_time::text,
		       sub.id, sub.name, sub.code,
		       t.id, t.name
		FROM schedules s
		JOIN time_slots ts ON ts.id = s.time_slot_id
		JOIN subjects sub ON sub.id = s.subject_id
		LEFT JOIN teachers t ON t.id = s.teacher_id
		WHERE s.batch_id = $1
		ORDER BY s.day_of_week, ts.start_time
	`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schedule.Entry
	for rows.Next() {
		var e schedule.Entry
		var teacherID, teacherName sql.NullString
		if err := rows.Scan(
			&e.ID, &e.BatchID, &e.DayOfWeek,
			&e.Slot.ID, &e.Slot.PeriodName, &e.Slot.StartTime, &e.Slot.EndTime,
			&e.Subject.ID, &e.Subject.Name, &e.Subject.Code,
			&teacherID, &teacherName,
		); err != nil {
			return nil, err
		}
		if teacherID.Valid {
			e.Teacher = &schedule.Teacher{ID: teacherID.String, Name: teacherName.String}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// InsertScheduleEntry adds a weekly class, refusing a batch/day/slot clash.
func (r *Repository) InsertScheduleEntry(ctx context.Context, batchID string, dayOfWeek int, timeSlotID, subjectID string, teacherID *string) (string, error) {
	var clash bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM schedules
			WHERE batch_id = $1 AND day_of_week = $2 AND time_slot_id = $3
		)
	`, batchID, dayOfWeek, timeSlotID).Scan(&clash)
	if err != nil {
		return "", err
	}
	if clash {
		return "", ErrScheduleClash
	}

	id := uuid.NewString()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO schedules (id, batch_id, day_of_week, time_slot_id, subject_id, teacher_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, batchID, dayOfWeek, timeSlotID, subjectID, teacherID)
	return id, err
}

// DeleteScheduleEntry removes a weekly class.
func (r *Repository) DeleteScheduleEntry(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "schedules", id)
}

// --- attendance records ---

// StudentRecords returns every attendance record for a student.
func (r *Repository) StudentRecords(ctx context.Context, studentID string) ([]schedule.Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, schedule_id, attendance_date::text, status
		FROM attendance_records WHERE student_id = $1
		ORDER BY attendance_date
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []schedule.Record
	for rows.Next() {
		var rec schedule.Record
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.ScheduleID, &rec.Date, &rec.Status); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecordOn returns the student's record for one class on one date, nil if none.
func (r *Repository) RecordOn(ctx context.Context, studentID, scheduleID, date string) (*schedule.Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, schedule_id, attendance_date::text, status
		FROM attendance_records
		WHERE student_id = $1 AND schedule_id = $2 AND attendance_date = $3
		ORDER BY id
		LIMIT 1
	`, studentID, scheduleID, date)
	var rec schedule.Record
	if err := row.Scan(&rec.ID, &rec.StudentID, &rec.ScheduleID, &rec.Date, &rec.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// InsertRecord writes a new attendance mark.
func (r *Repository) InsertRecord(ctx context.Context, rec schedule.Record) (schedule.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, student_id, schedule_id, attendance_date, status)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.ID, rec.StudentID, rec.ScheduleID, rec.Date, rec.Status)
	if err != nil {
		return schedule.Record{}, err
	}
	return rec, nil
}

// UpdateRecordStatus flips a record's status; the student must own it.
func (r *Repository) UpdateRecordStatus(ctx context.Context, id, studentID, status string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance_records
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND student_id = $2
	`, id, studentID, status)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRecord returns one record by id scoped to its owner, nil when absent.
func (r *Repository) GetRecord(ctx context.Context, id, studentID string) (*schedule.Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, schedule_id, attendance_date::text, status
		FROM attendance_records WHERE id = $1 AND student_id = $2
	`, id, studentID)
	var rec schedule.Record
	if err := row.Scan(&rec.ID, &rec.StudentID, &rec.ScheduleID, &rec.Date, &rec.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (r *Repository) deleteByID(ctx context.Context, table, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
