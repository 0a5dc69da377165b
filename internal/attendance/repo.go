package attendance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *Repository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// translate maps constraint violations onto the core error kinds.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return ErrConflict
		case "23503": // foreign_key_violation
			return ErrNotFound
		}
	}
	return err
}

// placeholders renders "$start, $start+1, ..." for n arguments.
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}

func batchValue(batch int) any {
	if batch == 0 {
		return nil
	}
	return batch
}

func (r *Repository) Ping(ctx context.Context) error {
	if r == nil || r.db == nil {
		return errors.New("database not configured")
	}
	return r.db.PingContext(ctx)
}

// ---- courses and students ----

func (r *Repository) loadCourse(ctx context.Context, q execer, where string, arg any) (Course, error) {
	var c Course
	err := q.QueryRowContext(ctx, `
		SELECT id, code, name, dept, class, is_lab
		FROM courses WHERE `+where, arg).
		Scan(&c.ID, &c.Code, &c.Name, &c.Dept, &c.Class, &c.IsLab)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Course{}, ErrNotFound
		}
		return Course{}, fmt.Errorf("load course: %w", err)
	}

	owners, err := q.QueryContext(ctx, `
		SELECT owner_id FROM course_owners
		WHERE course_id = $1
		ORDER BY added_at, owner_id
	`, c.ID)
	if err != nil {
		return Course{}, fmt.Errorf("load course owners: %w", err)
	}
	for owners.Next() {
		var owner string
		if err := owners.Scan(&owner); err != nil {
			owners.Close()
			return Course{}, err
		}
		c.Owners = append(c.Owners, owner)
	}
	owners.Close()
	if err := owners.Err(); err != nil {
		return Course{}, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT s.id, s.reg_no, s.name, COALESCE(e.batch, 0)
		FROM enrollments e
		JOIN students s ON s.id = e.student_id
		WHERE e.course_id = $1
		ORDER BY s.reg_no
	`, c.ID)
	if err != nil {
		return Course{}, fmt.Errorf("load roster: %w", err)
	}
	defer rows.Close()
	var enrolled []Enrollment
	for rows.Next() {
		var e Enrollment
		if err := rows.Scan(&e.Student.ID, &e.Student.RegNo, &e.Student.Name, &e.Batch); err != nil {
			return Course{}, err
		}
		enrolled = append(enrolled, e)
	}
	if err := rows.Err(); err != nil {
		return Course{}, err
	}

	c.Roster, err = buildRoster(c, enrolled)
	if err != nil {
		return Course{}, err
	}
	return c, nil
}

func (r *Repository) CourseByCode(ctx context.Context, code string) (Course, error) {
	return r.loadCourse(ctx, r.db, "code = $1", code)
}

func (r *Repository) CourseByID(ctx context.Context, id string) (Course, error) {
	return r.loadCourse(ctx, r.db, "id = $1", id)
}

func (r *Repository) CoursesByClass(ctx context.Context, dept, class string) ([]Course, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM courses
		WHERE dept = $1 AND class = $2
		ORDER BY code
	`, dept, class)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	courses := make([]Course, 0, len(ids))
	for _, id := range ids {
		c, err := r.loadCourse(ctx, r.db, "id = $1", id)
		if err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, nil
}

func (r *Repository) CourseSummaries(ctx context.Context, ownerID string) ([]CourseSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.code, c.name, c.dept, c.class, c.is_lab,
			(SELECT count(*) FROM enrollments e WHERE e.course_id = c.id),
			(SELECT count(*) FROM attendance_records a WHERE a.course_id = c.id)
		FROM courses c
		JOIN course_owners o ON o.course_id = c.id
		WHERE o.owner_id = $1
		ORDER BY c.code
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CourseSummary
	for rows.Next() {
		var s CourseSummary
		if err := rows.Scan(&s.ID, &s.Code, &s.Name, &s.Dept, &s.Class, &s.IsLab, &s.StudentCount, &s.HoursTaught); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// upsertStudent inserts a student by reg no, keeping the name of an existing
// one, and returns the stored row.
func upsertStudent(ctx context.Context, q execer, s Student) (Student, error) {
	var out Student
	err := q.QueryRowContext(ctx, `
		INSERT INTO students (id, reg_no, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (reg_no) DO UPDATE SET reg_no = EXCLUDED.reg_no
		RETURNING id, reg_no, name
	`, uuid.NewString(), s.RegNo, s.Name).Scan(&out.ID, &out.RegNo, &out.Name)
	if err != nil {
		return Student{}, fmt.Errorf("upsert student %s: %w", s.RegNo, err)
	}
	return out, nil
}

func (r *Repository) SaveCourse(ctx context.Context, w CourseWrite) (Course, error) {
	var course Course
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var courseID string
		err := tx.QueryRowContext(ctx, `
			INSERT INTO courses (id, code, name, dept, class, is_lab)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (code) DO UPDATE SET
				name = EXCLUDED.name,
				dept = EXCLUDED.dept,
				class = EXCLUDED.class,
				is_lab = EXCLUDED.is_lab,
				updated_at = NOW()
			RETURNING id
		`, uuid.NewString(), w.Code, w.Name, w.Dept, w.Class, w.IsLab).Scan(&courseID)
		if err != nil {
			return fmt.Errorf("upsert course: %w", err)
		}

		if w.OwnerID != "" {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO course_owners (course_id, owner_id)
				VALUES ($1, $2)
				ON CONFLICT (course_id, owner_id) DO NOTHING
			`, courseID, w.OwnerID); err != nil {
				return fmt.Errorf("add course owner: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM enrollments WHERE course_id = $1`, courseID); err != nil {
			return fmt.Errorf("clear roster: %w", err)
		}
		for _, e := range w.Enrollments {
			student, err := upsertStudent(ctx, tx, e.Student)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO enrollments (course_id, student_id, batch)
				VALUES ($1, $2, $3)
				ON CONFLICT (course_id, student_id) DO UPDATE SET batch = EXCLUDED.batch
			`, courseID, student.ID, batchValue(e.Batch)); err != nil {
				return fmt.Errorf("enroll %s: %w", student.RegNo, err)
			}
		}

		course, err = r.loadCourse(ctx, tx, "id = $1", courseID)
		return err
	})
	return course, err
}

func (r *Repository) DeleteCourse(ctx context.Context, courseID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, courseID)
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) AddOwner(ctx context.Context, courseID, ownerID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO course_owners (course_id, owner_id)
		VALUES ($1, $2)
		ON CONFLICT (course_id, owner_id) DO NOTHING
	`, courseID, ownerID)
	return translate(err)
}

func (r *Repository) RemoveOwner(ctx context.Context, ownerID string) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM course_owners WHERE owner_id = $1`, ownerID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *Repository) studentWhere(ctx context.Context, where string, arg any) (Student, error) {
	var s Student
	err := r.db.QueryRowContext(ctx, `SELECT id, reg_no, name FROM students WHERE `+where, arg).
		Scan(&s.ID, &s.RegNo, &s.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return Student{}, ErrNotFound
	}
	return s, err
}

func (r *Repository) StudentByRegNo(ctx context.Context, regNo string) (Student, error) {
	return r.studentWhere(ctx, "reg_no = $1", regNo)
}

func (r *Repository) StudentByID(ctx context.Context, id string) (Student, error) {
	return r.studentWhere(ctx, "id = $1", id)
}

func (r *Repository) Enroll(ctx context.Context, courseID string, e Enrollment) (Student, error) {
	var student Student
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM courses WHERE id = $1)`, courseID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		var err error
		student, err = upsertStudent(ctx, tx, e.Student)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO enrollments (course_id, student_id, batch)
			VALUES ($1, $2, $3)
			ON CONFLICT (course_id, student_id) DO UPDATE SET batch = EXCLUDED.batch
		`, courseID, student.ID, batchValue(e.Batch))
		return err
	})
	return student, err
}

func (r *Repository) UpdateStudent(ctx context.Context, s Student) (Student, error) {
	var out Student
	err := r.db.QueryRowContext(ctx, `
		UPDATE students SET reg_no = $2, name = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING id, reg_no, name
	`, s.ID, s.RegNo, s.Name).Scan(&out.ID, &out.RegNo, &out.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return Student{}, ErrNotFound
	}
	if err != nil {
		return Student{}, translate(err)
	}
	return out, nil
}

func (r *Repository) Unenroll(ctx context.Context, courseID, studentID string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM enrollments WHERE course_id = $1 AND student_id = $2
		`, courseID, studentID); err != nil {
			return fmt.Errorf("unenroll: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE attendance_records a
			SET entries = COALESCE((
				SELECT jsonb_agg(e.value ORDER BY e.ord)
				FROM jsonb_array_elements(a.entries) WITH ORDINALITY AS e(value, ord)
				WHERE e.value->>'student_id' <> $2
			), '[]'::jsonb),
			updated_at = NOW()
			WHERE a.course_id = $1
		`, courseID, studentID)
		if err != nil {
			return fmt.Errorf("prune entries: %w", err)
		}
		return nil
	})
}

// ---- attendance records ----

const recordColumns = `id, course_id, owner_id, session_date, hour, freeze, is_expired, entries, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var raw []byte
	if err := row.Scan(&rec.ID, &rec.CourseID, &rec.OwnerID, &rec.Date, &rec.Hour, &rec.Freeze, &rec.IsExpired, &raw, &rec.UpdatedAt); err != nil {
		return Record{}, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &rec.Entries); err != nil {
			return Record{}, fmt.Errorf("decode entries of record %s: %w", rec.ID, err)
		}
	}
	rec.Date = rec.Date.UTC()
	return rec, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// UpsertRecords writes all records in one transaction; each statement is an
// atomic insert-or-replace on the (course, date, hour) key.
func (r *Repository) UpsertRecords(ctx context.Context, records []Record) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO attendance_records (id, course_id, owner_id, session_date, hour, freeze, is_expired, entries)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)
			ON CONFLICT (course_id, session_date, hour) DO UPDATE SET
				owner_id = EXCLUDED.owner_id,
				freeze = EXCLUDED.freeze,
				is_expired = EXCLUDED.is_expired,
				entries = EXCLUDED.entries,
				updated_at = NOW()
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, rec := range records {
			entries := rec.Entries
			if entries == nil {
				entries = []Entry{}
			}
			payload, err := json.Marshal(entries)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, uuid.NewString(), rec.CourseID, rec.OwnerID, rec.Date, rec.Hour, rec.Freeze, rec.IsExpired, string(payload)); err != nil {
				return fmt.Errorf("upsert record %s hour %d: %w", rec.Date.Format(DateLayout), rec.Hour, err)
			}
		}
		return nil
	})
}

func (r *Repository) FindRecord(ctx context.Context, courseID string, date time.Time, hours []int) (*Record, error) {
	if len(hours) == 0 {
		return nil, nil
	}
	args := []any{courseID, date}
	for _, h := range hours {
		args = append(args, h)
	}
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE course_id = $1 AND session_date = $2 AND hour IN (`+placeholders(3, len(hours))+`)
		ORDER BY hour
		LIMIT 1
	`, args...)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (r *Repository) affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *Repository) DeleteRecord(ctx context.Context, courseID string, date time.Time, hour int) (bool, error) {
	return r.affected(r.db.ExecContext(ctx, `
		DELETE FROM attendance_records
		WHERE course_id = $1 AND session_date = $2 AND hour = $3
	`, courseID, date, hour))
}

func (r *Repository) DeleteRecordByID(ctx context.Context, id string) (bool, error) {
	return r.affected(r.db.ExecContext(ctx, `DELETE FROM attendance_records WHERE id = $1`, id))
}

func (r *Repository) UnlockRecord(ctx context.Context, id string) (bool, error) {
	return r.affected(r.db.ExecContext(ctx, `
		UPDATE attendance_records
		SET freeze = FALSE, is_expired = FALSE, updated_at = NOW()
		WHERE id = $1
	`, id))
}

func (r *Repository) RecordsByCourse(ctx context.Context, courseID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE course_id = $1
		ORDER BY session_date DESC, hour
	`, courseID)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

func (r *Repository) LastRecordDate(ctx context.Context, courseID string) (time.Time, bool, error) {
	var last sql.NullTime
	if err := r.db.QueryRowContext(ctx, `
		SELECT MAX(session_date) FROM attendance_records WHERE course_id = $1
	`, courseID).Scan(&last); err != nil {
		return time.Time{}, false, err
	}
	if !last.Valid {
		return time.Time{}, false, nil
	}
	return last.Time.UTC(), true, nil
}

func (r *Repository) SessionKeys(ctx context.Context, courseID string, from, to time.Time) ([]SessionKey, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT session_date, hour
		FROM attendance_records
		WHERE course_id = $1 AND session_date >= $2 AND session_date < $3
	`, courseID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SessionKey
	for rows.Next() {
		var k SessionKey
		if err := rows.Scan(&k.Date, &k.Hour); err != nil {
			return nil, err
		}
		k.Date = k.Date.UTC()
		out = append(out, k)
	}
	return out, rows.Err()
}

func (r *Repository) FrozenRecords(ctx context.Context, courseIDs []string, from, to time.Time) ([]Record, error) {
	if len(courseIDs) == 0 {
		return nil, nil
	}
	args := []any{from, to}
	for _, id := range courseIDs {
		args = append(args, id)
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE freeze AND session_date >= $1 AND session_date <= $2
			AND course_id IN (`+placeholders(3, len(courseIDs))+`)
		ORDER BY session_date, hour, course_id
	`, args...)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

// ---- timetables and schedule slots ----

func (r *Repository) Timetable(ctx context.Context, courseID string) (*Timetable, error) {
	t := Timetable{CourseID: courseID}
	var raw []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT week, updated_at FROM timetables WHERE course_id = $1
	`, courseID).Scan(&raw, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &t.Week); err != nil {
		return nil, fmt.Errorf("decode timetable of %s: %w", courseID, err)
	}
	return &t, nil
}

func (r *Repository) SaveTimetable(ctx context.Context, t Timetable) (Timetable, error) {
	payload, err := json.Marshal(t.Week)
	if err != nil {
		return Timetable{}, err
	}
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO timetables (course_id, week)
		VALUES ($1, $2::jsonb)
		ON CONFLICT (course_id) DO UPDATE SET week = EXCLUDED.week, updated_at = NOW()
		RETURNING updated_at
	`, t.CourseID, string(payload)).Scan(&t.UpdatedAt)
	if err != nil {
		return Timetable{}, translate(err)
	}
	return t, nil
}

func (r *Repository) AddSlot(ctx context.Context, slot ScheduleSlot) (ScheduleSlot, error) {
	slot.ID = uuid.NewString()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO schedule_slots (id, course_id, day, hour, batch)
		VALUES ($1, $2, $3, $4, $5)
	`, slot.ID, slot.CourseID, slot.Day, slot.Hour, slotBatch(slot))
	if err != nil {
		return ScheduleSlot{}, translate(err)
	}
	return slot, nil
}

func (r *Repository) DeleteSlot(ctx context.Context, id string) (bool, error) {
	return r.affected(r.db.ExecContext(ctx, `DELETE FROM schedule_slots WHERE id = $1`, id))
}

func (r *Repository) Slots(ctx context.Context, courseID string) ([]ScheduleSlot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, course_id, day, hour, batch
		FROM schedule_slots
		WHERE course_id = $1
	`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ScheduleSlot
	for rows.Next() {
		var s ScheduleSlot
		var batch int
		if err := rows.Scan(&s.ID, &s.CourseID, &s.Day, &s.Hour, &batch); err != nil {
			return nil, err
		}
		if batch != 0 {
			b := batch
			s.Batch = &b
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	SortSlots(out)
	return out, nil
}
