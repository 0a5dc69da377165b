package attendance

import (
	"context"
	"time"
)

// CourseWrite is a course registration as persisted: the course row, the
// owner to merge into its owner set, and the full replacement roster.
type CourseWrite struct {
	Code        string
	Name        string
	Dept        string
	Class       string
	IsLab       bool
	OwnerID     string
	Enrollments []Enrollment
}

// Store is the persistence contract of the attendance core. Lookups of a
// missing course or student return ErrNotFound; uniqueness violations return
// ErrConflict.
type Store interface {
	CourseByCode(ctx context.Context, code string) (Course, error)
	CourseByID(ctx context.Context, id string) (Course, error)
	CoursesByClass(ctx context.Context, dept, class string) ([]Course, error)
	CourseSummaries(ctx context.Context, ownerID string) ([]CourseSummary, error)
	SaveCourse(ctx context.Context, w CourseWrite) (Course, error)
	DeleteCourse(ctx context.Context, courseID string) error
	AddOwner(ctx context.Context, courseID, ownerID string) error
	RemoveOwner(ctx context.Context, ownerID string) (int, error)

	StudentByRegNo(ctx context.Context, regNo string) (Student, error)
	StudentByID(ctx context.Context, id string) (Student, error)
	// Enroll upserts the student by reg no and adds it to the course roster.
	Enroll(ctx context.Context, courseID string, e Enrollment) (Student, error)
	UpdateStudent(ctx context.Context, s Student) (Student, error)
	// Unenroll removes the student from the roster and prunes its entries
	// from every record of the course.
	Unenroll(ctx context.Context, courseID, studentID string) error

	// UpsertRecords writes every record atomically, replacing any record at
	// the same (course, date, hour).
	UpsertRecords(ctx context.Context, records []Record) error
	// FindRecord returns the first record of the course on date whose hour is
	// in hours, or nil.
	FindRecord(ctx context.Context, courseID string, date time.Time, hours []int) (*Record, error)
	DeleteRecord(ctx context.Context, courseID string, date time.Time, hour int) (bool, error)
	DeleteRecordByID(ctx context.Context, id string) (bool, error)
	UnlockRecord(ctx context.Context, id string) (bool, error)
	// RecordsByCourse lists records newest date first.
	RecordsByCourse(ctx context.Context, courseID string) ([]Record, error)
	LastRecordDate(ctx context.Context, courseID string) (time.Time, bool, error)
	// SessionKeys lists recorded slots with from <= date < to.
	SessionKeys(ctx context.Context, courseID string, from, to time.Time) ([]SessionKey, error)
	// FrozenRecords lists frozen records of the courses with from <= date <= to
	// in chronological order (date, hour).
	FrozenRecords(ctx context.Context, courseIDs []string, from, to time.Time) ([]Record, error)

	// Timetable returns nil when the course has none.
	Timetable(ctx context.Context, courseID string) (*Timetable, error)
	SaveTimetable(ctx context.Context, t Timetable) (Timetable, error)
	AddSlot(ctx context.Context, slot ScheduleSlot) (ScheduleSlot, error)
	DeleteSlot(ctx context.Context, id string) (bool, error)
	Slots(ctx context.Context, courseID string) ([]ScheduleSlot, error)

	Ping(ctx context.Context) error
}
