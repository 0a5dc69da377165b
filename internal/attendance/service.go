package attendance

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service is the attendance core. Callers are authenticated and role-checked
// before reaching it; course ownership checks that depend on stored data are
// made here.
type Service struct {
	store Store
	log   *zap.Logger
	loc   *time.Location
	clock func() time.Time
}

// NewService creates a service backed by store. loc is the calendar used to
// decide what "today" is.
func NewService(store Store, logger *zap.Logger, loc *time.Location) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, log: logger, loc: loc, clock: time.Now}
}

// Ping checks the backing store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) today() time.Time {
	return CivilDate(s.clock(), s.loc)
}

func requireID(what, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return validationf("invalid %s id %q", what, id)
	}
	return nil
}

func parseDateField(field, value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, validationf("%s is required", field)
	}
	d, err := ParseDate(value)
	if err != nil {
		return time.Time{}, validationf("%s must be a YYYY-MM-DD date", field)
	}
	return d, nil
}

// normalizeHours validates, dedupes and sorts an hour list.
func normalizeHours(hours []int) ([]int, error) {
	if len(hours) == 0 {
		return nil, validationf("at least one hour is required")
	}
	seen := make(map[int]bool, len(hours))
	out := make([]int, 0, len(hours))
	for _, h := range hours {
		if h < MinHour || h > MaxHour {
			return nil, validationf("hour %d is outside %d-%d", h, MinHour, MaxHour)
		}
		if !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	sort.Ints(out)
	return out, nil
}

func (s *Service) courseByCode(ctx context.Context, code string) (Course, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Course{}, validationf("course code is required")
	}
	c, err := s.store.CourseByCode(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return Course{}, notFoundf("course %s not found", code)
	}
	return c, err
}

func (s *Service) courseByID(ctx context.Context, id string) (Course, error) {
	if err := requireID("course", id); err != nil {
		return Course{}, err
	}
	c, err := s.store.CourseByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Course{}, notFoundf("course %s not found", id)
	}
	return c, err
}

// sessionRoster is the roster a submission is checked against: the batch
// roster when a batch is named, else every enrolled student.
func sessionRoster(course Course, batch int) ([]Student, error) {
	if err := CheckPartition(course); err != nil {
		return nil, err
	}
	if batch != 0 {
		return ResolveRoster(course, batch)
	}
	students := UnionRoster(course)
	if len(students) == 0 {
		return nil, notFoundf("no students found for course %s", course.Code)
	}
	return students, nil
}

// EntryInput is one submitted mark, addressed by reg no.
type EntryInput struct {
	RegNo  string `json:"regNo" binding:"required"`
	Status Status `json:"status" binding:"required,oneof=-1 1 2"`
}

// SubmitRequest is a submission of one attendance list for one or more hours.
type SubmitRequest struct {
	CourseCode string       `json:"courseCode" binding:"required"`
	Date       string       `json:"date" binding:"required"`
	Hours      []int        `json:"hours" binding:"required,min=1,dive,min=1,max=8"`
	Batch      int          `json:"batch" binding:"omitempty,oneof=1 2"`
	Entries    []EntryInput `json:"entries" binding:"required,min=1,dive"`
}

// SubmitAttendance writes the submitted entries to every requested hour. Each
// record is replaced wholesale, never merged with what was stored before, and
// is frozen. Freeze does not block resubmission here; it is a client-side
// lock. Returns the number of records written.
func (s *Service) SubmitAttendance(ctx context.Context, caller Caller, req SubmitRequest) (int, error) {
	date, err := parseDateField("date", req.Date)
	if err != nil {
		return 0, err
	}
	hours, err := normalizeHours(req.Hours)
	if err != nil {
		return 0, err
	}
	if len(req.Entries) == 0 {
		return 0, validationf("attendance entries are required")
	}
	course, err := s.courseByCode(ctx, req.CourseCode)
	if err != nil {
		return 0, err
	}
	roster, err := sessionRoster(course, req.Batch)
	if err != nil {
		return 0, err
	}
	byRegNo := make(map[string]Student, len(roster))
	for _, st := range roster {
		byRegNo[st.RegNo] = st
	}

	entries := make([]Entry, 0, len(req.Entries))
	seen := make(map[string]bool, len(req.Entries))
	for _, in := range req.Entries {
		regNo := NormalizeRegNo(in.RegNo)
		st, ok := byRegNo[regNo]
		if !ok {
			return 0, validationf("student %s is not on the roster of %s", regNo, course.Code)
		}
		if seen[regNo] {
			return 0, validationf("student %s is marked more than once", regNo)
		}
		if !in.Status.Valid() {
			return 0, validationf("invalid status %d for student %s", in.Status, regNo)
		}
		seen[regNo] = true
		entries = append(entries, Entry{StudentID: st.ID, Status: in.Status})
	}

	records := make([]Record, 0, len(hours))
	for _, h := range hours {
		records = append(records, Record{
			CourseID:  course.ID,
			OwnerID:   caller.ID,
			Date:      date,
			Hour:      h,
			Freeze:    true,
			IsExpired: false,
			Entries:   entries,
		})
	}
	if err := s.store.UpsertRecords(ctx, records); err != nil {
		return 0, err
	}
	s.log.Info("attendance submitted",
		zap.String("course", course.Code),
		zap.String("date", date.Format(DateLayout)),
		zap.Ints("hours", hours),
		zap.Int("entries", len(entries)),
		zap.String("caller", caller.ID),
	)
	return len(records), nil
}

// FetchRequest identifies the session to materialize.
type FetchRequest struct {
	CourseCode string `json:"courseCode" binding:"required"`
	Date       string `json:"date" binding:"required"`
	Hours      []int  `json:"hours" binding:"required,min=1,dive,min=1,max=8"`
	Batch      int    `json:"batch" binding:"omitempty,oneof=1 2"`
}

// SessionStudent is one roster row of a materialized session.
type SessionStudent struct {
	ID     string `json:"id"`
	RegNo  string `json:"regNo"`
	Name   string `json:"name"`
	Status Status `json:"status"`
}

// SessionView is the current attendance of a session.
type SessionView struct {
	RecordID  string           `json:"recordId,omitempty"`
	Students  []SessionStudent `json:"students"`
	Count     int              `json:"count"`
	Absentees int              `json:"absentees"`
	IsExpired bool             `json:"isExpired"`
	Freeze    bool             `json:"freeze"`
}

// FetchSession merges the session roster with the stored record. Students
// with no recorded mark default to Present.
func (s *Service) FetchSession(ctx context.Context, req FetchRequest) (SessionView, error) {
	date, err := parseDateField("date", req.Date)
	if err != nil {
		return SessionView{}, err
	}
	hours, err := normalizeHours(req.Hours)
	if err != nil {
		return SessionView{}, err
	}
	course, err := s.courseByCode(ctx, req.CourseCode)
	if err != nil {
		return SessionView{}, err
	}
	roster, err := ResolveRoster(course, req.Batch)
	if err != nil {
		return SessionView{}, err
	}
	rec, err := s.store.FindRecord(ctx, course.ID, date, hours)
	if err != nil {
		return SessionView{}, err
	}
	return materialize(roster, rec), nil
}

func materialize(roster []Student, rec *Record) SessionView {
	recorded := make(map[string]Status)
	view := SessionView{Students: make([]SessionStudent, 0, len(roster))}
	if rec != nil {
		for _, e := range rec.Entries {
			recorded[e.StudentID] = e.Status
		}
		view.RecordID = rec.ID
		view.Freeze = rec.Freeze
		view.IsExpired = rec.IsExpired
	}
	for _, st := range roster {
		status, ok := recorded[st.ID]
		if !ok {
			status = Present
		}
		if status == Absent {
			view.Absentees++
		}
		view.Students = append(view.Students, SessionStudent{ID: st.ID, RegNo: st.RegNo, Name: st.Name, Status: status})
	}
	view.Count = len(view.Students)
	return view
}

// DeleteSession removes the record at (course, date, hour).
func (s *Service) DeleteSession(ctx context.Context, courseCode, date string, hour int) error {
	d, err := parseDateField("date", date)
	if err != nil {
		return err
	}
	if hour < MinHour || hour > MaxHour {
		return validationf("hour %d is outside %d-%d", hour, MinHour, MaxHour)
	}
	course, err := s.courseByCode(ctx, courseCode)
	if err != nil {
		return err
	}
	ok, err := s.store.DeleteRecord(ctx, course.ID, d, hour)
	if err != nil {
		return err
	}
	if !ok {
		return notFoundf("no attendance recorded for %s on %s hour %d", course.Code, d.Format(DateLayout), hour)
	}
	return nil
}

// ListSessions returns the course's records newest first. Only owners may
// list them.
func (s *Service) ListSessions(ctx context.Context, caller Caller, courseID string) ([]Record, error) {
	course, err := s.courseByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if !course.OwnedBy(caller.ID) {
		return nil, forbiddenf("only owners of %s may list its sessions", course.Code)
	}
	return s.store.RecordsByCourse(ctx, course.ID)
}

// UnlockSession clears freeze and isExpired, leaving the marks untouched.
func (s *Service) UnlockSession(ctx context.Context, recordID string) error {
	if err := requireID("record", recordID); err != nil {
		return err
	}
	ok, err := s.store.UnlockRecord(ctx, recordID)
	if err != nil {
		return err
	}
	if !ok {
		return notFoundf("attendance record %s not found", recordID)
	}
	return nil
}

// DeleteSessionByID removes a single attendance record by its id.
func (s *Service) DeleteSessionByID(ctx context.Context, recordID string) error {
	if err := requireID("record", recordID); err != nil {
		return err
	}
	ok, err := s.store.DeleteRecordByID(ctx, recordID)
	if err != nil {
		return err
	}
	if !ok {
		return notFoundf("attendance record %s not found", recordID)
	}
	return nil
}
