package attendance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a map-backed Store for dev and tests. It enforces the same
// uniqueness and cascade rules as the Postgres schema.
type MemoryStore struct {
	mu          sync.RWMutex
	students    map[string]Student
	regIndex    map[string]string
	courses     map[string]Course
	codeIndex   map[string]string
	enrollments map[string][]Enrollment
	records     map[string]*Record
	slotIndex   map[string]string
	timetables  map[string]Timetable
	slots       map[string]ScheduleSlot
	now         func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		students:    make(map[string]Student),
		regIndex:    make(map[string]string),
		courses:     make(map[string]Course),
		codeIndex:   make(map[string]string),
		enrollments: make(map[string][]Enrollment),
		records:     make(map[string]*Record),
		slotIndex:   make(map[string]string),
		timetables:  make(map[string]Timetable),
		slots:       make(map[string]ScheduleSlot),
		now:         time.Now,
	}
}

func recordKey(courseID string, date time.Time, hour int) string {
	return courseID + "|" + SessionKey{Date: date, Hour: hour}.String()
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

// loadCourse assembles a course with its roster. Callers hold the lock.
func (m *MemoryStore) loadCourse(id string) (Course, error) {
	c, ok := m.courses[id]
	if !ok {
		return Course{}, ErrNotFound
	}
	c.Owners = append([]string(nil), c.Owners...)
	rows := make([]Enrollment, 0, len(m.enrollments[id]))
	for _, e := range m.enrollments[id] {
		rows = append(rows, Enrollment{Student: m.students[e.Student.ID], Batch: e.Batch})
	}
	roster, err := buildRoster(c, rows)
	if err != nil {
		return Course{}, err
	}
	c.Roster = roster
	return c, nil
}

func (m *MemoryStore) CourseByCode(ctx context.Context, code string) (Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.codeIndex[code]
	if !ok {
		return Course{}, ErrNotFound
	}
	return m.loadCourse(id)
}

func (m *MemoryStore) CourseByID(ctx context.Context, id string) (Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadCourse(id)
}

func (m *MemoryStore) CoursesByClass(ctx context.Context, dept, class string) ([]Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Course
	for id, c := range m.courses {
		if c.Dept != dept || c.Class != class {
			continue
		}
		course, err := m.loadCourse(id)
		if err != nil {
			return nil, err
		}
		out = append(out, course)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *MemoryStore) CourseSummaries(ctx context.Context, ownerID string) ([]CourseSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hours := make(map[string]int)
	for _, r := range m.records {
		hours[r.CourseID]++
	}
	var out []CourseSummary
	for id, c := range m.courses {
		if !c.OwnedBy(ownerID) {
			continue
		}
		out = append(out, CourseSummary{
			ID:           id,
			Code:         c.Code,
			Name:         c.Name,
			Dept:         c.Dept,
			Class:        c.Class,
			IsLab:        c.IsLab,
			StudentCount: len(m.enrollments[id]),
			HoursTaught:  hours[id],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// upsertStudent keeps the stored name of an existing reg no. Callers hold the lock.
func (m *MemoryStore) upsertStudent(s Student) Student {
	if id, ok := m.regIndex[s.RegNo]; ok {
		return m.students[id]
	}
	s.ID = uuid.NewString()
	m.students[s.ID] = s
	m.regIndex[s.RegNo] = s.ID
	return s
}

func (m *MemoryStore) SaveCourse(ctx context.Context, w CourseWrite) (Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.codeIndex[w.Code]
	course := m.courses[id]
	if !ok {
		id = uuid.NewString()
		course = Course{ID: id, Code: w.Code}
		m.codeIndex[w.Code] = id
	}
	course.Name, course.Dept, course.Class, course.IsLab = w.Name, w.Dept, w.Class, w.IsLab
	if w.OwnerID != "" && !course.OwnedBy(w.OwnerID) {
		course.Owners = append(course.Owners, w.OwnerID)
	}
	m.courses[id] = course

	rows := make([]Enrollment, 0, len(w.Enrollments))
	for _, e := range w.Enrollments {
		rows = append(rows, Enrollment{Student: m.upsertStudent(e.Student), Batch: e.Batch})
	}
	m.enrollments[id] = rows
	return m.loadCourse(id)
}

func (m *MemoryStore) DeleteCourse(ctx context.Context, courseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.courses[courseID]
	if !ok {
		return ErrNotFound
	}
	for id, r := range m.records {
		if r.CourseID == courseID {
			delete(m.slotIndex, recordKey(r.CourseID, r.Date, r.Hour))
			delete(m.records, id)
		}
	}
	for id, s := range m.slots {
		if s.CourseID == courseID {
			delete(m.slots, id)
		}
	}
	delete(m.timetables, courseID)
	delete(m.enrollments, courseID)
	delete(m.codeIndex, c.Code)
	delete(m.courses, courseID)
	return nil
}

func (m *MemoryStore) AddOwner(ctx context.Context, courseID, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.courses[courseID]
	if !ok {
		return ErrNotFound
	}
	if !c.OwnedBy(ownerID) {
		c.Owners = append(c.Owners, ownerID)
		m.courses[courseID] = c
	}
	return nil
}

func (m *MemoryStore) RemoveOwner(ctx context.Context, ownerID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, c := range m.courses {
		kept := c.Owners[:0:0]
		for _, o := range c.Owners {
			if o != ownerID {
				kept = append(kept, o)
			}
		}
		if len(kept) != len(c.Owners) {
			c.Owners = kept
			m.courses[id] = c
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) StudentByRegNo(ctx context.Context, regNo string) (Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.regIndex[regNo]
	if !ok {
		return Student{}, ErrNotFound
	}
	return m.students[id], nil
}

func (m *MemoryStore) StudentByID(ctx context.Context, id string) (Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[id]
	if !ok {
		return Student{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) Enroll(ctx context.Context, courseID string, e Enrollment) (Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.courses[courseID]; !ok {
		return Student{}, ErrNotFound
	}
	student := m.upsertStudent(e.Student)
	rows := m.enrollments[courseID]
	for i, row := range rows {
		if row.Student.ID == student.ID {
			rows[i].Batch = e.Batch
			return student, nil
		}
	}
	m.enrollments[courseID] = append(rows, Enrollment{Student: student, Batch: e.Batch})
	return student, nil
}

func (m *MemoryStore) UpdateStudent(ctx context.Context, s Student) (Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.students[s.ID]
	if !ok {
		return Student{}, ErrNotFound
	}
	if other, taken := m.regIndex[s.RegNo]; taken && other != s.ID {
		return Student{}, ErrConflict
	}
	delete(m.regIndex, current.RegNo)
	m.regIndex[s.RegNo] = s.ID
	m.students[s.ID] = s
	return s, nil
}

func (m *MemoryStore) Unenroll(ctx context.Context, courseID, studentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.enrollments[courseID]
	kept := rows[:0:0]
	for _, row := range rows {
		if row.Student.ID != studentID {
			kept = append(kept, row)
		}
	}
	m.enrollments[courseID] = kept
	for _, r := range m.records {
		if r.CourseID != courseID {
			continue
		}
		entries := r.Entries[:0:0]
		for _, e := range r.Entries {
			if e.StudentID != studentID {
				entries = append(entries, e)
			}
		}
		r.Entries = entries
	}
	return nil
}

func copyRecord(r *Record) Record {
	out := *r
	out.Entries = append([]Entry(nil), r.Entries...)
	return out
}

func (m *MemoryStore) UpsertRecords(ctx context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	for _, rec := range records {
		key := recordKey(rec.CourseID, rec.Date, rec.Hour)
		rec.Entries = append([]Entry(nil), rec.Entries...)
		rec.UpdatedAt = now
		if id, ok := m.slotIndex[key]; ok {
			rec.ID = id
		} else {
			rec.ID = uuid.NewString()
			m.slotIndex[key] = rec.ID
		}
		stored := rec
		m.records[rec.ID] = &stored
	}
	return nil
}

func (m *MemoryStore) FindRecord(ctx context.Context, courseID string, date time.Time, hours []int) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found *Record
	for _, h := range hours {
		id, ok := m.slotIndex[recordKey(courseID, date, h)]
		if !ok {
			continue
		}
		if r := m.records[id]; found == nil || r.Hour < found.Hour {
			found = r
		}
	}
	if found == nil {
		return nil, nil
	}
	out := copyRecord(found)
	return &out, nil
}

func (m *MemoryStore) DeleteRecord(ctx context.Context, courseID string, date time.Time, hour int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := recordKey(courseID, date, hour)
	id, ok := m.slotIndex[key]
	if !ok {
		return false, nil
	}
	delete(m.slotIndex, key)
	delete(m.records, id)
	return true, nil
}

func (m *MemoryStore) DeleteRecordByID(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return false, nil
	}
	delete(m.slotIndex, recordKey(r.CourseID, r.Date, r.Hour))
	delete(m.records, id)
	return true, nil
}

func (m *MemoryStore) UnlockRecord(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return false, nil
	}
	r.Freeze = false
	r.IsExpired = false
	r.UpdatedAt = m.now().UTC()
	return true, nil
}

func (m *MemoryStore) RecordsByCourse(ctx context.Context, courseID string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for _, r := range m.records {
		if r.CourseID == courseID {
			out = append(out, copyRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].Hour < out[j].Hour
	})
	return out, nil
}

func (m *MemoryStore) LastRecordDate(ctx context.Context, courseID string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var last time.Time
	found := false
	for _, r := range m.records {
		if r.CourseID == courseID && (!found || r.Date.After(last)) {
			last, found = r.Date, true
		}
	}
	return last, found, nil
}

func (m *MemoryStore) SessionKeys(ctx context.Context, courseID string, from, to time.Time) ([]SessionKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []SessionKey
	for _, r := range m.records {
		if r.CourseID == courseID && !r.Date.Before(from) && r.Date.Before(to) {
			out = append(out, SessionKey{Date: r.Date, Hour: r.Hour})
		}
	}
	return out, nil
}

func (m *MemoryStore) FrozenRecords(ctx context.Context, courseIDs []string, from, to time.Time) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wanted := make(map[string]bool, len(courseIDs))
	for _, id := range courseIDs {
		wanted[id] = true
	}
	var out []Record
	for _, r := range m.records {
		if !wanted[r.CourseID] || !r.Freeze || r.Date.Before(from) || r.Date.After(to) {
			continue
		}
		out = append(out, copyRecord(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].Hour != out[j].Hour {
			return out[i].Hour < out[j].Hour
		}
		return out[i].CourseID < out[j].CourseID
	})
	return out, nil
}

func (m *MemoryStore) Timetable(ctx context.Context, courseID string) (*Timetable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.timetables[courseID]
	if !ok {
		return nil, nil
	}
	out := Timetable{CourseID: t.CourseID, Week: copyWeek(t.Week), UpdatedAt: t.UpdatedAt}
	return &out, nil
}

func (m *MemoryStore) SaveTimetable(ctx context.Context, t Timetable) (Timetable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.courses[t.CourseID]; !ok {
		return Timetable{}, ErrNotFound
	}
	t.Week = copyWeek(t.Week)
	t.UpdatedAt = m.now().UTC()
	m.timetables[t.CourseID] = t
	return t, nil
}

func copyWeek(week map[string][]int) map[string][]int {
	out := make(map[string][]int, len(week))
	for day, hours := range week {
		out[day] = append([]int(nil), hours...)
	}
	return out
}

func slotBatch(s ScheduleSlot) int {
	if s.Batch == nil {
		return 0
	}
	return *s.Batch
}

func (m *MemoryStore) AddSlot(ctx context.Context, slot ScheduleSlot) (ScheduleSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.courses[slot.CourseID]; !ok {
		return ScheduleSlot{}, ErrNotFound
	}
	for _, s := range m.slots {
		if s.CourseID == slot.CourseID && s.Day == slot.Day && s.Hour == slot.Hour && slotBatch(s) == slotBatch(slot) {
			return ScheduleSlot{}, ErrConflict
		}
	}
	slot.ID = uuid.NewString()
	m.slots[slot.ID] = slot
	return slot, nil
}

func (m *MemoryStore) DeleteSlot(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.slots[id]; !ok {
		return false, nil
	}
	delete(m.slots, id)
	return true, nil
}

func (m *MemoryStore) Slots(ctx context.Context, courseID string) ([]ScheduleSlot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ScheduleSlot
	for _, s := range m.slots {
		if s.CourseID == courseID {
			out = append(out, s)
		}
	}
	SortSlots(out)
	return out, nil
}

// SortSlots orders slots by weekday, hour, then batch.
func SortSlots(slots []ScheduleSlot) {
	dayIndex := make(map[string]int, len(Weekdays))
	for i, d := range Weekdays {
		dayIndex[d] = i
	}
	sort.Slice(slots, func(i, j int) bool {
		a, b := slots[i], slots[j]
		if dayIndex[a.Day] != dayIndex[b.Day] {
			return dayIndex[a.Day] < dayIndex[b.Day]
		}
		if a.Hour != b.Hour {
			return a.Hour < b.Hour
		}
		return slotBatch(a) < slotBatch(b)
	})
}
