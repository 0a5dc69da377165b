package attendance

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// StudentInput is a roster row as it arrives from the ingestion side.
type StudentInput struct {
	RegNo string `json:"regNo" binding:"required"`
	Name  string `json:"name" binding:"required"`
}

// CourseRegistration registers or re-registers a course with its roster.
// Lab courses carry Batch1 and Batch2; other courses carry Students.
type CourseRegistration struct {
	Code     string         `json:"code" binding:"required"`
	Name     string         `json:"name" binding:"required"`
	Dept     string         `json:"dept" binding:"required"`
	Class    string         `json:"class" binding:"required"`
	IsLab    bool           `json:"isLab"`
	Students []StudentInput `json:"students" binding:"dive"`
	Batch1   []StudentInput `json:"batch1Students" binding:"dive"`
	Batch2   []StudentInput `json:"batch2Students" binding:"dive"`
}

func cleanStudent(in StudentInput) (Student, error) {
	regNo := NormalizeRegNo(in.RegNo)
	if regNo == "" {
		return Student{}, validationf("student reg no is required")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Student{}, validationf("name of student %s is required", regNo)
	}
	return Student{RegNo: regNo, Name: name}, nil
}

// enrollmentsOf turns registration rosters into enrolment rows, rejecting a
// reg no that appears twice.
func enrollmentsOf(reg CourseRegistration) ([]Enrollment, error) {
	var rows []Enrollment
	seen := make(map[string]int)
	add := func(list []StudentInput, batch int) error {
		for _, in := range list {
			st, err := cleanStudent(in)
			if err != nil {
				return err
			}
			if prev, dup := seen[st.RegNo]; dup {
				if prev != batch {
					return validationf("student %s is in both batches", st.RegNo)
				}
				return validationf("student %s is listed twice", st.RegNo)
			}
			seen[st.RegNo] = batch
			rows = append(rows, Enrollment{Student: st, Batch: batch})
		}
		return nil
	}
	if reg.IsLab {
		if len(reg.Students) > 0 {
			return nil, validationf("lab course %s takes batch rosters, not a single roster", reg.Code)
		}
		if len(reg.Batch1) == 0 || len(reg.Batch2) == 0 {
			return nil, validationf("lab course %s requires both batch rosters", reg.Code)
		}
		if err := add(reg.Batch1, 1); err != nil {
			return nil, err
		}
		if err := add(reg.Batch2, 2); err != nil {
			return nil, err
		}
		return rows, nil
	}
	if len(reg.Batch1) > 0 || len(reg.Batch2) > 0 {
		return nil, validationf("course %s is not a lab and cannot have batches", reg.Code)
	}
	if len(reg.Students) == 0 {
		return nil, validationf("course %s requires a student roster", reg.Code)
	}
	if err := add(reg.Students, 0); err != nil {
		return nil, err
	}
	return rows, nil
}

// RegisterCourse upserts the course by code, merges the caller into its owner
// set and replaces its roster. Students already known keep their stored name.
func (s *Service) RegisterCourse(ctx context.Context, caller Caller, reg CourseRegistration) (Course, error) {
	reg.Code = strings.TrimSpace(reg.Code)
	if reg.Code == "" {
		return Course{}, validationf("course code is required")
	}
	for _, f := range []struct{ name, value string }{{"name", reg.Name}, {"dept", reg.Dept}, {"class", reg.Class}} {
		if strings.TrimSpace(f.value) == "" {
			return Course{}, validationf("course %s is required", f.name)
		}
	}
	rows, err := enrollmentsOf(reg)
	if err != nil {
		return Course{}, err
	}
	course, err := s.store.SaveCourse(ctx, CourseWrite{
		Code:        reg.Code,
		Name:        strings.TrimSpace(reg.Name),
		Dept:        strings.TrimSpace(reg.Dept),
		Class:       strings.TrimSpace(reg.Class),
		IsLab:       reg.IsLab,
		OwnerID:     caller.ID,
		Enrollments: rows,
	})
	if err != nil {
		return Course{}, err
	}
	s.log.Info("course registered",
		zap.String("course", course.Code),
		zap.Int("students", len(rows)),
		zap.String("owner", caller.ID),
	)
	return course, nil
}

// EnrollStudent adds one student to a course roster, creating the student if
// the reg no is new. Lab courses require batch 1 or 2.
func (s *Service) EnrollStudent(ctx context.Context, courseID string, in StudentInput, batch int) (Student, error) {
	course, err := s.courseByID(ctx, courseID)
	if err != nil {
		return Student{}, err
	}
	st, err := cleanStudent(in)
	if err != nil {
		return Student{}, err
	}
	if course.IsLab {
		if batch != 1 && batch != 2 {
			return Student{}, validationf("batch 1 or 2 is required for lab course %s", course.Code)
		}
	} else {
		batch = 0
	}
	out, err := s.store.Enroll(ctx, course.ID, Enrollment{Student: st, Batch: batch})
	if errors.Is(err, ErrNotFound) {
		return Student{}, notFoundf("course %s not found", courseID)
	}
	return out, err
}

// StudentUpdate carries the fields to change; nil fields are kept.
type StudentUpdate struct {
	RegNo *string `json:"regNo"`
	Name  *string `json:"name"`
}

func (s *Service) UpdateStudent(ctx context.Context, id string, upd StudentUpdate) (Student, error) {
	if err := requireID("student", id); err != nil {
		return Student{}, err
	}
	current, err := s.store.StudentByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Student{}, notFoundf("student %s not found", id)
	}
	if err != nil {
		return Student{}, err
	}
	if upd.RegNo != nil {
		current.RegNo = NormalizeRegNo(*upd.RegNo)
		if current.RegNo == "" {
			return Student{}, validationf("reg no cannot be empty")
		}
	}
	if upd.Name != nil {
		current.Name = strings.TrimSpace(*upd.Name)
		if current.Name == "" {
			return Student{}, validationf("name cannot be empty")
		}
	}
	out, err := s.store.UpdateStudent(ctx, current)
	switch {
	case errors.Is(err, ErrConflict):
		return Student{}, conflictf("reg no %s belongs to another student", current.RegNo)
	case errors.Is(err, ErrNotFound):
		return Student{}, notFoundf("student %s not found", id)
	}
	return out, err
}

// RemoveStudentFromCourse unenrolls the student and prunes its marks from
// every record of the course. The student itself is kept.
func (s *Service) RemoveStudentFromCourse(ctx context.Context, studentID, courseID string) error {
	if err := requireID("student", studentID); err != nil {
		return err
	}
	course, err := s.courseByID(ctx, courseID)
	if err != nil {
		return err
	}
	enrolled := false
	for _, st := range UnionRoster(course) {
		if st.ID == studentID {
			enrolled = true
			break
		}
	}
	if !enrolled {
		return notFoundf("student %s is not enrolled in %s", studentID, course.Code)
	}
	return s.store.Unenroll(ctx, course.ID, studentID)
}

// RosterStudent is a student with its lab batch (0 outside labs).
type RosterStudent struct {
	Student
	Batch int `json:"batch,omitempty"`
}

// CourseStudents lists the course roster in roll-call order.
func (s *Service) CourseStudents(ctx context.Context, courseID string) ([]RosterStudent, error) {
	course, err := s.courseByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	batchOf := make(map[string]int)
	if r, ok := course.Roster.(BatchedRoster); ok {
		for _, st := range r.Batch1 {
			batchOf[st.ID] = 1
		}
		for _, st := range r.Batch2 {
			batchOf[st.ID] = 2
		}
	}
	students := UnionRoster(course)
	out := make([]RosterStudent, 0, len(students))
	for _, st := range students {
		out = append(out, RosterStudent{Student: st, Batch: batchOf[st.ID]})
	}
	return out, nil
}

// OwnerDashboard lists the courses owned by the caller.
func (s *Service) OwnerDashboard(ctx context.Context, caller Caller) ([]CourseSummary, error) {
	out, err := s.store.CourseSummaries(ctx, caller.ID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []CourseSummary{}
	}
	return out, nil
}

// AddCourseOwner grants ownerID (typically a representative) the course.
func (s *Service) AddCourseOwner(ctx context.Context, courseID, ownerID string) error {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return validationf("owner id is required")
	}
	course, err := s.courseByID(ctx, courseID)
	if err != nil {
		return err
	}
	if err := s.store.AddOwner(ctx, course.ID, ownerID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return notFoundf("course %s not found", courseID)
		}
		return err
	}
	return nil
}

// RemoveOwner drops ownerID from every course it owns and returns how many
// courses changed.
func (s *Service) RemoveOwner(ctx context.Context, ownerID string) (int, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return 0, validationf("owner id is required")
	}
	n, err := s.store.RemoveOwner(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, notFoundf("owner %s has no courses", ownerID)
	}
	return n, nil
}

// DeleteCourse removes the course with its records, timetable, slots and
// roster. Only an owner may delete it.
func (s *Service) DeleteCourse(ctx context.Context, caller Caller, courseID string) error {
	course, err := s.courseByID(ctx, courseID)
	if err != nil {
		return err
	}
	if !course.OwnedBy(caller.ID) {
		return forbiddenf("only owners of %s may delete it", course.Code)
	}
	if err := s.store.DeleteCourse(ctx, course.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return notFoundf("course %s not found", courseID)
		}
		return err
	}
	s.log.Info("course deleted", zap.String("course", course.Code), zap.String("caller", caller.ID))
	return nil
}
