package attendance

import (
	"sort"
)

// Roster is the enrolment of a course: either SingleRoster or BatchedRoster.
type Roster interface {
	// All returns the union roster.
	All() []Student
}

// SingleRoster is the roster of a theory course.
type SingleRoster struct {
	Students []Student
}

func (r SingleRoster) All() []Student { return r.Students }

// BatchedRoster is the roster of a lab course split into two disjoint batches.
type BatchedRoster struct {
	Batch1 []Student
	Batch2 []Student
}

func (r BatchedRoster) All() []Student {
	all := make([]Student, 0, len(r.Batch1)+len(r.Batch2))
	all = append(all, r.Batch1...)
	return append(all, r.Batch2...)
}

// rollKey is the roll-call sort key: the last three characters of the reg no.
func rollKey(regNo string) string {
	if len(regNo) <= 3 {
		return regNo
	}
	return regNo[len(regNo)-3:]
}

// SortRollCall orders students in place by roll-call order. Ties keep their
// relative order so the result depends only on the input.
func SortRollCall(students []Student) {
	sort.SliceStable(students, func(i, j int) bool {
		return rollKey(students[i].RegNo) < rollKey(students[j].RegNo)
	})
}

// ResolveRoster returns the students eligible for a session of course in
// roll-call order. batch is 0 when absent; lab courses require 1 or 2.
func ResolveRoster(course Course, batch int) ([]Student, error) {
	if course.IsLab && batch != 1 && batch != 2 {
		return nil, validationf("batch 1 or 2 is required for lab course %s", course.Code)
	}
	var students []Student
	switch r := course.Roster.(type) {
	case BatchedRoster:
		switch batch {
		case 1:
			students = r.Batch1
		case 2:
			students = r.Batch2
		default:
			return nil, integrityf("course %s has batches but is not a lab", course.Code)
		}
	case SingleRoster:
		students = r.Students
	case nil:
	default:
		return nil, integrityf("course %s has an unknown roster shape", course.Code)
	}
	if len(students) == 0 {
		if batch > 0 && course.IsLab {
			return nil, notFoundf("no students found for course %s batch %d", course.Code, batch)
		}
		return nil, notFoundf("no students found for course %s", course.Code)
	}
	out := make([]Student, len(students))
	copy(out, students)
	SortRollCall(out)
	return out, nil
}

// UnionRoster returns every enrolled student of course in roll-call order.
func UnionRoster(course Course) []Student {
	if course.Roster == nil {
		return nil
	}
	out := append([]Student(nil), course.Roster.All()...)
	SortRollCall(out)
	return out
}

// CheckPartition verifies that the batches of a lab roster are disjoint.
// A student found in both batches is an integrity violation.
func CheckPartition(course Course) error {
	r, ok := course.Roster.(BatchedRoster)
	if !ok {
		return nil
	}
	seen := make(map[string]struct{}, len(r.Batch1))
	for _, s := range r.Batch1 {
		seen[s.ID] = struct{}{}
	}
	for _, s := range r.Batch2 {
		if _, dup := seen[s.ID]; dup {
			return integrityf("student %s is in both batches of course %s", s.RegNo, course.Code)
		}
	}
	return nil
}

// Enrollment is one roster row: a student and its lab batch (0 for none).
type Enrollment struct {
	Student Student
	Batch   int
}

// buildRoster shapes enrolment rows into the course's roster variant. A lab
// enrolment without a batch cannot be placed and is reported, not repaired.
func buildRoster(course Course, rows []Enrollment) (Roster, error) {
	if !course.IsLab {
		students := make([]Student, 0, len(rows))
		for _, row := range rows {
			students = append(students, row.Student)
		}
		return SingleRoster{Students: students}, nil
	}
	var r BatchedRoster
	for _, row := range rows {
		switch row.Batch {
		case 1:
			r.Batch1 = append(r.Batch1, row.Student)
		case 2:
			r.Batch2 = append(r.Batch2, row.Student)
		default:
			return nil, integrityf("student %s of lab course %s has no batch", row.Student.RegNo, course.Code)
		}
	}
	return r, nil
}
