package attendance

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
)

// Percentage is present/total as a percentage rounded to two decimals; zero
// when nothing was conducted.
func Percentage(present, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(present)/float64(total)*100*100) / 100
}

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func parseRange(start, end string) (DateRange, error) {
	from, err := parseDateField("start date", start)
	if err != nil {
		return DateRange{}, err
	}
	to, err := parseDateField("end date", end)
	if err != nil {
		return DateRange{}, err
	}
	if to.Before(from) {
		return DateRange{}, validationf("end date %s is before start date %s", end, start)
	}
	return DateRange{Start: from, End: to}, nil
}

// StudentReport is one student's attendance in one course.
type StudentReport struct {
	RegNo      string  `json:"regNo"`
	Name       string  `json:"name"`
	CourseCode string  `json:"courseCode"`
	Present    int     `json:"present"`
	TotalHours int     `json:"totalHours"`
	Percentage float64 `json:"percentage"`
}

// StudentReport counts the frozen sessions of the course in range that carry
// a mark for the student.
func (s *Service) StudentReport(ctx context.Context, regNo, courseCode, start, end string) (StudentReport, error) {
	regNo = NormalizeRegNo(regNo)
	if regNo == "" {
		return StudentReport{}, validationf("reg no is required")
	}
	if strings.TrimSpace(courseCode) == "" {
		return StudentReport{}, validationf("course code is required")
	}
	rng, err := parseRange(start, end)
	if err != nil {
		return StudentReport{}, err
	}
	student, err := s.store.StudentByRegNo(ctx, regNo)
	if errors.Is(err, ErrNotFound) {
		return StudentReport{}, notFoundf("student %s not found", regNo)
	}
	if err != nil {
		return StudentReport{}, err
	}
	course, err := s.courseByCode(ctx, courseCode)
	if err != nil {
		return StudentReport{}, err
	}
	records, err := s.store.FrozenRecords(ctx, []string{course.ID}, rng.Start, rng.End)
	if err != nil {
		return StudentReport{}, err
	}

	out := StudentReport{RegNo: student.RegNo, Name: student.Name, CourseCode: course.Code}
	for _, rec := range records {
		for _, e := range rec.Entries {
			if e.StudentID != student.ID {
				continue
			}
			out.TotalHours++
			if e.Status.CountsPresent() {
				out.Present++
			}
			break
		}
	}
	if out.TotalHours == 0 {
		return StudentReport{}, notFoundf("no attendance data for %s in %s between %s and %s",
			student.RegNo, course.Code, rng.Start.Format(DateLayout), rng.End.Format(DateLayout))
	}
	out.Percentage = Percentage(out.Present, out.TotalHours)
	return out, nil
}

// StatusMark is one recorded mark in a class report.
type StatusMark struct {
	Date   string `json:"date"`
	Hour   int    `json:"hour"`
	Status Status `json:"status"`
}

// CourseAttendance is a student's tally in one course.
type CourseAttendance struct {
	CourseCode string       `json:"courseCode"`
	Present    int          `json:"present"`
	TotalHours int          `json:"totalHours"`
	Percentage float64      `json:"percentage"`
	Statuses   []StatusMark `json:"statuses"`
}

// ClassReportRow is one student of a class report.
type ClassReportRow struct {
	StudentID string             `json:"studentId"`
	RegNo     string             `json:"regNo"`
	Name      string             `json:"name"`
	Courses   []CourseAttendance `json:"courses"`
}

// ClassReport returns every enrolled student of the course, in roll-call
// order, with its marks in range in chronological order. Students with no
// marks are still listed.
func (s *Service) ClassReport(ctx context.Context, courseCode, start, end string) ([]ClassReportRow, error) {
	if strings.TrimSpace(courseCode) == "" {
		return nil, validationf("course code is required")
	}
	rng, err := parseRange(start, end)
	if err != nil {
		return nil, err
	}
	course, err := s.courseByCode(ctx, courseCode)
	if err != nil {
		return nil, err
	}
	roster := UnionRoster(course)
	if len(roster) == 0 {
		return nil, notFoundf("no students found for course %s", course.Code)
	}
	records, err := s.store.FrozenRecords(ctx, []string{course.ID}, rng.Start, rng.End)
	if err != nil {
		return nil, err
	}

	rows := make([]ClassReportRow, len(roster))
	index := make(map[string]int, len(roster))
	for i, st := range roster {
		index[st.ID] = i
		rows[i] = ClassReportRow{
			StudentID: st.ID,
			RegNo:     st.RegNo,
			Name:      st.Name,
			Courses:   []CourseAttendance{{CourseCode: course.Code, Statuses: []StatusMark{}}},
		}
	}
	for _, rec := range records {
		date := rec.Date.Format(DateLayout)
		for _, e := range rec.Entries {
			i, ok := index[e.StudentID]
			if !ok {
				continue
			}
			ca := &rows[i].Courses[0]
			ca.TotalHours++
			if e.Status.CountsPresent() {
				ca.Present++
			}
			ca.Statuses = append(ca.Statuses, StatusMark{Date: date, Hour: rec.Hour, Status: e.Status})
		}
	}
	for i := range rows {
		ca := &rows[i].Courses[0]
		ca.Percentage = Percentage(ca.Present, ca.TotalHours)
	}
	return rows, nil
}

// MasterReportRow is one student's tally across all courses of a class.
type MasterReportRow struct {
	StudentID      string  `json:"studentId"`
	RegNo          string  `json:"regNo"`
	Name           string  `json:"name"`
	TotalPresent   int     `json:"totalPresent"`
	TotalConducted int     `json:"totalConducted"`
	Percentage     float64 `json:"percentage"`
}

// MasterReport tallies every student enrolled in any course of (dept, class)
// across all of those courses. Students are deduped by identity and listed
// in roll-call order, including those with nothing conducted.
func (s *Service) MasterReport(ctx context.Context, dept, class, start, end string) ([]MasterReportRow, error) {
	dept, class = strings.TrimSpace(dept), strings.TrimSpace(class)
	if dept == "" || class == "" {
		return nil, validationf("dept and class are required")
	}
	rng, err := parseRange(start, end)
	if err != nil {
		return nil, err
	}
	courses, err := s.store.CoursesByClass(ctx, dept, class)
	if err != nil {
		return nil, err
	}
	if len(courses) == 0 {
		return nil, notFoundf("no courses found for %s %s", dept, class)
	}

	var roster []Student
	seen := make(map[string]bool)
	courseIDs := make([]string, 0, len(courses))
	for _, c := range courses {
		courseIDs = append(courseIDs, c.ID)
		if c.Roster == nil {
			continue
		}
		for _, st := range c.Roster.All() {
			if !seen[st.ID] {
				seen[st.ID] = true
				roster = append(roster, st)
			}
		}
	}
	if len(roster) == 0 {
		return nil, notFoundf("no students found for %s %s", dept, class)
	}
	SortRollCall(roster)

	records, err := s.store.FrozenRecords(ctx, courseIDs, rng.Start, rng.End)
	if err != nil {
		return nil, err
	}
	rows := make([]MasterReportRow, len(roster))
	index := make(map[string]int, len(roster))
	for i, st := range roster {
		index[st.ID] = i
		rows[i] = MasterReportRow{StudentID: st.ID, RegNo: st.RegNo, Name: st.Name}
	}
	for _, rec := range records {
		for _, e := range rec.Entries {
			i, ok := index[e.StudentID]
			if !ok {
				continue
			}
			rows[i].TotalConducted++
			if e.Status.CountsPresent() {
				rows[i].TotalPresent++
			}
		}
	}
	for i := range rows {
		rows[i].Percentage = Percentage(rows[i].TotalPresent, rows[i].TotalConducted)
	}
	return rows, nil
}
