// Package export renders class reports as day-by-day matrices.
package export

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"rollcall/internal/attendance"
)

// DefaultCycleSize is the number of sessions per cycle.
const DefaultCycleSize = 20

var ErrCycleOutOfRange = errors.New("cycle out of range")

// Session is one column of the matrix.
type Session struct {
	Date string
	Hour int
}

func (s Session) key() string { return s.Date + "|" + strconv.Itoa(s.Hour) }

// Label is the column header, e.g. "2024-01-10 H3".
func (s Session) Label() string { return fmt.Sprintf("%s H%d", s.Date, s.Hour) }

// Sessions returns every session marked for any student, chronologically.
func Sessions(rows []attendance.ClassReportRow) []Session {
	seen := make(map[string]bool)
	var out []Session
	for _, r := range rows {
		for _, c := range r.Courses {
			for _, m := range c.Statuses {
				s := Session{Date: m.Date, Hour: m.Hour}
				if !seen[s.key()] {
					seen[s.key()] = true
					out = append(out, s)
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Hour < out[j].Hour
	})
	return out
}

// Line is one student row of the matrix.
type Line struct {
	RegNo      string
	Name       string
	Marks      []string
	Present    int
	Total      int
	Percentage float64
}

// Matrix is the tabular form of a class report.
type Matrix struct {
	Title    string
	Sessions []Session
	Lines    []Line
}

// Headers lists the column titles.
func (m Matrix) Headers() []string {
	h := make([]string, 0, len(m.Sessions)+5)
	h = append(h, "Reg No", "Name")
	for _, s := range m.Sessions {
		h = append(h, s.Label())
	}
	return append(h, "Present", "Total", "Percentage")
}

// Cells renders a line as strings in header order.
func (l Line) Cells() []string {
	c := make([]string, 0, len(l.Marks)+5)
	c = append(c, l.RegNo, l.Name)
	c = append(c, l.Marks...)
	return append(c,
		strconv.Itoa(l.Present),
		strconv.Itoa(l.Total),
		strconv.FormatFloat(l.Percentage, 'f', 2, 64),
	)
}

// NewMatrix lays rows out against sessions. A blank cell means the student
// has no mark for that session.
func NewMatrix(title string, rows []attendance.ClassReportRow, sessions []Session) Matrix {
	col := make(map[string]int, len(sessions))
	for i, s := range sessions {
		col[s.key()] = i
	}
	m := Matrix{Title: title, Sessions: sessions, Lines: make([]Line, 0, len(rows))}
	for _, r := range rows {
		line := Line{RegNo: r.RegNo, Name: r.Name, Marks: make([]string, len(sessions))}
		for _, c := range r.Courses {
			for _, mark := range c.Statuses {
				i, ok := col[Session{Date: mark.Date, Hour: mark.Hour}.key()]
				if !ok {
					continue
				}
				line.Marks[i] = mark.Status.Label()
				line.Total++
				if mark.Status.CountsPresent() {
					line.Present++
				}
			}
		}
		line.Percentage = attendance.Percentage(line.Present, line.Total)
		m.Lines = append(m.Lines, line)
	}
	return m
}

// Cycles is the number of cycles needed for n sessions.
func Cycles(n, size int) int {
	if size <= 0 {
		size = DefaultCycleSize
	}
	if n == 0 {
		return 1
	}
	return (n + size - 1) / size
}

// Page keeps only the statuses of the given 1-based cycle of sessions and
// recomputes each student's tally over that window.
func Page(rows []attendance.ClassReportRow, cycle, size int) ([]attendance.ClassReportRow, int, error) {
	if size <= 0 {
		size = DefaultCycleSize
	}
	sessions := Sessions(rows)
	total := Cycles(len(sessions), size)
	if cycle < 1 || cycle > total {
		return nil, total, fmt.Errorf("%w: %d of %d", ErrCycleOutOfRange, cycle, total)
	}
	from := (cycle - 1) * size
	to := from + size
	if to > len(sessions) {
		to = len(sessions)
	}
	window := make(map[string]bool, to-from)
	for _, s := range sessions[from:to] {
		window[s.key()] = true
	}

	out := make([]attendance.ClassReportRow, 0, len(rows))
	for _, r := range rows {
		paged := r
		paged.Courses = make([]attendance.CourseAttendance, 0, len(r.Courses))
		for _, c := range r.Courses {
			pc := attendance.CourseAttendance{CourseCode: c.CourseCode, Statuses: []attendance.StatusMark{}}
			for _, m := range c.Statuses {
				if !window[Session{Date: m.Date, Hour: m.Hour}.key()] {
					continue
				}
				pc.Statuses = append(pc.Statuses, m)
				pc.TotalHours++
				if m.Status.CountsPresent() {
					pc.Present++
				}
			}
			pc.Percentage = attendance.Percentage(pc.Present, pc.TotalHours)
			paged.Courses = append(paged.Courses, pc)
		}
		out = append(out, paged)
	}
	return out, total, nil
}

// Filename builds a download name such as "cs101_2024-01-01_2024-01-31.csv".
func Filename(course, start, end string, f Format) string {
	base := strings.ToLower(strings.Join([]string{course, start, end}, "_"))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '-'
	}, base)
	return base + "." + string(f)
}
