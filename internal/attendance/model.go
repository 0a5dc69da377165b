package attendance

import (
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar date format used on the wire and in storage keys.
const DateLayout = "2006-01-02"

// Hours of the teaching day.
const (
	MinHour = 1
	MaxHour = 8
)

// Status is the attendance mark for one student in one session.
type Status int

const (
	Absent  Status = -1
	Present Status = 1
	OnDuty  Status = 2
)

// Valid reports whether s is one of the known marks.
func (s Status) Valid() bool {
	return s == Present || s == Absent || s == OnDuty
}

// CountsPresent reports whether s counts toward presence. OnDuty does.
func (s Status) CountsPresent() bool {
	return s == Present || s == OnDuty
}

// Label is the short form used in exported reports.
func (s Status) Label() string {
	switch s {
	case Present:
		return "P"
	case Absent:
		return "A"
	case OnDuty:
		return "OD"
	default:
		return ""
	}
}

// Role of an authenticated caller.
type Role string

const (
	RoleFaculty             Role = "faculty"
	RoleRepresentative      Role = "representative"
	RoleClassRepresentative Role = "class_representative"
)

// Caller is the verified identity on whose behalf an operation runs.
type Caller struct {
	ID   string
	Role Role
}

// Student is identified by its registration number.
type Student struct {
	ID    string `json:"id"`
	RegNo string `json:"regNo"`
	Name  string `json:"name"`
}

// NormalizeRegNo trims and uppercases a registration number.
func NormalizeRegNo(regNo string) string {
	return strings.ToUpper(strings.TrimSpace(regNo))
}

// Course is a registered course with its roster.
type Course struct {
	ID     string   `json:"id"`
	Code   string   `json:"code"`
	Name   string   `json:"name"`
	Dept   string   `json:"dept"`
	Class  string   `json:"class"`
	IsLab  bool     `json:"isLab"`
	Owners []string `json:"owners"`
	Roster Roster   `json:"-"`
}

// OwnedBy reports whether id is in the course owner set.
func (c Course) OwnedBy(id string) bool {
	for _, owner := range c.Owners {
		if owner == id {
			return true
		}
	}
	return false
}

// CourseSummary is a course row on an owner's dashboard.
type CourseSummary struct {
	ID           string `json:"id"`
	Code         string `json:"code"`
	Name         string `json:"name"`
	Dept         string `json:"dept"`
	Class        string `json:"class"`
	IsLab        bool   `json:"isLab"`
	StudentCount int    `json:"studentCount"`
	HoursTaught  int    `json:"hoursTaught"`
}

// Entry is one student's mark inside a record.
type Entry struct {
	StudentID string `json:"student_id"`
	Status    Status `json:"status"`
}

// Record is the attendance for one (course, date, hour) slot.
type Record struct {
	ID        string    `json:"id"`
	CourseID  string    `json:"courseId"`
	OwnerID   string    `json:"ownerId"`
	Date      time.Time `json:"date"`
	Hour      int       `json:"hour"`
	Freeze    bool      `json:"freeze"`
	IsExpired bool      `json:"isExpired"`
	Entries   []Entry   `json:"entries"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SessionKey identifies a teaching slot within a course.
type SessionKey struct {
	Date time.Time
	Hour int
}

func (k SessionKey) String() string {
	return k.Date.Format(DateLayout) + "|" + strconv.Itoa(k.Hour)
}

// Weekday names accepted in timetables and schedule slots.
var Weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday"}

// WeekdayName maps a date to its timetable key; weekends map to "".
func WeekdayName(t time.Time) string {
	switch t.Weekday() {
	case time.Monday:
		return "monday"
	case time.Tuesday:
		return "tuesday"
	case time.Wednesday:
		return "wednesday"
	case time.Thursday:
		return "thursday"
	case time.Friday:
		return "friday"
	default:
		return ""
	}
}

func isWeekday(day string) bool {
	for _, d := range Weekdays {
		if d == day {
			return true
		}
	}
	return false
}

// Timetable is a course's weekly template of scheduled hours.
type Timetable struct {
	CourseID  string           `json:"courseId"`
	Week      map[string][]int `json:"timetable"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// HoursOn returns the hours scheduled on the weekday of t.
func (t Timetable) HoursOn(day time.Time) []int {
	return t.Week[WeekdayName(day)]
}

// ScheduleSlot is one bookable (course, weekday, hour, batch) slot.
type ScheduleSlot struct {
	ID       string `json:"id"`
	CourseID string `json:"courseId"`
	Day      string `json:"day"`
	Hour     int    `json:"hour"`
	Batch    *int   `json:"batch"`
}

// ParseDate parses a calendar date into UTC midnight.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
}

// CivilDate returns the calendar day of t in loc as UTC midnight.
func CivilDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}
