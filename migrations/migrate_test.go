package migrations

import (
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestNamesAreOrdered(t *testing.T) {
	names, err := Names()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) == 0 || names[0] != "001_init.sql" {
		t.Fatalf("names = %v", names)
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("not sorted: %v", names)
		}
	}
}

func TestInitCreatesRecordKey(t *testing.T) {
	body, err := files.ReadFile("001_init.sql")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "UNIQUE (course_id, session_date, hour)") {
		t.Fatal("attendance_records must be unique per course, date and hour")
	}
	if !strings.Contains(string(body), "UNIQUE (course_id, day, hour, batch)") {
		t.Fatal("schedule_slots must be unique per course, day, hour and batch")
	}
}

func TestAlreadyApplied(t *testing.T) {
	if !alreadyApplied(&pgconn.PgError{Code: "42P07"}) {
		t.Fatal("duplicate_table should be tolerated")
	}
	if alreadyApplied(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("unique_violation must not be tolerated")
	}
	if alreadyApplied(errors.New("boom")) {
		t.Fatal("plain errors must not be tolerated")
	}
}
